package acquire

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/lucianfialho/urban-lullaby/internal/catalogue"
	"github.com/lucianfialho/urban-lullaby/internal/fileutil"
	"github.com/lucianfialho/urban-lullaby/internal/logging"
	"github.com/lucianfialho/urban-lullaby/internal/metrics"
)

// Skip reasons recorded for unusable catalogue entries.
const (
	ReasonMissingTitleOrArtist = "missing_title_or_artist"
	ReasonMissingAudioSource   = "missing_audio_source"
	ReasonDownloadFailed       = "download_failed"
	ReasonDuplicateFileName    = "duplicate_file_name"
)

// Catalogue is the subset of the catalogue client the acquirer needs.
type Catalogue interface {
	Search(ctx context.Context, term string) (*catalogue.Response, error)
	Download(ctx context.Context, rawURL string) (io.ReadCloser, error)
}

// Track is a fully downloaded catalogue entry.
type Track struct {
	Title     string `json:"title"`
	Artist    string `json:"artist"`
	SourceURL string `json:"source_url"`
	LocalPath string `json:"local_path"`
}

// Skip describes a catalogue entry that did not become a Track.
type Skip struct {
	ID     string `json:"id"`
	Title  string `json:"title,omitempty"`
	Artist string `json:"artist,omitempty"`
	Reason string `json:"reason"`
	Detail string `json:"detail,omitempty"`
}

// Result is the outcome of one acquisition. Tracks are in catalogue order.
type Result struct {
	Tracks  []Track
	Skipped []Skip
}

// Option configures an Acquirer.
type Option func(*Acquirer)

// WithTagger replaces the default ID3 tagger; nil disables tagging.
func WithTagger(t Tagger) Option {
	return func(a *Acquirer) {
		a.tagger = t
	}
}

// Acquirer downloads the tracks returned by a catalogue search.
type Acquirer struct {
	client Catalogue
	tagger Tagger
	logger *slog.Logger
}

// New constructs an Acquirer.
func New(client Catalogue, logger *slog.Logger, opts ...Option) *Acquirer {
	a := &Acquirer{
		client: client,
		tagger: ID3Tagger{},
		logger: logging.NewComponentLogger(logger, "acquire"),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Acquire searches the catalogue for term and downloads every usable entry
// into outputDir. Failures never escape: a failed search yields an empty
// Result, a failed download yields a Skip.
func (a *Acquirer) Acquire(ctx context.Context, term, outputDir string) Result {
	logger := logging.WithContext(ctx, a.logger)
	started := time.Now()

	resp, err := a.client.Search(ctx, term)
	if err != nil {
		if errors.Is(err, catalogue.ErrNoTracks) {
			logging.WarnWithContext(logger, "catalogue returned no tracks", "catalogue_empty",
				logging.String("search_term", term),
				logging.String(logging.FieldErrorHint, "try a broader catalogue.search_term"),
				logging.String(logging.FieldImpact, "pass ends without a playlist"),
			)
			return Result{}
		}
		logging.ErrorWithContext(logger, "catalogue search failed", "catalogue_search_failed",
			logging.String("search_term", term),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check network access and catalogue.base_url"),
		)
		return Result{}
	}

	var result Result
	seen := make(map[string]struct{}, len(resp.Entries))
	for _, entry := range resp.Entries {
		if ctx.Err() != nil {
			logger.Info("acquisition cancelled", logging.Int("downloaded", len(result.Tracks)))
			break
		}
		if entry.Title == "" || entry.Artist == "" {
			result.Skipped = append(result.Skipped, a.skip(logger, entry, ReasonMissingTitleOrArtist, ""))
			continue
		}
		if entry.AudioURL == "" {
			result.Skipped = append(result.Skipped, a.skip(logger, entry, ReasonMissingAudioSource, ""))
			continue
		}
		name := FileName(entry.Artist, entry.Title)
		if _, dup := seen[name]; dup {
			result.Skipped = append(result.Skipped, a.skip(logger, entry, ReasonDuplicateFileName, name))
			continue
		}
		path := filepath.Join(outputDir, name)
		if err := a.download(ctx, entry.AudioURL, path); err != nil {
			result.Skipped = append(result.Skipped, a.skip(logger, entry, ReasonDownloadFailed, err.Error()))
			continue
		}
		seen[name] = struct{}{}
		a.tag(logger, path, entry)
		metrics.TracksTotal.WithLabelValues("downloaded").Inc()
		logger.Debug("track downloaded",
			logging.String("title", entry.Title),
			logging.String("artist", entry.Artist),
			logging.String("path", path),
		)
		result.Tracks = append(result.Tracks, Track{
			Title:     entry.Title,
			Artist:    entry.Artist,
			SourceURL: entry.AudioURL,
			LocalPath: path,
		})
	}

	logger.Info("acquisition complete",
		logging.String(logging.FieldEventType, "acquisition_complete"),
		logging.Int("catalogue_entries", len(resp.Entries)),
		logging.Int("downloaded", len(result.Tracks)),
		logging.Int("skipped", len(result.Skipped)),
		logging.Duration("elapsed", time.Since(started).Round(time.Millisecond)),
	)
	return result
}

func (a *Acquirer) download(ctx context.Context, url, path string) error {
	body, err := a.client.Download(ctx, url)
	if err != nil {
		return err
	}
	defer body.Close()
	if _, err := fileutil.WriteStreamAtomic(path, body, 0o644); err != nil {
		return err
	}
	return nil
}

func (a *Acquirer) tag(logger *slog.Logger, path string, entry catalogue.Entry) {
	if a.tagger == nil {
		return
	}
	if err := a.tagger.Tag(path, entry.Title, entry.Artist); err != nil {
		logging.WarnWithContext(logger, "metadata embedding failed; track kept untagged", "track_tag_failed",
			logging.String("path", path),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "the downloaded file may not be a valid MP3"),
			logging.String(logging.FieldImpact, "players show the file name instead of title and artist"),
		)
	}
}

func (a *Acquirer) skip(logger *slog.Logger, entry catalogue.Entry, reason, detail string) Skip {
	metrics.TracksTotal.WithLabelValues("skipped").Inc()
	attrs := []logging.Attr{
		logging.String("track_id", entry.ID),
		logging.String("title", entry.Title),
		logging.String("artist", entry.Artist),
		logging.String("reason", reason),
		logging.String(logging.FieldImpact, "track omitted from playlist"),
	}
	if detail != "" {
		attrs = append(attrs, logging.String("detail", detail))
	}
	switch reason {
	case ReasonDownloadFailed:
		attrs = append(attrs, logging.String(logging.FieldErrorHint, "audio URL may have expired; the next pass retries"))
	case ReasonDuplicateFileName:
		attrs = append(attrs, logging.String(logging.FieldErrorHint, "catalogue listed the same artist and title twice"))
	default:
		attrs = append(attrs, logging.String(logging.FieldErrorHint, "catalogue entry is incomplete"))
	}
	logging.WarnWithContext(logger, "track skipped", "track_skipped", attrs...)
	return Skip{ID: entry.ID, Title: entry.Title, Artist: entry.Artist, Reason: reason, Detail: detail}
}
