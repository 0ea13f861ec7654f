package playlist

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/dhowden/tag"

	"github.com/lucianfialho/urban-lullaby/internal/media/ffmpeg"
)

// EntryReport describes one manifest entry after verification.
type EntryReport struct {
	Path   string `json:"path"`
	Exists bool   `json:"exists"`
	Size   int64  `json:"size"`
	Title  string `json:"title,omitempty"`
	Artist string `json:"artist,omitempty"`
	Format string `json:"format,omitempty"`
	Error  string `json:"error,omitempty"`
}

// OK reports whether the entry is usable by the combiner.
func (e EntryReport) OK() bool {
	return e.Exists && e.Size > 0 && e.Error == ""
}

// Report is the outcome of Verify.
type Report struct {
	Manifest    string        `json:"manifest"`
	Entries     []EntryReport `json:"entries"`
	DecodeError string        `json:"decode_error,omitempty"`
}

// Failed counts entries that are missing, empty, or unreadable.
func (r Report) Failed() int {
	n := 0
	for _, e := range r.Entries {
		if !e.OK() {
			n++
		}
	}
	return n
}

// OK reports whether every entry is usable and the optional decode pass
// succeeded.
func (r Report) OK() bool {
	return len(r.Entries) > 0 && r.Failed() == 0 && r.DecodeError == ""
}

// VerifyOption configures Verify.
type VerifyOption func(*verifyOptions)

type verifyOptions struct {
	runner *ffmpeg.Runner
}

// WithDecodeCheck additionally decodes the whole manifest through ffmpeg's
// concat demuxer into the null muxer.
func WithDecodeCheck(runner *ffmpeg.Runner) VerifyOption {
	return func(o *verifyOptions) {
		o.runner = runner
	}
}

// Verify checks that every file in the manifest exists, is readable, and
// carries readable tags. Tag read failures are reported but do not fail an
// entry on their own, since untagged audio still concatenates.
func Verify(ctx context.Context, manifest string, opts ...VerifyOption) (Report, error) {
	var options verifyOptions
	for _, opt := range opts {
		opt(&options)
	}
	paths, err := Parse(manifest)
	if err != nil {
		return Report{}, err
	}
	report := Report{Manifest: manifest, Entries: make([]EntryReport, 0, len(paths))}
	for _, p := range paths {
		report.Entries = append(report.Entries, inspectEntry(p))
	}
	if options.runner != nil && report.Failed() == 0 && len(paths) > 0 {
		err := options.runner.Run(ctx, ffmpeg.Job{
			Name: "playlist-verify",
			Args: DecodeArgs(manifest),
		})
		if err != nil {
			if ctx.Err() != nil {
				return report, err
			}
			report.DecodeError = err.Error()
		}
	}
	return report, nil
}

// DecodeArgs returns the ffmpeg arguments that decode manifest and discard
// the result.
func DecodeArgs(manifest string) []string {
	return []string{"-f", "concat", "-safe", "0", "-i", manifest, "-f", "null", "-"}
}

func inspectEntry(path string) EntryReport {
	entry := EntryReport{Path: path}
	info, err := os.Stat(path)
	if err != nil {
		entry.Error = err.Error()
		return entry
	}
	entry.Exists = true
	if info.IsDir() {
		entry.Error = "is a directory"
		return entry
	}
	entry.Size = info.Size()
	if entry.Size == 0 {
		entry.Error = "file is empty"
		return entry
	}
	f, err := os.Open(path)
	if err != nil {
		entry.Error = fmt.Sprintf("open: %v", err)
		return entry
	}
	defer f.Close()
	meta, err := tag.ReadFrom(f)
	if err != nil {
		return entry
	}
	entry.Title = strings.TrimSpace(meta.Title())
	entry.Artist = strings.TrimSpace(meta.Artist())
	entry.Format = string(meta.Format())
	return entry
}
