// Package combine merges a pass's tracks into one audio asset and normalizes
// media into the formats the broadcaster streams.
package combine

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/lucianfialho/urban-lullaby/internal/acquire"
	"github.com/lucianfialho/urban-lullaby/internal/fileutil"
	"github.com/lucianfialho/urban-lullaby/internal/logging"
	"github.com/lucianfialho/urban-lullaby/internal/media/ffmpeg"
	"github.com/lucianfialho/urban-lullaby/internal/services"
)

// OutputFileName is the combined asset inside a pass output directory.
const OutputFileName = "output.mp3"

// Kind selects a normalization profile.
type Kind string

const (
	KindAudio Kind = "audio"
	KindVideo Kind = "video"
)

// Settings tunes the encoder profiles.
type Settings struct {
	CombineBitrate string
	AudioBitrate   string
	SampleRate     int
	VideoHeight    int
	FrameRate      int
	Preset         string
}

// DefaultSettings returns the profiles used when nothing is configured.
func DefaultSettings() Settings {
	return Settings{
		CombineBitrate: "192k",
		AudioBitrate:   "128k",
		SampleRate:     44100,
		VideoHeight:    1080,
		FrameRate:      30,
		Preset:         "medium",
	}
}

func (s Settings) withDefaults() Settings {
	d := DefaultSettings()
	if strings.TrimSpace(s.CombineBitrate) == "" {
		s.CombineBitrate = d.CombineBitrate
	}
	if strings.TrimSpace(s.AudioBitrate) == "" {
		s.AudioBitrate = d.AudioBitrate
	}
	if s.SampleRate <= 0 {
		s.SampleRate = d.SampleRate
	}
	if s.VideoHeight <= 0 {
		s.VideoHeight = d.VideoHeight
	}
	if s.FrameRate <= 0 {
		s.FrameRate = d.FrameRate
	}
	if strings.TrimSpace(s.Preset) == "" {
		s.Preset = d.Preset
	}
	return s
}

// Combiner runs the merge and normalization jobs.
type Combiner struct {
	runner   *ffmpeg.Runner
	settings Settings
	logger   *slog.Logger
}

// New constructs a Combiner.
func New(runner *ffmpeg.Runner, settings Settings, logger *slog.Logger) *Combiner {
	if runner == nil {
		runner = ffmpeg.New("")
	}
	return &Combiner{
		runner:   runner,
		settings: settings.withDefaults(),
		logger:   logging.NewComponentLogger(logger, "combine"),
	}
}

// Combine concatenates tracks, in order, into outputDir/output.mp3 and
// returns its path. The asset only appears under its final name once ffmpeg
// has exited successfully.
func (c *Combiner) Combine(ctx context.Context, outputDir string, tracks []acquire.Track) (string, error) {
	if len(tracks) == 0 {
		return "", services.Wrap(services.ErrValidation, "combine", "merge", "no tracks to combine", nil)
	}
	output := filepath.Join(outputDir, OutputFileName)
	tmp := output + fileutil.PartSuffix
	_ = os.Remove(tmp)

	logger := logging.WithContext(ctx, c.logger)
	logger.Info("combining tracks",
		logging.Int("track_count", len(tracks)),
		logging.String("output", output),
	)
	started := time.Now()
	err := c.runner.Run(ctx, ffmpeg.Job{
		Name:    "combine",
		Args:    c.CombineArgs(tracks, tmp),
		OnEvent: progressLogger(logger, "combine progress"),
	})
	if err != nil {
		_ = os.Remove(tmp)
		return "", err
	}
	if err := fileutil.CommitTemp(tmp, output); err != nil {
		return "", services.Wrap(services.ErrExternalTool, "combine", "commit", output, err)
	}
	logger.Info("combined asset ready",
		logging.String("output", output),
		logging.Duration("elapsed", time.Since(started).Round(time.Millisecond)),
	)
	return output, nil
}

// CombineArgs builds the merge job: every track is a separate input joined by
// the concat filter and re-encoded as MP3.
func (c *Combiner) CombineArgs(tracks []acquire.Track, output string) []string {
	args := make([]string, 0, len(tracks)*2+12)
	var graph strings.Builder
	for i, track := range tracks {
		args = append(args, "-i", track.LocalPath)
		graph.WriteString("[" + strconv.Itoa(i) + ":a]")
	}
	graph.WriteString(fmt.Sprintf("concat=n=%d:v=0:a=1[out]", len(tracks)))
	args = append(args,
		"-filter_complex", graph.String(),
		"-map", "[out]",
		"-c:a", "libmp3lame",
		"-b:a", c.settings.CombineBitrate,
		"-f", "mp3",
		output,
	)
	return args
}

// Normalize transcodes input into output using the profile for kind. Video
// is treated as a cache: an existing non-empty output is reused. Audio is
// always re-encoded. It reports whether a transcode actually ran.
func (c *Combiner) Normalize(ctx context.Context, input, output string, kind Kind) (bool, error) {
	logger := logging.WithContext(ctx, c.logger).With(
		logging.String("kind", string(kind)),
		logging.String("input", input),
		logging.String("output", output),
	)
	var args []string
	switch kind {
	case KindAudio:
		args = c.audioArgs(input, output+fileutil.PartSuffix)
	case KindVideo:
		if fileutil.NonEmptyFile(output) {
			logger.Debug("normalized video cached", logging.Args(logging.DecisionAttrs("video_cache", "hit", "output exists")...)...)
			return false, nil
		}
		args = c.videoArgs(input, output+fileutil.PartSuffix)
	default:
		return false, services.Wrap(services.ErrValidation, "normalize", string(kind), "unknown media kind", nil)
	}
	if _, err := os.Stat(input); err != nil {
		return false, services.Wrap(services.ErrNotFound, "normalize", string(kind), input, err)
	}
	if err := os.MkdirAll(filepath.Dir(output), 0o755); err != nil {
		return false, services.Wrap(services.ErrConfiguration, "normalize", string(kind), "create output directory", err)
	}

	tmp := output + fileutil.PartSuffix
	_ = os.Remove(tmp)
	logger.Info("normalizing media")
	err := c.runner.Run(ctx, ffmpeg.Job{
		Name:    "normalize-" + string(kind),
		Args:    args,
		OnEvent: progressLogger(logger, "normalize progress"),
	})
	if err != nil {
		_ = os.Remove(tmp)
		return false, err
	}
	if err := fileutil.CommitTemp(tmp, output); err != nil {
		return false, services.Wrap(services.ErrExternalTool, "normalize", "commit", output, err)
	}
	return true, nil
}

func (c *Combiner) audioArgs(input, output string) []string {
	return []string{
		"-i", input,
		"-vn",
		"-c:a", "libmp3lame",
		"-b:a", c.settings.AudioBitrate,
		"-ar", strconv.Itoa(c.settings.SampleRate),
		"-ac", "2",
		"-f", "mp3",
		output,
	}
}

func (c *Combiner) videoArgs(input, output string) []string {
	return []string{
		"-i", input,
		"-an",
		"-vf", fmt.Sprintf("scale=-2:%d,fps=%d", c.settings.VideoHeight, c.settings.FrameRate),
		"-c:v", "libx264",
		"-profile:v", "baseline",
		"-preset", c.settings.Preset,
		"-pix_fmt", "yuv420p",
		"-movflags", "+faststart",
		"-f", "mp4",
		output,
	}
}

func progressLogger(logger *slog.Logger, msg string) func(ffmpeg.Event) {
	sampler := logging.NewProgressSampler(time.Minute)
	return func(ev ffmpeg.Event) {
		if ev.Kind != ffmpeg.EventProgress || ev.Final {
			return
		}
		if !sampler.ShouldLog(ev.OutTime) {
			return
		}
		logger.Debug(msg,
			logging.Duration("out_time", ev.OutTime),
			logging.String("speed", ev.Speed),
		)
	}
}
