package broadcast

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/lucianfialho/urban-lullaby/internal/combine"
	"github.com/lucianfialho/urban-lullaby/internal/logging"
	"github.com/lucianfialho/urban-lullaby/internal/media/ffmpeg"
	"github.com/lucianfialho/urban-lullaby/internal/media/ffprobe"
	"github.com/lucianfialho/urban-lullaby/internal/metrics"
	"github.com/lucianfialho/urban-lullaby/internal/services"
)

// ConvertedAudioFileName is the normalized audio inside a pass directory.
const ConvertedAudioFileName = "converted_audio.mp3"

// Exit reasons reported to observers and metrics.
const (
	ReasonEnded      = "ended"
	ReasonSuperseded = "superseded"
	ReasonFailed     = "failed"
)

// Settings describes the ingestion endpoint and encoder tuning.
type Settings struct {
	BaseURL          string
	StreamKey        string
	VideoFile        string
	ConvertedVideo   string
	VideoBitrate     string
	AudioBitrate     string
	Preset           string
	FrameRate        int
	KeyframeInterval int
	VideoHeight      int
}

func (s Settings) withDefaults() Settings {
	if s.VideoBitrate == "" {
		s.VideoBitrate = "4000k"
	}
	if s.AudioBitrate == "" {
		s.AudioBitrate = "128k"
	}
	if s.Preset == "" {
		s.Preset = "medium"
	}
	if s.FrameRate <= 0 {
		s.FrameRate = 30
	}
	if s.KeyframeInterval <= 0 {
		s.KeyframeInterval = 50
	}
	if s.VideoHeight <= 0 {
		s.VideoHeight = 1080
	}
	return s
}

// Normalizer transcodes media into streamable formats.
type Normalizer interface {
	Normalize(ctx context.Context, input, output string, kind combine.Kind) (bool, error)
}

// Prober inspects a media file.
type Prober interface {
	Inspect(ctx context.Context, path string) (ffprobe.Result, error)
}

// Observer is told when a push goes live and when it exits.
type Observer interface {
	BroadcastStarted(ctx context.Context, target string)
	BroadcastEnded(ctx context.Context, reason string, err error)
}

// Option configures a Broadcaster.
type Option func(*Broadcaster)

// WithObserver registers an observer for broadcast lifecycle events.
func WithObserver(o Observer) Option {
	return func(b *Broadcaster) {
		b.observer = o
	}
}

// Session is a prepared broadcast: verified inputs ready to stream.
type Session struct {
	Audio string
	Video string
}

// Broadcaster streams prepared assets to the ingestion endpoint.
type Broadcaster struct {
	settings   Settings
	runner     *ffmpeg.Runner
	normalizer Normalizer
	prober     Prober
	observer   Observer
	logger     *slog.Logger

	mu         sync.Mutex
	videoReady bool
}

// New validates settings and constructs a Broadcaster.
func New(settings Settings, runner *ffmpeg.Runner, normalizer Normalizer, prober Prober, logger *slog.Logger, opts ...Option) (*Broadcaster, error) {
	settings = settings.withDefaults()
	if strings.TrimSpace(settings.StreamKey) == "" {
		return nil, services.Wrap(services.ErrConfiguration, "broadcast", "settings", "stream key is empty", nil)
	}
	parsed, err := url.Parse(settings.BaseURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return nil, services.Wrap(services.ErrConfiguration, "broadcast", "settings", fmt.Sprintf("invalid ingestion url %q", settings.BaseURL), err)
	}
	if strings.TrimSpace(settings.VideoFile) == "" || strings.TrimSpace(settings.ConvertedVideo) == "" {
		return nil, services.Wrap(services.ErrConfiguration, "broadcast", "settings", "background video paths are required", nil)
	}
	if runner == nil || normalizer == nil || prober == nil {
		return nil, errors.New("broadcast: runner, normalizer and prober are required")
	}
	b := &Broadcaster{
		settings:   settings,
		runner:     runner,
		normalizer: normalizer,
		prober:     prober,
		logger:     logging.NewComponentLogger(logger, "broadcast"),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b, nil
}

// Target returns the full ingestion URL including the stream key.
func (b *Broadcaster) Target() string {
	return strings.TrimRight(b.settings.BaseURL, "/") + "/" + strings.TrimLeft(b.settings.StreamKey, "/")
}

// RedactedTarget returns Target with the stream key masked.
func (b *Broadcaster) RedactedTarget() string {
	return strings.TrimRight(b.settings.BaseURL, "/") + "/" + ffmpeg.RedactedValue
}

// Broadcast prepares combinedAudio and streams it until ctx is cancelled or
// the engine exits. Cancellation is not an error.
func (b *Broadcaster) Broadcast(ctx context.Context, combinedAudio string) error {
	session, err := b.Prepare(ctx, combinedAudio)
	if err != nil {
		return err
	}
	return b.Stream(ctx, session)
}

// Prepare normalizes and verifies the broadcast inputs.
func (b *Broadcaster) Prepare(ctx context.Context, combinedAudio string) (Session, error) {
	logger := logging.WithContext(ctx, b.logger)

	video, err := b.prepareVideo(ctx)
	if err != nil {
		return Session{}, err
	}

	audio := filepath.Join(filepath.Dir(combinedAudio), ConvertedAudioFileName)
	if _, err := b.normalizer.Normalize(ctx, combinedAudio, audio, combine.KindAudio); err != nil {
		return Session{}, err
	}
	probe, err := b.prober.Inspect(ctx, audio)
	if err != nil {
		return Session{}, services.Wrap(services.ErrExternalTool, "broadcast", "probe audio", audio, err)
	}
	if err := ffprobe.CheckAudioAsset(probe); err != nil {
		return Session{}, services.Wrap(services.ErrValidation, "broadcast", "verify audio", audio, err)
	}
	logger.Info("broadcast inputs ready",
		logging.String("audio", audio),
		logging.String("video", video),
		logging.Float64("audio_duration_seconds", probe.DurationSeconds()),
	)
	return Session{Audio: audio, Video: video}, nil
}

func (b *Broadcaster) prepareVideo(ctx context.Context) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	video := b.settings.ConvertedVideo
	if b.videoReady {
		return video, nil
	}
	if _, err := b.normalizer.Normalize(ctx, b.settings.VideoFile, video, combine.KindVideo); err != nil {
		return "", err
	}
	probe, err := b.prober.Inspect(ctx, video)
	if err != nil {
		return "", services.Wrap(services.ErrExternalTool, "broadcast", "probe video", video, err)
	}
	if err := ffprobe.CheckVideoAsset(probe); err != nil {
		return "", services.Wrap(services.ErrValidation, "broadcast", "verify video", video, err)
	}
	b.videoReady = true
	return video, nil
}

// Stream runs the push for a prepared session.
func (b *Broadcaster) Stream(ctx context.Context, session Session) error {
	logger := logging.WithContext(ctx, b.logger).With(logging.String("target", b.RedactedTarget()))
	sampler := logging.NewProgressSampler(10 * time.Minute)
	started := time.Now()
	live := false

	metrics.BroadcastActive.Set(1)
	defer metrics.BroadcastActive.Set(0)

	logger.Info("broadcast starting", logging.String("audio", session.Audio))
	err := b.runner.Run(ctx, ffmpeg.Job{
		Name:   "broadcast",
		Args:   b.Args(session.Audio, session.Video),
		Redact: []string{b.settings.StreamKey},
		OnEvent: func(ev ffmpeg.Event) {
			if ev.Kind != ffmpeg.EventProgress {
				return
			}
			if !live {
				live = true
				logger.Info("broadcast live")
				if b.observer != nil {
					b.observer.BroadcastStarted(ctx, b.RedactedTarget())
				}
			}
			if sampler.ShouldLog(ev.OutTime) {
				logger.Info("broadcast progress",
					logging.Duration("streamed", ev.OutTime.Round(time.Second)),
					logging.String("speed", ev.Speed),
					logging.Int64("frame", ev.Frame),
				)
			}
		},
	})

	reason := ReasonEnded
	switch {
	case err != nil && ctx.Err() != nil:
		reason = ReasonSuperseded
		err = nil
	case err != nil:
		reason = ReasonFailed
	}
	metrics.BroadcastsTotal.WithLabelValues(reason).Inc()
	elapsed := logging.Duration("elapsed", time.Since(started).Round(time.Second))
	if reason == ReasonFailed {
		logger.Debug("broadcast failed", elapsed, logging.Error(err))
	} else {
		logger.Info("broadcast stopped", logging.String("reason", reason), elapsed)
	}
	if b.observer != nil {
		b.observer.BroadcastEnded(ctx, reason, err)
	}
	return err
}

// Args builds the push command: audio and video both loop forever, video is
// scaled to the configured height, and the result is muxed as FLV.
func (b *Broadcaster) Args(audio, video string) []string {
	s := b.settings
	return []string{
		"-stream_loop", "-1", "-i", audio,
		"-stream_loop", "-1", "-i", video,
		"-filter_complex", fmt.Sprintf("[1:v]scale=-1:%d[v]", s.VideoHeight),
		"-map", "[v]",
		"-map", "0:a",
		"-c:v", "libx264",
		"-c:a", "aac",
		"-b:a", s.AudioBitrate,
		"-pix_fmt", "yuv420p",
		"-preset", s.Preset,
		"-g", strconv.Itoa(s.KeyframeInterval),
		"-sc_threshold", "0",
		"-profile:v", "baseline",
		"-b:v", s.VideoBitrate,
		"-maxrate", s.VideoBitrate,
		"-bufsize", s.VideoBitrate,
		"-shortest",
		"-threads", "0",
		"-r", strconv.Itoa(s.FrameRate),
		"-f", "flv",
		b.Target(),
	}
}
