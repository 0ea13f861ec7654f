package daemonrun

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/lucianfialho/urban-lullaby/internal/acquire"
	"github.com/lucianfialho/urban-lullaby/internal/broadcast"
	"github.com/lucianfialho/urban-lullaby/internal/catalogue"
	"github.com/lucianfialho/urban-lullaby/internal/combine"
	"github.com/lucianfialho/urban-lullaby/internal/config"
	"github.com/lucianfialho/urban-lullaby/internal/cycle"
	"github.com/lucianfialho/urban-lullaby/internal/deps"
	"github.com/lucianfialho/urban-lullaby/internal/history"
	"github.com/lucianfialho/urban-lullaby/internal/logging"
	"github.com/lucianfialho/urban-lullaby/internal/media/ffmpeg"
	"github.com/lucianfialho/urban-lullaby/internal/media/ffprobe"
	"github.com/lucianfialho/urban-lullaby/internal/notifications"
	"github.com/lucianfialho/urban-lullaby/internal/preflight"
	"github.com/lucianfialho/urban-lullaby/internal/services"
)

// PipelineOptions adjusts how the pass pipeline is assembled.
type PipelineOptions struct {
	// NoStream ends passes after combine; no broadcaster is built.
	NoStream bool
	// Executor replaces the ffmpeg process launcher (tests).
	Executor ffmpeg.Executor
	// Clock replaces the wall clock used for rotation (tests).
	Clock cycle.Clock
}

// Pipeline is the fully wired pass machinery shared by the daemon and the
// one-shot CLI pass.
type Pipeline struct {
	Scheduler *cycle.Scheduler
	History   *history.Store
	Notifier  notifications.Service
}

// NewPipeline opens the history store and wires catalogue, acquisition,
// assembly, combine and broadcast into a cycle scheduler.
func NewPipeline(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts PipelineOptions) (*Pipeline, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, err
	}

	store, err := history.Open(cfg.HistoryDBPath())
	if err != nil {
		return nil, fmt.Errorf("open history store: %w", err)
	}
	maintainHistory(ctx, store, cfg, logger)

	notifier := notifications.NewService(cfg)

	client, err := catalogue.New(catalogue.Config{
		BaseURL:         cfg.Catalogue.BaseURL,
		UserAgent:       cfg.Catalogue.UserAgent,
		RequestTimeout:  time.Duration(cfg.Catalogue.RequestTimeout) * time.Second,
		DownloadTimeout: time.Duration(cfg.Catalogue.DownloadTimeout) * time.Second,
	})
	if err != nil {
		store.Close()
		return nil, err
	}

	runnerOpts := []ffmpeg.Option{
		ffmpeg.WithLogger(logger),
		ffmpeg.WithStopGrace(time.Duration(cfg.Stream.StopGraceSeconds) * time.Second),
	}
	if opts.Executor != nil {
		runnerOpts = append(runnerOpts, ffmpeg.WithExecutor(opts.Executor))
	}
	runner := ffmpeg.New(cfg.FFmpegBinary(), runnerOpts...)

	combiner := combine.New(runner, combine.Settings{
		CombineBitrate: cfg.Media.CombineBitrate,
		AudioBitrate:   cfg.Stream.AudioBitrate,
		VideoHeight:    cfg.Stream.VideoHeight,
		FrameRate:      cfg.Stream.FrameRate,
		Preset:         cfg.Stream.Preset,
	}, logger)

	schedDeps := cycle.Dependencies{
		Acquirer:  acquire.New(client, logger),
		Combiner:  combiner,
		History:   store,
		Notifier:  notifier,
		Preflight: preflightCheck(cfg),
	}
	if !opts.NoStream {
		broadcaster, err := broadcast.New(broadcast.Settings{
			BaseURL:          cfg.Stream.URL,
			StreamKey:        cfg.Stream.Key,
			VideoFile:        cfg.Stream.VideoFile,
			ConvertedVideo:   cfg.ConvertedVideoPath(),
			VideoBitrate:     cfg.Stream.VideoBitrate,
			AudioBitrate:     cfg.Stream.AudioBitrate,
			Preset:           cfg.Stream.Preset,
			FrameRate:        cfg.Stream.FrameRate,
			KeyframeInterval: cfg.Stream.KeyframeInterval,
			VideoHeight:      cfg.Stream.VideoHeight,
		}, runner, combiner, ffprobe.Prober{Binary: cfg.FFprobeBinary()}, logger,
			broadcast.WithObserver(notifications.BroadcastObserver{Service: notifier, Logger: logger}))
		if err != nil {
			store.Close()
			return nil, err
		}
		schedDeps.Broadcaster = broadcaster
	}

	scheduler, err := cycle.New(cycle.Options{
		Root:       cfg.Paths.OutputRoot,
		SearchTerm: cfg.Catalogue.SearchTerm,
		Interval:   cfg.ScheduleInterval(),
		Location:   cfg.Location(),
		Clock:      opts.Clock,
		NoStream:   opts.NoStream,
	}, schedDeps, logger)
	if err != nil {
		store.Close()
		return nil, err
	}

	return &Pipeline{Scheduler: scheduler, History: store, Notifier: notifier}, nil
}

// Close stops any running broadcast and closes the history store.
func (p *Pipeline) Close() error {
	if p == nil {
		return nil
	}
	p.Scheduler.StopBroadcast()
	return p.History.Close()
}

// preflightCheck fails a pass early when the environment cannot support it.
func preflightCheck(cfg *config.Config) cycle.PreflightFunc {
	return func(ctx context.Context) error {
		var problems []string
		for _, r := range preflight.Failures(preflight.RunAll(ctx, cfg)) {
			problems = append(problems, r.Name+": "+r.Detail)
		}
		for _, s := range deps.MissingRequired(preflight.CheckSystemDeps(cfg)) {
			problems = append(problems, s.Name+": "+s.Detail)
		}
		if len(problems) == 0 {
			return nil
		}
		return services.Wrap(services.ErrConfiguration, cycle.StagePreflight, "checks", strings.Join(problems, "; "), nil)
	}
}

// maintainHistory fails passes orphaned by a previous crash and prunes old
// rows. Both are best effort.
func maintainHistory(ctx context.Context, store *history.Store, cfg *config.Config, logger *slog.Logger) {
	logger = logging.NewComponentLogger(logger, "history")
	if reset, err := store.ResetInterrupted(ctx); err != nil {
		logger.Warn("failed to reset interrupted passes", logging.Error(err))
	} else if reset > 0 {
		logger.Info("marked interrupted passes failed", logging.Int64("count", reset))
	}
	if cfg.Logging.RetentionDays <= 0 {
		return
	}
	cutoff := time.Now().AddDate(0, 0, -cfg.Logging.RetentionDays)
	if pruned, err := store.Prune(ctx, cutoff); err != nil {
		logger.Warn("failed to prune pass history", logging.Error(err))
	} else if pruned > 0 {
		logger.Info("pruned pass history", logging.Int64("count", pruned), logging.String("cutoff", cutoff.Format(time.DateOnly)))
	}
}
