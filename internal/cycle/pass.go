package cycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/lucianfialho/urban-lullaby/internal/acquire"
	"github.com/lucianfialho/urban-lullaby/internal/history"
	"github.com/lucianfialho/urban-lullaby/internal/logging"
	"github.com/lucianfialho/urban-lullaby/internal/metrics"
	"github.com/lucianfialho/urban-lullaby/internal/notifications"
	"github.com/lucianfialho/urban-lullaby/internal/services"
)

// Outcome summarizes one tick.
type Outcome struct {
	PassID       string         `json:"pass_id,omitempty"`
	Date         string         `json:"date"`
	Status       history.Status `json:"status"`
	Stage        string         `json:"stage,omitempty"`
	TrackCount   int            `json:"track_count"`
	SkippedCount int            `json:"skipped_count"`
	Manifest     string         `json:"manifest,omitempty"`
	Asset        string         `json:"asset,omitempty"`
	Rotated      bool           `json:"rotated"`
	StartedAt    time.Time      `json:"started_at"`
	FinishedAt   time.Time      `json:"finished_at"`
	Err          error          `json:"-"`
	Error        string         `json:"error,omitempty"`
}

// ErrPassInFlight is the skip reason for a tick that overlapped a pass.
var ErrPassInFlight = errors.New("previous pass still running")

// ErrNoTracks ends a pass whose acquisition produced nothing.
var ErrNoTracks = errors.New("no tracks acquired")

// Tick runs rotation and one pass. It never returns an error: every failure
// is logged, recorded, and reflected in the Outcome. When a pass is already
// in flight the tick is skipped.
func (s *Scheduler) Tick(ctx context.Context) Outcome {
	if !s.inFlight.CompareAndSwap(false, true) {
		return s.skip(ctx)
	}
	defer s.inFlight.Store(false)

	now := s.clock.Now()
	state, rotation := s.rotator.Rotate(s.State(), now)
	s.mu.Lock()
	s.state = state
	if rotation.Rotated {
		s.lastRotate = &rotation
	}
	s.mu.Unlock()

	if rotation.Rotated {
		s.logger.Info("day rotated",
			logging.String("previous_date", rotation.PreviousDate),
			logging.String("date", state.Date),
			logging.Int("removed", rotation.Removed),
			logging.Int("failures", len(rotation.Failures)),
		)
		s.notify(ctx, notifications.EventRotation, notifications.Payload{
			"date":     state.Date,
			"previous": rotation.PreviousDirectory,
			"removed":  rotation.Removed,
		})
	}

	outcome := s.runPass(ctx, state)
	outcome.Rotated = rotation.Rotated
	s.mu.Lock()
	s.currentPass = ""
	last := outcome
	s.lastPass = &last
	s.mu.Unlock()
	return outcome
}

func (s *Scheduler) skip(ctx context.Context) Outcome {
	state := s.State()
	now := s.clock.Now()
	s.mu.Lock()
	current := s.currentPass
	s.mu.Unlock()
	logging.WarnWithContext(s.logger, "tick skipped", "pass_skipped",
		logging.String("date", state.Date),
		logging.String("running_pass_id", current),
		logging.String(logging.FieldErrorHint, "passes take longer than schedule.interval_minutes"),
		logging.String(logging.FieldImpact, "this tick does no work"),
	)
	metrics.PassesTotal.WithLabelValues(string(history.StatusSkipped)).Inc()
	outcome := Outcome{
		Date:       state.Date,
		Status:     history.StatusSkipped,
		StartedAt:  now,
		FinishedAt: now,
		Err:        ErrPassInFlight,
		Error:      ErrPassInFlight.Error(),
	}
	if s.deps.History != nil {
		pass, err := s.deps.History.RecordSkipped(ctx, state.Date, ErrPassInFlight.Error())
		if err != nil {
			s.logger.Warn("failed to record skipped pass", logging.Error(err))
		} else {
			outcome.PassID = pass.ID
		}
	}
	return outcome
}

type passRun struct {
	s       *Scheduler
	ctx     context.Context
	logger  *slog.Logger
	outcome *Outcome
}

func (s *Scheduler) runPass(ctx context.Context, state State) Outcome {
	outcome := Outcome{Date: state.Date, Status: history.StatusRunning, StartedAt: s.clock.Now()}
	if s.deps.History != nil {
		pass, err := s.deps.History.Begin(ctx, state.Date, s.opts.SearchTerm, state.OutputDirectory)
		if err != nil {
			s.logger.Warn("failed to record pass start", logging.Error(err))
		} else {
			outcome.PassID = pass.ID
		}
	}
	if outcome.PassID == "" {
		outcome.PassID = uuid.NewString()
	}
	s.mu.Lock()
	s.currentPass = outcome.PassID
	s.mu.Unlock()

	passCtx := services.WithPassID(ctx, outcome.PassID)
	run := &passRun{
		s:       s,
		ctx:     passCtx,
		logger:  logging.WithContext(passCtx, s.logger),
		outcome: &outcome,
	}
	run.logger.Info("pass started",
		logging.String(logging.FieldEventType, "pass_start"),
		logging.String("date", state.Date),
		logging.String("output_dir", state.OutputDirectory),
		logging.String("search_term", s.opts.SearchTerm),
	)

	if err := run.stage(StagePrepare, func(context.Context) error {
		if err := os.MkdirAll(state.OutputDirectory, 0o755); err != nil {
			return services.Wrap(services.ErrConfiguration, StagePrepare, "create output directory", state.OutputDirectory, err)
		}
		return nil
	}); err != nil {
		return run.fail(StagePrepare, err)
	}

	if s.deps.Preflight != nil {
		if err := run.stage(StagePreflight, s.deps.Preflight); err != nil {
			return run.fail(StagePreflight, err)
		}
	}

	var acquired []acquire.Track
	err := run.stage(StageAcquire, func(ctx context.Context) error {
		res := s.deps.Acquirer.Acquire(ctx, s.opts.SearchTerm, state.OutputDirectory)
		acquired = res.Tracks
		outcome.TrackCount, outcome.SkippedCount = len(res.Tracks), len(res.Skipped)
		if len(res.Tracks) == 0 {
			return services.Wrap(services.ErrNotFound, StageAcquire, "catalogue",
				fmt.Sprintf("search %q", s.opts.SearchTerm), ErrNoTracks)
		}
		return nil
	})
	run.recordCounts()
	if err != nil {
		return run.fail(StageAcquire, err)
	}

	if err := run.stage(StageAssemble, func(context.Context) error {
		manifest, err := s.deps.Assemble(state.OutputDirectory, acquired)
		if err != nil {
			return err
		}
		outcome.Manifest = manifest
		return nil
	}); err != nil {
		return run.fail(StageAssemble, err)
	}

	if err := run.stage(StageCombine, func(ctx context.Context) error {
		asset, err := s.deps.Combiner.Combine(ctx, state.OutputDirectory, acquired)
		if err != nil {
			return err
		}
		outcome.Asset = asset
		return nil
	}); err != nil {
		return run.fail(StageCombine, err)
	}
	run.recordArtifacts()

	if s.opts.NoStream {
		outcome.Status = history.StatusCompleted
		run.finish()
		return outcome
	}

	s.startBroadcast(passCtx, outcome.PassID, outcome.Date, outcome.Asset)
	outcome.Status = history.StatusBroadcasting
	outcome.Stage = StageBroadcast
	run.finish()
	return outcome
}

// stage runs fn with stage context, timing it and recording the stage.
func (r *passRun) stage(name string, fn func(context.Context) error) error {
	r.outcome.Stage = name
	if r.s.deps.History != nil {
		if err := r.s.deps.History.UpdateStage(r.ctx, r.outcome.PassID, name); err != nil {
			r.logger.Warn("failed to record pass stage", logging.String(logging.FieldStage, name), logging.Error(err))
		}
	}
	stageCtx := services.WithStage(r.ctx, name)
	started := time.Now()
	err := fn(stageCtx)
	metrics.StageDuration.WithLabelValues(name).Observe(time.Since(started).Seconds())
	if err == nil {
		logging.WithContext(stageCtx, r.s.logger).Debug("stage finished",
			logging.Duration("elapsed", time.Since(started).Round(time.Millisecond)),
		)
	}
	return err
}

func (r *passRun) recordCounts() {
	if r.s.deps.History == nil {
		return
	}
	if err := r.s.deps.History.UpdateCounts(r.ctx, r.outcome.PassID, r.outcome.TrackCount, r.outcome.SkippedCount); err != nil {
		r.logger.Warn("failed to record track counts", logging.Error(err))
	}
}

func (r *passRun) recordArtifacts() {
	if r.s.deps.History == nil {
		return
	}
	if err := r.s.deps.History.SetArtifacts(r.ctx, r.outcome.PassID, r.outcome.Manifest, r.outcome.Asset); err != nil {
		r.logger.Warn("failed to record pass artifacts", logging.Error(err))
	}
}

func (r *passRun) fail(stage string, err error) Outcome {
	out := r.outcome
	out.Status = history.StatusFailed
	out.Stage = stage
	out.Err = err
	out.Error = err.Error()
	out.FinishedAt = r.s.clock.Now()

	stageLogger := logging.WithContext(services.WithStage(r.ctx, stage), r.s.logger)
	logging.ErrorWithContext(stageLogger, "pass failed", "pass_failed",
		logging.Error(err),
		logging.String("error_kind", services.FailureKind(err)),
		logging.Int("track_count", out.TrackCount),
		logging.Alert("pass_failure"),
		logging.String(logging.FieldImpact, "broadcast keeps the previous asset until the next tick"),
	)
	metrics.PassesTotal.WithLabelValues(string(history.StatusFailed)).Inc()

	persistCtx := context.WithoutCancel(r.ctx)
	if r.s.deps.History != nil {
		if herr := r.s.deps.History.Fail(persistCtx, out.PassID, stage, err); herr != nil {
			r.logger.Warn("failed to record pass failure", logging.Error(herr))
		}
	}
	r.s.notify(persistCtx, notifications.EventPassFailed, notifications.Payload{
		"stage": stage,
		"error": err,
		"date":  out.Date,
	})
	return *out
}

func (r *passRun) finish() {
	r.outcome.FinishedAt = r.s.clock.Now()
	metrics.PassesTotal.WithLabelValues(string(r.outcome.Status)).Inc()
	if r.s.deps.History != nil && r.outcome.Status == history.StatusCompleted {
		if err := r.s.deps.History.Complete(r.ctx, r.outcome.PassID); err != nil {
			r.logger.Warn("failed to record pass completion", logging.Error(err))
		}
	}
	r.logger.Info("pass finished",
		logging.String(logging.FieldEventType, "pass_complete"),
		logging.String("status", string(r.outcome.Status)),
		logging.Int("track_count", r.outcome.TrackCount),
		logging.Int("skipped_count", r.outcome.SkippedCount),
		logging.String("asset", r.outcome.Asset),
		logging.Duration("elapsed", r.outcome.FinishedAt.Sub(r.outcome.StartedAt).Round(time.Millisecond)),
	)
}

func (s *Scheduler) notify(ctx context.Context, event notifications.Event, payload notifications.Payload) {
	if err := s.deps.Notifier.Publish(ctx, event, payload); err != nil {
		logging.WarnWithContext(s.logger, "notification failed", "notification_failed",
			logging.String("event", string(event)),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check notifications.ntfy_topic"),
			logging.String(logging.FieldImpact, "operator is not alerted"),
		)
	}
}
