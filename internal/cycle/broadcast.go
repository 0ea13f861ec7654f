package cycle

import (
	"context"
	"time"

	"github.com/lucianfialho/urban-lullaby/internal/logging"
	"github.com/lucianfialho/urban-lullaby/internal/notifications"
	"github.com/lucianfialho/urban-lullaby/internal/services"
)

// startBroadcast supersedes the running broadcast, if any, and streams asset
// in the background. The broadcast context descends from ctx so daemon
// shutdown stops it; it outlives the pass that started it.
func (s *Scheduler) startBroadcast(ctx context.Context, passID, date, asset string) {
	s.StopBroadcast()

	bctx, cancel := context.WithCancel(ctx)
	active := &activeBroadcast{
		passID:  passID,
		asset:   asset,
		started: s.clock.Now(),
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	s.mu.Lock()
	s.broadcast = active
	s.mu.Unlock()

	persistCtx := context.WithoutCancel(ctx)
	if s.deps.History != nil {
		if err := s.deps.History.MarkBroadcasting(persistCtx, passID); err != nil {
			s.logger.Warn("failed to record broadcast start", logging.Error(err))
		}
	}

	go func() {
		defer close(active.done)
		defer cancel()

		err := s.deps.Broadcaster.Broadcast(services.WithStage(bctx, StageBroadcast), asset)
		logger := logging.WithContext(services.WithStage(persistCtx, StageBroadcast), s.logger)
		switch {
		case err != nil && bctx.Err() == nil:
			logging.ErrorWithContext(logger, "broadcast ended with error", "broadcast_failed",
				logging.Error(err),
				logging.String("error_kind", services.FailureKind(err)),
				logging.String(logging.FieldErrorHint, "check the background video, ingestion url, stream key and network"),
				logging.String(logging.FieldImpact, "stream is offline until the next pass"),
			)
			if s.deps.History != nil {
				if herr := s.deps.History.Fail(persistCtx, passID, StageBroadcast, err); herr != nil {
					logger.Warn("failed to record broadcast failure", logging.Error(herr))
				}
			}
			s.notify(persistCtx, notifications.EventPassFailed, notifications.Payload{
				"stage":   StageBroadcast,
				"error":   err,
				"date":    date,
				"pass_id": passID,
			})
		default:
			if err != nil {
				logger.Debug("broadcast stopped by cancellation", logging.Error(err))
			}
			if s.deps.History != nil {
				if herr := s.deps.History.Complete(persistCtx, passID); herr != nil {
					logger.Warn("failed to record broadcast completion", logging.Error(herr))
				}
			}
		}

		s.mu.Lock()
		if s.broadcast == active {
			s.broadcast = nil
		}
		s.mu.Unlock()
	}()
}

// BroadcastStatus describes the running broadcast.
type BroadcastStatus struct {
	PassID  string    `json:"pass_id"`
	Asset   string    `json:"asset"`
	Started time.Time `json:"started"`
}

// Status is a point-in-time snapshot for the status API.
type Status struct {
	State        State            `json:"state"`
	InFlight     bool             `json:"in_flight"`
	CurrentPass  string           `json:"current_pass,omitempty"`
	LastPass     *Outcome         `json:"last_pass,omitempty"`
	LastRotation *RotationResult  `json:"last_rotation,omitempty"`
	Broadcast    *BroadcastStatus `json:"broadcast,omitempty"`
	NextTick     *time.Time       `json:"next_tick,omitempty"`
	Interval     string           `json:"interval"`
}

// Status returns a snapshot of scheduler state.
func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	status := Status{
		State:       s.state,
		InFlight:    s.inFlight.Load(),
		CurrentPass: s.currentPass,
		Interval:    s.opts.Interval.String(),
	}
	if s.lastPass != nil {
		last := *s.lastPass
		status.LastPass = &last
	}
	if s.lastRotate != nil {
		rot := *s.lastRotate
		status.LastRotation = &rot
	}
	if s.broadcast != nil {
		status.Broadcast = &BroadcastStatus{
			PassID:  s.broadcast.passID,
			Asset:   s.broadcast.asset,
			Started: s.broadcast.started,
		}
	}
	if !s.nextTick.IsZero() {
		next := s.nextTick
		status.NextTick = &next
	}
	return status
}
