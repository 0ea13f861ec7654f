package cycle

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lucianfialho/urban-lullaby/internal/acquire"
	"github.com/lucianfialho/urban-lullaby/internal/history"
	"github.com/lucianfialho/urban-lullaby/internal/logging"
	"github.com/lucianfialho/urban-lullaby/internal/notifications"
	"github.com/lucianfialho/urban-lullaby/internal/playlist"
)

// Stage names recorded in logs, metrics and history.
const (
	StagePrepare   = "prepare"
	StagePreflight = "preflight"
	StageAcquire   = "acquire"
	StageAssemble  = "assemble"
	StageCombine   = "combine"
	StageBroadcast = "broadcast"
)

// Acquirer downloads the day's tracks.
type Acquirer interface {
	Acquire(ctx context.Context, term, outputDir string) acquire.Result
}

// Combiner merges tracks into one asset.
type Combiner interface {
	Combine(ctx context.Context, outputDir string, tracks []acquire.Track) (string, error)
}

// Broadcaster streams an asset until its context ends.
type Broadcaster interface {
	Broadcast(ctx context.Context, combinedAudio string) error
}

// AssembleFunc writes the manifest for tracks.
type AssembleFunc func(outputDir string, tracks []acquire.Track) (string, error)

// PreflightFunc checks the environment before a pass.
type PreflightFunc func(ctx context.Context) error

// Recorder persists pass history. *history.Store satisfies it.
type Recorder interface {
	Begin(ctx context.Context, date, searchTerm, outputDir string) (*history.Pass, error)
	RecordSkipped(ctx context.Context, date, reason string) (*history.Pass, error)
	UpdateStage(ctx context.Context, id, stage string) error
	UpdateCounts(ctx context.Context, id string, tracks, skipped int) error
	SetArtifacts(ctx context.Context, id, manifest, asset string) error
	MarkBroadcasting(ctx context.Context, id string) error
	Complete(ctx context.Context, id string) error
	Fail(ctx context.Context, id, stage string, cause error) error
}

// Options configures a Scheduler.
type Options struct {
	Root       string
	SearchTerm string
	Interval   time.Duration
	Location   *time.Location
	Clock      Clock
	// NoStream ends every pass after combine.
	NoStream bool
}

// Dependencies are the pipeline stages and side channels. Acquirer, Combiner
// and Broadcaster are required unless NoStream is set, which makes
// Broadcaster optional. Everything else may be nil.
type Dependencies struct {
	Acquirer    Acquirer
	Assemble    AssembleFunc
	Combiner    Combiner
	Broadcaster Broadcaster
	History     Recorder
	Notifier    notifications.Service
	Preflight   PreflightFunc
}

// Scheduler owns the rotation state and runs passes.
type Scheduler struct {
	opts    Options
	deps    Dependencies
	rotator Rotator
	clock   Clock
	logger  *slog.Logger

	inFlight atomic.Bool
	ticks    sync.WaitGroup

	mu          sync.Mutex
	state       State
	currentPass string
	lastPass    *Outcome
	lastRotate  *RotationResult
	nextTick    time.Time
	broadcast   *activeBroadcast
}

type activeBroadcast struct {
	passID  string
	asset   string
	started time.Time
	cancel  context.CancelFunc
	done    chan struct{}
}

// New constructs a Scheduler. The initial State is today's, computed from the
// clock; no rotation happens at construction.
func New(opts Options, deps Dependencies, logger *slog.Logger) (*Scheduler, error) {
	if opts.Root == "" {
		return nil, errors.New("cycle: output root is required")
	}
	if deps.Acquirer == nil || deps.Combiner == nil {
		return nil, errors.New("cycle: acquirer and combiner are required")
	}
	if deps.Broadcaster == nil && !opts.NoStream {
		return nil, errors.New("cycle: broadcaster is required unless streaming is disabled")
	}
	if deps.Assemble == nil {
		deps.Assemble = playlist.Assemble
	}
	if deps.Notifier == nil {
		deps.Notifier = nopNotifier{}
	}
	if opts.Interval <= 0 {
		opts.Interval = time.Hour
	}
	clock := opts.Clock
	if clock == nil {
		clock = SystemClock{}
	}
	componentLogger := logging.NewComponentLogger(logger, "cycle")
	rotator := Rotator{Root: opts.Root, Location: opts.Location, Logger: logger}
	return &Scheduler{
		opts:    opts,
		deps:    deps,
		rotator: rotator,
		clock:   clock,
		logger:  componentLogger,
		state:   rotator.Initial(clock.Now()),
	}, nil
}

// State returns the current rotation state.
func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Run ticks once immediately and then every interval until ctx is cancelled.
// Each tick runs on its own goroutine so a slow pass never delays the timer;
// the single-flight guard decides whether the tick does any work. On shutdown
// Run waits for in-flight ticks and the running broadcast.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.opts.Interval)
	defer ticker.Stop()

	s.logger.Info("scheduler started",
		logging.Duration("interval", s.opts.Interval),
		logging.String("output_root", s.opts.Root),
		logging.String("date", s.State().Date),
	)

	s.launchTick(ctx)
	for {
		select {
		case <-ctx.Done():
			s.ticks.Wait()
			s.StopBroadcast()
			s.logger.Info("scheduler stopped")
			return nil
		case <-ticker.C:
			s.launchTick(ctx)
		}
	}
}

func (s *Scheduler) launchTick(ctx context.Context) {
	s.mu.Lock()
	s.nextTick = s.clock.Now().Add(s.opts.Interval)
	s.mu.Unlock()
	s.ticks.Add(1)
	go func() {
		defer s.ticks.Done()
		s.Tick(ctx)
	}()
}

// WaitBroadcast blocks until the current broadcast, if any, exits.
func (s *Scheduler) WaitBroadcast() {
	s.mu.Lock()
	active := s.broadcast
	s.mu.Unlock()
	if active != nil {
		<-active.done
	}
}

// StopBroadcast cancels the current broadcast and waits for it to exit.
func (s *Scheduler) StopBroadcast() {
	s.mu.Lock()
	active := s.broadcast
	s.mu.Unlock()
	if active == nil {
		return
	}
	active.cancel()
	<-active.done
}

type nopNotifier struct{}

func (nopNotifier) Publish(context.Context, notifications.Event, notifications.Payload) error {
	return nil
}
