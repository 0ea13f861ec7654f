package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"github.com/lucianfialho/urban-lullaby/internal/config"
	"github.com/lucianfialho/urban-lullaby/internal/cycle"
	"github.com/lucianfialho/urban-lullaby/internal/deps"
	"github.com/lucianfialho/urban-lullaby/internal/history"
	"github.com/lucianfialho/urban-lullaby/internal/logging"
	"github.com/lucianfialho/urban-lullaby/internal/notifications"
	"github.com/lucianfialho/urban-lullaby/internal/preflight"
)

// LockFileName is the single-instance lock inside the log directory.
const LockFileName = "lullabyd.lock"

// Scheduler is the part of *cycle.Scheduler the daemon drives.
type Scheduler interface {
	Run(ctx context.Context) error
	Status() cycle.Status
}

// History is the read side of the pass history store.
type History interface {
	List(ctx context.Context, limit int) ([]history.Pass, error)
	Stats(ctx context.Context) (map[history.Status]int, error)
	Path() string
}

// Daemon runs the scheduler and enforces single-instance execution.
type Daemon struct {
	cfg       *config.Config
	logger    *slog.Logger
	scheduler Scheduler
	history   History
	notifier  notifications.Service
	logPath   string

	lockPath string
	lock     *flock.Flock
	api      *apiServer

	running   atomic.Bool
	mu        sync.Mutex
	startedAt time.Time
	cancel    context.CancelFunc
	done      chan struct{}
}

// Status represents daemon runtime information.
type Status struct {
	Running       bool                   `json:"running"`
	PID           int                    `json:"pid"`
	StartedAt     *time.Time             `json:"started_at,omitempty"`
	Uptime        string                 `json:"uptime,omitempty"`
	LockFilePath  string                 `json:"lock_file"`
	LogPath       string                 `json:"log_file,omitempty"`
	HistoryDBPath string                 `json:"history_db,omitempty"`
	Scheduler     cycle.Status           `json:"scheduler"`
	PassStats     map[history.Status]int `json:"pass_stats,omitempty"`
	Dependencies  []deps.Status          `json:"dependencies,omitempty"`
}

// New constructs a daemon. store may be nil, in which case the history
// endpoints report no passes.
func New(cfg *config.Config, scheduler Scheduler, store History, notifier notifications.Service, logger *slog.Logger, logPath string) (*Daemon, error) {
	if cfg == nil || scheduler == nil {
		return nil, errors.New("daemon requires config and scheduler")
	}
	if notifier == nil {
		notifier = notifications.NewService(cfg)
	}
	lockPath := filepath.Join(cfg.Paths.LogDir, LockFileName)
	d := &Daemon{
		cfg:       cfg,
		logger:    logging.NewComponentLogger(logger, "daemon"),
		scheduler: scheduler,
		history:   store,
		notifier:  notifier,
		logPath:   logPath,
		lockPath:  lockPath,
		lock:      flock.New(lockPath),
	}
	d.api = newAPIServer(cfg, d, logger)
	return d, nil
}

// Start acquires the daemon lock, starts the status API and launches the
// scheduler in the background.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}
	if err := os.MkdirAll(filepath.Dir(d.lockPath), 0o755); err != nil {
		return fmt.Errorf("create lock directory: %w", err)
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another lullaby daemon instance is already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	if err := d.api.start(runCtx); err != nil {
		cancel()
		_ = d.lock.Unlock()
		return fmt.Errorf("start api: %w", err)
	}

	done := make(chan struct{})
	d.mu.Lock()
	d.cancel = cancel
	d.done = done
	d.startedAt = time.Now()
	d.mu.Unlock()
	d.running.Store(true)

	go func() {
		defer close(done)
		if err := d.scheduler.Run(runCtx); err != nil {
			logging.ErrorWithContext(d.logger, "scheduler stopped with error", "scheduler_failed",
				logging.Error(err),
				logging.String(logging.FieldImpact, "no further passes until restart"),
			)
		}
	}()

	d.logger.Info("lullaby daemon started",
		logging.String(logging.FieldEventType, "daemon_start"),
		logging.String("lock", d.lockPath),
		logging.String("output_root", d.cfg.Paths.OutputRoot),
		logging.String("search_term", d.cfg.Catalogue.SearchTerm),
	)
	return nil
}

// Done is closed once the scheduler has returned after Start. It is nil
// before Start.
func (d *Daemon) Done() <-chan struct{} {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.done
}

// Stop cancels the scheduler, waits for it (and its broadcast) to exit, and
// releases the lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}
	d.mu.Lock()
	cancel, done := d.cancel, d.done
	d.cancel = nil
	d.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
	d.api.stop()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("lullaby daemon stopped", logging.String(logging.FieldEventType, "daemon_stop"))
}

// APIAddr returns the address the status API is listening on, or "" when the
// API is disabled or stopped.
func (d *Daemon) APIAddr() string {
	return d.api.Addr()
}

// LogPath returns the path to the daemon log file.
func (d *Daemon) LogPath() string {
	return d.logPath
}

// Status returns the current daemon status.
func (d *Daemon) Status(ctx context.Context) Status {
	status := Status{
		Running:      d.running.Load(),
		PID:          os.Getpid(),
		LockFilePath: d.lockPath,
		LogPath:      d.logPath,
		Scheduler:    d.scheduler.Status(),
		Dependencies: preflight.CheckSystemDeps(d.cfg),
	}
	d.mu.Lock()
	if status.Running && !d.startedAt.IsZero() {
		started := d.startedAt
		status.StartedAt = &started
		status.Uptime = time.Since(started).Round(time.Second).String()
	}
	d.mu.Unlock()
	if d.history != nil {
		status.HistoryDBPath = d.history.Path()
		stats, err := d.history.Stats(ctx)
		if err != nil {
			d.logger.Warn("pass stats unavailable", logging.Error(err))
		} else {
			status.PassStats = stats
		}
	}
	return status
}

// Passes returns the most recent passes, newest first.
func (d *Daemon) Passes(ctx context.Context, limit int) ([]history.Pass, error) {
	if d.history == nil {
		return nil, nil
	}
	return d.history.List(ctx, limit)
}

// TestNotification sends a test notification using the current configuration.
func (d *Daemon) TestNotification(ctx context.Context) (bool, string, error) {
	if d.cfg.Notifications.NtfyTopic == "" {
		return false, "ntfy topic not configured", nil
	}
	if err := d.notifier.Publish(ctx, notifications.EventTest, nil); err != nil {
		return false, "failed to send notification", err
	}
	return true, "test notification sent", nil
}
