package ffmpeg

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/lucianfialho/urban-lullaby/internal/logging"
	"github.com/lucianfialho/urban-lullaby/internal/services"
)

const stderrTailLines = 20

// EventKind classifies an Event.
type EventKind string

const (
	EventStart    EventKind = "start"
	EventProgress EventKind = "progress"
	EventError    EventKind = "error"
	EventEnd      EventKind = "end"
)

// Event is one observation of a running job.
type Event struct {
	Kind      EventKind
	Job       string
	Args      []string
	Frame     int64
	FPS       float64
	Bitrate   string
	TotalSize int64
	OutTime   time.Duration
	Speed     string
	Final     bool
	Err       error
}

// Job describes one ffmpeg invocation. Args are appended after the runner's
// global flags. OnEvent, if set, is called from the goroutine reading stdout;
// it must not block for long. Every Redact value is masked in logged command
// lines and in returned error text.
type Job struct {
	Name    string
	Args    []string
	OnEvent func(Event)
	Redact  []string
}

// RedactedValue replaces secrets in logs and errors.
const RedactedValue = "****"

func (j Job) redact(s string) string {
	for _, secret := range j.Redact {
		if strings.TrimSpace(secret) == "" {
			continue
		}
		s = strings.ReplaceAll(s, secret, RedactedValue)
	}
	return s
}

// Option configures the Runner.
type Option func(*Runner)

// WithExecutor injects a custom executor (primarily for tests).
func WithExecutor(exec Executor) Option {
	return func(r *Runner) {
		if exec != nil {
			r.exec = exec
		}
	}
}

// WithStopGrace sets how long a cancelled ffmpeg may take to exit after
// SIGINT before it is killed.
func WithStopGrace(d time.Duration) Option {
	return func(r *Runner) {
		if ce, ok := r.exec.(commandExecutor); ok && d > 0 {
			ce.waitDelay = d
			r.exec = ce
		}
	}
}

// WithLogger attaches a logger for job lifecycle lines.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) {
		r.logger = logging.NewComponentLogger(logger, "ffmpeg")
	}
}

// Runner launches ffmpeg jobs.
type Runner struct {
	binary string
	exec   Executor
	logger *slog.Logger
}

// New constructs a Runner for binary (defaults to "ffmpeg").
func New(binary string, opts ...Option) *Runner {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		binary = "ffmpeg"
	}
	r := &Runner{
		binary: binary,
		exec:   commandExecutor{waitDelay: 10 * time.Second},
		logger: logging.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Binary returns the executable the runner launches.
func (r *Runner) Binary() string {
	return r.binary
}

// GlobalArgs are prepended to every job.
func GlobalArgs() []string {
	return []string{"-hide_banner", "-nostats", "-loglevel", "warning", "-progress", "pipe:1", "-y"}
}

// Run executes job and blocks until ffmpeg exits. Cancellation of ctx stops
// the process and returns an error wrapping ctx.Err(). A non-zero exit returns
// an error marked services.ErrExternalTool that includes the stderr tail.
func (r *Runner) Run(ctx context.Context, job Job) error {
	if ctx == nil {
		ctx = context.Background()
	}
	name := job.Name
	if name == "" {
		name = "ffmpeg"
	}
	args := append(GlobalArgs(), job.Args...)
	emit := func(ev Event) {
		if job.OnEvent == nil {
			return
		}
		ev.Job = name
		job.OnEvent(ev)
	}

	logger := logging.WithContext(ctx, r.logger)
	logger.Debug("ffmpeg job starting",
		logging.String("job", name),
		logging.String("command", job.redact(r.binary+" "+strings.Join(args, " "))),
	)
	shown := make([]string, len(args))
	for i, arg := range args {
		shown[i] = job.redact(arg)
	}
	emit(Event{Kind: EventStart, Args: shown})

	var mu sync.Mutex
	stderr := newTail(stderrTailLines)
	parser := &progressParser{}
	started := time.Now()

	err := r.exec.Run(ctx, r.binary, args,
		func(line string) {
			if ev, ok := parser.feed(line); ok {
				emit(ev)
			}
		},
		func(line string) {
			mu.Lock()
			stderr.add(line)
			mu.Unlock()
		},
	)

	mu.Lock()
	detail := job.redact(stderr.String())
	mu.Unlock()

	if err != nil {
		var wrapped error
		if ctxErr := ctx.Err(); ctxErr != nil {
			wrapped = fmt.Errorf("ffmpeg %s stopped: %w", name, ctxErr)
		} else {
			msg := "exited with error"
			if detail != "" {
				msg = detail
			}
			cause := err
			if redacted := job.redact(err.Error()); redacted != err.Error() {
				cause = errors.New(redacted)
			}
			wrapped = services.Wrap(services.ErrExternalTool, name, "ffmpeg", msg, cause)
		}
		emit(Event{Kind: EventError, Err: wrapped})
		logger.Debug("ffmpeg job failed",
			logging.String("job", name),
			logging.Duration("elapsed", time.Since(started).Round(time.Millisecond)),
			logging.Error(wrapped),
		)
		return wrapped
	}

	emit(Event{Kind: EventEnd})
	logger.Debug("ffmpeg job finished",
		logging.String("job", name),
		logging.Duration("elapsed", time.Since(started).Round(time.Millisecond)),
	)
	return nil
}

// IsCancelled reports whether err came from a job stopped by its context.
func IsCancelled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
