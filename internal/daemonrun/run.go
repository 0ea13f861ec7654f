package daemonrun

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/lucianfialho/urban-lullaby/internal/config"
	"github.com/lucianfialho/urban-lullaby/internal/daemon"
	"github.com/lucianfialho/urban-lullaby/internal/logging"
)

const (
	logPrefix      = "lullaby-"
	logPointerName = "lullaby.log"
	pidFileName    = "lullaby.pid"
)

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel    string
	Development bool
}

// Run starts the lullaby daemon and blocks until SIGINT/SIGTERM or ctx ends.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	runID := time.Now().UTC().Format("20060102T150405.000Z")
	logPath := filepath.Join(cfg.Paths.LogDir, logPrefix+runID+".log")
	logger, err := NewRunLogger(cfg, opts, logPath)
	if err != nil {
		return err
	}

	logDependencySnapshot(logger, cfg)
	if err := ensureCurrentLogPointer(cfg.Paths.LogDir, logPath); err != nil {
		fmt.Fprintf(os.Stderr, "warn: unable to update %s link: %v\n", logPointerName, err)
	}
	logging.CleanupOldLogs(logger, cfg.Logging.RetentionDays,
		logging.RetentionTarget{Dir: cfg.Paths.LogDir, Pattern: logPrefix + "*.log", Exclude: []string{logPath}},
	)
	pidPath := filepath.Join(cfg.Paths.LogDir, pidFileName)
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	pipeline, err := NewPipeline(signalCtx, cfg, logger, PipelineOptions{})
	if err != nil {
		logger.Error("build pipeline", logging.Error(err))
		return err
	}
	defer pipeline.Close()

	d, err := daemon.New(cfg, pipeline.Scheduler, pipeline.History, pipeline.Notifier, logger, logPath)
	if err != nil {
		return fmt.Errorf("create daemon: %w", err)
	}
	if err := d.Start(signalCtx); err != nil {
		logging.ErrorWithContext(logger, "daemon start failed", "daemon_start_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "another instance may hold the lock in paths.log_dir, or api.bind is in use"),
			logging.String(logging.FieldImpact, "no passes will run"),
		)
		return err
	}
	defer d.Stop()

	select {
	case <-signalCtx.Done():
	case <-d.Done():
	}
	logger.Info("lullaby daemon shutting down")
	return nil
}

// NewRunLogger builds the process logger: the configured format on stdout
// teed with a JSON log file at logPath.
func NewRunLogger(cfg *config.Config, opts Options, logPath string) (*slog.Logger, error) {
	level := opts.LogLevel
	if strings.TrimSpace(level) == "" {
		level = cfg.Logging.Level
	}
	logger, err := logging.New(logging.Options{
		Level:            level,
		Format:           cfg.Logging.Format,
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stdout"},
		Development:      opts.Development,
	})
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	if logPath == "" {
		return logger, nil
	}
	fileHandler, err := logging.NewHandler(logging.Options{
		Level:            level,
		Format:           "json",
		OutputPaths:      []string{logPath},
		ErrorOutputPaths: []string{logPath},
		Development:      opts.Development,
	})
	if err != nil {
		return nil, fmt.Errorf("init log file: %w", err)
	}
	return logging.TeeLogger(logger, fileHandler), nil
}

func ensureCurrentLogPointer(logDir, target string) error {
	if logDir == "" || target == "" {
		return nil
	}
	current := filepath.Join(logDir, logPointerName)
	if err := os.Remove(current); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove existing log pointer: %w", err)
	}
	if err := os.Symlink(target, current); err == nil {
		return nil
	}
	if err := os.Link(target, current); err != nil {
		return fmt.Errorf("link log pointer: %w", err)
	}
	return nil
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}

func logDependencySnapshot(logger *slog.Logger, cfg *config.Config) {
	if logger == nil || cfg == nil {
		return
	}
	ffmpegBinary := cfg.FFmpegBinary()
	ffprobeBinary := cfg.FFprobeBinary()
	logger.Info("dependency snapshot",
		logging.String(logging.FieldEventType, "dependency_snapshot"),
		logging.Bool("stream_key_present", cfg.Stream.Key != ""),
		logging.String("stream_url", cfg.Stream.URL),
		logging.Bool("ffmpeg_available", binaryAvailable(ffmpegBinary)),
		logging.String("ffmpeg_binary", ffmpegBinary),
		logging.Bool("ffprobe_available", binaryAvailable(ffprobeBinary)),
		logging.String("ffprobe_binary", ffprobeBinary),
		logging.Bool("ntfy_enabled", cfg.Notifications.NtfyTopic != ""),
		logging.String("api_bind", cfg.API.Bind),
		logging.String("timezone", cfg.Location().String()),
	)
}

func binaryAvailable(name string) bool {
	if strings.TrimSpace(name) == "" {
		return false
	}
	_, err := exec.LookPath(name)
	return err == nil
}
