package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"

	"github.com/lucianfialho/urban-lullaby/internal/cycle"
	"github.com/lucianfialho/urban-lullaby/internal/daemon"
	"github.com/lucianfialho/urban-lullaby/internal/daemonrun"
	"github.com/lucianfialho/urban-lullaby/internal/history"
)

func newPassCommand(ctx *commandContext) *cobra.Command {
	var noStream bool
	var asJSON bool
	var logLevel string

	cmd := &cobra.Command{
		Use:   "pass",
		Short: "Run one pass now and stream until interrupted",
		Long: "Run one pass (rotate, acquire, assemble, combine) in the foreground. Unless\n" +
			"--no-stream is set the result is broadcast until the stream ends or the\n" +
			"command is interrupted. Refuses to run while the daemon holds its lock.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if err := cfg.EnsureDirectories(); err != nil {
				return err
			}

			lock := flock.New(filepath.Join(cfg.Paths.LogDir, daemon.LockFileName))
			locked, err := lock.TryLock()
			if err != nil {
				return fmt.Errorf("acquire lock: %w", err)
			}
			if !locked {
				return errors.New("the lullaby daemon is running; stop it before running a manual pass")
			}
			defer lock.Unlock() //nolint:errcheck

			runCtx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			logger, err := daemonrun.NewRunLogger(cfg, daemonrun.Options{LogLevel: logLevel}, "")
			if err != nil {
				return err
			}
			pipeline, err := daemonrun.NewPipeline(runCtx, cfg, logger, daemonrun.PipelineOptions{NoStream: noStream})
			if err != nil {
				return err
			}
			defer pipeline.Close()

			outcome := pipeline.Scheduler.Tick(runCtx)
			if outcome.Status == history.StatusBroadcasting {
				waitForBroadcast(runCtx, pipeline.Scheduler)
			}

			if asJSON {
				if err := writeJSON(cmd, outcome); err != nil {
					return err
				}
			} else {
				printOutcome(cmd, outcome)
			}
			if outcome.Err != nil {
				return fmt.Errorf("pass %s: %w", outcome.Status, outcome.Err)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&noStream, "no-stream", false, "Stop after combine; do not broadcast")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the pass outcome as JSON")
	cmd.Flags().StringVar(&logLevel, "log-level", "", "Override logging.level")
	return cmd
}

// waitForBroadcast returns when the stream exits on its own or ctx ends, in
// which case the stream is stopped first.
func waitForBroadcast(ctx context.Context, sched *cycle.Scheduler) {
	done := make(chan struct{})
	go func() {
		sched.WaitBroadcast()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		sched.StopBroadcast()
		<-done
	}
}

func printOutcome(cmd *cobra.Command, outcome cycle.Outcome) {
	p := newStatusPrinter(cmd.OutOrStdout())
	p.section("Pass " + outcome.Date)
	kind := statusOK
	switch outcome.Status {
	case history.StatusFailed:
		kind = statusError
	case history.StatusSkipped:
		kind = statusWarn
	}
	message := string(outcome.Status)
	if outcome.Error != "" {
		message += ": " + outcome.Error
	}
	p.line("Result", kind, message)
	if outcome.Stage != "" {
		p.value("Stage", outcome.Stage)
	}
	p.value("Tracks", fmt.Sprintf("%d downloaded, %d skipped", outcome.TrackCount, outcome.SkippedCount))
	p.value("Rotated", yesNo(outcome.Rotated))
	if outcome.Manifest != "" {
		p.value("Manifest", outcome.Manifest)
	}
	if outcome.Asset != "" {
		p.value("Asset", outcome.Asset)
	}
	if !outcome.FinishedAt.IsZero() {
		p.value("Elapsed", outcome.FinishedAt.Sub(outcome.StartedAt).Round(time.Millisecond).String())
	}
}
