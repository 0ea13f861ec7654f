package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/lucianfialho/urban-lullaby/internal/config"
	"github.com/lucianfialho/urban-lullaby/internal/daemon"
	"github.com/lucianfialho/urban-lullaby/internal/history"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon, scheduler and broadcast status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			status, err := fetchStatus(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd, status)
			}
			renderStatus(cmd.OutOrStdout(), status, time.Now())
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the raw status payload")
	return cmd
}

func fetchStatus(ctx context.Context, cfg *config.Config) (daemon.Status, error) {
	var status daemon.Status
	bind := strings.TrimSpace(cfg.API.Bind)
	if bind == "" {
		return status, errors.New("status API disabled (api.bind is empty)")
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://"+bind+"/api/status", nil)
	if err != nil {
		return status, fmt.Errorf("build status request: %w", err)
	}
	if cfg.API.Token != "" {
		req.Header.Set("Authorization", "Bearer "+cfg.API.Token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return status, fmt.Errorf("connect to daemon at %s: %w (is `lullaby daemon` running?)", bind, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return status, fmt.Errorf("status API returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return status, fmt.Errorf("decode status: %w", err)
	}
	return status, nil
}

func renderStatus(out io.Writer, status daemon.Status, now time.Time) {
	p := newStatusPrinter(out)

	p.section("Daemon")
	if status.Running {
		message := fmt.Sprintf("pid %d", status.PID)
		if status.Uptime != "" {
			message += ", up " + status.Uptime
		}
		p.line("Daemon", statusOK, message)
	} else {
		p.line("Daemon", statusWarn, "not running")
	}
	for _, dep := range status.Dependencies {
		if dep.Available {
			p.line(dep.Name, statusOK, dep.Command)
		} else {
			p.line(dep.Name, statusError, dep.Detail)
		}
	}

	sched := status.Scheduler
	p.section("Scheduler")
	p.value("Day", sched.State.Date)
	p.value("Output", sched.State.OutputDirectory)
	p.value("Interval", sched.Interval)
	if sched.NextTick != nil {
		p.value("Next pass", fmt.Sprintf("%s (in %s)", sched.NextTick.Local().Format(time.TimeOnly), sched.NextTick.Sub(now).Round(time.Second)))
	}
	if sched.InFlight {
		p.line("Current pass", statusInfo, "running "+sched.CurrentPass)
	}
	if last := sched.LastPass; last != nil {
		kind := statusOK
		message := fmt.Sprintf("%s, %d tracks", last.Status, last.TrackCount)
		switch last.Status {
		case history.StatusFailed:
			kind = statusError
			message = fmt.Sprintf("failed at %s: %s", last.Stage, last.Error)
		case history.StatusSkipped:
			kind = statusWarn
		}
		p.line("Last pass", kind, message)
	}
	if rot := sched.LastRotation; rot != nil {
		p.value("Last rotation", fmt.Sprintf("from %s, %d entries removed", rot.PreviousDate, rot.Removed))
	}

	p.section("Broadcast")
	if b := sched.Broadcast; b != nil {
		p.line("Stream", statusOK, fmt.Sprintf("live for %s", now.Sub(b.Started).Round(time.Second)))
		p.value("Asset", b.Asset)
	} else {
		p.line("Stream", statusWarn, "offline")
	}

	if len(status.PassStats) > 0 {
		p.section("History")
		for _, st := range []history.Status{history.StatusCompleted, history.StatusFailed, history.StatusSkipped, history.StatusBroadcasting, history.StatusRunning} {
			if n, ok := status.PassStats[st]; ok {
				p.value(titleCase(string(st)), fmt.Sprintf("%d", n))
			}
		}
	}
}
