package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/lucianfialho/urban-lullaby/internal/config"
	"github.com/lucianfialho/urban-lullaby/internal/cycle"
	"github.com/lucianfialho/urban-lullaby/internal/daemon"
	"github.com/lucianfialho/urban-lullaby/internal/playlist"
	"github.com/lucianfialho/urban-lullaby/internal/testsupport"
)

func runCLI(t *testing.T, configPath string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stdout)
	if configPath != "" {
		args = append([]string{"--config", configPath}, args...)
	}
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), err
}

func writeTestConfig(t *testing.T, cfg *config.Config) string {
	t.Helper()
	data, err := toml.Marshal(cfg)
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	path := filepath.Join(testsupport.BaseDir(cfg), "lullaby.toml")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestConfigInitAndValidate(t *testing.T) {
	t.Setenv("STREAM_KEY", "cli-key")
	t.Setenv("VIDEO_FILE", "/tmp/video.mp4")
	t.Setenv("HOME", t.TempDir())
	target := filepath.Join(t.TempDir(), "lullaby.toml")

	out, err := runCLI(t, "", "config", "init", "--path", target)
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	if !strings.Contains(out, target) {
		t.Fatalf("expected path in output, got %q", out)
	}
	if _, err := runCLI(t, "", "config", "init", "--path", target); err == nil {
		t.Fatal("expected second init without --overwrite to fail")
	}

	out, err = runCLI(t, target, "config", "validate")
	if err != nil {
		t.Fatalf("config validate: %v", err)
	}
	if !strings.Contains(out, "Configuration valid") {
		t.Fatalf("unexpected validate output %q", out)
	}
}

func TestHistoryCommandRendersPasses(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenHistory(t, cfg)
	testsupport.CompletedPass(t, store, "2026-04-01", "lofi", 7)
	path := writeTestConfig(t, cfg)

	out, err := runCLI(t, path, "history", "--limit", "5")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	for _, want := range []string{"2026-04-01", "Completed", "7"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output:\n%s", want, out)
		}
	}
}

func TestHistoryCommandWithoutDatabase(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	path := writeTestConfig(t, cfg)

	out, err := runCLI(t, path, "history")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if !strings.Contains(out, "No pass history yet") {
		t.Fatalf("unexpected output %q", out)
	}
}

func TestPlaylistVerify(t *testing.T) {
	dir := t.TempDir()
	tracks := testsupport.WriteTracks(t, dir, "Harbor", "Slow Tide", "Kiosk", "Late Tram")
	manifest, err := playlist.Assemble(dir, tracks)
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}

	out, err := runCLI(t, "", "playlist", "verify", manifest)
	if err != nil {
		t.Fatalf("verify: %v\n%s", err, out)
	}
	if !strings.Contains(out, "harbor_slow_tide.mp3") || !strings.Contains(out, "2 entries") {
		t.Fatalf("unexpected verify output:\n%s", out)
	}

	if err := os.Remove(tracks[1].LocalPath); err != nil {
		t.Fatalf("remove track: %v", err)
	}
	out, err = runCLI(t, "", "playlist", "verify", manifest)
	if err == nil {
		t.Fatal("expected verification failure for missing track")
	}
	if !strings.Contains(out, "missing") {
		t.Fatalf("expected missing entry in output:\n%s", out)
	}
}

type idleScheduler struct{}

func (idleScheduler) Run(ctx context.Context) error {
	<-ctx.Done()
	return nil
}

func (idleScheduler) Status() cycle.Status {
	started := time.Now().Add(-90 * time.Second)
	return cycle.Status{
		State:    cycle.State{Date: "2026-04-02", OutputDirectory: "/music/playlist_2026-04-02"},
		Interval: "1h0m0s",
		Broadcast: &cycle.BroadcastStatus{
			PassID:  "pass-1",
			Asset:   "/music/playlist_2026-04-02/output.mp3",
			Started: started,
		},
	}
}

func TestStatusCommandQueriesDaemon(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithStubbedBinaries())
	cfg.API.Token = "cli-token"
	d, err := daemon.New(cfg, idleScheduler{}, nil, nil, nil, "")
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(d.Stop)

	cfg.API.Bind = d.APIAddr()
	path := writeTestConfig(t, cfg)

	out, err := runCLI(t, path, "status")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	for _, want := range []string{"2026-04-02", "live for", "output.mp3", "[OK]"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in status output:\n%s", want, out)
		}
	}

	out, err = runCLI(t, path, "status", "--json")
	if err != nil {
		t.Fatalf("status --json: %v", err)
	}
	if !strings.Contains(out, `"running": true`) {
		t.Fatalf("expected JSON payload, got %s", out)
	}
}

func TestStatusCommandReportsUnreachableDaemon(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.API.Bind = "127.0.0.1:1"
	path := writeTestConfig(t, cfg)

	if _, err := runCLI(t, path, "status"); err == nil || !strings.Contains(err.Error(), "lullaby daemon") {
		t.Fatalf("expected connection hint, got %v", err)
	}
}

func TestTestNotifyCommand(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if r.Header.Get("Title") != "Lullaby - Test" {
			t.Errorf("unexpected title %q", r.Header.Get("Title"))
		}
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)

	cfg := testsupport.NewConfig(t, testsupport.WithNtfyTopic(srv.URL+"/lullaby"))
	path := writeTestConfig(t, cfg)

	out, err := runCLI(t, path, "test-notify")
	if err != nil {
		t.Fatalf("test-notify: %v", err)
	}
	if !strings.Contains(out, "Test notification sent") || hits.Load() != 1 {
		t.Fatalf("expected one notification, output %q hits %d", out, hits.Load())
	}
}

func TestPassCommandRefusesWhileDaemonHoldsLock(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.API.Bind = ""
	d, err := daemon.New(cfg, idleScheduler{}, nil, nil, nil, "")
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(d.Stop)
	path := writeTestConfig(t, cfg)

	_, err = runCLI(t, path, "pass", "--no-stream")
	if err == nil || !strings.Contains(err.Error(), "daemon is running") {
		t.Fatalf("expected lock refusal, got %v", err)
	}
}
