package daemonrun

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/lucianfialho/urban-lullaby/internal/history"
	"github.com/lucianfialho/urban-lullaby/internal/testsupport"
)

type writingExecutor struct {
	mu    sync.Mutex
	calls [][]string
}

func (w *writingExecutor) Run(_ context.Context, _ string, args []string, onStdout, _ func(string)) error {
	w.mu.Lock()
	w.calls = append(w.calls, append([]string(nil), args...))
	w.mu.Unlock()
	if onStdout != nil {
		onStdout("progress=end")
	}
	return os.WriteFile(args[len(args)-1], []byte("mp3"), 0o644)
}

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

func newCatalogue(t *testing.T) *httptest.Server {
	t.Helper()
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/json/search/tracks":
			body := `{"entities":{"tracks":{
 "1":{"title":"Slow Tide","creatives":{"mainArtists":[{"name":"Harbor"}]},"stems":{"full":{"lqMp3Url":"` + srv.URL + `/audio/1.mp3"}}},
 "2":{"title":"Late Tram","creatives":{"mainArtists":[{"name":"Kiosk"}]},"stems":{"full":{"lqMp3Url":"` + srv.URL + `/audio/2.mp3"}}}
}}}`
			_, _ = io.WriteString(w, body)
		case strings.HasPrefix(r.URL.Path, "/audio/"):
			_, _ = io.WriteString(w, "not really mp3")
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestPipelineRunsOnePassWithoutStreaming(t *testing.T) {
	srv := newCatalogue(t)
	cfg := testsupport.NewConfig(t,
		testsupport.WithStubbedBinaries(),
		testsupport.WithCatalogue(srv.URL, "night drive"),
	)
	exec := &writingExecutor{}
	clock := fixedClock{now: time.Date(2026, 5, 2, 12, 0, 0, 0, time.UTC)}

	pipeline, err := NewPipeline(context.Background(), cfg, nil, PipelineOptions{NoStream: true, Executor: exec, Clock: clock})
	if err != nil {
		t.Fatalf("NewPipeline: %v", err)
	}
	t.Cleanup(func() { _ = pipeline.Close() })

	outcome := pipeline.Scheduler.Tick(context.Background())
	if outcome.Status != history.StatusCompleted {
		t.Fatalf("expected completed pass, got %+v", outcome)
	}
	dayDir := filepath.Join(cfg.Paths.OutputRoot, "playlist_2026-05-02")
	if outcome.Asset != filepath.Join(dayDir, "output.mp3") {
		t.Fatalf("unexpected asset %q", outcome.Asset)
	}
	if len(exec.calls) != 1 {
		t.Fatalf("expected one ffmpeg job, got %d", len(exec.calls))
	}
	joined := strings.Join(exec.calls[0], " ")
	if !strings.Contains(joined, "concat=n=2:v=0:a=1[out]") {
		t.Fatalf("expected two-input concat filter, got %s", joined)
	}

	passes, err := pipeline.History.List(context.Background(), 10)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(passes) != 1 || passes[0].SearchTerm != "night drive" || passes[0].TrackCount != 2 {
		t.Fatalf("unexpected history: %+v", passes)
	}
}

func TestPipelineFailsPassWhenPreflightFails(t *testing.T) {
	srv := newCatalogue(t)
	cfg := testsupport.NewConfig(t,
		testsupport.WithStubbedBinaries(),
		testsupport.WithCatalogue(srv.URL, ""),
	)
	if err := os.Remove(cfg.Stream.VideoFile); err != nil {
		t.Fatalf("remove video: %v", err)
	}
	pipeline, err := NewPipeline(context.Background(), cfg, nil, PipelineOptions{NoStream: true, Executor: &writingExecutor{}})
	if err != nil {
		t.Fatalf("NewPipeline: %v", err)
	}
	t.Cleanup(func() { _ = pipeline.Close() })

	outcome := pipeline.Scheduler.Tick(context.Background())
	if outcome.Status != history.StatusFailed || outcome.Stage != "preflight" {
		t.Fatalf("expected preflight failure, got %+v", outcome)
	}
	if !strings.Contains(outcome.Error, "Background video") {
		t.Fatalf("expected failing check named in error, got %q", outcome.Error)
	}
}

func TestNewPipelineResetsInterruptedPasses(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenHistory(t, cfg)
	pass, err := store.Begin(context.Background(), "2026-05-01", "lofi", "/music/playlist_2026-05-01")
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	store.Close()

	pipeline, err := NewPipeline(context.Background(), cfg, nil, PipelineOptions{NoStream: true})
	if err != nil {
		t.Fatalf("NewPipeline: %v", err)
	}
	t.Cleanup(func() { _ = pipeline.Close() })

	got, err := pipeline.History.Get(context.Background(), pass.ID)
	if err != nil || got == nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != history.StatusFailed || got.ErrorKind != "interrupted" {
		t.Fatalf("expected interrupted pass failed, got %+v", got)
	}
}

func TestNewRunLoggerWritesJSONFileAndPointer(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	logPath := filepath.Join(cfg.Paths.LogDir, "lullaby-test.log")

	logger, err := NewRunLogger(cfg, Options{LogLevel: "debug"}, logPath)
	if err != nil {
		t.Fatalf("NewRunLogger: %v", err)
	}
	logger.Info("hello", "pass_id", "abc")

	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	var entry map[string]any
	if err := json.Unmarshal([]byte(strings.TrimSpace(string(data))), &entry); err != nil {
		t.Fatalf("expected one JSON line, got %q: %v", data, err)
	}
	if entry["msg"] != "hello" || entry["pass_id"] != "abc" {
		t.Fatalf("unexpected entry: %v", entry)
	}

	if err := ensureCurrentLogPointer(cfg.Paths.LogDir, logPath); err != nil {
		t.Fatalf("ensureCurrentLogPointer: %v", err)
	}
	pointed, err := os.ReadFile(filepath.Join(cfg.Paths.LogDir, logPointerName))
	if err != nil || string(pointed) != string(data) {
		t.Fatalf("expected pointer to resolve to run log, err=%v", err)
	}
}
