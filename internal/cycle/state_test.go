package cycle_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/lucianfialho/urban-lullaby/internal/cycle"
)

func TestRotateSameDayKeepsFiles(t *testing.T) {
	root := t.TempDir()
	rotator := cycle.Rotator{Root: root, Location: time.UTC}
	now := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	state := rotator.Initial(now)
	if state.Date != "2026-03-14" || state.OutputDirectory != filepath.Join(root, "playlist_2026-03-14") {
		t.Fatalf("unexpected initial state: %+v", state)
	}
	writeFile(t, filepath.Join(state.OutputDirectory, "a.mp3"))

	next, result := rotator.Rotate(state, now.Add(13*time.Hour))
	if result.Rotated {
		t.Fatal("expected no rotation on the same day")
	}
	if next != state {
		t.Fatalf("expected state unchanged, got %+v", next)
	}
	if _, err := os.Stat(filepath.Join(state.OutputDirectory, "a.mp3")); err != nil {
		t.Fatalf("expected file to persist: %v", err)
	}
}

func TestRotateNewDayWipesPreviousDirectory(t *testing.T) {
	root := t.TempDir()
	rotator := cycle.Rotator{Root: root, Location: time.UTC}
	day1 := time.Date(2026, 3, 14, 23, 30, 0, 0, time.UTC)
	state := rotator.Initial(day1)
	writeFile(t, filepath.Join(state.OutputDirectory, "a.mp3"))
	writeFile(t, filepath.Join(state.OutputDirectory, "playlist.ffconcat"))
	writeFile(t, filepath.Join(state.OutputDirectory, "nested", "b.mp3"))

	next, result := rotator.Rotate(state, day1.Add(time.Hour))
	if !result.Rotated || result.PreviousDate != "2026-03-14" {
		t.Fatalf("unexpected rotation result: %+v", result)
	}
	if result.Removed != 3 || len(result.Failures) != 0 {
		t.Fatalf("expected three removed entries, got %+v", result)
	}
	if next.Date != "2026-03-15" || next.OutputDirectory != filepath.Join(root, "playlist_2026-03-15") {
		t.Fatalf("unexpected next state: %+v", next)
	}
	if _, err := os.Stat(state.OutputDirectory); !os.IsNotExist(err) {
		t.Fatalf("expected previous directory removed, stat err=%v", err)
	}
}

func TestRotateUsesConfiguredTimezone(t *testing.T) {
	loc := time.FixedZone("UTC-3", -3*60*60)
	rotator := cycle.Rotator{Root: t.TempDir(), Location: loc}
	// 01:00 UTC on the 15th is still the 14th three hours west.
	now := time.Date(2026, 3, 15, 1, 0, 0, 0, time.UTC)
	if got := rotator.Day(now); got != "2026-03-14" {
		t.Fatalf("expected local day 2026-03-14, got %s", got)
	}
}

func TestRotateMissingPreviousDirectory(t *testing.T) {
	root := t.TempDir()
	rotator := cycle.Rotator{Root: root, Location: time.UTC}
	state := cycle.State{Date: "2026-03-13", OutputDirectory: filepath.Join(root, "playlist_2026-03-13")}
	next, result := rotator.Rotate(state, time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC))
	if !result.Rotated || result.Removed != 0 || len(result.Failures) != 0 {
		t.Fatalf("unexpected result for missing directory: %+v", result)
	}
	if next.Date != "2026-03-14" {
		t.Fatalf("expected state to advance, got %+v", next)
	}
}

func writeFile(t *testing.T, path string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte("data"), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}
