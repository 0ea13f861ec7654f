package cycle

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/lucianfialho/urban-lullaby/internal/fileutil"
	"github.com/lucianfialho/urban-lullaby/internal/logging"
	"github.com/lucianfialho/urban-lullaby/internal/metrics"
)

// DateLayout formats calendar days.
const DateLayout = "2006-01-02"

// DirectoryPrefix prefixes every per-day output directory.
const DirectoryPrefix = "playlist_"

// Clock supplies the current time.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock.
type SystemClock struct{}

// Now returns time.Now().
func (SystemClock) Now() time.Time { return time.Now() }

// State is the calendar day the current outputs belong to and where they live.
type State struct {
	Date            string `json:"date"`
	OutputDirectory string `json:"output_directory"`
}

// RotationResult describes what a rotation check did.
type RotationResult struct {
	Rotated           bool                     `json:"rotated"`
	PreviousDate      string                   `json:"previous_date,omitempty"`
	PreviousDirectory string                   `json:"previous_directory,omitempty"`
	Removed           int                      `json:"removed"`
	Failures          []fileutil.RemoveFailure `json:"-"`
}

// Rotator computes days in a timezone and owns the per-day directory layout
// under Root.
type Rotator struct {
	Root     string
	Location *time.Location
	Logger   *slog.Logger
}

func (r Rotator) location() *time.Location {
	if r.Location == nil {
		return time.UTC
	}
	return r.Location
}

// Day returns the calendar day of now.
func (r Rotator) Day(now time.Time) string {
	return now.In(r.location()).Format(DateLayout)
}

// Directory returns the output directory for day.
func (r Rotator) Directory(day string) string {
	return filepath.Join(r.Root, DirectoryPrefix+day)
}

// Initial returns the State for now without touching the filesystem.
func (r Rotator) Initial(now time.Time) State {
	day := r.Day(now)
	return State{Date: day, OutputDirectory: r.Directory(day)}
}

// Rotate compares state with the day of now. On the same day it returns state
// unchanged and leaves every file in place. On a new day it wipes the
// previous directory best-effort, removes it, and returns the advanced State.
// Individual removal failures are logged and reported, never returned.
func (r Rotator) Rotate(state State, now time.Time) (State, RotationResult) {
	if state.Date == "" {
		return r.Initial(now), RotationResult{}
	}
	today := r.Day(now)
	if state.Date == today && state.OutputDirectory != "" {
		return state, RotationResult{}
	}

	result := RotationResult{
		Rotated:           true,
		PreviousDate:      state.Date,
		PreviousDirectory: state.OutputDirectory,
	}
	next := State{Date: today, OutputDirectory: r.Directory(today)}

	if prev := strings.TrimSpace(state.OutputDirectory); prev != "" {
		removed, failures := fileutil.RemoveContents(prev)
		result.Removed = removed
		result.Failures = failures
		if len(failures) == 0 && prev != next.OutputDirectory {
			if err := os.Remove(prev); err != nil && !errors.Is(err, os.ErrNotExist) {
				result.Failures = append(result.Failures, fileutil.RemoveFailure{Path: prev, Err: err})
			}
		}
	}

	logger := logging.NewComponentLogger(r.Logger, "cycle")
	for _, failure := range result.Failures {
		logging.WarnWithContext(logger, "rotation could not remove entry", "rotation_remove_failed",
			logging.String("path", failure.Path),
			logging.Error(failure.Err),
			logging.String(logging.FieldErrorHint, "check permissions on the output root"),
			logging.String(logging.FieldImpact, "stale files from the previous day stay on disk"),
		)
	}
	metrics.RotationsTotal.Inc()
	return next, result
}
