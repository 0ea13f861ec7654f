package preflight

import (
	"context"

	"github.com/lucianfialho/urban-lullaby/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Detail string `json:"detail"`
}

// RunAll executes all applicable preflight checks for the given config.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckDirectoryAccess("Output root", cfg.Paths.OutputRoot),
		CheckDirectoryAccess("Cache directory", cfg.Paths.CacheDir),
	}
	if cfg.Paths.MinFreeSpaceMiB > 0 {
		results = append(results, CheckFreeSpace("Output free space", cfg.Paths.OutputRoot, uint64(cfg.Paths.MinFreeSpaceMiB)))
	}
	results = append(results, CheckReadableFile("Background video", cfg.Stream.VideoFile))
	return results
}

// Failures returns the checks that did not pass.
func Failures(results []Result) []Result {
	var failed []Result
	for _, r := range results {
		if !r.Passed {
			failed = append(failed, r)
		}
	}
	return failed
}
