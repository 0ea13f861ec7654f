// Package ffprobe provides a typed wrapper around ffprobe JSON output.
//
// Key types:
//   - Result: parsed ffprobe output containing streams and format metadata
//   - Prober: binds a binary path so callers can inject a fake in tests
//
// Inspect executes ffprobe and returns the parsed Result; CheckAudioAsset and
// CheckVideoAsset decide whether a file is fit to broadcast.
package ffprobe
