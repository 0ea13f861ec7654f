// Package broadcast pushes a pass's combined audio, looped over the
// background video, to the live-ingestion endpoint.
//
// A broadcast has two phases. Prepare normalizes the background video once
// per process into the persistent cache, re-encodes the combined audio next
// to it, and verifies both with ffprobe. Stream then runs one long ffmpeg
// push until the context is cancelled or the engine fails. There is no
// reconnect: a failed push ends the broadcast and the next pass starts a new
// one.
//
// The stream key is a secret. It is masked in every log line and error.
package broadcast
