// Package ffmpeg runs ffmpeg jobs and translates their output into events.
//
// Every job is launched with machine-readable progress on stdout
// (-progress pipe:1). Progress blocks become EventProgress values; stderr is
// kept as a bounded tail so a failure carries the encoder's last words. Run
// blocks until the process exits and reports exactly one terminal event,
// EventEnd on success or EventError on failure.
package ffmpeg
