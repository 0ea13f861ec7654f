// Package cycle drives the daily broadcast pipeline.
//
// A Scheduler ticks once at startup and then on a fixed interval. Every tick
// first evaluates day rotation: the calendar day is computed from an
// injected Clock and compared with the State carried from the previous
// tick; on a change the previous day's directory is wiped and the State
// advances. The tick then runs one pass:
//
//	acquire -> assemble -> combine -> broadcast
//
// Stages run strictly in order and the first failure ends the pass with an
// ERROR log, a failed history record, and a notification. The daemon keeps
// running and the next tick starts from scratch.
//
// Only one pass runs at a time. A tick that arrives while a pass is still in
// flight is skipped and recorded as such rather than queued. The broadcast
// started by a pass runs in the background and is cancelled when the next
// pass is ready to broadcast its own asset.
package cycle
