// Package daemon coordinates the long-running urban-lullaby process.
//
// It holds the flock-based single-instance lock, runs the cycle scheduler
// under a cancellable context, and serves the status API: scheduler state,
// recent pass history, and Prometheus metrics. The daemon does no pipeline
// work itself; passes, rotation and broadcasting live in package cycle while
// this package owns startup, shutdown and the HTTP surface.
package daemon
