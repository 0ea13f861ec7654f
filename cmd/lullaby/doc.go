// Command lullaby runs and inspects the urban-lullaby broadcast daemon.
//
// Subcommands cover the daemon itself (daemon), a one-shot pass (pass),
// the status API (status), local pass history (history), manifest checks
// (playlist verify), dependency checks (deps), configuration (config) and
// a notification smoke test (test-notify).
package main
