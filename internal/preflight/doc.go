// Package preflight provides readiness checks for the filesystem paths and
// external programs urban-lullaby depends on.
//
// These checks run in two contexts:
//   - The cycle scheduler calls RunAll before each pass. If any check fails,
//     the pass is recorded as failed instead of downloading a catalogue that
//     cannot be stored or broadcast.
//   - The "lullaby deps" command renders the same results for operators.
package preflight
