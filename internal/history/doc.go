// Package history persists one record per pipeline pass in SQLite.
//
// A pass is inserted as running when the scheduler starts it, moves through
// its stages, and ends as completed, failed, or skipped. A pass whose
// broadcast is live is recorded as broadcasting until the push exits. The
// store is the source for `lullaby history` and the /api/passes endpoint.
//
// The schema is versioned with a single schema_version row. A version
// mismatch is reported as ErrSchemaMismatch; the database only holds history,
// so deleting it is always safe.
package history
