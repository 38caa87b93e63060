// Package ledger records which recordings have been processed, keyed by a
// content identity derived from file name, size, and mtime.
//
// The Store is backed by SQLite in WAL mode and is the only serialization
// point between overlapping scans: TryClaim hands an identity to exactly one
// caller, and an identity that reached DONE or FAILED_PERMANENT never moves
// again except through the explicit Retry and Remove management calls.
//
// An entry carries a held flag while a job works on it. Entries still held
// when the process died are released once on the next Open; a second crash on
// the same recording marks it FAILED_PERMANENT so a poison file cannot take
// the daemon down forever.
//
// Schema changes bump schemaVersion in schema.go; users clear the database to
// adopt the new schema.
package ledger
