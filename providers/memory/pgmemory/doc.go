// Package pgmemory provides a PostgreSQL-backed implementation of the
// [memory.Backend] interface for persisting session histories across
// process restarts. A single [Store] serves every session; rows are keyed
// by (session_id, seq) and seq preserves the order of the sequence.
//
// Every [Store.Save] replaces a session's rows inside one transaction, so a
// failed save leaves the previous sequence in place.
//
// The schema is managed with embedded goose migrations, applied by [Migrate].
// [Store.EnsureSchema] creates the table directly and is meant for tests and
// custom table names.
package pgmemory
