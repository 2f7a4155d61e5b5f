// Package store provides the SQLite-backed document store the live mirror
// polls.
//
// Every record is one row in the documents table:
//   - collection, id: the primary key
//   - created_at, updated_at: stamps in Unix nanoseconds
//   - body: the record as JSON
//
// # Query Semantics
//
// ChangedSince is the incremental-sync primitive: strict greater-than on
// updated_at, ordered by updated_at ASC, id COLLATE BINARY ASC. Stamps are
// not required to be unique.
//
// Stamps are stored at full nanosecond precision so that a watermark taken
// from a decoded body compares exactly against the column.
//
// Find({"account": id}) is served by an expression index on the body's
// account field, which is how characters and auths are fetched per parent.
//
// # Schema Versions
//
// PRAGMA user_version records the last applied migration. Open applies
// the pending ones in order, so a database written by an older binary is
// upgraded in place. Each connection runs in WAL mode with
// synchronous=NORMAL and a 5 second busy timeout.
package store
