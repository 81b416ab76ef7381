// Package store provides SQLite-backed durable storage for the strata
// history graph.
//
// The store holds four kinds of state:
//   - Changesets: immutable, content-addressed history nodes
//   - File changes: per-changeset recorded file content
//   - Bookmarks: mutable name -> changeset bindings
//   - Mutation records: append-only provenance edges
//
// # Critical patterns
//
// Content-addressed dedup
//   - changesets.id is derived from the node content
//   - Commit uses INSERT ON CONFLICT(id) DO NOTHING and reports via
//     RowsAffected whether a node was actually created
//
// Transactional visibility
//   - Every engine mutation (new changeset + bookmark moves + mutation
//     record) happens inside one Tx; readers observe the pre-state or
//     the fully committed post-state, never anything in between
//
// Lock discipline
//   - Working-copy lock before store lock before transaction open,
//     released in reverse order on every exit path
//
// # Database configuration
//
//   - WAL mode: concurrent reads during writes
//   - synchronous=NORMAL: balance durability/performance
//   - busy_timeout=5000: wait for SQLite locks up to 5 seconds
//   - foreign_keys=ON: enforce referential integrity
//
// Changeset IDs are computed in internal/changeset using RFC 8785
// canonical JSON and SHA-256 with domain separation.
package store
