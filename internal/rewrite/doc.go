// Package rewrite implements changeset rewriting: replacing one
// changeset's content or metadata with a new node while preserving
// provenance and keeping bookmarks attached.
//
// The engine has two entry points, both returning (newID, created):
//
//   - Rewrite folds a set of update changesets into a replacement for
//     an old changeset, recording only genuinely changed files
//   - MetaRewrite replaces metadata only, copying content verbatim
//
// Every call follows the same discipline: working-copy lock, then
// store lock, then one transaction. The new changeset, the bookmark
// moves, and the mutation record land atomically; any failure aborts
// the transaction and leaves the store byte-for-byte unchanged.
// Merge changesets (two parents) are rejected before any lock is
// taken.
//
// Errors carry structured codes (see errors.go) so callers can
// distinguish unsupported shapes, lookup failures, and resource
// acquisition failures without string matching.
package rewrite
