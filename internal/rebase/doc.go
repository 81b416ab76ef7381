// Package rebase re-parents changesets onto a new destination. It is
// the collaborator the restack coordinator delegates to, but it also
// backs the user-facing rebase command directly.
//
// Rebasing is itself a rewrite: each moved changeset is committed as a
// new node carrying the original's message, author, date, and file
// changes, with the destination (or the already-moved parent) as its
// parent, and a mutation record links the new node to the one it
// replaces. Bookmarks follow. The whole move of a set is one store
// transaction under the write lock, so a failure partway leaves
// history untouched.
//
// Only linear history moves: a changeset with two parents is rejected
// before any lock is taken. Under the no-conflict policy a move is
// also rejected when a file the changeset touches has diverged between
// its old parent and the destination, since resolving that would
// require a content merge.
package rebase
