// Package restack stabilizes history after a rewrite: it finds every
// visible, non-obsolete descendant of a changeset's historical
// predecessors and re-parents them onto the changeset by delegating to
// a rebase collaborator.
//
// The coordinator computes the target set with revset queries, returns
// immediately when there is nothing to do (no transaction is opened),
// and otherwise assembles the rebase request: caller options, the
// target set as source, the changeset as destination, the conflict
// policy, and a set of scoped configuration overrides. One override
// silences the internal revnum deprecation warning; another, present
// only when the attribution capability is registered, forces the
// provenance operation tag of the restacked commits to "rebase" so
// history tooling displays them uniformly.
//
// Failures inside the delegated rebase propagate unchanged; the
// coordinator keeps no partial bookkeeping of its own.
package restack
