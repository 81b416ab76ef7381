// Package changeset defines the immutable data model of the history graph.
//
// A changeset is a content-addressed node: its ID is derived from its
// parents, metadata, and recorded file changes, so two byte-identical
// drafts always resolve to the same ID. This is what makes rewrite
// deduplication possible: committing a draft whose content already
// exists returns the existing node instead of creating a new one.
//
// # Identity
//
// IDs are SHA-256 over RFC 8785 canonical JSON with domain separation.
// See hash.go for the domain constants and canonical.go for the
// serialization rules (sorted keys, NFC normalization, no floats).
//
// # Snapshots
//
// A Snapshot is a read-only view of full tree content at some point:
// either an existing changeset (store-backed) or an in-memory tree such
// as a working-directory capture. The rewrite planner diffs two
// snapshots; it never cares which kind it was given.
package changeset
