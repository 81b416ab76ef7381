package changeset

import "fmt"

// ID is the content-derived identifier of a changeset (lowercase hex
// SHA-256). The zero value means "no changeset".
type ID string

// IsNil reports whether the ID is the zero value.
func (id ID) IsNil() bool { return id == "" }

// Short returns a 12-character prefix for display.
func (id ID) Short() string {
	if len(id) > 12 {
		return string(id[:12])
	}
	return string(id)
}

// File flags, mercurial style. A file has at most one flag.
const (
	FlagExec = "x"
	FlagLink = "l"
)

// FileChange records what a changeset did to a single path.
//
// Deleted and Content are mutually exclusive: a deletion carries no
// content. CopyFrom, when non-empty, names the path this file was
// copied (or renamed) from in the parent tree.
type FileChange struct {
	Content  []byte
	Flags    string
	CopyFrom string
	Deleted  bool
}

// FileState is the materialized state of a path in a full tree snapshot.
type FileState struct {
	Content []byte
	Flags   string
}

// Manifest maps path to file state for a full tree.
type Manifest map[string]FileState

// Draft is a changeset that has not been committed yet. Commit computes
// its ID from the content; drafts with identical content yield identical
// IDs.
type Draft struct {
	Parents []ID
	Message string
	User    string
	// Date is seconds since the Unix epoch. Zero means "let the store
	// stamp the commit time".
	Date  int64
	Extra map[string]string
	Files map[string]FileChange
}

// Changeset is an immutable node in the history graph. Fields mirror
// Draft plus the assigned ID.
type Changeset struct {
	ID      ID
	Parents []ID
	Message string
	User    string
	Date    int64
	Extra   map[string]string
	Files   map[string]FileChange
}

// Branch returns the named branch recorded in the extra metadata, or
// "default" when none was stamped.
func (c *Changeset) Branch() string {
	if b, ok := c.Extra["branch"]; ok && b != "" {
		return b
	}
	return "default"
}

// FilePaths returns the paths touched by this changeset, in unspecified
// order.
func (c *Changeset) FilePaths() []string {
	paths := make([]string, 0, len(c.Files))
	for p := range c.Files {
		paths = append(paths, p)
	}
	return paths
}

// BookmarkChange is one staged rebinding of a bookmark name to a target.
// A batch of these is submitted to the store inside a transaction; the
// rebinding becomes visible only at commit.
type BookmarkChange struct {
	Name   string
	Target ID
}

// MutationRecord is an append-only provenance edge: the named successor
// replaced the listed predecessors under the given operation ("amend",
// "metaedit", "rebase", ...). Records are never mutated or deleted.
type MutationRecord struct {
	// Seq is the store-assigned append order. Zero until recorded.
	Seq          int64
	Successor    ID
	Predecessors []ID
	Op           string
	Extra        map[string]string
}

func (m MutationRecord) String() string {
	return fmt.Sprintf("%s(%d preds) -> %s", m.Op, len(m.Predecessors), m.Successor.Short())
}
