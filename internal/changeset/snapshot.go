package changeset

import (
	"bytes"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// Snapshot is a read-only view of full tree content. head and base
// inputs to the rewrite planner are snapshots; the planner never cares
// whether one is an existing changeset or an uncommitted tree.
type Snapshot interface {
	// Manifest returns the full path -> state map of the tree.
	Manifest() (Manifest, error)
	// FileContent returns content and flags for a single path.
	// Returns an error when the path is absent from the tree.
	FileContent(path string) ([]byte, string, error)
	// CopySource returns the path this file was copied from relative
	// to the snapshot's base, or "" when it is not a copy.
	CopySource(path string) string
	// Branch returns the named branch of the snapshot.
	Branch() string
}

// MemSnapshot is an in-memory Snapshot, used for working-directory
// captures and in tests.
type MemSnapshot struct {
	Tree       Manifest
	Copies     map[string]string // path -> copy source
	BranchName string
}

var _ Snapshot = (*MemSnapshot)(nil)

// NewMemSnapshot returns an empty in-memory snapshot on the default
// branch.
func NewMemSnapshot() *MemSnapshot {
	return &MemSnapshot{Tree: Manifest{}, Copies: map[string]string{}, BranchName: "default"}
}

// Add records a file in the snapshot tree.
func (m *MemSnapshot) Add(path string, content []byte, flags string) *MemSnapshot {
	m.Tree[path] = FileState{Content: content, Flags: flags}
	return m
}

// AddCopy records a file along with the path it was copied from.
func (m *MemSnapshot) AddCopy(path string, content []byte, flags, copyFrom string) *MemSnapshot {
	m.Add(path, content, flags)
	m.Copies[path] = copyFrom
	return m
}

func (m *MemSnapshot) Manifest() (Manifest, error) { return m.Tree, nil }

func (m *MemSnapshot) FileContent(path string) ([]byte, string, error) {
	st, ok := m.Tree[path]
	if !ok {
		return nil, "", fmt.Errorf("no such file in snapshot: %s", path)
	}
	return st.Content, st.Flags, nil
}

func (m *MemSnapshot) CopySource(path string) string { return m.Copies[path] }

func (m *MemSnapshot) Branch() string {
	if m.BranchName == "" {
		return "default"
	}
	return m.BranchName
}

// SnapshotDir captures a directory tree as an in-memory snapshot.
// Paths are slash-separated and relative to root. Directories named in
// ignore (e.g. ".strata") are skipped, as are symlink targets outside
// the tree; symlinks themselves are recorded with FlagLink.
func SnapshotDir(root, branch string, ignore ...string) (*MemSnapshot, error) {
	snap := NewMemSnapshot()
	snap.BranchName = branch

	skip := make(map[string]bool, len(ignore))
	for _, name := range ignore {
		skip[name] = true
	}

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != root && skip[d.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)

		info, err := d.Info()
		if err != nil {
			return err
		}

		if info.Mode()&os.ModeSymlink != 0 {
			target, err := os.Readlink(path)
			if err != nil {
				return err
			}
			snap.Add(rel, []byte(target), FlagLink)
			return nil
		}

		content, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		flags := ""
		if info.Mode()&0o111 != 0 {
			flags = FlagExec
		}
		snap.Add(rel, content, flags)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("snapshot %s: %w", root, err)
	}
	return snap, nil
}

// SameState reports whether two file states have byte-identical content
// and identical flags.
func SameState(a, b FileState) bool {
	return a.Flags == b.Flags && bytes.Equal(a.Content, b.Content)
}

// PathCopies computes the copy map between two snapshots: for every
// path present in head but absent from base that head records as copied
// from a path that does exist in base, the result maps path -> source.
// A round trip (a renamed to b and back to a) is never reported as a
// copy: a path that already exists in base cannot be a copy target.
func PathCopies(base, head Snapshot) (map[string]string, error) {
	baseMf, err := base.Manifest()
	if err != nil {
		return nil, fmt.Errorf("pathcopies: base manifest: %w", err)
	}
	headMf, err := head.Manifest()
	if err != nil {
		return nil, fmt.Errorf("pathcopies: head manifest: %w", err)
	}

	copied := make(map[string]string)
	for path := range headMf {
		if _, inBase := baseMf[path]; inBase {
			continue
		}
		src := head.CopySource(path)
		if src == "" || src == path {
			continue
		}
		if _, ok := baseMf[src]; !ok {
			continue
		}
		copied[path] = src
	}
	return copied, nil
}

// Diff computes the file changes that turn the parent manifest into
// the snapshot: changed and added paths carry content, paths gone from
// the snapshot become deletions. Copy sources are recorded only when
// the source exists in the parent.
func Diff(parent Manifest, snap Snapshot) (map[string]FileChange, error) {
	manifest, err := snap.Manifest()
	if err != nil {
		return nil, fmt.Errorf("diff: %w", err)
	}

	files := map[string]FileChange{}
	for path, state := range manifest {
		if old, ok := parent[path]; ok && SameState(old, state) {
			continue
		}
		content, flags, err := snap.FileContent(path)
		if err != nil {
			return nil, fmt.Errorf("diff: %w", err)
		}
		fc := FileChange{Content: content, Flags: flags}
		if src := snap.CopySource(path); src != "" {
			if _, ok := parent[src]; ok {
				fc.CopyFrom = src
			}
		}
		files[path] = fc
	}
	for path := range parent {
		if _, ok := manifest[path]; !ok {
			files[path] = FileChange{Deleted: true}
		}
	}
	return files, nil
}

// ValidPath rejects path escapes and absolute paths before they reach
// the store.
func ValidPath(path string) error {
	if path == "" {
		return fmt.Errorf("empty path")
	}
	if strings.HasPrefix(path, "/") {
		return fmt.Errorf("absolute path: %s", path)
	}
	for _, seg := range strings.Split(path, "/") {
		if seg == ".." {
			return fmt.Errorf("path escapes tree: %s", path)
		}
	}
	return nil
}
