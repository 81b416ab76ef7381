package testutil

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/strata-vcs/strata/internal/changeset"
	"github.com/strata-vcs/strata/internal/store"
)

// TestUser is the author used for all test commits.
const TestUser = "test <test@example.com>"

// NewStore opens a scratch store in a temp directory with a
// deterministic clock. The store is closed when the test ends.
func NewStore(t *testing.T) *store.Store {
	t.Helper()
	clock := NewDeterministicClock()
	st, err := store.Open(t.TempDir(), store.WithNow(clock.Now))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

// CommitFiles writes a changeset with the given files on top of
// parents. Content strings become file contents; an empty string is a
// valid empty file.
func CommitFiles(t *testing.T, st *store.Store, parents []changeset.ID, message string, files map[string]string) changeset.ID {
	t.Helper()

	changes := make(map[string]changeset.FileChange, len(files))
	for path, content := range files {
		changes[path] = changeset.FileChange{Content: []byte(content)}
	}
	draft := changeset.Draft{
		Parents: parents,
		Message: message,
		User:    TestUser,
		Extra:   map[string]string{"branch": "default"},
		Files:   changes,
	}
	return CommitDraft(t, st, draft)
}

// CommitDraft writes a draft under the store lock inside one
// transaction and requires it to create a new node.
func CommitDraft(t *testing.T, st *store.Store, draft changeset.Draft) changeset.ID {
	t.Helper()
	ctx := context.Background()

	lock, err := st.Lock()
	require.NoError(t, err)
	defer lock.Release()

	tx, err := st.Begin(ctx)
	require.NoError(t, err)
	defer tx.Rollback()

	id, created, err := st.Commit(ctx, tx, draft)
	require.NoError(t, err)
	require.True(t, created, "draft should create a new changeset")
	require.NoError(t, tx.Commit())
	return id
}

// Stack commits a linear chain of single-file changesets on top of
// parent and returns the IDs root-first. Each entry becomes one
// changeset writing its message into a file of the same name.
func Stack(t *testing.T, st *store.Store, parent changeset.ID, messages ...string) []changeset.ID {
	t.Helper()

	ids := make([]changeset.ID, 0, len(messages))
	for _, msg := range messages {
		var parents []changeset.ID
		if !parent.IsNil() {
			parents = []changeset.ID{parent}
		}
		id := CommitFiles(t, st, parents, msg, map[string]string{msg + ".txt": msg})
		ids = append(ids, id)
		parent = id
	}
	return ids
}

// SnapshotOf builds an in-memory snapshot holding exactly the given
// files on the default branch.
func SnapshotOf(files map[string]string) *changeset.MemSnapshot {
	snap := changeset.NewMemSnapshot()
	for path, content := range files {
		snap.Add(path, []byte(content), "")
	}
	return snap
}
