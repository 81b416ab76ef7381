package restack

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strata-vcs/strata/internal/changeset"
	"github.com/strata-vcs/strata/internal/config"
	"github.com/strata-vcs/strata/internal/revset"
	"github.com/strata-vcs/strata/internal/rewrite"
	"github.com/strata-vcs/strata/internal/store"
	"github.com/strata-vcs/strata/internal/testutil"
)

type fakeRebaser struct {
	requests []RebaseRequest
	err      error
}

func (f *fakeRebaser) Rebase(_ context.Context, req RebaseRequest) error {
	f.requests = append(f.requests, req)
	return f.err
}

// amendedStack builds a -> b -> c (-> extra...) and amends b, returning
// the store, the original IDs, and the amended replacement for b.
func amendedStack(t *testing.T, extra ...string) (*store.Store, []changeset.ID, changeset.ID) {
	t.Helper()
	st := testutil.NewStore(t)
	messages := append([]string{"a", "b", "c"}, extra...)
	ids := testutil.Stack(t, st, "", messages...)

	head := testutil.SnapshotOf(map[string]string{
		"a.txt": "a",
		"b.txt": "b amended",
	})
	eng := rewrite.New(st)
	b2, created, err := eng.Rewrite(context.Background(), ids[1], nil, head,
		[]changeset.ID{ids[0]}, rewrite.CommitOpts{}, "")
	require.NoError(t, err)
	require.True(t, created)
	return st, ids, b2
}

func TestRestackDescendantsTargetsOrphans(t *testing.T) {
	st, ids, b2 := amendedStack(t)
	ctx := context.Background()

	fake := &fakeRebaser{}
	coord := New(revset.NewEvaluator(st), fake)
	require.NoError(t, coord.RestackDescendants(ctx, b2, Options{}))

	require.Len(t, fake.requests, 1)
	req := fake.requests[0]
	assert.Equal(t, []changeset.ID{ids[2]}, req.Revs.IDs(), "only c needs to move")
	assert.Equal(t, b2, req.Dest)
	assert.Equal(t, RebaseOp, req.OperationTag)
	assert.Equal(t, "", req.Overrides[config.KeyLegacyRevnumWarning])
	_, ok := req.Overrides[config.KeyLegacyRevnumWarning]
	assert.True(t, ok, "revnum warning silenced for internal rebase")
}

func TestRestackDescendantsDeepStack(t *testing.T) {
	st, ids, b2 := amendedStack(t, "d")
	ctx := context.Background()

	fake := &fakeRebaser{}
	coord := New(revset.NewEvaluator(st), fake)
	require.NoError(t, coord.RestackDescendants(ctx, b2, Options{}))

	require.Len(t, fake.requests, 1)
	assert.Equal(t, []changeset.ID{ids[2], ids[3]}, fake.requests[0].Revs.IDs(),
		"both c and d are descendants of the amended changeset")
}

func TestRestackDescendantsChildrenOnly(t *testing.T) {
	st, ids, b2 := amendedStack(t, "d")
	ctx := context.Background()

	fake := &fakeRebaser{}
	coord := New(revset.NewEvaluator(st), fake)
	require.NoError(t, coord.RestackDescendants(ctx, b2, Options{ChildrenOnly: true}))

	require.Len(t, fake.requests, 1)
	assert.Equal(t, []changeset.ID{ids[2]}, fake.requests[0].Revs.IDs())
}

func TestRestackDescendantsNoOpSkipsCollaborator(t *testing.T) {
	st := testutil.NewStore(t)
	ids := testutil.Stack(t, st, "", "a", "b")

	fake := &fakeRebaser{}
	coord := New(revset.NewEvaluator(st), fake)
	// b was never rewritten: no predecessors, nothing to restack.
	require.NoError(t, coord.RestackDescendants(context.Background(), ids[1], Options{}))
	assert.Empty(t, fake.requests)
}

func TestRestackDescendantsNoOrphans(t *testing.T) {
	st := testutil.NewStore(t)
	ctx := context.Background()
	ids := testutil.Stack(t, st, "", "a", "b")

	// Amend the stack tip: it has a predecessor but no descendants.
	head := testutil.SnapshotOf(map[string]string{"a.txt": "a", "b.txt": "x"})
	eng := rewrite.New(st)
	b2, _, err := eng.Rewrite(ctx, ids[1], nil, head, []changeset.ID{ids[0]}, rewrite.CommitOpts{}, "")
	require.NoError(t, err)

	fake := &fakeRebaser{}
	coord := New(revset.NewEvaluator(st), fake)
	require.NoError(t, coord.RestackDescendants(ctx, b2, Options{}))
	assert.Empty(t, fake.requests)
}

func TestRestackDescendantsPassesOptions(t *testing.T) {
	st, _, b2 := amendedStack(t)

	fake := &fakeRebaser{}
	coord := New(revset.NewEvaluator(st), fake)
	opts := Options{
		RebaseOpts:    map[string]string{"keep": "true"},
		NoConflict:    true,
		NoConflictMsg: "cannot restack cleanly",
	}
	require.NoError(t, coord.RestackDescendants(context.Background(), b2, opts))

	require.Len(t, fake.requests, 1)
	req := fake.requests[0]
	assert.Equal(t, "true", req.Opts["keep"])
	assert.True(t, req.NoConflict)
	assert.Equal(t, "cannot restack cleanly", req.NoConflictMsg)
	assert.Equal(t, "cannot restack cleanly", req.Overrides[config.KeyRebaseNoConflictMsg])
}

type fakeAttribution struct{}

func (fakeAttribution) Section() string      { return "mutation" }
func (fakeAttribution) OperationKey() string { return "operation" }

func TestRestackDescendantsAttributionOverride(t *testing.T) {
	st, _, b2 := amendedStack(t)

	withAttrib := &fakeRebaser{}
	coord := New(revset.NewEvaluator(st), withAttrib, WithAttribution(fakeAttribution{}))
	require.NoError(t, coord.RestackDescendants(context.Background(), b2, Options{}))
	require.Len(t, withAttrib.requests, 1)
	assert.Equal(t, RebaseOp, withAttrib.requests[0].Overrides["mutation.operation"])

	without := &fakeRebaser{}
	coord = New(revset.NewEvaluator(st), without)
	require.NoError(t, coord.RestackDescendants(context.Background(), b2, Options{}))
	require.Len(t, without.requests, 1)
	_, ok := without.requests[0].Overrides["mutation.operation"]
	assert.False(t, ok, "no capability registered, no attribution key")
}

func TestRestackDescendantsWrapsCollaboratorFailure(t *testing.T) {
	st, _, b2 := amendedStack(t)

	fake := &fakeRebaser{err: errors.New("merge required")}
	coord := New(revset.NewEvaluator(st), fake)
	err := coord.RestackDescendants(context.Background(), b2, Options{})
	require.Error(t, err)
	assert.True(t, rewrite.IsDelegationFailed(err))
}

func TestRestackDescendantsPredecessorDepth(t *testing.T) {
	st, ids, b2 := amendedStack(t)
	ctx := context.Background()

	// Amend again: b -> b2 -> b3. Depth 1 still reaches b2, whose
	// descendant set is empty, but the full walk reaches b and finds c.
	head := testutil.SnapshotOf(map[string]string{"a.txt": "a", "b.txt": "b again"})
	eng := rewrite.New(st)
	b3, _, err := eng.Rewrite(ctx, b2, nil, head, []changeset.ID{ids[0]}, rewrite.CommitOpts{}, "")
	require.NoError(t, err)

	shallow := &fakeRebaser{}
	coord := New(revset.NewEvaluator(st), shallow)
	require.NoError(t, coord.RestackDescendants(ctx, b3, Options{MaxPredecessorDepth: 1}))
	assert.Empty(t, shallow.requests, "depth 1 sees only b2, which has no descendants")

	full := &fakeRebaser{}
	coord = New(revset.NewEvaluator(st), full)
	require.NoError(t, coord.RestackDescendants(ctx, b3, Options{}))
	require.Len(t, full.requests, 1)
	assert.Equal(t, []changeset.ID{ids[2]}, full.requests[0].Revs.IDs())
}
