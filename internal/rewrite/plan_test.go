package rewrite

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strata-vcs/strata/internal/changeset"
)

func oldChangeset(paths ...string) *changeset.Changeset {
	files := make(map[string]changeset.FileChange, len(paths))
	for _, p := range paths {
		files[p] = changeset.FileChange{Content: []byte("old")}
	}
	return &changeset.Changeset{ID: "old", Message: "old", Files: files}
}

func TestPlanContentTakesContentFromHead(t *testing.T) {
	old := oldChangeset("a.txt")
	base := changeset.NewMemSnapshot()
	head := changeset.NewMemSnapshot().Add("a.txt", []byte("new content"), "")

	plan, err := PlanContent(old, nil, head, base)
	require.NoError(t, err)
	require.Contains(t, plan.Files, "a.txt")
	assert.Equal(t, "new content", string(plan.Files["a.txt"].Content))
}

func TestPlanContentPrunesNoopChanges(t *testing.T) {
	old := oldChangeset("same.txt", "changed.txt")
	base := changeset.NewMemSnapshot().
		Add("same.txt", []byte("v"), "").
		Add("changed.txt", []byte("before"), "")
	head := changeset.NewMemSnapshot().
		Add("same.txt", []byte("v"), "").
		Add("changed.txt", []byte("after"), "")

	plan, err := PlanContent(old, nil, head, base)
	require.NoError(t, err)
	assert.NotContains(t, plan.Files, "same.txt", "identical in head and base: pruned")
	assert.Contains(t, plan.Files, "changed.txt")
}

func TestPlanContentPrunesAbsentFromBoth(t *testing.T) {
	old := oldChangeset("ghost.txt")
	base := changeset.NewMemSnapshot()
	head := changeset.NewMemSnapshot()

	plan, err := PlanContent(old, nil, head, base)
	require.NoError(t, err)
	assert.Empty(t, plan.Files)
}

func TestPlanContentRecordsDeletion(t *testing.T) {
	old := oldChangeset("doomed.txt")
	base := changeset.NewMemSnapshot().Add("doomed.txt", []byte("v"), "")
	head := changeset.NewMemSnapshot()

	plan, err := PlanContent(old, nil, head, base)
	require.NoError(t, err)
	require.Contains(t, plan.Files, "doomed.txt")
	assert.True(t, plan.Files["doomed.txt"].Deleted)
	assert.Empty(t, plan.Files["doomed.txt"].Content)
}

func TestPlanContentFoldsUpdates(t *testing.T) {
	old := oldChangeset("a.txt")
	update := &changeset.Changeset{
		ID:    "update",
		Files: map[string]changeset.FileChange{"b.txt": {Content: []byte("u")}},
	}
	base := changeset.NewMemSnapshot()
	head := changeset.NewMemSnapshot().
		Add("a.txt", []byte("a"), "").
		Add("b.txt", []byte("b"), "")

	plan, err := PlanContent(old, []*changeset.Changeset{update}, head, base)
	require.NoError(t, err)
	assert.Contains(t, plan.Files, "a.txt")
	assert.Contains(t, plan.Files, "b.txt", "paths touched by updates join the candidate set")
}

func TestPlanContentCopyMetadata(t *testing.T) {
	old := oldChangeset("renamed.txt")
	base := changeset.NewMemSnapshot().Add("orig.txt", []byte("v"), "")
	head := changeset.NewMemSnapshot().
		AddCopy("renamed.txt", []byte("v"), "", "orig.txt")

	plan, err := PlanContent(old, nil, head, base)
	require.NoError(t, err)
	require.Contains(t, plan.Files, "renamed.txt")
	assert.Equal(t, "orig.txt", plan.Files["renamed.txt"].CopyFrom)
}

func TestPlanContentBranchFromHead(t *testing.T) {
	old := oldChangeset()
	base := changeset.NewMemSnapshot()
	head := changeset.NewMemSnapshot()
	head.BranchName = "stable"

	plan, err := PlanContent(old, nil, head, base)
	require.NoError(t, err)
	assert.Equal(t, "stable", plan.Branch)
}

func TestPlanRender(t *testing.T) {
	old := oldChangeset("mod.txt", "gone.txt", "fresh.txt", "moved.txt")
	base := changeset.NewMemSnapshot().
		Add("mod.txt", []byte("before"), "").
		Add("gone.txt", []byte("bye"), "").
		Add("orig.txt", []byte("v"), "")
	head := changeset.NewMemSnapshot().
		Add("mod.txt", []byte("after"), "").
		Add("fresh.txt", []byte("new"), "").
		AddCopy("moved.txt", []byte("v"), "", "orig.txt").
		Add("orig.txt", []byte("v"), "")

	plan, err := PlanContent(old, nil, head, base)
	require.NoError(t, err)

	rendered, err := plan.Render(base)
	require.NoError(t, err)
	assert.Equal(t, "branch default\n"+
		"A fresh.txt\n"+
		"R gone.txt\n"+
		"M mod.txt\n"+
		"A moved.txt (copied from orig.txt)\n", rendered)
}
