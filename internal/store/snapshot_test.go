package store

import (
	"context"
	"testing"

	"github.com/strata-vcs/strata/internal/changeset"
)

func TestSnapshot_ManifestAndContent(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	_, b, _ := linearHistory(t, s)

	snap, err := s.Snapshot(ctx, b)
	if err != nil {
		t.Fatalf("Snapshot() failed: %v", err)
	}

	mf, err := snap.Manifest()
	if err != nil {
		t.Fatalf("Manifest() failed: %v", err)
	}
	if len(mf) != 2 {
		t.Errorf("manifest = %v, want a.txt and b.txt", mf)
	}

	content, _, err := snap.FileContent("b.txt")
	if err != nil {
		t.Fatalf("FileContent() failed: %v", err)
	}
	if string(content) != "b" {
		t.Errorf("content = %q", content)
	}

	if _, _, err := snap.FileContent("missing.txt"); err == nil {
		t.Error("missing path should error")
	}
}

func TestSnapshot_CopySourceAndBranch(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	a, _ := mustCommit(t, s, testDraft(nil, "a", map[string]string{"src.txt": "v"}))
	draft := testDraft([]changeset.ID{a}, "b", nil)
	draft.Files = map[string]changeset.FileChange{
		"dst.txt": {Content: []byte("v"), CopyFrom: "src.txt"},
	}
	draft.Extra = map[string]string{"branch": "stable"}
	b, _ := mustCommit(t, s, draft)

	snap, err := s.Snapshot(ctx, b)
	if err != nil {
		t.Fatalf("Snapshot() failed: %v", err)
	}
	if got := snap.CopySource("dst.txt"); got != "src.txt" {
		t.Errorf("CopySource = %q, want src.txt", got)
	}
	if got := snap.CopySource("src.txt"); got != "" {
		t.Errorf("CopySource for non-copy = %q, want empty", got)
	}
	if snap.Branch() != "stable" {
		t.Errorf("branch = %q, want stable", snap.Branch())
	}
}
