package store

import (
	"context"
	"strings"
	"testing"

	"github.com/strata-vcs/strata/internal/changeset"
)

func TestCommit_CreatesChangeset(t *testing.T) {
	s := testStore(t)

	id, created := mustCommit(t, s, testDraft(nil, "first", map[string]string{"a.txt": "a"}))
	if !created {
		t.Error("created = false for a new changeset")
	}
	if len(string(id)) != 64 {
		t.Errorf("id length = %d, want 64", len(string(id)))
	}
}

func TestCommit_IdenticalDraftReturnsExisting(t *testing.T) {
	s := testStore(t)

	draft := testDraft(nil, "same", map[string]string{"a.txt": "a"})
	first, created := mustCommit(t, s, draft)
	if !created {
		t.Fatal("first commit should create")
	}

	second, created := mustCommit(t, s, draft)
	if created {
		t.Error("created = true for a byte-identical draft")
	}
	if first != second {
		t.Errorf("dedup returned %s, want %s", second.Short(), first.Short())
	}

	count, err := s.RevisionCount(context.Background())
	if err != nil {
		t.Fatalf("RevisionCount() failed: %v", err)
	}
	if count != 1 {
		t.Errorf("revision count = %d, want 1", count)
	}
}

func TestCommit_RejectsTooManyParents(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	tx, err := s.Begin(ctx)
	if err != nil {
		t.Fatalf("Begin() failed: %v", err)
	}
	defer tx.Rollback()

	draft := testDraft([]changeset.ID{"p1", "p2", "p3"}, "octopus", nil)
	if _, _, err := s.Commit(ctx, tx, draft); err == nil {
		t.Error("draft with three parents should be rejected")
	}
}

func TestCommit_RejectsDeletionWithContent(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	tx, err := s.Begin(ctx)
	if err != nil {
		t.Fatalf("Begin() failed: %v", err)
	}
	defer tx.Rollback()

	draft := testDraft(nil, "bad", nil)
	draft.Files = map[string]changeset.FileChange{
		"gone.txt": {Deleted: true, Content: []byte("leftover")},
	}
	if _, _, err := s.Commit(ctx, tx, draft); err == nil {
		t.Error("deletion carrying content should be rejected")
	}
}

func TestCommit_RejectsInvalidPath(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	tx, err := s.Begin(ctx)
	if err != nil {
		t.Fatalf("Begin() failed: %v", err)
	}
	defer tx.Rollback()

	draft := testDraft(nil, "bad", map[string]string{"../escape": "x"})
	if _, _, err := s.Commit(ctx, tx, draft); err == nil {
		t.Error("path escape should be rejected")
	}
}

func TestApplyBookmarkChanges_UpsertAndDelete(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	a, _ := mustCommit(t, s, testDraft(nil, "a", map[string]string{"a.txt": "a"}))
	b, _ := mustCommit(t, s, testDraft([]changeset.ID{a}, "b", map[string]string{"b.txt": "b"}))

	tx, err := s.Begin(ctx)
	if err != nil {
		t.Fatalf("Begin() failed: %v", err)
	}
	err = s.ApplyBookmarkChanges(ctx, tx, []changeset.BookmarkChange{{Name: "main", Target: a}})
	if err != nil {
		t.Fatalf("ApplyBookmarkChanges() failed: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("tx.Commit() failed: %v", err)
	}

	// Rebinding an existing name replaces the target.
	tx, _ = s.Begin(ctx)
	err = s.ApplyBookmarkChanges(ctx, tx, []changeset.BookmarkChange{{Name: "main", Target: b}})
	if err != nil {
		t.Fatalf("rebind failed: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("tx.Commit() failed: %v", err)
	}

	got, err := s.ResolveBookmark(ctx, "main")
	if err != nil {
		t.Fatalf("ResolveBookmark() failed: %v", err)
	}
	if got != b {
		t.Errorf("main -> %s, want %s", got.Short(), b.Short())
	}

	tx, _ = s.Begin(ctx)
	if err := s.DeleteBookmark(ctx, tx, "main"); err != nil {
		t.Fatalf("DeleteBookmark() failed: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("tx.Commit() failed: %v", err)
	}
	if _, err := s.ResolveBookmark(ctx, "main"); err == nil {
		t.Error("deleted bookmark still resolves")
	}
}

func TestApplyBookmarkChanges_RejectsEmptyName(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	tx, _ := s.Begin(ctx)
	defer tx.Rollback()
	err := s.ApplyBookmarkChanges(ctx, tx, []changeset.BookmarkChange{{Name: "", Target: "x"}})
	if err == nil {
		t.Error("empty bookmark name should be rejected")
	}
}

func TestRecordMutation_AssignsSeq(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	a, _ := mustCommit(t, s, testDraft(nil, "a", map[string]string{"a.txt": "a"}))
	b, _ := mustCommit(t, s, testDraft(nil, "b", map[string]string{"b.txt": "b"}))

	tx, _ := s.Begin(ctx)
	rec, err := s.RecordMutation(ctx, tx, changeset.MutationRecord{
		Successor:    b,
		Predecessors: []changeset.ID{a},
		Op:           "amend",
		Extra:        map[string]string{"branch": "default"},
	})
	if err != nil {
		t.Fatalf("RecordMutation() failed: %v", err)
	}
	if rec.Seq == 0 {
		t.Error("seq not assigned")
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("tx.Commit() failed: %v", err)
	}

	records, err := s.MutationsBySuccessor(ctx, b)
	if err != nil {
		t.Fatalf("MutationsBySuccessor() failed: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("got %d records, want 1", len(records))
	}
	if records[0].Op != "amend" {
		t.Errorf("op = %q", records[0].Op)
	}
	if len(records[0].Predecessors) != 1 || records[0].Predecessors[0] != a {
		t.Errorf("predecessors = %v", records[0].Predecessors)
	}
}

func TestRecordMutation_Validation(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	tests := []struct {
		name string
		rec  changeset.MutationRecord
		want string
	}{
		{"missing successor", changeset.MutationRecord{Op: "amend", Predecessors: []changeset.ID{"p"}}, "missing successor"},
		{"missing op", changeset.MutationRecord{Successor: "s", Predecessors: []changeset.ID{"p"}}, "missing operation"},
		{"no predecessors", changeset.MutationRecord{Successor: "s", Op: "amend"}, "no predecessors"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tx, _ := s.Begin(ctx)
			defer tx.Rollback()
			_, err := s.RecordMutation(ctx, tx, tt.rec)
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}

func TestTx_CommitThenRollbackIsNoop(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	tx, err := s.Begin(ctx)
	if err != nil {
		t.Fatalf("Begin() failed: %v", err)
	}
	if _, _, err := s.Commit(ctx, tx, testDraft(nil, "kept", map[string]string{"a.txt": "a"})); err != nil {
		t.Fatalf("Commit() failed: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("tx.Commit() failed: %v", err)
	}
	if err := tx.Rollback(); err != nil {
		t.Errorf("Rollback() after Commit() should be a no-op, got %v", err)
	}

	count, err := s.RevisionCount(ctx)
	if err != nil {
		t.Fatalf("RevisionCount() failed: %v", err)
	}
	if count != 1 {
		t.Errorf("revision count = %d, want 1", count)
	}
}
