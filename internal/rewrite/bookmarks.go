package rewrite

import (
	"context"
	"fmt"

	"github.com/strata-vcs/strata/internal/changeset"
	"github.com/strata-vcs/strata/internal/store"
)

// BookmarkChanges computes the rebindings needed to move every
// bookmark bound to any of the old IDs onto newID. The result is an
// explicit change list; nothing is written.
func BookmarkChanges(ctx context.Context, st *store.Store, newID changeset.ID, oldIDs []changeset.ID) ([]changeset.BookmarkChange, error) {
	var changes []changeset.BookmarkChange
	for _, oldID := range oldIDs {
		names, err := st.BookmarksAt(ctx, oldID)
		if err != nil {
			return nil, fmt.Errorf("bookmark changes: %w", err)
		}
		for _, name := range names {
			changes = append(changes, changeset.BookmarkChange{Name: name, Target: newID})
		}
	}
	return changes, nil
}

// MigrateBookmarks stages and submits the rebindings for all bookmarks
// bound to oldIDs as one batch inside tx. When no bookmark is bound to
// any old ID, no write occurs. The rebinding is visible only at the
// transaction's commit.
func MigrateBookmarks(ctx context.Context, st *store.Store, tx *store.Tx, newID changeset.ID, oldIDs []changeset.ID) ([]changeset.BookmarkChange, error) {
	changes, err := BookmarkChanges(ctx, st.WithTx(tx), newID, oldIDs)
	if err != nil {
		return nil, err
	}
	if len(changes) == 0 {
		return nil, nil
	}
	if err := st.ApplyBookmarkChanges(ctx, tx, changes); err != nil {
		return nil, err
	}
	return changes, nil
}
