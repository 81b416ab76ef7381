package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"

	"github.com/strata-vcs/strata/internal/changeset"
)

// ErrNotFound is returned when a changeset or bookmark cannot be
// resolved. Callers classify it with errors.Is.
var ErrNotFound = errors.New("not found")

// Lookup loads a full changeset by ID.
func (s *Store) Lookup(ctx context.Context, id changeset.ID) (*changeset.Changeset, error) {
	var message, user, extraJSON string
	var date int64
	err := s.q.QueryRowContext(ctx, `
		SELECT message, user, date, extra FROM changesets WHERE id = ?
	`, string(id)).Scan(&message, &user, &date, &extraJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("changeset %s: %w", id.Short(), ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("lookup %s: %w", id.Short(), err)
	}

	extra, err := unmarshalExtra(extraJSON)
	if err != nil {
		return nil, fmt.Errorf("lookup %s: %w", id.Short(), err)
	}

	parents, err := s.LookupParents(ctx, id)
	if err != nil {
		return nil, err
	}

	files, err := s.fileChanges(ctx, id)
	if err != nil {
		return nil, err
	}

	return &changeset.Changeset{
		ID:      id,
		Parents: parents,
		Message: message,
		User:    user,
		Date:    date,
		Extra:   extra,
		Files:   files,
	}, nil
}

// LookupParents returns the ordered parent IDs of a changeset. The
// changeset must exist; roots return an empty slice.
func (s *Store) LookupParents(ctx context.Context, id changeset.ID) ([]changeset.ID, error) {
	var exists int
	if err := s.q.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM changesets WHERE id = ?
	`, string(id)).Scan(&exists); err != nil {
		return nil, fmt.Errorf("lookup parents %s: %w", id.Short(), err)
	}
	if exists == 0 {
		return nil, fmt.Errorf("changeset %s: %w", id.Short(), ErrNotFound)
	}

	rows, err := s.q.QueryContext(ctx, `
		SELECT parent_id FROM changeset_parents
		WHERE changeset_id = ?
		ORDER BY idx ASC
	`, string(id))
	if err != nil {
		return nil, fmt.Errorf("lookup parents %s: %w", id.Short(), err)
	}
	defer rows.Close()

	var parents []changeset.ID
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, fmt.Errorf("lookup parents %s: %w", id.Short(), err)
		}
		parents = append(parents, changeset.ID(p))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("lookup parents %s: %w", id.Short(), err)
	}
	return parents, nil
}

// fileChanges loads the recorded file changes of a changeset.
func (s *Store) fileChanges(ctx context.Context, id changeset.ID) (map[string]changeset.FileChange, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT path, content, flags, copy_from, deleted
		FROM file_changes
		WHERE changeset_id = ?
		ORDER BY path ASC
	`, string(id))
	if err != nil {
		return nil, fmt.Errorf("file changes %s: %w", id.Short(), err)
	}
	defer rows.Close()

	files := make(map[string]changeset.FileChange)
	for rows.Next() {
		var path, flags string
		var content []byte
		var copyFrom sql.NullString
		var deleted int
		if err := rows.Scan(&path, &content, &flags, &copyFrom, &deleted); err != nil {
			return nil, fmt.Errorf("file changes %s: %w", id.Short(), err)
		}
		files[path] = changeset.FileChange{
			Content:  content,
			Flags:    flags,
			CopyFrom: copyFrom.String,
			Deleted:  deleted != 0,
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("file changes %s: %w", id.Short(), err)
	}
	return files, nil
}

// ManifestAt materializes the full tree at a changeset by applying
// recorded file changes along the first-parent chain from the root.
func (s *Store) ManifestAt(ctx context.Context, id changeset.ID) (changeset.Manifest, error) {
	// Collect the first-parent chain, root last.
	var chain []changeset.ID
	cur := id
	for !cur.IsNil() {
		chain = append(chain, cur)
		parents, err := s.LookupParents(ctx, cur)
		if err != nil {
			return nil, fmt.Errorf("manifest at %s: %w", id.Short(), err)
		}
		if len(parents) == 0 {
			break
		}
		cur = parents[0]
	}
	slices.Reverse(chain)

	mf := changeset.Manifest{}
	for _, cid := range chain {
		files, err := s.fileChanges(ctx, cid)
		if err != nil {
			return nil, fmt.Errorf("manifest at %s: %w", id.Short(), err)
		}
		for path, fc := range files {
			if fc.Deleted {
				delete(mf, path)
				continue
			}
			mf[path] = changeset.FileState{Content: fc.Content, Flags: fc.Flags}
		}
	}
	return mf, nil
}

// FileContentAt returns content and flags of one path at a changeset.
func (s *Store) FileContentAt(ctx context.Context, id changeset.ID, path string) ([]byte, string, error) {
	mf, err := s.ManifestAt(ctx, id)
	if err != nil {
		return nil, "", err
	}
	st, ok := mf[path]
	if !ok {
		return nil, "", fmt.Errorf("file %s at %s: %w", path, id.Short(), ErrNotFound)
	}
	return st.Content, st.Flags, nil
}

// RevisionCount returns the total number of changesets, obsolete ones
// included. Tests use it to verify that failed operations leave the
// store untouched.
func (s *Store) RevisionCount(ctx context.Context) (int64, error) {
	var count int64
	if err := s.q.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM changesets
	`).Scan(&count); err != nil {
		return 0, fmt.Errorf("revision count: %w", err)
	}
	return count, nil
}

// Children returns the direct children of any of the given changesets,
// in store insertion order.
func (s *Store) Children(ctx context.Context, ids []changeset.ID) ([]changeset.ID, error) {
	var out []changeset.ID
	seen := make(map[changeset.ID]bool)
	for _, id := range ids {
		rows, err := s.q.QueryContext(ctx, `
			SELECT cp.changeset_id
			FROM changeset_parents cp
			JOIN changesets c ON c.id = cp.changeset_id
			WHERE cp.parent_id = ?
			ORDER BY c.rowid ASC
		`, string(id))
		if err != nil {
			return nil, fmt.Errorf("children of %s: %w", id.Short(), err)
		}
		for rows.Next() {
			var child string
			if err := rows.Scan(&child); err != nil {
				rows.Close()
				return nil, fmt.Errorf("children of %s: %w", id.Short(), err)
			}
			cid := changeset.ID(child)
			if !seen[cid] {
				seen[cid] = true
				out = append(out, cid)
			}
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return nil, fmt.Errorf("children of %s: %w", id.Short(), err)
		}
		rows.Close()
	}
	return out, nil
}

// IsObsolete reports whether the changeset appears as a predecessor in
// any mutation record, i.e. has been superseded.
func (s *Store) IsObsolete(ctx context.Context, id changeset.ID) (bool, error) {
	var count int
	if err := s.q.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM mutation_predecessors WHERE predecessor_id = ?
	`, string(id)).Scan(&count); err != nil {
		return false, fmt.Errorf("obsolete check %s: %w", id.Short(), err)
	}
	return count > 0, nil
}

// ObsoleteIDs returns every changeset that appears as a predecessor in
// any mutation record, in store insertion order.
func (s *Store) ObsoleteIDs(ctx context.Context) ([]changeset.ID, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT c.id FROM changesets c
		WHERE EXISTS (
			SELECT 1 FROM mutation_predecessors mp WHERE mp.predecessor_id = c.id
		)
		ORDER BY c.rowid ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("obsolete ids: %w", err)
	}
	defer rows.Close()

	var out []changeset.ID
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("obsolete ids: %w", err)
		}
		out = append(out, changeset.ID(id))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("obsolete ids: %w", err)
	}
	return out, nil
}

// Successors returns the direct successors of a changeset in mutation
// record append order.
func (s *Store) Successors(ctx context.Context, id changeset.ID) ([]changeset.ID, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT mr.successor_id
		FROM mutation_records mr
		JOIN mutation_predecessors mp ON mp.mutation_seq = mr.seq
		WHERE mp.predecessor_id = ?
		ORDER BY mr.seq ASC
	`, string(id))
	if err != nil {
		return nil, fmt.Errorf("successors of %s: %w", id.Short(), err)
	}
	defer rows.Close()

	var out []changeset.ID
	seen := make(map[changeset.ID]bool)
	for rows.Next() {
		var succ string
		if err := rows.Scan(&succ); err != nil {
			return nil, fmt.Errorf("successors of %s: %w", id.Short(), err)
		}
		sid := changeset.ID(succ)
		if !seen[sid] {
			seen[sid] = true
			out = append(out, sid)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("successors of %s: %w", id.Short(), err)
	}
	return out, nil
}

// DirectPredecessors returns the predecessors recorded for a successor
// changeset, ordered by record append order then predecessor position.
func (s *Store) DirectPredecessors(ctx context.Context, id changeset.ID) ([]changeset.ID, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT mp.predecessor_id
		FROM mutation_records mr
		JOIN mutation_predecessors mp ON mp.mutation_seq = mr.seq
		WHERE mr.successor_id = ?
		ORDER BY mr.seq ASC, mp.idx ASC
	`, string(id))
	if err != nil {
		return nil, fmt.Errorf("predecessors of %s: %w", id.Short(), err)
	}
	defer rows.Close()

	var out []changeset.ID
	seen := make(map[changeset.ID]bool)
	for rows.Next() {
		var pred string
		if err := rows.Scan(&pred); err != nil {
			return nil, fmt.Errorf("predecessors of %s: %w", id.Short(), err)
		}
		pid := changeset.ID(pred)
		if !seen[pid] {
			seen[pid] = true
			out = append(out, pid)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("predecessors of %s: %w", id.Short(), err)
	}
	return out, nil
}

// MutationsBySuccessor returns every mutation record whose successor is
// the given changeset, in append order.
func (s *Store) MutationsBySuccessor(ctx context.Context, id changeset.ID) ([]changeset.MutationRecord, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT seq, op, extra FROM mutation_records
		WHERE successor_id = ?
		ORDER BY seq ASC
	`, string(id))
	if err != nil {
		return nil, fmt.Errorf("mutations of %s: %w", id.Short(), err)
	}
	defer rows.Close()

	var records []changeset.MutationRecord
	for rows.Next() {
		var rec changeset.MutationRecord
		var extraJSON string
		if err := rows.Scan(&rec.Seq, &rec.Op, &extraJSON); err != nil {
			return nil, fmt.Errorf("mutations of %s: %w", id.Short(), err)
		}
		rec.Successor = id
		rec.Extra, err = unmarshalExtra(extraJSON)
		if err != nil {
			return nil, fmt.Errorf("mutations of %s: %w", id.Short(), err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("mutations of %s: %w", id.Short(), err)
	}

	for i := range records {
		preds, err := s.mutationPredecessors(ctx, records[i].Seq)
		if err != nil {
			return nil, err
		}
		records[i].Predecessors = preds
	}
	return records, nil
}

func (s *Store) mutationPredecessors(ctx context.Context, seq int64) ([]changeset.ID, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT predecessor_id FROM mutation_predecessors
		WHERE mutation_seq = ?
		ORDER BY idx ASC
	`, seq)
	if err != nil {
		return nil, fmt.Errorf("mutation %d predecessors: %w", seq, err)
	}
	defer rows.Close()

	var preds []changeset.ID
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, fmt.Errorf("mutation %d predecessors: %w", seq, err)
		}
		preds = append(preds, changeset.ID(p))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("mutation %d predecessors: %w", seq, err)
	}
	return preds, nil
}

// MutationCount returns the total number of mutation records.
func (s *Store) MutationCount(ctx context.Context) (int64, error) {
	var count int64
	if err := s.q.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM mutation_records
	`).Scan(&count); err != nil {
		return 0, fmt.Errorf("mutation count: %w", err)
	}
	return count, nil
}

// BookmarksAt returns the names of every bookmark bound to the given
// changeset, sorted by name.
func (s *Store) BookmarksAt(ctx context.Context, id changeset.ID) ([]string, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT name FROM bookmarks WHERE target_id = ? ORDER BY name ASC
	`, string(id))
	if err != nil {
		return nil, fmt.Errorf("bookmarks at %s: %w", id.Short(), err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("bookmarks at %s: %w", id.Short(), err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("bookmarks at %s: %w", id.Short(), err)
	}
	return names, nil
}

// ResolveBookmark returns the changeset a bookmark points at.
func (s *Store) ResolveBookmark(ctx context.Context, name string) (changeset.ID, error) {
	var target string
	err := s.q.QueryRowContext(ctx, `
		SELECT target_id FROM bookmarks WHERE name = ?
	`, name).Scan(&target)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("bookmark %q: %w", name, ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("resolve bookmark %q: %w", name, err)
	}
	return changeset.ID(target), nil
}

// Bookmarks returns all bookmark bindings sorted by name.
func (s *Store) Bookmarks(ctx context.Context) ([]changeset.BookmarkChange, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT name, target_id FROM bookmarks ORDER BY name ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list bookmarks: %w", err)
	}
	defer rows.Close()

	var out []changeset.BookmarkChange
	for rows.Next() {
		var name, target string
		if err := rows.Scan(&name, &target); err != nil {
			return nil, fmt.Errorf("list bookmarks: %w", err)
		}
		out = append(out, changeset.BookmarkChange{Name: name, Target: changeset.ID(target)})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list bookmarks: %w", err)
	}
	return out, nil
}

// Tip returns the most recently committed non-obsolete changeset, or
// ErrNotFound on an empty store.
func (s *Store) Tip(ctx context.Context) (changeset.ID, error) {
	var id string
	err := s.q.QueryRowContext(ctx, `
		SELECT id FROM changesets c
		WHERE NOT EXISTS (
			SELECT 1 FROM mutation_predecessors mp WHERE mp.predecessor_id = c.id
		)
		ORDER BY c.rowid DESC
		LIMIT 1
	`).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("tip: %w", ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("tip: %w", err)
	}
	return changeset.ID(id), nil
}

// AllIDs returns every changeset ID, obsolete included, in insertion
// order.
func (s *Store) AllIDs(ctx context.Context) ([]changeset.ID, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT id FROM changesets ORDER BY rowid ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("all ids: %w", err)
	}
	defer rows.Close()

	var out []changeset.ID
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("all ids: %w", err)
		}
		out = append(out, changeset.ID(id))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("all ids: %w", err)
	}
	return out, nil
}

// AllVisible returns every non-obsolete changeset ID in insertion
// order.
func (s *Store) AllVisible(ctx context.Context) ([]changeset.ID, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT id FROM changesets c
		WHERE NOT EXISTS (
			SELECT 1 FROM mutation_predecessors mp WHERE mp.predecessor_id = c.id
		)
		ORDER BY c.rowid ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("all visible: %w", err)
	}
	defer rows.Close()

	var out []changeset.ID
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("all visible: %w", err)
		}
		out = append(out, changeset.ID(id))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("all visible: %w", err)
	}
	return out, nil
}
