package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/strata-vcs/strata/internal/changeset"
)

// Commit writes a draft changeset inside the given transaction and
// returns (id, created).
//
// The ID is content-derived, so committing a draft byte-identical to an
// existing changeset is detected by INSERT ON CONFLICT(id) DO NOTHING:
// no new node is created and created=false is returned with the
// existing ID. This is the store's explicit contract for rewrite
// deduplication - callers never need to compare revision counts.
//
// A draft with a zero Date is stamped with the store clock before the
// ID is computed.
func (s *Store) Commit(ctx context.Context, tx *Tx, draft changeset.Draft) (changeset.ID, bool, error) {
	if len(draft.Parents) > 2 {
		return "", false, fmt.Errorf("commit: too many parents: %d", len(draft.Parents))
	}
	for path, fc := range draft.Files {
		if err := changeset.ValidPath(path); err != nil {
			return "", false, fmt.Errorf("commit: %w", err)
		}
		if fc.Deleted && len(fc.Content) > 0 {
			return "", false, fmt.Errorf("commit: deletion of %s carries content", path)
		}
	}

	if draft.Date == 0 {
		draft.Date = s.now().Unix()
	}

	id, err := changeset.ComputeID(draft)
	if err != nil {
		return "", false, fmt.Errorf("commit: %w", err)
	}

	extraJSON, err := marshalExtra(draft.Extra)
	if err != nil {
		return "", false, fmt.Errorf("commit: %w", err)
	}

	result, err := tx.tx.ExecContext(ctx, `
		INSERT INTO changesets (id, message, user, date, extra)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, string(id), draft.Message, draft.User, draft.Date, extraJSON)
	if err != nil {
		return "", false, fmt.Errorf("commit: insert changeset: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return "", false, fmt.Errorf("commit: rows affected: %w", err)
	}
	if rowsAffected == 0 {
		// Byte-identical node already exists.
		return id, false, nil
	}

	for idx, parent := range draft.Parents {
		if _, err := tx.tx.ExecContext(ctx, `
			INSERT INTO changeset_parents (changeset_id, idx, parent_id)
			VALUES (?, ?, ?)
		`, string(id), idx, string(parent)); err != nil {
			return "", false, fmt.Errorf("commit: insert parent %s: %w", parent.Short(), err)
		}
	}

	for path, fc := range draft.Files {
		deleted := 0
		if fc.Deleted {
			deleted = 1
		}
		var copyFrom any
		if fc.CopyFrom != "" {
			copyFrom = fc.CopyFrom
		}
		if _, err := tx.tx.ExecContext(ctx, `
			INSERT INTO file_changes (changeset_id, path, content, flags, copy_from, deleted)
			VALUES (?, ?, ?, ?, ?, ?)
		`, string(id), path, fc.Content, fc.Flags, copyFrom, deleted); err != nil {
			return "", false, fmt.Errorf("commit: insert file %s: %w", path, err)
		}
	}

	return id, true, nil
}

// ApplyBookmarkChanges rebinds bookmarks inside the given transaction.
// Each change binds a name to a target, creating the bookmark when it
// does not exist. An empty change list performs no write. The
// rebindings become visible only at the transaction's commit.
func (s *Store) ApplyBookmarkChanges(ctx context.Context, tx *Tx, changes []changeset.BookmarkChange) error {
	for _, change := range changes {
		if change.Name == "" {
			return fmt.Errorf("apply bookmarks: empty bookmark name")
		}
		if _, err := tx.tx.ExecContext(ctx, `
			INSERT INTO bookmarks (name, target_id)
			VALUES (?, ?)
			ON CONFLICT(name) DO UPDATE SET target_id = excluded.target_id
		`, change.Name, string(change.Target)); err != nil {
			return fmt.Errorf("apply bookmarks: bind %q: %w", change.Name, err)
		}
	}
	return nil
}

// DeleteBookmark removes a bookmark binding inside the transaction.
// Removing a bookmark that does not exist is a no-op.
func (s *Store) DeleteBookmark(ctx context.Context, tx *Tx, name string) error {
	if _, err := tx.tx.ExecContext(ctx, `
		DELETE FROM bookmarks WHERE name = ?
	`, name); err != nil {
		return fmt.Errorf("delete bookmark %q: %w", name, err)
	}
	return nil
}

// RecordMutation appends a provenance edge inside the given
// transaction and returns the record with its assigned seq. The record
// is append-only; nothing ever updates or deletes it.
func (s *Store) RecordMutation(ctx context.Context, tx *Tx, rec changeset.MutationRecord) (changeset.MutationRecord, error) {
	if rec.Successor.IsNil() {
		return rec, fmt.Errorf("record mutation: missing successor")
	}
	if rec.Op == "" {
		return rec, fmt.Errorf("record mutation: missing operation tag")
	}
	if len(rec.Predecessors) == 0 {
		return rec, fmt.Errorf("record mutation: no predecessors")
	}

	extraJSON, err := marshalExtra(rec.Extra)
	if err != nil {
		return rec, fmt.Errorf("record mutation: %w", err)
	}

	result, err := tx.tx.ExecContext(ctx, `
		INSERT INTO mutation_records (successor_id, op, extra)
		VALUES (?, ?, ?)
	`, string(rec.Successor), rec.Op, extraJSON)
	if err != nil {
		return rec, fmt.Errorf("record mutation: insert: %w", err)
	}

	seq, err := result.LastInsertId()
	if err != nil {
		return rec, fmt.Errorf("record mutation: last insert id: %w", err)
	}
	rec.Seq = seq

	for idx, pred := range rec.Predecessors {
		if _, err := tx.tx.ExecContext(ctx, `
			INSERT INTO mutation_predecessors (mutation_seq, idx, predecessor_id)
			VALUES (?, ?, ?)
		`, seq, idx, string(pred)); err != nil {
			return rec, fmt.Errorf("record mutation: insert predecessor %s: %w", pred.Short(), err)
		}
	}

	return rec, nil
}

// marshalExtra serializes a metadata map to canonical JSON TEXT. An
// empty or nil map serializes as "{}" so the column is never NULL.
func marshalExtra(extra map[string]string) (string, error) {
	if len(extra) == 0 {
		return "{}", nil
	}
	data, err := changeset.MarshalCanonical(extra)
	if err != nil {
		return "", fmt.Errorf("marshal extra: %w", err)
	}
	return string(data), nil
}

// unmarshalExtra parses metadata JSON TEXT back into a map.
func unmarshalExtra(data string) (map[string]string, error) {
	if data == "" || data == "{}" {
		return map[string]string{}, nil
	}
	var extra map[string]string
	if err := json.Unmarshal([]byte(data), &extra); err != nil {
		return nil, fmt.Errorf("unmarshal extra: %w", err)
	}
	return extra, nil
}
