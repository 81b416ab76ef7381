package store

import (
	"context"
	"database/sql"
	"fmt"
)

// Tx is one atomic unit of store mutation. Every write the rewrite and
// rebase engines perform goes through exactly one Tx; its effects are
// visible to readers only after Commit, and fully discarded on
// Rollback.
type Tx struct {
	tx   *sql.Tx
	done bool
}

// Begin opens a transaction. The caller must Commit or Rollback;
// deferring Rollback is safe, it is a no-op after Commit.
func (s *Store) Begin(ctx context.Context) (*Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	return &Tx{tx: tx}, nil
}

// Commit makes all writes in the transaction visible atomically.
func (t *Tx) Commit() error {
	if t.done {
		return nil
	}
	t.done = true
	if err := t.tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// Rollback discards the transaction. No-op if already committed.
func (t *Tx) Rollback() error {
	if t.done {
		return nil
	}
	t.done = true
	if err := t.tx.Rollback(); err != nil {
		return fmt.Errorf("rollback transaction: %w", err)
	}
	return nil
}
