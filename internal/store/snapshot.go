package store

import (
	"context"
	"fmt"

	"github.com/strata-vcs/strata/internal/changeset"
)

// csSnapshot adapts an existing changeset to the Snapshot interface.
// The manifest is materialized lazily and cached; changesets are
// immutable, so the cache never invalidates.
type csSnapshot struct {
	ctx   context.Context
	store *Store
	cs    *changeset.Changeset

	mf changeset.Manifest
}

var _ changeset.Snapshot = (*csSnapshot)(nil)

// Snapshot returns a Snapshot view of an existing changeset. The given
// context is used for all lazy store reads the snapshot performs.
func (s *Store) Snapshot(ctx context.Context, id changeset.ID) (changeset.Snapshot, error) {
	cs, err := s.Lookup(ctx, id)
	if err != nil {
		return nil, err
	}
	return &csSnapshot{ctx: ctx, store: s, cs: cs}, nil
}

func (cs *csSnapshot) Manifest() (changeset.Manifest, error) {
	if cs.mf == nil {
		mf, err := cs.store.ManifestAt(cs.ctx, cs.cs.ID)
		if err != nil {
			return nil, err
		}
		cs.mf = mf
	}
	return cs.mf, nil
}

func (cs *csSnapshot) FileContent(path string) ([]byte, string, error) {
	mf, err := cs.Manifest()
	if err != nil {
		return nil, "", err
	}
	st, ok := mf[path]
	if !ok {
		return nil, "", fmt.Errorf("file %s at %s: %w", path, cs.cs.ID.Short(), ErrNotFound)
	}
	return st.Content, st.Flags, nil
}

// CopySource reports copy metadata recorded on the snapshot's own
// changeset. Copies made deeper in history are already part of the
// manifest and are not re-reported.
func (cs *csSnapshot) CopySource(path string) string {
	if fc, ok := cs.cs.Files[path]; ok {
		return fc.CopyFrom
	}
	return ""
}

func (cs *csSnapshot) Branch() string {
	return cs.cs.Branch()
}
