package rebase

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/strata-vcs/strata/internal/changeset"
	"github.com/strata-vcs/strata/internal/config"
	"github.com/strata-vcs/strata/internal/restack"
	"github.com/strata-vcs/strata/internal/rewrite"
	"github.com/strata-vcs/strata/internal/store"
)

// DefaultNoConflictMsg is the error message reported when the
// no-conflict policy rejects a move and the caller supplied no
// replacement.
const DefaultNoConflictMsg = "rebase would require merging file contents"

// ConflictError reports a file that diverged between a changeset's old
// parent and the rebase destination.
type ConflictError struct {
	Changeset changeset.ID
	Path      string
	Msg       string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s: %s in %s", e.Msg, e.Path, e.Changeset.Short())
}

// Rebaser moves changesets onto new parents. It satisfies
// restack.Rebaser.
type Rebaser struct {
	store  *store.Store
	cfg    *config.Config
	attrib config.Attribution
	log    *slog.Logger
}

var _ restack.Rebaser = (*Rebaser)(nil)

// Option configures a Rebaser.
type Option func(*Rebaser)

// WithLogger sets the rebase logger.
func WithLogger(log *slog.Logger) Option {
	return func(r *Rebaser) { r.log = log }
}

// WithConfig sets the configuration consulted for scoped overrides.
func WithConfig(cfg *config.Config) Option {
	return func(r *Rebaser) { r.cfg = cfg }
}

// WithAttribution registers the optional attribution capability so the
// forced operation tag can be read from the overrides in effect.
func WithAttribution(a config.Attribution) Option {
	return func(r *Rebaser) { r.attrib = a }
}

// New creates a Rebaser over the given store.
func New(st *store.Store, opts ...Option) *Rebaser {
	r := &Rebaser{
		store: st,
		cfg:   config.Default(),
		log:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// resolveOp picks the provenance operation tag. An attribution
// override in effect for the call wins over the request's own tag.
func (r *Rebaser) resolveOp(req restack.RebaseRequest) string {
	if r.attrib != nil {
		key := config.AttributionKey(r.attrib)
		if v, ok := req.Overrides[key]; ok && v != "" {
			return v
		}
		if v, ok := r.cfg.Value(key); ok && v != "" {
			return v
		}
	}
	if req.OperationTag != "" {
		return req.OperationTag
	}
	return restack.RebaseOp
}

// resolveNoConflictMsg picks the conflict message: the request field,
// then the override in effect, then the default.
func (r *Rebaser) resolveNoConflictMsg(req restack.RebaseRequest) string {
	if req.NoConflictMsg != "" {
		return req.NoConflictMsg
	}
	if v, ok := req.Overrides[config.KeyRebaseNoConflictMsg]; ok && v != "" {
		return v
	}
	if v, ok := r.cfg.Value(config.KeyRebaseNoConflictMsg); ok && v != "" {
		return v
	}
	return DefaultNoConflictMsg
}

// Rebase re-parents every changeset in req.Revs onto req.Dest,
// parents before children, inside one transaction under the write
// lock. A changeset whose parent is not itself being moved lands
// directly on req.Dest; one whose parent is being moved lands on the
// parent's replacement. Changesets already where they belong are
// skipped without a mutation record.
func (r *Rebaser) Rebase(ctx context.Context, req restack.RebaseRequest) error {
	if req.Dest.IsNil() {
		return fmt.Errorf("rebase: missing destination")
	}
	if req.Revs == nil || req.Revs.IsEmpty() {
		return nil
	}

	// Validate shape before taking any lock.
	ordered, err := r.orderRevs(ctx, req.Revs.IDs())
	if err != nil {
		return err
	}

	op := r.resolveOp(req)
	noConflictMsg := r.resolveNoConflictMsg(req)

	wlock, err := r.store.WLock()
	if err != nil {
		return rewrite.NewResourceError("write lock", err)
	}
	defer wlock.Release()
	lock, err := r.store.Lock()
	if err != nil {
		return rewrite.NewResourceError("store lock", err)
	}
	defer lock.Release()

	tx, err := r.store.Begin(ctx)
	if err != nil {
		return rewrite.NewResourceError("transaction", err)
	}
	defer tx.Rollback()

	txView := r.store.WithTx(tx)

	mapping := make(map[changeset.ID]changeset.ID, len(ordered))
	moved := 0
	for _, id := range ordered {
		old, err := txView.Lookup(ctx, id)
		if err != nil {
			return rewrite.NewLookupError(id.Short(), err)
		}

		oldParent := changeset.ID("")
		if len(old.Parents) == 1 {
			oldParent = old.Parents[0]
		}
		newParent := req.Dest
		if mapped, ok := mapping[oldParent]; ok {
			newParent = mapped
		}
		if newParent == oldParent {
			// Already based where it belongs.
			mapping[id] = id
			continue
		}

		if req.NoConflict {
			if err := r.checkConflicts(ctx, txView, old, oldParent, newParent, noConflictMsg); err != nil {
				return err
			}
		}

		draft := changeset.Draft{
			Parents: []changeset.ID{newParent},
			Message: old.Message,
			User:    old.User,
			Date:    old.Date,
			Extra:   old.Extra,
			Files:   old.Files,
		}
		newID, created, err := r.store.Commit(ctx, tx, draft)
		if err != nil {
			return rewrite.NewResourceError("commit", err)
		}

		if _, err := r.store.RecordMutation(ctx, tx, changeset.MutationRecord{
			Successor:    newID,
			Predecessors: []changeset.ID{id},
			Op:           op,
			Extra:        map[string]string{"branch": old.Branch()},
		}); err != nil {
			return rewrite.NewResourceError("mutation record", err)
		}

		if _, err := rewrite.MigrateBookmarks(ctx, r.store, tx, newID, []changeset.ID{id}); err != nil {
			return rewrite.NewResourceError("bookmarks", err)
		}

		mapping[id] = newID
		moved++
		r.log.Debug("rebased", "old", id.Short(), "new", newID.Short(), "parent", newParent.Short(), "created", created)
	}

	if err := tx.Commit(); err != nil {
		return rewrite.NewResourceError("transaction commit", err)
	}
	r.log.Debug("rebase complete", "dest", req.Dest.Short(), "moved", moved, "total", len(ordered))
	return nil
}

// orderRevs sorts ids so that every changeset comes after its in-set
// parent, preserving the input order among unrelated changesets. A
// changeset with more than one parent is rejected.
func (r *Rebaser) orderRevs(ctx context.Context, ids []changeset.ID) ([]changeset.ID, error) {
	inSet := make(map[changeset.ID]bool, len(ids))
	for _, id := range ids {
		inSet[id] = true
	}

	parents := make(map[changeset.ID][]changeset.ID, len(ids))
	for _, id := range ids {
		ps, err := r.store.LookupParents(ctx, id)
		if err != nil {
			return nil, rewrite.NewLookupError(id.Short(), err)
		}
		if len(ps) > 1 {
			return nil, rewrite.NewUnsupportedShapeError(id.Short())
		}
		parents[id] = ps
	}

	ordered := make([]changeset.ID, 0, len(ids))
	placed := make(map[changeset.ID]bool, len(ids))
	remaining := ids
	for len(remaining) > 0 {
		progressed := false
		next := remaining[:0]
		for _, id := range remaining {
			ready := true
			for _, p := range parents[id] {
				if inSet[p] && !placed[p] {
					ready = false
					break
				}
			}
			if ready {
				ordered = append(ordered, id)
				placed[id] = true
				progressed = true
			} else {
				next = append(next, id)
			}
		}
		if !progressed {
			return nil, fmt.Errorf("rebase: parent cycle among %d changesets", len(remaining))
		}
		remaining = next
	}
	return ordered, nil
}

// checkConflicts rejects the move when a file old touches has diverged
// between old's parent and the destination: re-parenting it would
// silently pick one side.
func (r *Rebaser) checkConflicts(ctx context.Context, txView *store.Store, old *changeset.Changeset, oldParent, newParent changeset.ID, msg string) error {
	baseManifest := changeset.Manifest{}
	if !oldParent.IsNil() {
		var err error
		baseManifest, err = txView.ManifestAt(ctx, oldParent)
		if err != nil {
			return rewrite.NewLookupError(oldParent.Short(), err)
		}
	}
	destManifest, err := txView.ManifestAt(ctx, newParent)
	if err != nil {
		return rewrite.NewLookupError(newParent.Short(), err)
	}

	for _, path := range old.FilePaths() {
		baseState, inBase := baseManifest[path]
		destState, inDest := destManifest[path]
		if inBase != inDest {
			return &ConflictError{Changeset: old.ID, Path: path, Msg: msg}
		}
		if inBase && !changeset.SameState(baseState, destState) {
			return &ConflictError{Changeset: old.ID, Path: path, Msg: msg}
		}
	}
	return nil
}
