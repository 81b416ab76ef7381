package rewrite

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/strata-vcs/strata/internal/changeset"
	"github.com/strata-vcs/strata/internal/config"
	"github.com/strata-vcs/strata/internal/store"
)

// Default operation tags recorded in mutation records.
const (
	DefaultRewriteOp     = "amend"
	DefaultMetaRewriteOp = "metaedit"
)

// CommitOpts carries the recognized commit options for a rewrite.
// Zero values mean "keep the old changeset's value".
type CommitOpts struct {
	// Message overrides the commit message.
	Message string
	// User overrides the author.
	User string
	// Date overrides the timestamp (seconds since epoch). Zero leaves
	// stamping to the store.
	Date int64
	// Extra is merged over the old changeset's metadata.
	Extra map[string]string
	// Edit routes the resolved message through the editor collaborator
	// before commit.
	Edit bool
}

// MessageEditor is the external editor collaborator used when
// CommitOpts.Edit is set.
type MessageEditor interface {
	EditMessage(ctx context.Context, message string) (string, error)
}

// Engine orchestrates planner, store commit, provenance recording, and
// bookmark migration inside one transaction per call.
type Engine struct {
	store  *store.Store
	cfg    *config.Config
	editor MessageEditor
	attrib config.Attribution
	log    *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(log *slog.Logger) Option {
	return func(e *Engine) { e.log = log }
}

// WithConfig sets the configuration the engine scopes its overrides
// on.
func WithConfig(cfg *config.Config) Option {
	return func(e *Engine) { e.cfg = cfg }
}

// WithEditor registers the message editor collaborator.
func WithEditor(editor MessageEditor) Option {
	return func(e *Engine) { e.editor = editor }
}

// WithAttribution registers the optional attribution capability. A nil
// capability is skipped silently.
func WithAttribution(a config.Attribution) Option {
	return func(e *Engine) { e.attrib = a }
}

// New creates a rewrite engine over the given store.
func New(st *store.Store, opts ...Option) *Engine {
	e := &Engine{
		store: st,
		cfg:   config.Default(),
		log:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Rewrite produces a full-content replacement for old: the update
// changesets' content is folded in, no-op file changes are pruned, and
// content for every retained path is taken from head. newParents
// become the parents of the replacement.
//
// Returns (newID, created). created=false means the computed node was
// byte-identical to an existing changeset; that changeset's ID is
// returned and no node was created.
//
// A merge changeset (more than one parent) is rejected with an
// unsupported-shape error before any lock is taken. On success the new
// changeset, the mutation record (predecessors = updates, or old when
// updates is empty), and every bookmark previously bound to old or an
// update are visible atomically at commit. On any failure the store is
// left unchanged.
func (e *Engine) Rewrite(
	ctx context.Context,
	old changeset.ID,
	updates []changeset.ID,
	head changeset.Snapshot,
	newParents []changeset.ID,
	opts CommitOpts,
	op string,
) (changeset.ID, bool, error) {
	if op == "" {
		op = DefaultRewriteOp
	}
	if len(newParents) == 0 {
		return "", false, &Error{Code: ErrCodeUnsupportedShape, Message: "rewrite needs at least one new parent", Changeset: old.Short()}
	}

	oldCS, err := e.store.Lookup(ctx, old)
	if err != nil {
		return "", false, NewLookupError(old.Short(), err)
	}
	if len(oldCS.Parents) > 1 {
		return "", false, NewUnsupportedShapeError(old.Short())
	}

	updateCSs := make([]*changeset.Changeset, 0, len(updates))
	for _, u := range updates {
		ucs, err := e.store.Lookup(ctx, u)
		if err != nil {
			return "", false, NewLookupError(u.Short(), err)
		}
		updateCSs = append(updateCSs, ucs)
	}

	// Materialize head before locks so a store-backed snapshot never
	// reads through the single pooled connection while the transaction
	// holds it.
	if _, err := head.Manifest(); err != nil {
		return "", false, NewLookupError("", err)
	}

	// The diff base is old's single parent; a root changeset diffs
	// against the empty tree.
	var base changeset.Snapshot
	if len(oldCS.Parents) == 1 {
		baseSnap, err := e.store.Snapshot(ctx, oldCS.Parents[0])
		if err != nil {
			return "", false, NewLookupError(oldCS.Parents[0].Short(), err)
		}
		if _, err := baseSnap.Manifest(); err != nil {
			return "", false, NewLookupError(oldCS.Parents[0].Short(), err)
		}
		base = baseSnap
	} else {
		base = changeset.NewMemSnapshot()
	}

	restore := e.cfg.Override(e.callOverrides(op))
	defer restore()

	wlock, err := e.store.WLock()
	if err != nil {
		return "", false, NewResourceError("working-copy lock", err)
	}
	defer wlock.Release()

	lock, err := e.store.Lock()
	if err != nil {
		return "", false, NewResourceError("store lock", err)
	}
	defer lock.Release()

	tx, err := e.store.Begin(ctx)
	if err != nil {
		return "", false, NewResourceError("transaction", err)
	}
	defer tx.Rollback()

	plan, err := PlanContent(oldCS, updateCSs, head, base)
	if err != nil {
		return "", false, fmt.Errorf("rewrite %s: %w", old.Short(), err)
	}

	draft, err := e.resolveDraft(ctx, oldCS, opts, plan.Branch)
	if err != nil {
		return "", false, err
	}
	draft.Parents = newParents
	draft.Files = plan.Files

	newID, created, err := e.store.Commit(ctx, tx, draft)
	if err != nil {
		return "", false, fmt.Errorf("rewrite %s: %w", old.Short(), err)
	}

	preds := updates
	if len(preds) == 0 {
		preds = []changeset.ID{old}
	}
	if _, err := e.store.RecordMutation(ctx, tx, changeset.MutationRecord{
		Successor:    newID,
		Predecessors: preds,
		Op:           op,
		Extra:        map[string]string{"branch": plan.Branch},
	}); err != nil {
		return "", false, fmt.Errorf("rewrite %s: %w", old.Short(), err)
	}

	moved, err := MigrateBookmarks(ctx, e.store, tx, newID, append([]changeset.ID{old}, updates...))
	if err != nil {
		return "", false, fmt.Errorf("rewrite %s: %w", old.Short(), err)
	}

	if err := tx.Commit(); err != nil {
		return "", false, fmt.Errorf("rewrite %s: %w", old.Short(), err)
	}

	e.log.Debug("rewrite complete",
		"old", old.Short(),
		"new", newID.Short(),
		"created", created,
		"op", op,
		"files", len(plan.Files),
		"bookmarks", len(moved))
	return newID, created, nil
}

// MetaRewrite produces a metadata-only replacement for old: the file
// content is copied verbatim, only message, user, date, and extra
// change. The mutation record's predecessors are [old] and the
// operation tag is "metaedit". Bookmarks migrate from old only.
func (e *Engine) MetaRewrite(
	ctx context.Context,
	old changeset.ID,
	newParents []changeset.ID,
	opts CommitOpts,
) (changeset.ID, bool, error) {
	op := DefaultMetaRewriteOp
	if len(newParents) == 0 {
		return "", false, &Error{Code: ErrCodeUnsupportedShape, Message: "metarewrite needs at least one new parent", Changeset: old.Short()}
	}

	oldCS, err := e.store.Lookup(ctx, old)
	if err != nil {
		return "", false, NewLookupError(old.Short(), err)
	}

	restore := e.cfg.Override(e.callOverrides(op))
	defer restore()

	wlock, err := e.store.WLock()
	if err != nil {
		return "", false, NewResourceError("working-copy lock", err)
	}
	defer wlock.Release()

	lock, err := e.store.Lock()
	if err != nil {
		return "", false, NewResourceError("store lock", err)
	}
	defer lock.Release()

	tx, err := e.store.Begin(ctx)
	if err != nil {
		return "", false, NewResourceError("transaction", err)
	}
	defer tx.Rollback()

	draft, err := e.resolveDraft(ctx, oldCS, opts, oldCS.Branch())
	if err != nil {
		return "", false, err
	}
	draft.Parents = newParents
	draft.Files = oldCS.Files

	newID, created, err := e.store.Commit(ctx, tx, draft)
	if err != nil {
		return "", false, fmt.Errorf("metarewrite %s: %w", old.Short(), err)
	}

	if _, err := e.store.RecordMutation(ctx, tx, changeset.MutationRecord{
		Successor:    newID,
		Predecessors: []changeset.ID{old},
		Op:           op,
		Extra:        map[string]string{"branch": oldCS.Branch()},
	}); err != nil {
		return "", false, fmt.Errorf("metarewrite %s: %w", old.Short(), err)
	}

	moved, err := MigrateBookmarks(ctx, e.store, tx, newID, []changeset.ID{old})
	if err != nil {
		return "", false, fmt.Errorf("metarewrite %s: %w", old.Short(), err)
	}

	if err := tx.Commit(); err != nil {
		return "", false, fmt.Errorf("metarewrite %s: %w", old.Short(), err)
	}

	e.log.Debug("metarewrite complete",
		"old", old.Short(),
		"new", newID.Short(),
		"created", created,
		"bookmarks", len(moved))
	return newID, created, nil
}

// resolveDraft applies commit option overrides against the old
// changeset's values and stamps the target branch.
func (e *Engine) resolveDraft(ctx context.Context, old *changeset.Changeset, opts CommitOpts, branch string) (changeset.Draft, error) {
	message := opts.Message
	if message == "" {
		message = old.Message
	}
	if opts.Edit && e.editor != nil {
		edited, err := e.editor.EditMessage(ctx, message)
		if err != nil {
			return changeset.Draft{}, fmt.Errorf("edit message: %w", err)
		}
		message = edited
	}

	user := opts.User
	if user == "" {
		user = old.User
	}

	extra := make(map[string]string, len(old.Extra)+len(opts.Extra)+1)
	for k, v := range old.Extra {
		extra[k] = v
	}
	for k, v := range opts.Extra {
		extra[k] = v
	}
	extra["branch"] = branch

	return changeset.Draft{
		Message: message,
		User:    user,
		Date:    opts.Date,
		Extra:   extra,
	}, nil
}

// callOverrides builds the scoped configuration overrides for one
// engine call: the legacy revnum deprecation warning is silenced (the
// engine's internal queries contain no user-provided revsets), and the
// attribution capability, when registered, forces the provenance
// operation tag.
func (e *Engine) callOverrides(op string) config.Overrides {
	ov := config.Overrides{config.KeyLegacyRevnumWarning: ""}
	if e.attrib != nil {
		ov[config.AttributionKey(e.attrib)] = op
	}
	return ov
}
