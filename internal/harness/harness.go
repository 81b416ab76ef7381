package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/strata-vcs/strata/internal/changeset"
	"github.com/strata-vcs/strata/internal/rebase"
	"github.com/strata-vcs/strata/internal/restack"
	"github.com/strata-vcs/strata/internal/revset"
	"github.com/strata-vcs/strata/internal/rewrite"
	"github.com/strata-vcs/strata/internal/store"
	"github.com/strata-vcs/strata/internal/testutil"
)

// Result holds the final state after a scenario run.
type Result struct {
	// Store stays open until Close so assertions and rendering can
	// read the final history.
	Store *store.Store

	// Labels maps scenario labels to the changeset they currently
	// name: amending "a" rebinds the label to the replacement.
	Labels map[string]changeset.ID

	// Errors collects assertion failures.
	Errors []error

	dir string
}

// Passed reports whether every assertion held.
func (r *Result) Passed() bool { return len(r.Errors) == 0 }

// Close releases the scenario's store and scratch directory.
func (r *Result) Close() error {
	err := r.Store.Close()
	os.RemoveAll(r.dir)
	return err
}

// Run executes a scenario against a fresh store with a deterministic
// clock and evaluates its assertions. Step errors abort the run;
// assertion failures are collected into the result.
func Run(scenario *Scenario) (*Result, error) {
	dir, err := os.MkdirTemp("", "strata-harness-*")
	if err != nil {
		return nil, fmt.Errorf("harness: %w", err)
	}

	clock := testutil.NewDeterministicClock()
	st, err := store.Open(dir, store.WithNow(clock.Now))
	if err != nil {
		os.RemoveAll(dir)
		return nil, fmt.Errorf("harness: open store: %w", err)
	}

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	eval := revset.NewEvaluator(st)
	engine := rewrite.New(st, rewrite.WithLogger(log))
	rebaser := rebase.New(st, rebase.WithLogger(log))
	restacker := restack.New(eval, rebaser, restack.WithLogger(log))

	result := &Result{
		Store:  st,
		Labels: map[string]changeset.ID{},
		dir:    dir,
	}

	h := &runner{
		store:     st,
		eval:      eval,
		engine:    engine,
		rebaser:   rebaser,
		restacker: restacker,
		labels:    result.Labels,
	}

	ctx := context.Background()
	for i, step := range scenario.Steps {
		err := h.execute(ctx, step)
		if step.ExpectError {
			if err == nil {
				result.Close()
				return nil, fmt.Errorf("harness: step %d (%s) should have failed", i, step.Op)
			}
			continue
		}
		if err != nil {
			result.Close()
			return nil, fmt.Errorf("harness: step %d (%s): %w", i, step.Op, err)
		}
	}

	result.Errors = evaluateAssertions(ctx, st, result.Labels, scenario.Assertions)
	return result, nil
}

type runner struct {
	store     *store.Store
	eval      *revset.Evaluator
	engine    *rewrite.Engine
	rebaser   *rebase.Rebaser
	restacker *restack.Coordinator
	labels    map[string]changeset.ID
}

func (h *runner) resolve(label string) (changeset.ID, error) {
	id, ok := h.labels[label]
	if !ok {
		return "", fmt.Errorf("unknown label %q", label)
	}
	return id, nil
}

func (h *runner) execute(ctx context.Context, step Step) error {
	switch step.Op {
	case "commit":
		return h.commit(ctx, step)
	case "amend":
		return h.amend(ctx, step)
	case "metaedit":
		return h.metaedit(ctx, step)
	case "rebase":
		return h.rebase(ctx, step)
	case "restack":
		return h.restack(ctx, step)
	case "bookmark":
		return h.bookmark(ctx, step)
	default:
		return fmt.Errorf("unknown op %q", step.Op)
	}
}

func (h *runner) commit(ctx context.Context, step Step) error {
	var parents []changeset.ID
	parentManifest := changeset.Manifest{}
	if step.Parent != "" {
		parent, err := h.resolve(step.Parent)
		if err != nil {
			return err
		}
		parents = []changeset.ID{parent}
		parentManifest, err = h.store.ManifestAt(ctx, parent)
		if err != nil {
			return err
		}
	}

	files, err := changeset.Diff(parentManifest, testutil.SnapshotOf(step.Files))
	if err != nil {
		return err
	}
	draft := changeset.Draft{
		Parents: parents,
		Message: step.Message,
		User:    testutil.TestUser,
		Extra:   map[string]string{"branch": "default"},
		Files:   files,
	}

	lock, err := h.store.Lock()
	if err != nil {
		return err
	}
	defer lock.Release()
	tx, err := h.store.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	id, _, err := h.store.Commit(ctx, tx, draft)
	if err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	h.labels[step.Label] = id
	return nil
}

func (h *runner) amend(ctx context.Context, step Step) error {
	old, err := h.resolve(step.Target)
	if err != nil {
		return err
	}
	oldCS, err := h.store.Lookup(ctx, old)
	if err != nil {
		return err
	}
	newID, _, err := h.engine.Rewrite(ctx, old, nil, testutil.SnapshotOf(step.Files), oldCS.Parents,
		rewrite.CommitOpts{Message: step.Message}, rewrite.DefaultRewriteOp)
	if err != nil {
		return err
	}
	h.labels[step.Target] = newID
	return nil
}

func (h *runner) metaedit(ctx context.Context, step Step) error {
	old, err := h.resolve(step.Target)
	if err != nil {
		return err
	}
	oldCS, err := h.store.Lookup(ctx, old)
	if err != nil {
		return err
	}
	newID, _, err := h.engine.MetaRewrite(ctx, old, oldCS.Parents,
		rewrite.CommitOpts{Message: step.Message})
	if err != nil {
		return err
	}
	h.labels[step.Target] = newID
	return nil
}

func (h *runner) rebase(ctx context.Context, step Step) error {
	dest, err := h.resolve(step.Dest)
	if err != nil {
		return err
	}
	set := revset.NewSet()
	moved := make([]string, 0, len(step.Revs))
	for _, label := range step.Revs {
		id, err := h.resolve(label)
		if err != nil {
			return err
		}
		set.Add(id)
		moved = append(moved, label)
	}

	if err := h.rebaser.Rebase(ctx, restack.RebaseRequest{
		Revs:       set,
		Dest:       dest,
		NoConflict: step.NoConflict,
	}); err != nil {
		return err
	}
	return h.relabel(ctx, moved)
}

func (h *runner) restack(ctx context.Context, step Step) error {
	id, err := h.resolve(step.Target)
	if err != nil {
		return err
	}
	if err := h.restacker.RestackDescendants(ctx, id, restack.Options{
		ChildrenOnly: step.ChildrenOnly,
		NoConflict:   step.NoConflict,
	}); err != nil {
		return err
	}
	var all []string
	for label := range h.labels {
		all = append(all, label)
	}
	return h.relabel(ctx, all)
}

func (h *runner) bookmark(ctx context.Context, step Step) error {
	target, err := h.resolve(step.Target)
	if err != nil {
		return err
	}
	lock, err := h.store.Lock()
	if err != nil {
		return err
	}
	defer lock.Release()
	tx, err := h.store.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := h.store.ApplyBookmarkChanges(ctx, tx, []changeset.BookmarkChange{
		{Name: step.Name, Target: target},
	}); err != nil {
		return err
	}
	return tx.Commit()
}

// relabel moves each named label to the latest non-obsolete successor
// of the changeset it points at, so labels track rewrites the way a
// user following history would.
func (h *runner) relabel(ctx context.Context, labels []string) error {
	for _, label := range labels {
		id := h.labels[label]
		latest, err := restack.Latest(ctx, h.eval, id)
		if err != nil {
			return err
		}
		h.labels[label] = latest
	}
	return nil
}
