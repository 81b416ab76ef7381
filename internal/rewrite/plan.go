package rewrite

import (
	"fmt"
	"slices"
	"strings"

	"github.com/strata-vcs/strata/internal/changeset"
)

// Plan is the minimal file set a rewrite must record: every path that
// genuinely changed between base and head, with content taken from
// head, plus deletions for paths gone from head. No-op changes (same
// content and flags in both snapshots, or absent from both) are
// pruned.
type Plan struct {
	Files  map[string]changeset.FileChange
	Branch string
}

// PlanContent computes the rewrite plan for old with the given updates
// folded in. head is the desired final content, base the content to
// diff against (the old changeset's single parent).
//
// The candidate path set is the union of paths touched by old and by
// every update. A candidate survives pruning when head and base
// disagree about it; content and flags for survivors come strictly
// from head, with copy metadata derived between base and head. A path
// present in head but absent from base is always a genuine addition.
func PlanContent(old *changeset.Changeset, updates []*changeset.Changeset, head, base changeset.Snapshot) (*Plan, error) {
	paths := make(map[string]bool, len(old.Files))
	for p := range old.Files {
		paths[p] = true
	}
	for _, u := range updates {
		for p := range u.Files {
			paths[p] = true
		}
	}

	headMf, err := head.Manifest()
	if err != nil {
		return nil, fmt.Errorf("plan: head manifest: %w", err)
	}
	baseMf, err := base.Manifest()
	if err != nil {
		return nil, fmt.Errorf("plan: base manifest: %w", err)
	}

	// Recompute copies between base and head; a round trip a -> b -> a
	// is never recorded as a copy.
	copied, err := changeset.PathCopies(base, head)
	if err != nil {
		return nil, fmt.Errorf("plan: %w", err)
	}

	files := make(map[string]changeset.FileChange)
	for path := range paths {
		headState, inHead := headMf[path]
		baseState, inBase := baseMf[path]

		if inHead && inBase && changeset.SameState(headState, baseState) {
			continue // no-op, pruned
		}
		if !inHead && !inBase {
			continue // absent from both, nothing to record
		}

		if !inHead {
			files[path] = changeset.FileChange{Deleted: true}
			continue
		}
		files[path] = changeset.FileChange{
			Content:  headState.Content,
			Flags:    headState.Flags,
			CopyFrom: copied[path],
		}
	}

	return &Plan{Files: files, Branch: head.Branch()}, nil
}

// Render produces a deterministic one-line-per-path description of the
// plan, suitable for golden comparisons and verbose logging. Status
// letters: A added (absent from base), M modified, R removed.
func (p *Plan) Render(base changeset.Snapshot) (string, error) {
	baseMf, err := base.Manifest()
	if err != nil {
		return "", fmt.Errorf("render plan: %w", err)
	}

	paths := make([]string, 0, len(p.Files))
	for path := range p.Files {
		paths = append(paths, path)
	}
	slices.Sort(paths)

	var b strings.Builder
	fmt.Fprintf(&b, "branch %s\n", p.Branch)
	for _, path := range paths {
		fc := p.Files[path]
		_, inBase := baseMf[path]
		switch {
		case fc.Deleted:
			fmt.Fprintf(&b, "R %s\n", path)
		case !inBase && fc.CopyFrom != "":
			fmt.Fprintf(&b, "A %s (copied from %s)\n", path, fc.CopyFrom)
		case !inBase:
			fmt.Fprintf(&b, "A %s\n", path)
		case fc.Flags != "":
			fmt.Fprintf(&b, "M %s (%s)\n", path, fc.Flags)
		default:
			fmt.Fprintf(&b, "M %s\n", path)
		}
	}
	return b.String(), nil
}
