package restack

import (
	"context"

	"github.com/strata-vcs/strata/internal/changeset"
	"github.com/strata-vcs/strata/internal/revset"
)

// Latest finds the latest visible version of a changeset: its most
// recent non-obsolete successor, or the changeset itself when it has
// none.
func Latest(ctx context.Context, eval *revset.Evaluator, rev changeset.ID) (changeset.ID, error) {
	successors, err := eval.Evaluate(ctx, "successors(%s) - obsolete()", rev)
	if err != nil {
		return "", err
	}
	if latest, ok := successors.Last(); ok {
		return latest, nil
	}
	return rev, nil
}

// NewUnstable returns the descendants of revs that are not themselves
// members of revs: the changesets a restack would need to move.
func NewUnstable(ctx context.Context, eval *revset.Evaluator, revs *revset.Set) (*revset.Set, error) {
	return eval.Evaluate(ctx, "descendants(%ls) - %ls", revs, revs)
}
