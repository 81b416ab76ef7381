package harness

import (
	"context"
	"fmt"

	"github.com/strata-vcs/strata/internal/changeset"
	"github.com/strata-vcs/strata/internal/store"
)

// evaluateAssertions checks every assertion against the final history
// and returns one error per failure.
func evaluateAssertions(ctx context.Context, st *store.Store, labels map[string]changeset.ID, assertions []Assertion) []error {
	var errs []error
	for i, a := range assertions {
		if err := evaluateOne(ctx, st, labels, a); err != nil {
			errs = append(errs, fmt.Errorf("assertion %d (%s): %w", i, a.Type, err))
		}
	}
	return errs
}

func evaluateOne(ctx context.Context, st *store.Store, labels map[string]changeset.ID, a Assertion) error {
	resolve := func(label string) (changeset.ID, error) {
		id, ok := labels[label]
		if !ok {
			return "", fmt.Errorf("unknown label %q", label)
		}
		return id, nil
	}

	switch a.Type {
	case AssertVisibleCount:
		visible, err := st.AllVisible(ctx)
		if err != nil {
			return err
		}
		if len(visible) != a.Count {
			return fmt.Errorf("want %d visible changesets, got %d", a.Count, len(visible))
		}
		return nil

	case AssertMutationCount:
		count, err := st.MutationCount(ctx)
		if err != nil {
			return err
		}
		if count != int64(a.Count) {
			return fmt.Errorf("want %d mutation records, got %d", a.Count, count)
		}
		return nil

	case AssertObsolete:
		id, err := resolve(a.Target)
		if err != nil {
			return err
		}
		obsolete, err := st.IsObsolete(ctx, id)
		if err != nil {
			return err
		}
		want := a.Value == "true"
		if obsolete != want {
			return fmt.Errorf("%s: want obsolete=%v, got %v", a.Target, want, obsolete)
		}
		return nil

	case AssertParent:
		id, err := resolve(a.Target)
		if err != nil {
			return err
		}
		wantParent, err := resolve(a.Parent)
		if err != nil {
			return err
		}
		parents, err := st.LookupParents(ctx, id)
		if err != nil {
			return err
		}
		if len(parents) != 1 || parents[0] != wantParent {
			return fmt.Errorf("%s: want parent %s, got %v", a.Target, a.Parent, parents)
		}
		return nil

	case AssertBookmark:
		target, err := st.ResolveBookmark(ctx, a.Name)
		if err != nil {
			return fmt.Errorf("bookmark %q: %w", a.Name, err)
		}
		want, err := resolve(a.Target)
		if err != nil {
			return err
		}
		if target != want {
			return fmt.Errorf("bookmark %q: want %s, got %s", a.Name, a.Target, target.Short())
		}
		return nil

	case AssertMessage:
		id, err := resolve(a.Target)
		if err != nil {
			return err
		}
		cs, err := st.Lookup(ctx, id)
		if err != nil {
			return err
		}
		if cs.Message != a.Value {
			return fmt.Errorf("%s: want message %q, got %q", a.Target, a.Value, cs.Message)
		}
		return nil

	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
}
