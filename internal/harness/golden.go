package harness

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/strata-vcs/strata/internal/changeset"
	"github.com/strata-vcs/strata/internal/store"
)

// RenderHistory renders the full history in a stable text form for
// golden comparison. Changesets appear in insertion order named by
// their message, with "@2", "@3" suffixes when a message recurs (each
// rewrite of a changeset keeps its message, so the suffix counts its
// generations).
func RenderHistory(ctx context.Context, st *store.Store) (string, error) {
	ids, err := st.AllIDs(ctx)
	if err != nil {
		return "", err
	}

	obsoleteIDs, err := st.ObsoleteIDs(ctx)
	if err != nil {
		return "", err
	}
	obsolete := make(map[changeset.ID]bool, len(obsoleteIDs))
	for _, id := range obsoleteIDs {
		obsolete[id] = true
	}

	names := make(map[changeset.ID]string, len(ids))
	seen := map[string]int{}
	sets := make([]*changeset.Changeset, 0, len(ids))
	for _, id := range ids {
		cs, err := st.Lookup(ctx, id)
		if err != nil {
			return "", err
		}
		sets = append(sets, cs)
		seen[cs.Message]++
		name := cs.Message
		if n := seen[cs.Message]; n > 1 {
			name = fmt.Sprintf("%s@%d", cs.Message, n)
		}
		names[id] = name
	}

	var b strings.Builder
	for _, cs := range sets {
		fmt.Fprintf(&b, "o %s\n", names[cs.ID])

		if len(cs.Parents) == 0 {
			b.WriteString("  parents: (none)\n")
		} else {
			parents := make([]string, len(cs.Parents))
			for i, p := range cs.Parents {
				parents[i] = names[p]
			}
			fmt.Fprintf(&b, "  parents: %s\n", strings.Join(parents, " "))
		}

		if obsolete[cs.ID] {
			b.WriteString("  obsolete: yes\n")
		}

		bookmarks, err := st.BookmarksAt(ctx, cs.ID)
		if err != nil {
			return "", err
		}
		if len(bookmarks) > 0 {
			fmt.Fprintf(&b, "  bookmarks: %s\n", strings.Join(bookmarks, " "))
		}

		if paths := cs.FilePaths(); len(paths) > 0 {
			sort.Strings(paths)
			fmt.Fprintf(&b, "  files: %s\n", strings.Join(paths, " "))
		}
		b.WriteString("\n")
	}
	return b.String(), nil
}

// RunWithGolden executes a scenario, requires its assertions to hold,
// and compares the rendered history against
// testdata/{scenario.Name}.golden. Regenerate goldens with go test
// -update.
func RunWithGolden(t *testing.T, scenario *Scenario) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		t.Fatalf("scenario %s: %v", scenario.Name, err)
	}
	defer result.Close()

	for _, assertErr := range result.Errors {
		t.Errorf("scenario %s: %v", scenario.Name, assertErr)
	}

	rendered, err := RenderHistory(context.Background(), result.Store)
	if err != nil {
		t.Fatalf("scenario %s: render: %v", scenario.Name, err)
	}

	g := goldie.New(t)
	g.Assert(t, scenario.Name, []byte(rendered))
}
