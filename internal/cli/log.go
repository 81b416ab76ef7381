package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/strata-vcs/strata/internal/restack"
	"github.com/strata-vcs/strata/internal/revset"
)

// LogEntry is one changeset in log output.
type LogEntry struct {
	ID        string   `json:"id"`
	Parents   []string `json:"parents"`
	Message   string   `json:"message"`
	User      string   `json:"user"`
	Date      int64    `json:"date"`
	Branch    string   `json:"branch"`
	Bookmarks []string `json:"bookmarks,omitempty"`
	Obsolete  bool     `json:"obsolete,omitempty"`
	// Unstable marks a changeset built on an obsolete ancestor; a
	// restack would move it.
	Unstable bool `json:"unstable,omitempty"`
}

// NewLogCommand creates the log command.
func NewLogCommand(rootOpts *RootOptions) *cobra.Command {
	var all bool
	var limit int

	cmd := &cobra.Command{
		Use:   "log",
		Short: "Show changesets, newest first",
		Long: `Show visible changesets, newest first. With --all, obsolete
changesets (those replaced by a rewrite) are shown too.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLog(rootOpts, all, limit, cmd)
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "include obsolete changesets")
	cmd.Flags().IntVarP(&limit, "limit", "l", 0, "stop after this many entries")
	return cmd
}

func runLog(opts *RootOptions, all bool, limit int, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)
	ctx := cmd.Context()

	repo, err := OpenRepo(".", opts)
	if err != nil {
		return err
	}
	defer repo.Close()

	visible, err := repo.Store.AllVisible(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "list changesets", err)
	}

	obsoleteIDs, err := repo.Store.ObsoleteIDs(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "list obsolete", err)
	}
	obsolete := map[string]bool{}
	for _, id := range obsoleteIDs {
		obsolete[string(id)] = true
	}
	if all {
		visible = append(visible, obsoleteIDs...)
	}

	// Changesets still sitting on an obsolete ancestor need a restack.
	unstable := map[string]bool{}
	if len(obsoleteIDs) > 0 {
		moved, err := restack.NewUnstable(ctx, repo.Eval, revset.NewSet(obsoleteIDs...))
		if err != nil {
			return WrapExitError(ExitCommandError, "compute unstable", err)
		}
		for _, id := range moved.IDs() {
			unstable[string(id)] = true
		}
	}

	var entries []LogEntry
	// AllVisible returns insertion order; newest first for display.
	for i := len(visible) - 1; i >= 0; i-- {
		id := visible[i]
		cs, err := repo.Store.Lookup(ctx, id)
		if err != nil {
			return WrapExitError(ExitCommandError, "read changeset", err)
		}
		bookmarks, err := repo.Store.BookmarksAt(ctx, id)
		if err != nil {
			return WrapExitError(ExitCommandError, "read bookmarks", err)
		}
		parents := make([]string, len(cs.Parents))
		for j, p := range cs.Parents {
			parents[j] = string(p)
		}
		entries = append(entries, LogEntry{
			ID:        string(id),
			Parents:   parents,
			Message:   cs.Message,
			User:      cs.User,
			Date:      cs.Date,
			Branch:    cs.Branch(),
			Bookmarks: bookmarks,
			Obsolete:  obsolete[string(id)],
			Unstable:  unstable[string(id)],
		})
		if limit > 0 && len(entries) >= limit {
			break
		}
	}

	if formatter.Format == "json" {
		return formatter.Success(entries)
	}

	for _, entry := range entries {
		marker := ""
		if entry.Obsolete {
			marker = " (obsolete)"
		}
		if entry.Unstable {
			marker += " (needs restack)"
		}
		fmt.Fprintf(formatter.Writer, "changeset: %s%s\n", entry.ID[:12], marker)
		if len(entry.Bookmarks) > 0 {
			fmt.Fprintf(formatter.Writer, "bookmarks: %s\n", strings.Join(entry.Bookmarks, " "))
		}
		fmt.Fprintf(formatter.Writer, "user:      %s\n", entry.User)
		fmt.Fprintf(formatter.Writer, "date:      %s\n", time.Unix(entry.Date, 0).UTC().Format(time.RFC3339))
		fmt.Fprintf(formatter.Writer, "summary:   %s\n\n", firstLine(entry.Message))
	}
	return nil
}

func firstLine(s string) string {
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		return s[:idx]
	}
	return s
}
