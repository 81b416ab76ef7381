package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/strata-vcs/strata/internal/changeset"
	"github.com/strata-vcs/strata/internal/store"
)

// BookmarkEntry is one bookmark in list output.
type BookmarkEntry struct {
	Name   string `json:"name"`
	Target string `json:"target"`
}

// NewBookmarkCommand creates the bookmark command.
func NewBookmarkCommand(rootOpts *RootOptions) *cobra.Command {
	var rev string
	var remove bool

	cmd := &cobra.Command{
		Use:   "bookmark [name]",
		Short: "List, set, or delete bookmarks",
		Long: `With no argument, list all bookmarks. With a name, bind it to the
given revision (default: the checked out changeset). Bookmarks follow
rewrites automatically: amending a bookmarked changeset moves the
bookmark to the replacement.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			name := ""
			if len(args) == 1 {
				name = args[0]
			}
			return runBookmark(rootOpts, name, rev, remove, cmd)
		},
	}
	cmd.Flags().StringVarP(&rev, "rev", "r", ".", "revision to bind the bookmark to")
	cmd.Flags().BoolVarP(&remove, "delete", "d", false, "delete the bookmark")
	return cmd
}

func runBookmark(opts *RootOptions, name, rev string, remove bool, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)
	ctx := cmd.Context()

	repo, err := OpenRepo(".", opts)
	if err != nil {
		return err
	}
	defer repo.Close()

	if name == "" {
		if remove {
			return NewExitError(ExitCommandError, "delete needs a bookmark name")
		}
		return listBookmarks(ctx, repo, formatter)
	}

	if remove {
		if err := bookmarkWrite(ctx, repo, func(tx *store.Tx) error {
			return repo.Store.DeleteBookmark(ctx, tx, name)
		}); err != nil {
			return WrapExitError(ExitCommandError, "delete bookmark", err)
		}
		if formatter.Format == "json" {
			return formatter.Success(map[string]string{"deleted": name})
		}
		fmt.Fprintf(formatter.Writer, "deleted bookmark %s\n", name)
		return nil
	}

	target, err := repo.ResolveRev(ctx, rev)
	if err != nil {
		return WrapExitError(ExitCommandError, "resolve revision", err)
	}
	if err := bookmarkWrite(ctx, repo, func(tx *store.Tx) error {
		return repo.Store.ApplyBookmarkChanges(ctx, tx, []changeset.BookmarkChange{
			{Name: name, Target: target},
		})
	}); err != nil {
		return WrapExitError(ExitCommandError, "set bookmark", err)
	}

	if formatter.Format == "json" {
		return formatter.Success(BookmarkEntry{Name: name, Target: string(target)})
	}
	fmt.Fprintf(formatter.Writer, "%s -> %s\n", name, target.Short())
	return nil
}

// bookmarkWrite runs fn inside the store lock and a transaction.
func bookmarkWrite(ctx context.Context, repo *Repo, fn func(tx *store.Tx) error) error {
	lock, err := repo.Store.Lock()
	if err != nil {
		return err
	}
	defer lock.Release()

	tx, err := repo.Store.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

func listBookmarks(ctx context.Context, repo *Repo, formatter *OutputFormatter) error {
	bookmarks, err := repo.Store.Bookmarks(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "list bookmarks", err)
	}

	if formatter.Format == "json" {
		entries := make([]BookmarkEntry, 0, len(bookmarks))
		for _, b := range bookmarks {
			entries = append(entries, BookmarkEntry{Name: b.Name, Target: string(b.Target)})
		}
		return formatter.Success(entries)
	}
	if len(bookmarks) == 0 {
		fmt.Fprintln(formatter.Writer, "no bookmarks set")
		return nil
	}
	for _, b := range bookmarks {
		fmt.Fprintf(formatter.Writer, "%-20s %s\n", b.Name, b.Target.Short())
	}
	return nil
}
