package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/strata-vcs/strata/internal/restack"
	"github.com/strata-vcs/strata/internal/rewrite"
)

// NewMetaeditCommand creates the metaedit command.
func NewMetaeditCommand(rootOpts *RootOptions) *cobra.Command {
	var message string
	var user string
	var edit bool
	var noRestack bool

	cmd := &cobra.Command{
		Use:   "metaedit [rev]",
		Short: "Rewrite a changeset's metadata without touching content",
		Long: `Replace a changeset with one carrying new metadata - message,
author - but identical file changes. With no flags the message opens in
the editor. Descendants are restacked onto the replacement.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			rev := "."
			if len(args) == 1 {
				rev = args[0]
			}
			if message == "" && user == "" {
				edit = true
			}
			return runMetaedit(rootOpts, rev, message, user, edit, noRestack, cmd)
		},
	}
	cmd.Flags().StringVarP(&message, "message", "m", "", "new commit message")
	cmd.Flags().StringVarP(&user, "user", "u", "", "new author")
	cmd.Flags().BoolVarP(&edit, "edit", "e", false, "edit the message in $EDITOR")
	cmd.Flags().BoolVar(&noRestack, "no-restack", false, "do not restack descendants")
	return cmd
}

func runMetaedit(opts *RootOptions, rev, message, user string, edit, noRestack bool, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)
	ctx := cmd.Context()

	repo, err := OpenRepo(".", opts)
	if err != nil {
		return err
	}
	defer repo.Close()

	old, err := repo.ResolveRev(ctx, rev)
	if err != nil {
		return WrapExitError(ExitCommandError, "resolve revision", err)
	}
	oldCS, err := repo.Store.Lookup(ctx, old)
	if err != nil {
		return WrapExitError(ExitCommandError, "read changeset", err)
	}
	if len(oldCS.Parents) == 0 {
		return NewExitError(ExitFailure, "cannot metaedit a root changeset")
	}

	newID, created, err := repo.Engine.MetaRewrite(ctx, old, oldCS.Parents,
		rewrite.CommitOpts{Message: message, User: user, Edit: edit})
	if err != nil {
		return rewriteExitError("metaedit", err)
	}
	if !created {
		if formatter.Format == "json" {
			return formatter.Success(CommitResult{ID: string(newID), Created: false})
		}
		fmt.Fprintln(formatter.Writer, "nothing changed")
		return nil
	}

	checkedOut, err := repo.CheckedOut(ctx)
	if err == nil && checkedOut == old {
		if err := repo.SetCheckedOut(newID); err != nil {
			return WrapExitError(ExitCommandError, "update checkout", err)
		}
	}

	if !noRestack {
		restackOpts := restack.Options{
			ChildrenOnly:        repo.Config.Restack.ChildrenOnly,
			NoConflict:          repo.Config.Restack.NoConflict,
			MaxPredecessorDepth: repo.Config.Restack.MaxPredecessorDepth,
		}
		if err := repo.Restacker.RestackDescendants(ctx, newID, restackOpts); err != nil {
			return rewriteExitError("restack", err)
		}
	}

	if formatter.Format == "json" {
		return formatter.Success(CommitResult{ID: string(newID), Created: created})
	}
	fmt.Fprintf(formatter.Writer, "rewrote %s -> %s\n", old.Short(), newID.Short())
	return nil
}
