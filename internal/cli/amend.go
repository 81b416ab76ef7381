package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/strata-vcs/strata/internal/restack"
	"github.com/strata-vcs/strata/internal/rewrite"
)

// NewAmendCommand creates the amend command.
func NewAmendCommand(rootOpts *RootOptions) *cobra.Command {
	var message string
	var user string
	var edit bool
	var noRestack bool

	cmd := &cobra.Command{
		Use:   "amend",
		Short: "Fold the working copy into the checked out changeset",
		Long: `Replace the checked out changeset with one carrying the current
working copy content, then restack its descendants onto the
replacement. The old changeset stays in the store, marked obsolete by
the mutation record.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAmend(rootOpts, message, user, edit, noRestack, cmd)
		},
	}
	cmd.Flags().StringVarP(&message, "message", "m", "", "replace the commit message")
	cmd.Flags().StringVarP(&user, "user", "u", "", "replace the author")
	cmd.Flags().BoolVarP(&edit, "edit", "e", false, "edit the message in $EDITOR")
	cmd.Flags().BoolVar(&noRestack, "no-restack", false, "do not restack descendants")
	return cmd
}

func runAmend(opts *RootOptions, message, user string, edit, noRestack bool, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)
	ctx := cmd.Context()

	repo, err := OpenRepo(".", opts)
	if err != nil {
		return err
	}
	defer repo.Close()

	old, err := repo.CheckedOut(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "resolve changeset", err)
	}
	if old.IsNil() {
		return NewExitError(ExitCommandError, "nothing to amend: repository is empty")
	}

	oldCS, err := repo.Store.Lookup(ctx, old)
	if err != nil {
		return WrapExitError(ExitCommandError, "read changeset", err)
	}
	if len(oldCS.Parents) == 0 {
		return NewExitError(ExitFailure, "cannot amend a root changeset")
	}

	head, err := repo.WorkingSnapshot(oldCS.Branch())
	if err != nil {
		return WrapExitError(ExitCommandError, "snapshot working copy", err)
	}

	newID, created, err := repo.Engine.Rewrite(ctx, old, nil, head, oldCS.Parents,
		rewrite.CommitOpts{Message: message, User: user, Edit: edit},
		rewrite.DefaultRewriteOp)
	if err != nil {
		return rewriteExitError("amend", err)
	}
	if err := repo.SetCheckedOut(newID); err != nil {
		return WrapExitError(ExitCommandError, "update checkout", err)
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
	fmt.Fprintf(formatter.Writer, "amended %s -> %s\n", old.Short(), newID.Short())
	return nil
}

// rewriteExitError maps engine errors onto exit codes: unsupported
// shapes and conflicts are operation failures, everything else keeps
// its message.
func rewriteExitError(what string, err error) error {
	if rewrite.IsUnsupportedShape(err) || rewrite.IsDelegationFailed(err) {
		return WrapExitError(ExitFailure, what, err)
	}
	if rewrite.IsLookupFailed(err) {
		return WrapExitError(ExitCommandError, what, err)
	}
	return WrapExitError(ExitFailure, what, err)
}
