package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/strata-vcs/strata/internal/restack"
	"github.com/strata-vcs/strata/internal/revset"
)

// NewRebaseCommand creates the rebase command.
func NewRebaseCommand(rootOpts *RootOptions) *cobra.Command {
	var revs []string
	var dest string
	var noConflict bool

	cmd := &cobra.Command{
		Use:   "rebase -r <rev>... -d <dest>",
		Short: "Move changesets onto a new parent",
		Long: `Move the named changesets and rebuild their parent links on top of
the destination. Like every rewrite this creates replacements and
marks the originals obsolete; nothing is destroyed.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRebase(rootOpts, revs, dest, noConflict, cmd)
		},
	}
	cmd.Flags().StringSliceVarP(&revs, "rev", "r", nil, "changesets to move")
	cmd.Flags().StringVarP(&dest, "dest", "d", "", "destination changeset")
	cmd.MarkFlagRequired("rev")
	cmd.MarkFlagRequired("dest")
	return cmd
}

func runRebase(opts *RootOptions, revs []string, dest string, noConflict bool, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)
	ctx := cmd.Context()

	repo, err := OpenRepo(".", opts)
	if err != nil {
		return err
	}
	defer repo.Close()

	destID, err := repo.ResolveRev(ctx, dest)
	if err != nil {
		return WrapExitError(ExitCommandError, "resolve destination", err)
	}

	set := revset.NewSet()
	for _, rev := range revs {
		id, err := repo.ResolveRev(ctx, rev)
		if err != nil {
			return WrapExitError(ExitCommandError, "resolve revision", err)
		}
		set.Add(id)
	}

	req := restack.RebaseRequest{
		Revs:         set,
		Dest:         destID,
		NoConflict:   noConflict || repo.Config.Restack.NoConflict,
		OperationTag: restack.RebaseOp,
	}
	if err := repo.Rebaser.Rebase(ctx, req); err != nil {
		return WrapExitError(ExitFailure, "rebase", err)
	}

	if formatter.Format == "json" {
		return formatter.Success(map[string]any{"dest": string(destID), "moved": set.Len()})
	}
	fmt.Fprintf(formatter.Writer, "rebased %d changeset(s) onto %s\n", set.Len(), destID.Short())
	return nil
}
