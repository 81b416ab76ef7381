package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/strata-vcs/strata/internal/restack"
)

// NewRestackCommand creates the restack command.
func NewRestackCommand(rootOpts *RootOptions) *cobra.Command {
	var childrenOnly bool
	var noConflict bool

	cmd := &cobra.Command{
		Use:   "restack [rev]",
		Short: "Rebase descendants of a changeset's predecessors onto it",
		Long: `Stabilize history after a rewrite: every visible descendant of the
changeset's historical predecessors is rebased onto the changeset
itself. With no argument the checked out changeset is used. Doing
nothing is not an error: a changeset with no stranded descendants is
left alone.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			rev := "."
			if len(args) == 1 {
				rev = args[0]
			}
			return runRestack(rootOpts, rev, childrenOnly, noConflict, cmd)
		},
	}
	cmd.Flags().BoolVar(&childrenOnly, "children-only", false, "restack direct children only")
	cmd.Flags().BoolVar(&noConflict, "no-conflict", false, "fail instead of moving diverged files")
	return cmd
}

func runRestack(opts *RootOptions, rev string, childrenOnly, noConflict bool, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)
	ctx := cmd.Context()

	repo, err := OpenRepo(".", opts)
	if err != nil {
		return err
	}
	defer repo.Close()

	id, err := repo.ResolveRev(ctx, rev)
	if err != nil {
		return WrapExitError(ExitCommandError, "resolve revision", err)
	}

	restackOpts := restack.Options{
		ChildrenOnly:        childrenOnly || repo.Config.Restack.ChildrenOnly,
		NoConflict:          noConflict || repo.Config.Restack.NoConflict,
		MaxPredecessorDepth: repo.Config.Restack.MaxPredecessorDepth,
	}
	if err := repo.Restacker.RestackDescendants(ctx, id, restackOpts); err != nil {
		return rewriteExitError("restack", err)
	}

	if formatter.Format == "json" {
		return formatter.Success(map[string]string{"rev": string(id)})
	}
	fmt.Fprintf(formatter.Writer, "restacked onto %s\n", id.Short())
	return nil
}
