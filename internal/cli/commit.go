package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/strata-vcs/strata/internal/changeset"
	"github.com/strata-vcs/strata/internal/store"
)

// CommitResult is the JSON payload for commit, amend, and metaedit.
type CommitResult struct {
	ID      string `json:"id"`
	Created bool   `json:"created"`
}

// NewCommitCommand creates the commit command.
func NewCommitCommand(rootOpts *RootOptions) *cobra.Command {
	var message string
	var user string
	var branch string

	cmd := &cobra.Command{
		Use:   "commit",
		Short: "Record the working copy as a new changeset",
		Long: `Record the working copy as a new changeset on top of the checked
out changeset. Only files that differ from the parent are stored.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCommit(rootOpts, message, user, branch, cmd)
		},
	}
	cmd.Flags().StringVarP(&message, "message", "m", "", "commit message")
	cmd.Flags().StringVarP(&user, "user", "u", "", "author (overrides config)")
	cmd.Flags().StringVar(&branch, "branch", "", "named branch (defaults to the parent's)")
	cmd.MarkFlagRequired("message")
	return cmd
}

func runCommit(opts *RootOptions, message, user, branch string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)
	ctx := cmd.Context()

	repo, err := OpenRepo(".", opts)
	if err != nil {
		return err
	}
	defer repo.Close()

	parent, err := repo.CheckedOut(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "resolve parent", err)
	}

	if user == "" {
		user = repo.Config.User
	}
	if user == "" {
		return NewExitError(ExitCommandError, "no user configured: set user in config.yaml or pass --user")
	}

	parentManifest := changeset.Manifest{}
	parentBranch := repo.Config.DefaultBranch
	if !parent.IsNil() {
		parentManifest, err = repo.Store.ManifestAt(ctx, parent)
		if err != nil {
			return WrapExitError(ExitCommandError, "read parent manifest", err)
		}
		parentCS, err := repo.Store.Lookup(ctx, parent)
		if err != nil {
			return WrapExitError(ExitCommandError, "read parent", err)
		}
		parentBranch = parentCS.Branch()
	}
	if branch == "" {
		branch = parentBranch
	}

	snap, err := repo.WorkingSnapshot(branch)
	if err != nil {
		return WrapExitError(ExitCommandError, "snapshot working copy", err)
	}
	files, err := changeset.Diff(parentManifest, snap)
	if err != nil {
		return WrapExitError(ExitCommandError, "diff working copy", err)
	}
	if len(files) == 0 {
		return NewExitError(ExitFailure, "nothing changed")
	}

	var parents []changeset.ID
	if !parent.IsNil() {
		parents = []changeset.ID{parent}
	}
	draft := changeset.Draft{
		Parents: parents,
		Message: message,
		User:    user,
		Extra:   map[string]string{"branch": branch},
		Files:   files,
	}

	id, created, err := commitDraft(ctx, repo.Store, draft)
	if err != nil {
		return WrapExitError(ExitFailure, "commit", err)
	}
	if err := repo.SetCheckedOut(id); err != nil {
		return WrapExitError(ExitCommandError, "update checkout", err)
	}

	if formatter.Format == "json" {
		return formatter.Success(CommitResult{ID: string(id), Created: created})
	}
	fmt.Fprintf(formatter.Writer, "committed %s\n", id.Short())
	return nil
}

// commitDraft writes a draft under the full lock and transaction
// discipline.
func commitDraft(ctx context.Context, st *store.Store, draft changeset.Draft) (changeset.ID, bool, error) {
	wlock, err := st.WLock()
	if err != nil {
		return "", false, err
	}
	defer wlock.Release()
	lock, err := st.Lock()
	if err != nil {
		return "", false, err
	}
	defer lock.Release()

	tx, err := st.Begin(ctx)
	if err != nil {
		return "", false, err
	}
	defer tx.Rollback()

	id, created, err := st.Commit(ctx, tx, draft)
	if err != nil {
		return "", false, err
	}
	if err := tx.Commit(); err != nil {
		return "", false, err
	}
	return id, created, nil
}
