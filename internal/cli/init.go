package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/strata-vcs/strata/internal/config"
	"github.com/strata-vcs/strata/internal/store"
)

// InitResult is the JSON payload for init.
type InitResult struct {
	Root string `json:"root"`
}

// NewInitCommand creates the init command.
func NewInitCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init [dir]",
		Short: "Create a new repository",
		Long: `Create a new repository in the given directory (default: the
current directory), with its store and a default configuration.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) == 1 {
				dir = args[0]
			}
			return runInit(rootOpts, dir, cmd)
		},
	}
	return cmd
}

func runInit(opts *RootOptions, dir string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)

	root, err := filepath.Abs(dir)
	if err != nil {
		return WrapExitError(ExitCommandError, "resolve directory", err)
	}
	strataDir := filepath.Join(root, StrataDirName)
	if _, err := os.Stat(strataDir); err == nil {
		return NewExitError(ExitCommandError, fmt.Sprintf("repository already exists at %s", root))
	}

	st, err := store.Open(strataDir)
	if err != nil {
		return WrapExitError(ExitCommandError, "create store", err)
	}
	defer st.Close()

	configPath := filepath.Join(strataDir, config.ConfigFileName)
	defaultConfig := "# strata repository configuration\n# user: Your Name <you@example.com>\n# default_branch: default\n"
	if err := os.WriteFile(configPath, []byte(defaultConfig), 0o644); err != nil {
		return WrapExitError(ExitCommandError, "write config", err)
	}

	formatter.VerboseLog("created %s", strataDir)
	if formatter.Format == "json" {
		return formatter.Success(InitResult{Root: root})
	}
	fmt.Fprintf(formatter.Writer, "initialized repository at %s\n", root)
	return nil
}
