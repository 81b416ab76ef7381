package cli

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/strata-vcs/strata/internal/config"
)

// Editor launches an external text editor for commit messages. The
// editor command comes from the repository config, then $EDITOR, then
// vi.
type Editor struct {
	command string
}

// NewEditor picks the editor command for the given config.
func NewEditor(cfg *config.Config) *Editor {
	command := cfg.Editor
	if command == "" {
		command = os.Getenv("EDITOR")
	}
	if command == "" {
		command = "vi"
	}
	return &Editor{command: command}
}

// EditMessage writes message to a temp file, runs the editor on it,
// and returns the edited content. An empty result after editing is an
// error: the commit message cannot be blank.
func (e *Editor) EditMessage(ctx context.Context, message string) (string, error) {
	f, err := os.CreateTemp("", "strata-msg-*.txt")
	if err != nil {
		return "", fmt.Errorf("edit message: %w", err)
	}
	path := f.Name()
	defer os.Remove(path)

	if _, err := f.WriteString(message); err != nil {
		f.Close()
		return "", fmt.Errorf("edit message: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("edit message: %w", err)
	}

	parts := strings.Fields(e.command)
	args := append(parts[1:], path)
	cmd := exec.CommandContext(ctx, parts[0], args...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("editor %q: %w", e.command, err)
	}

	edited, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("edit message: %w", err)
	}
	result := strings.TrimRight(string(edited), "\n")
	if strings.TrimSpace(result) == "" {
		return "", fmt.Errorf("empty commit message")
	}
	return result, nil
}
