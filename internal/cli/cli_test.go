package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strata-vcs/strata/internal/config"
)

// chdir changes into dir for the duration of the test, restoring the
// previous working directory on cleanup.
func chdir(t *testing.T, dir string) {
	t.Helper()
	old, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(old) })
}

// runCLI executes the root command with the given arguments against
// the current directory, capturing stdout.
func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

// initRepo initializes a repository in a fresh temp directory, chdirs
// into it, and configures a commit user.
func initRepo(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	chdir(t, dir)

	_, err := runCLI(t, "init")
	require.NoError(t, err)

	configPath := filepath.Join(dir, StrataDirName, config.ConfigFileName)
	require.NoError(t, os.WriteFile(configPath, []byte("user: test <test@example.com>\n"), 0o644))
	return dir
}

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func TestInitCreatesRepository(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)

	out, err := runCLI(t, "init")
	require.NoError(t, err)
	assert.Contains(t, out, "initialized repository")

	info, err := os.Stat(filepath.Join(dir, StrataDirName))
	require.NoError(t, err)
	assert.True(t, info.IsDir())

	// A second init is refused.
	_, err = runCLI(t, "init")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestCommitAndLog(t *testing.T) {
	dir := initRepo(t)
	writeFile(t, dir, "a.txt", "a")

	out, err := runCLI(t, "commit", "-m", "first")
	require.NoError(t, err)
	assert.Contains(t, out, "committed")

	writeFile(t, dir, "b.txt", "b")
	_, err = runCLI(t, "commit", "-m", "second")
	require.NoError(t, err)

	out, err = runCLI(t, "log")
	require.NoError(t, err)
	assert.Contains(t, out, "first")
	assert.Contains(t, out, "second")
	assert.Contains(t, out, "test <test@example.com>")
}

func TestCommitNothingChanged(t *testing.T) {
	dir := initRepo(t)
	writeFile(t, dir, "a.txt", "a")

	_, err := runCLI(t, "commit", "-m", "first")
	require.NoError(t, err)

	_, err = runCLI(t, "commit", "-m", "again")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, err.Error(), "nothing changed")
}

func TestCommitRequiresUser(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	_, err := runCLI(t, "init")
	require.NoError(t, err)
	writeFile(t, dir, "a.txt", "a")

	_, err = runCLI(t, "commit", "-m", "first")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "no user configured")
}

func TestAmendReplacesChangeset(t *testing.T) {
	dir := initRepo(t)
	writeFile(t, dir, "base.txt", "base")
	_, err := runCLI(t, "commit", "-m", "base")
	require.NoError(t, err)
	writeFile(t, dir, "a.txt", "a")
	_, err = runCLI(t, "commit", "-m", "first")
	require.NoError(t, err)

	writeFile(t, dir, "a.txt", "a amended")
	out, err := runCLI(t, "amend")
	require.NoError(t, err)
	assert.Contains(t, out, "amended")

	// Two visible changesets, the original hidden behind --all.
	out, err = runCLI(t, "log")
	require.NoError(t, err)
	assert.Equal(t, 2, bytes.Count([]byte(out), []byte("changeset:")))

	out, err = runCLI(t, "log", "--all")
	require.NoError(t, err)
	assert.Equal(t, 3, bytes.Count([]byte(out), []byte("changeset:")))
	assert.Contains(t, out, "(obsolete)")
}

func TestAmendWithNewMessage(t *testing.T) {
	dir := initRepo(t)
	writeFile(t, dir, "base.txt", "base")
	_, err := runCLI(t, "commit", "-m", "base")
	require.NoError(t, err)
	writeFile(t, dir, "a.txt", "a")
	_, err = runCLI(t, "commit", "-m", "draft")
	require.NoError(t, err)

	writeFile(t, dir, "a.txt", "final")
	_, err = runCLI(t, "amend", "-m", "finished")
	require.NoError(t, err)

	out, err := runCLI(t, "log")
	require.NoError(t, err)
	assert.Contains(t, out, "finished")
	assert.NotContains(t, out, "draft")
}

func TestAmendRootChangesetRefused(t *testing.T) {
	dir := initRepo(t)
	writeFile(t, dir, "a.txt", "a")
	_, err := runCLI(t, "commit", "-m", "first")
	require.NoError(t, err)

	writeFile(t, dir, "a.txt", "changed")
	_, err = runCLI(t, "amend")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, err.Error(), "cannot amend a root changeset")

	_, err = runCLI(t, "metaedit", "-m", "reworded")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, err.Error(), "cannot metaedit a root changeset")
}

func TestMetaeditRewordsMessage(t *testing.T) {
	dir := initRepo(t)
	writeFile(t, dir, "base.txt", "base")
	_, err := runCLI(t, "commit", "-m", "base")
	require.NoError(t, err)
	writeFile(t, dir, "a.txt", "a")
	_, err = runCLI(t, "commit", "-m", "tpyo")
	require.NoError(t, err)

	_, err = runCLI(t, "metaedit", "-m", "typo")
	require.NoError(t, err)

	out, err := runCLI(t, "log")
	require.NoError(t, err)
	assert.Contains(t, out, "typo")
	assert.NotContains(t, out, "tpyo")
}

func TestLogJSON(t *testing.T) {
	dir := initRepo(t)
	writeFile(t, dir, "a.txt", "a")
	_, err := runCLI(t, "commit", "-m", "first")
	require.NoError(t, err)

	out, err := runCLI(t, "--format", "json", "log")
	require.NoError(t, err)

	var resp struct {
		Status string     `json:"status"`
		Data   []LogEntry `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	require.Len(t, resp.Data, 1)
	assert.Equal(t, "first", resp.Data[0].Message)
	assert.Equal(t, "default", resp.Data[0].Branch)
	assert.Len(t, resp.Data[0].ID, 64)
}

func TestBookmarkLifecycle(t *testing.T) {
	dir := initRepo(t)
	writeFile(t, dir, "base.txt", "base")
	_, err := runCLI(t, "commit", "-m", "base")
	require.NoError(t, err)
	writeFile(t, dir, "a.txt", "a")
	_, err = runCLI(t, "commit", "-m", "first")
	require.NoError(t, err)

	out, err := runCLI(t, "bookmark", "feature")
	require.NoError(t, err)
	assert.Contains(t, out, "feature ->")

	out, err = runCLI(t, "bookmark")
	require.NoError(t, err)
	assert.Contains(t, out, "feature")

	// Bookmarks follow rewrites.
	writeFile(t, dir, "a.txt", "changed")
	_, err = runCLI(t, "amend")
	require.NoError(t, err)

	out, err = runCLI(t, "--format", "json", "log")
	require.NoError(t, err)
	var resp struct {
		Data []LogEntry `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.Len(t, resp.Data, 2)
	assert.Equal(t, []string{"feature"}, resp.Data[0].Bookmarks, "bookmark follows the replacement at the tip")

	out, err = runCLI(t, "bookmark", "feature", "--delete")
	require.NoError(t, err)
	assert.Contains(t, out, "deleted bookmark feature")

	out, err = runCLI(t, "bookmark")
	require.NoError(t, err)
	assert.Contains(t, out, "no bookmarks set")
}

func TestLogMarksUnstableChangesets(t *testing.T) {
	dir := initRepo(t)
	writeFile(t, dir, "base.txt", "base")
	_, err := runCLI(t, "commit", "-m", "base")
	require.NoError(t, err)
	writeFile(t, dir, "mid.txt", "mid")
	_, err = runCLI(t, "commit", "-m", "mid")
	require.NoError(t, err)
	writeFile(t, dir, "top.txt", "top")
	_, err = runCLI(t, "commit", "-m", "top")
	require.NoError(t, err)

	// Move the checkout back to mid and amend it without restacking,
	// stranding top on the obsolete version.
	out, err := runCLI(t, "--format", "json", "log")
	require.NoError(t, err)
	var resp struct {
		Data []LogEntry `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.Len(t, resp.Data, 3)
	midID := resp.Data[1].ID
	require.Equal(t, "mid", resp.Data[1].Message)
	checkoutPath := filepath.Join(dir, StrataDirName, checkoutFileName)
	require.NoError(t, os.WriteFile(checkoutPath, []byte(midID+"\n"), 0o644))

	writeFile(t, dir, "mid.txt", "mid amended")
	_, err = runCLI(t, "amend", "--no-restack")
	require.NoError(t, err)

	out, err = runCLI(t, "log")
	require.NoError(t, err)
	assert.Equal(t, 1, bytes.Count([]byte(out), []byte("(needs restack)")))

	out, err = runCLI(t, "--format", "json", "log")
	require.NoError(t, err)
	resp.Data = nil
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	for _, entry := range resp.Data {
		assert.Equal(t, entry.Message == "top", entry.Unstable)
	}

	// Restacking clears the marker.
	_, err = runCLI(t, "restack")
	require.NoError(t, err)
	out, err = runCLI(t, "log")
	require.NoError(t, err)
	assert.NotContains(t, out, "(needs restack)")
}

func TestNotARepository(t *testing.T) {
	chdir(t, t.TempDir())

	_, err := runCLI(t, "log")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestInvalidFormat(t *testing.T) {
	chdir(t, t.TempDir())

	_, err := runCLI(t, "--format", "xml", "log")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid format")
}

func TestFindRootWalksUp(t *testing.T) {
	dir := initRepo(t)
	nested := filepath.Join(dir, "sub", "deeper")
	require.NoError(t, os.MkdirAll(nested, 0o755))
	writeFile(t, dir, "a.txt", "a")
	_, err := runCLI(t, "commit", "-m", "first")
	require.NoError(t, err)

	chdir(t, nested)
	out, err := runCLI(t, "log")
	require.NoError(t, err)
	assert.Contains(t, out, "first")
}
