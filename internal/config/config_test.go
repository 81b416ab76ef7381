package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, "default", cfg.DefaultBranch)
	assert.Equal(t, "mutation", cfg.Attribution.Section)
	assert.Equal(t, "operation", cfg.Attribution.OperationKey)
	assert.False(t, cfg.Attribution.Enabled)
}

func TestParseValid(t *testing.T) {
	cfg, err := Parse([]byte(`
user: alice <alice@example.com>
editor: nano
default_branch: main
restack:
  no_conflict: true
  max_predecessor_depth: 3
attribution:
  enabled: true
`))
	require.NoError(t, err)
	assert.Equal(t, "alice <alice@example.com>", cfg.User)
	assert.Equal(t, "nano", cfg.Editor)
	assert.Equal(t, "main", cfg.DefaultBranch)
	assert.True(t, cfg.Restack.NoConflict)
	assert.Equal(t, 3, cfg.Restack.MaxPredecessorDepth)
	assert.True(t, cfg.Attribution.Enabled)
	// Defaults survive a partial file.
	assert.Equal(t, "mutation", cfg.Attribution.Section)
}

func TestParseRejectsUnknownKey(t *testing.T) {
	_, err := Parse([]byte("user: alice\nshenanigans: true\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid config")
}

func TestParseRejectsWrongType(t *testing.T) {
	_, err := Parse([]byte("restack:\n  no_conflict: sometimes\n"))
	require.Error(t, err)
}

func TestParseRejectsNegativeDepth(t *testing.T) {
	_, err := Parse([]byte("restack:\n  max_predecessor_depth: -1\n"))
	require.Error(t, err)
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "default", cfg.DefaultBranch)
}

func TestLoadReadsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ConfigFileName)
	require.NoError(t, os.WriteFile(path, []byte("user: bob\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "bob", cfg.User)
}

func TestOverrideScopedRestore(t *testing.T) {
	cfg := Default()

	restore := cfg.Override(Overrides{"some.key": "outer"})
	v, ok := cfg.Value("some.key")
	require.True(t, ok)
	assert.Equal(t, "outer", v)

	// Nested override shadows and restores the outer value.
	inner := cfg.Override(Overrides{"some.key": "inner"})
	v, _ = cfg.Value("some.key")
	assert.Equal(t, "inner", v)
	inner()
	v, _ = cfg.Value("some.key")
	assert.Equal(t, "outer", v)

	restore()
	_, ok = cfg.Value("some.key")
	assert.False(t, ok)
}

func TestAttributionCapability(t *testing.T) {
	cfg := Default()
	assert.Nil(t, cfg.AttributionCapability(), "disabled attribution yields no capability")

	cfg.Attribution.Enabled = true
	capability := cfg.AttributionCapability()
	require.NotNil(t, capability)
	assert.Equal(t, "mutation", capability.Section())
	assert.Equal(t, "operation", capability.OperationKey())
	assert.Equal(t, "mutation.operation", AttributionKey(capability))
}
