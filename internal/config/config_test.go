package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prestonmccrary/merkle-log-logic/internal/config"
)

func TestDefault(t *testing.T) {
	cfg := config.Default()
	assert.False(t, cfg.EnableCompaction)
	assert.Equal(t, "sha256", cfg.HashAlgorithm)
	assert.Zero(t, cfg.MaxDeltaEntries)
}

func TestLoadOverridesOnlyMentionedFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`enable_compaction = true`), 0o644))

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.True(t, cfg.EnableCompaction)
	assert.Equal(t, "sha256", cfg.HashAlgorithm, "unmentioned field keeps Default()'s value")
}

func TestLoadMissingFile(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "missing.toml"))
	require.Error(t, err)
}
