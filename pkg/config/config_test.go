package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	c := Default()
	assert.Equal(t, 3, c.MaxRetries)
	assert.Equal(t, 100, c.RetryBackoffMS)
	assert.Equal(t, 600, c.CallTimeoutS)
	assert.Equal(t, 1, c.PoolSizePerBackend)
	assert.True(t, c.FailFast)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("PLANRUNNER_MAX_RETRIES", "5")
	t.Setenv("PLANRUNNER_FAIL_FAST", "false")
	c := Load()
	assert.Equal(t, 5, c.MaxRetries)
	assert.False(t, c.FailFast)
	assert.Equal(t, 600, c.CallTimeoutS) // untouched default
}

func TestLoad_MalformedEnvIgnored(t *testing.T) {
	t.Setenv("PLANRUNNER_MAX_RETRIES", "not-a-number")
	c := Load()
	assert.Equal(t, 3, c.MaxRetries)
}

func TestLoadWithOverlay_MissingFileIsNotError(t *testing.T) {
	c, err := LoadWithOverlay(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), c)
}

func TestLoadWithOverlay_AppliesFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "overlay.yaml")
	require.NoError(t, os.WriteFile(path, []byte("max_retries: 7\npool_size_per_backend: 3\n"), 0o644))

	c, err := LoadWithOverlay(path)
	require.NoError(t, err)
	assert.Equal(t, 7, c.MaxRetries)
	assert.Equal(t, 3, c.PoolSizePerBackend)
	assert.Equal(t, 100, c.RetryBackoffMS)
}
