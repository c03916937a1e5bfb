package common

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "curro.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadFromFiles_Defaults(t *testing.T) {
	config, err := LoadFromFiles()
	require.NoError(t, err)

	assert.Equal(t, "development", config.Environment)
	assert.Equal(t, "info", config.Logging.Level)
	assert.Equal(t, 100, config.Scheduler.CompletedCapacity)
	assert.Equal(t, time.Second, config.PollInterval())
}

func TestLoadFromFiles_FileOverridesDefaults(t *testing.T) {
	path := writeConfigFile(t, `
environment = "production"

[queue]
poll_interval = "250ms"

[invoker]
max_parallel = 8

[logging]
level = "debug"
`)

	config, err := LoadFromFiles(path)
	require.NoError(t, err)

	assert.Equal(t, "production", config.Environment)
	assert.Equal(t, 250*time.Millisecond, config.PollInterval())
	assert.Equal(t, 8, config.MaxParallel())
	assert.Equal(t, "debug", config.Logging.Level)
	// Untouched sections keep their defaults
	assert.Equal(t, "./data/curro", config.Storage.Badger.Path)
}

func TestLoadFromFiles_LaterFileWins(t *testing.T) {
	first := writeConfigFile(t, "[logging]\nlevel = \"debug\"\n")
	second := writeConfigFile(t, "[logging]\nlevel = \"warn\"\n")

	config, err := LoadFromFiles(first, second)
	require.NoError(t, err)
	assert.Equal(t, "warn", config.Logging.Level)
}

func TestLoadFromFiles_MissingFile(t *testing.T) {
	_, err := LoadFromFiles("/nonexistent/curro.toml")
	assert.Error(t, err)
}

func TestLoadFromFiles_EnvOverridesFile(t *testing.T) {
	path := writeConfigFile(t, "[logging]\nlevel = \"debug\"\n")

	t.Setenv("CURRO_LOG_LEVEL", "error")
	t.Setenv("CURRO_MAX_PARALLEL", "4")

	config, err := LoadFromFiles(path)
	require.NoError(t, err)
	assert.Equal(t, "error", config.Logging.Level)
	assert.Equal(t, 4, config.MaxParallel())
}

func TestValidate_RejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"negative max_parallel", func(c *Config) { c.Invoker.MaxParallel = -1 }},
		{"negative completed_capacity", func(c *Config) { c.Scheduler.CompletedCapacity = -5 }},
		{"unparseable poll_interval", func(c *Config) { c.Queue.PollInterval = "soon" }},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			config := DefaultConfig()
			tc.mutate(config)
			assert.Error(t, config.Validate())
		})
	}
}

func TestMaxParallel_FallbackIsPositive(t *testing.T) {
	config := DefaultConfig()
	assert.GreaterOrEqual(t, config.MaxParallel(), 1)
}

func TestPollInterval_FallbackOnBadValue(t *testing.T) {
	config := DefaultConfig()
	config.Queue.PollInterval = ""
	assert.Equal(t, time.Second, config.PollInterval())
}
