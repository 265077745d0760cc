package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyEnv(t *testing.T) {
	t.Setenv(EnvListen, "0.0.0.0:8181")
	t.Setenv(EnvTimezone, "America/New_York")
	t.Setenv(EnvWeekStart, " SUNDAY ")
	t.Setenv(EnvHorizonDays, "not-a-number")
	t.Setenv(EnvLogFormat, "")

	cfg := DefaultConfig()
	applied := cfg.ApplyEnv()

	assert.ElementsMatch(t, []string{EnvListen, EnvTimezone, EnvWeekStart}, applied)
	assert.Equal(t, "0.0.0.0:8181", cfg.Listen)
	assert.Equal(t, "America/New_York", cfg.Timezone)
	assert.Equal(t, "sunday", cfg.WeekStart)
	assert.Equal(t, defaultHorizonDays, cfg.HorizonDays)
	assert.Equal(t, "text", cfg.LogFormat)
}

func TestLoadEnvFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte("ROBCAL_LOG_LEVEL=debug\nROBCAL_REFRESH=\"0 */2 * * *\"\n"), 0o600))

	// Variables already in the environment win over the file.
	t.Setenv(EnvLogLevel, "warn")
	t.Setenv(EnvRefresh, "")
	require.NoError(t, os.Unsetenv(EnvRefresh))

	require.NoError(t, LoadEnvFile(path))
	assert.Equal(t, "warn", os.Getenv(EnvLogLevel))
	assert.Equal(t, "0 */2 * * *", os.Getenv(EnvRefresh))

	cfg := DefaultConfig()
	cfg.ApplyEnv()
	assert.Equal(t, "0 */2 * * *", cfg.RefreshCron)
	assert.Equal(t, "warn", cfg.LogLevel)

	require.NoError(t, LoadEnvFile(filepath.Join(dir, "missing.env")))
}
