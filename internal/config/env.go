package config

import (
	"os"
	"strconv"
	"strings"
)

// Environment variables that override file settings.
const (
	EnvListen      = "ROBCAL_LISTEN"
	EnvTimezone    = "ROBCAL_TIMEZONE"
	EnvWeekStart   = "ROBCAL_WEEK_START"
	EnvRefresh     = "ROBCAL_REFRESH"
	EnvHorizonDays = "ROBCAL_HORIZON_DAYS"
	EnvCacheDir    = "ROBCAL_CACHE_DIR"
	EnvLogLevel    = "ROBCAL_LOG_LEVEL"
	EnvLogFormat   = "ROBCAL_LOG_FORMAT"
)

// ApplyEnv overrides file settings with non-empty environment variables and
// re-normalizes. It returns the names of the variables that were applied.
func (c *Config) ApplyEnv() []string {
	var applied []string
	str := func(name string, dst *string) {
		if v, ok := os.LookupEnv(name); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
			applied = append(applied, name)
		}
	}

	str(EnvListen, &c.Listen)
	str(EnvTimezone, &c.Timezone)
	str(EnvWeekStart, &c.WeekStart)
	str(EnvRefresh, &c.RefreshCron)
	str(EnvCacheDir, &c.CacheDir)
	str(EnvLogLevel, &c.LogLevel)
	str(EnvLogFormat, &c.LogFormat)

	if v, ok := os.LookupEnv(EnvHorizonDays); ok {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && n > 0 {
			c.HorizonDays = n
			applied = append(applied, EnvHorizonDays)
		}
	}

	c.Normalize()
	return applied
}
