package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridian/salary-engine/config"
)

// clearEnv blanks every variable Load reads so ambient shell state
// cannot leak into assertions.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"PORT", "DB_PATH", "CORS_ORIGINS",
		"AUTO_GENERATE", "GENERATE_INTERVAL",
		"LOG_LEVEL", "LOG_FORMAT", "LOG_TIME_FORMAT", "LOG_OUTPUT",
	} {
		t.Setenv(key, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, ":8080", cfg.Addr())
	assert.Equal(t, "salary.db", cfg.DBPath)
	assert.Equal(t, []string{"*"}, cfg.CORSOrigins)
	assert.False(t, cfg.AutoGenerate)
	assert.Equal(t, time.Hour, cfg.GenerateInterval)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "console", cfg.LogFormat)
}

func TestLoad_ReadsEnvironment(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "9090")
	t.Setenv("DB_PATH", "/var/lib/salary/engine.db")
	t.Setenv("CORS_ORIGINS", "https://admin.example.test, https://ops.example.test")
	t.Setenv("AUTO_GENERATE", "true")
	t.Setenv("GENERATE_INTERVAL", "30m")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, "/var/lib/salary/engine.db", cfg.DBPath)
	assert.Equal(t, []string{"https://admin.example.test", "https://ops.example.test"}, cfg.CORSOrigins,
		"origins should be split on commas and trimmed")
	assert.True(t, cfg.AutoGenerate)
	assert.Equal(t, 30*time.Minute, cfg.GenerateInterval)
	assert.Equal(t, "debug", cfg.LoggerConfig().Level)
}

func TestLoad_RejectsBadValues(t *testing.T) {
	cases := []struct {
		name  string
		key   string
		value string
		want  string
	}{
		{"non-numeric port", "PORT", "http", "PORT must be a number"},
		{"port out of range", "PORT", "70000", "between 1 and 65535"},
		{"bad boolean", "AUTO_GENERATE", "yes please", "AUTO_GENERATE must be a boolean"},
		{"bad interval", "GENERATE_INTERVAL", "soon", "GENERATE_INTERVAL must be a duration"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(tc.key, tc.value)

			_, err := config.Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}
