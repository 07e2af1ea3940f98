/*
Package config loads process configuration from the environment.

PURPOSE:
  One place that reads environment variables, applies defaults and
  validates the result. Every binary entrypoint calls Load once and
  passes the Config down; nothing else in the tree touches os.Getenv.

CONFIGURATION:
  PORT               HTTP listen port                    (default 8080)
  DB_PATH            SQLite database file                (default salary.db)
  CORS_ORIGINS       comma-separated allowed origins     (default *)
  AUTO_GENERATE      run the in-process generation
                     scheduler when "true"               (default false)
  GENERATE_INTERVAL  scheduler check interval            (default 1h)
  LOG_LEVEL          trace|debug|info|warn|error         (default info)
  LOG_FORMAT         json|console                        (default console)
  LOG_TIME_FORMAT    timestamp layout                    (default RFC3339)
  LOG_OUTPUT         stdout|stderr|file path             (default stdout)

SEE ALSO:
  - logger/logger.go: consumes LoggerConfig()
  - cmd/serve.go: consumes Port, DBPath, CORSOrigins and the
    AUTO_GENERATE switch
*/
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/meridian/salary-engine/logger"
)

// Config holds everything the salary engine reads from the environment.
type Config struct {
	// HTTP server configuration
	Port        int
	CORSOrigins []string

	// Storage configuration
	DBPath string

	// Automatic invoice generation (disabled unless AUTO_GENERATE=true)
	AutoGenerate     bool
	GenerateInterval time.Duration

	// Logging configuration
	LogLevel      string
	LogFormat     string
	LogTimeFormat string
	LogOutput     string
}

// Load reads the environment, fills in defaults and validates the result.
func Load() (*Config, error) {
	port, err := strconv.Atoi(getEnv("PORT", "8080"))
	if err != nil {
		return nil, fmt.Errorf("PORT must be a number: %w", err)
	}

	autoGenerate, err := strconv.ParseBool(getEnv("AUTO_GENERATE", "false"))
	if err != nil {
		return nil, fmt.Errorf("AUTO_GENERATE must be a boolean: %w", err)
	}

	interval, err := time.ParseDuration(getEnv("GENERATE_INTERVAL", "1h"))
	if err != nil {
		return nil, fmt.Errorf("GENERATE_INTERVAL must be a duration such as 30m or 1h: %w", err)
	}

	config := &Config{
		Port:             port,
		CORSOrigins:      splitOrigins(getEnv("CORS_ORIGINS", "*")),
		DBPath:           getEnv("DB_PATH", "salary.db"),
		AutoGenerate:     autoGenerate,
		GenerateInterval: interval,
		LogLevel:         getEnv("LOG_LEVEL", "info"),
		LogFormat:        getEnv("LOG_FORMAT", "console"),
		LogTimeFormat:    getEnv("LOG_TIME_FORMAT", time.RFC3339),
		LogOutput:        getEnv("LOG_OUTPUT", "stdout"),
	}

	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

func (c *Config) validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("PORT must be between 1 and 65535, got %d", c.Port)
	}
	if c.DBPath == "" {
		return fmt.Errorf("DB_PATH must not be empty")
	}
	if c.GenerateInterval <= 0 {
		return fmt.Errorf("GENERATE_INTERVAL must be positive, got %s", c.GenerateInterval)
	}
	return nil
}

// Addr returns the listen address for the HTTP server.
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

// LoggerConfig returns the logging subset as a logger.Config.
func (c *Config) LoggerConfig() logger.Config {
	return logger.Config{
		Level:      c.LogLevel,
		Format:     c.LogFormat,
		TimeFormat: c.LogTimeFormat,
		Output:     c.LogOutput,
	}
}

func splitOrigins(raw string) []string {
	parts := strings.Split(raw, ",")
	origins := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			origins = append(origins, trimmed)
		}
	}
	return origins
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
