// Package config provides configuration for the agent service.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the agent service configuration.
type Config struct {
	// Server settings
	HTTPPort int `yaml:"http_port"`

	// Database
	DBDriver    string `yaml:"db_driver"`
	DatabaseURL string `yaml:"database_url"`

	// Confirmations
	ConfirmationBackend string        `yaml:"confirmation_backend"`
	RedisURL            string        `yaml:"redis_url"`
	ConfirmationTTL     time.Duration `yaml:"confirmation_ttl"`
	SweepInterval       time.Duration `yaml:"sweep_interval"`

	// LLM
	LLMProvider      string        `yaml:"llm_provider"`
	LLMModel         string        `yaml:"llm_model"`
	LLMAPIKey        string        `yaml:"llm_api_key"`
	LLMBaseURL       string        `yaml:"llm_base_url"`
	LLMTimeout       time.Duration `yaml:"llm_timeout"`
	FallbackProvider string        `yaml:"fallback_provider"`
	FallbackModel    string        `yaml:"fallback_model"`
	FallbackAPIKey   string        `yaml:"fallback_api_key"`
	FallbackBaseURL  string        `yaml:"fallback_base_url"`

	// Agent loop
	MaxIterations int    `yaml:"max_iterations"`
	HistoryLimit  int    `yaml:"history_limit"`
	PolicyFile    string `yaml:"policy_file"`

	// Streaming
	WSReadTimeout    time.Duration `yaml:"ws_read_timeout"`
	WSWriteTimeout   time.Duration `yaml:"ws_write_timeout"`
	WSPingInterval   time.Duration `yaml:"ws_ping_interval"`
	WSMaxMessageSize int64         `yaml:"ws_max_message_size"`
	TurnTimeout      time.Duration `yaml:"turn_timeout"`

	// Audit
	ClickHouseDSN string `yaml:"clickhouse_dsn"`

	// Logging
	LogLevel string `yaml:"log_level"`
}

// Defaults returns the built-in configuration.
func Defaults() *Config {
	return &Config{
		HTTPPort:            8080,
		DBDriver:            "sqlite",
		DatabaseURL:         "file:agent.db?cache=shared&mode=rwc&_busy_timeout=5000",
		ConfirmationBackend: "sql",
		ConfirmationTTL:     30 * time.Minute,
		SweepInterval:       time.Minute,
		LLMProvider:         "litellm",
		LLMTimeout:          60 * time.Second,
		MaxIterations:       8,
		HistoryLimit:        30,
		WSReadTimeout:       60 * time.Second,
		WSWriteTimeout:      10 * time.Second,
		WSPingInterval:      30 * time.Second,
		WSMaxMessageSize:    64 * 1024,
		TurnTimeout:         2 * time.Minute,
		LogLevel:            "info",
	}
}

// Load builds the configuration from defaults, then the YAML file named by
// CONFIG_FILE if set, then environment variables.
func Load() (*Config, error) {
	cfg := Defaults()
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.HTTPPort = getEnvInt("HTTP_PORT", c.HTTPPort)
	c.DBDriver = getEnv("DB_DRIVER", c.DBDriver)
	c.DatabaseURL = getEnv("DATABASE_URL", c.DatabaseURL)
	c.ConfirmationBackend = getEnv("CONFIRMATION_BACKEND", c.ConfirmationBackend)
	c.RedisURL = getEnv("REDIS_URL", c.RedisURL)
	c.ConfirmationTTL = getEnvDuration("CONFIRMATION_TTL", c.ConfirmationTTL)
	c.SweepInterval = getEnvDuration("SWEEP_INTERVAL", c.SweepInterval)
	c.LLMProvider = getEnv("LLM_PROVIDER", c.LLMProvider)
	c.LLMModel = getEnv("LLM_MODEL", c.LLMModel)
	c.LLMAPIKey = getEnv("LLM_API_KEY", c.LLMAPIKey)
	c.LLMBaseURL = getEnv("LLM_BASE_URL", c.LLMBaseURL)
	c.LLMTimeout = getEnvDuration("LLM_TIMEOUT", c.LLMTimeout)
	c.FallbackProvider = getEnv("LLM_FALLBACK_PROVIDER", c.FallbackProvider)
	c.FallbackModel = getEnv("LLM_FALLBACK_MODEL", c.FallbackModel)
	c.FallbackAPIKey = getEnv("LLM_FALLBACK_API_KEY", c.FallbackAPIKey)
	c.FallbackBaseURL = getEnv("LLM_FALLBACK_BASE_URL", c.FallbackBaseURL)
	c.MaxIterations = getEnvInt("MAX_ITERATIONS", c.MaxIterations)
	c.HistoryLimit = getEnvInt("HISTORY_LIMIT", c.HistoryLimit)
	c.PolicyFile = getEnv("POLICY_FILE", c.PolicyFile)
	c.WSReadTimeout = getEnvDuration("WS_READ_TIMEOUT", c.WSReadTimeout)
	c.WSWriteTimeout = getEnvDuration("WS_WRITE_TIMEOUT", c.WSWriteTimeout)
	c.WSPingInterval = getEnvDuration("WS_PING_INTERVAL", c.WSPingInterval)
	c.WSMaxMessageSize = int64(getEnvInt("WS_MAX_MESSAGE_SIZE", int(c.WSMaxMessageSize)))
	c.TurnTimeout = getEnvDuration("TURN_TIMEOUT", c.TurnTimeout)
	c.ClickHouseDSN = getEnv("CLICKHOUSE_DSN", c.ClickHouseDSN)
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
}

// Validate rejects settings the service cannot start with.
func (c *Config) Validate() error {
	switch c.DBDriver {
	case "sqlite", "sqlite3", "postgres", "pgx":
	default:
		return fmt.Errorf("unsupported db driver %q", c.DBDriver)
	}
	switch c.ConfirmationBackend {
	case "sql":
	case "redis":
		if c.RedisURL == "" {
			return fmt.Errorf("REDIS_URL is required for the redis confirmation backend")
		}
	default:
		return fmt.Errorf("unsupported confirmation backend %q", c.ConfirmationBackend)
	}
	if c.MaxIterations < 1 {
		return fmt.Errorf("max iterations must be positive, got %d", c.MaxIterations)
	}
	if c.ConfirmationTTL <= 0 {
		return fmt.Errorf("confirmation ttl must be positive")
	}
	return nil
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if intVal, err := strconv.Atoi(val); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}
