// Package config loads AppForge configuration from the environment.
//
// Provider API keys are optional: a missing key disables that provider in the
// model gateway rather than failing startup. Storage and cache URLs are also
// optional and fall back to local implementations.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds the full application configuration.
type Config struct {
	Environment string
	Port        string

	// Model provider credentials. Empty string = provider disabled.
	AnthropicAPIKey string
	GeminiAPIKey    string
	OpenAIAPIKey    string
	GrokAPIKey      string

	// Persistence
	DatabaseURL    string // postgres DSN; empty = local sqlite
	SQLitePath     string
	MigrationsPath string

	// Optional services
	RedisURL    string
	S3Bucket    string
	S3Region    string
	AssetDir    string

	// Pipeline tuning
	BuildMaxRetries int
	SpeedProfile    bool
	MonitorInterval time.Duration
	MonitorDir      string // directory watched by the build monitor; empty disables it
}

// Load reads .env (if present) and the process environment into a Config.
func Load() *Config {
	// .env is optional; env vars win when both are set.
	if err := godotenv.Load(); err != nil {
		_ = godotenv.Load("../.env")
	}

	cfg := &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		Port:        getEnv("PORT", "8080"),

		AnthropicAPIKey: os.Getenv("ANTHROPIC_API_KEY"),
		GeminiAPIKey:    os.Getenv("GEMINI_API_KEY"),
		OpenAIAPIKey:    os.Getenv("OPENAI_API_KEY"),
		GrokAPIKey:      os.Getenv("GROK_API_KEY"),

		DatabaseURL:    os.Getenv("DATABASE_URL"),
		SQLitePath:     getEnv("SQLITE_PATH", "appforge.db"),
		MigrationsPath: getEnv("MIGRATIONS_PATH", "migrations"),

		RedisURL: os.Getenv("REDIS_URL"),
		S3Bucket: os.Getenv("S3_BUCKET"),
		S3Region: getEnv("S3_REGION", "us-east-1"),
		AssetDir: getEnv("ASSET_DIR", "assets"),

		BuildMaxRetries: getEnvInt("BUILD_MAX_RETRIES", 3),
		SpeedProfile:    getEnvBool("SPEED_PROFILE", false),
		MonitorInterval: getEnvDuration("MONITOR_INTERVAL", 60*time.Second),
		MonitorDir:      os.Getenv("MONITOR_DIR"),
	}

	return cfg
}

// HasAnyProvider reports whether at least one model provider is configured.
func (c *Config) HasAnyProvider() bool {
	return c.AnthropicAPIKey != "" || c.GeminiAPIKey != "" ||
		c.OpenAIAPIKey != "" || c.GrokAPIKey != ""
}

// Validate checks configuration combinations that cannot work.
func (c *Config) Validate() error {
	if c.Environment == "production" && c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required in production")
	}
	if c.BuildMaxRetries < 1 {
		return fmt.Errorf("BUILD_MAX_RETRIES must be >= 1, got %d", c.BuildMaxRetries)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
