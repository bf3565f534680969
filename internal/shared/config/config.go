package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/mrmushfiq/llm0-express/internal/express/dispatch"
	"github.com/mrmushfiq/llm0-express/internal/express/limits"
)

// Config holds all configuration for the batch gateway
type Config struct {
	// Server
	Port     string
	Env      string
	LogLevel string

	// Optional bearer token guarding the API
	GatewayAPIKey string

	// Upstream
	OpenAIAPIKey  string
	OpenAIBaseURL string

	// Dispatch
	DefaultTier  limits.Tier
	Strategy     dispatch.Strategy
	Window       time.Duration
	PoolWorkers  int
	BatchTimeout time.Duration

	// Run log, disabled when empty
	DatabaseURL string

	// Cache and usage counters, disabled when empty
	RedisURL        string
	CacheEnabled    bool
	CacheTTLSeconds int
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Try to load .env file (ignore error if not found)
	_ = godotenv.Load()

	tier, err := limits.ParseTier(getEnv("DEFAULT_TIER", string(limits.Tier1)))
	if err != nil {
		return nil, err
	}
	strategy, err := dispatch.ParseStrategy(getEnv("DISPATCH_STRATEGY", string(dispatch.Cooperative)))
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Port:            getEnv("PORT", "8080"),
		Env:             getEnv("ENV", "development"),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		GatewayAPIKey:   getEnv("GATEWAY_API_KEY", ""),
		OpenAIAPIKey:    getEnv("OPENAI_API_KEY", ""),
		OpenAIBaseURL:   getEnv("OPENAI_BASE_URL", ""),
		DefaultTier:     tier,
		Strategy:        strategy,
		Window:          getEnvDuration("WINDOW_SECONDS", dispatch.DefaultWindow),
		PoolWorkers:     getEnvInt("POOL_WORKERS", 0),
		BatchTimeout:    getEnvDuration("BATCH_TIMEOUT_SECONDS", dispatch.DefaultBatchTimeout),
		DatabaseURL:     getEnv("DATABASE_URL", ""),
		RedisURL:        getEnv("REDIS_URL", ""),
		CacheEnabled:    getEnvBool("CACHE_ENABLED", true),
		CacheTTLSeconds: getEnvInt("CACHE_TTL_SECONDS", 3600),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks required fields and ranges
func (c *Config) Validate() error {
	if c.OpenAIAPIKey == "" {
		return fmt.Errorf("OPENAI_API_KEY is required")
	}
	if c.Window <= 0 {
		return fmt.Errorf("WINDOW_SECONDS must be positive")
	}
	if c.PoolWorkers < 0 {
		return fmt.Errorf("POOL_WORKERS must not be negative")
	}
	if c.BatchTimeout < 0 {
		return fmt.Errorf("BATCH_TIMEOUT_SECONDS must not be negative")
	}
	return nil
}

// CacheTTL returns the response cache TTL
func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLSeconds) * time.Second
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

// getEnvDuration reads a (possibly fractional) number of seconds
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if secs, err := strconv.ParseFloat(value, 64); err == nil {
			return time.Duration(secs * float64(time.Second))
		}
	}
	return defaultValue
}
