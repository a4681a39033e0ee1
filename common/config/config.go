package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all service configuration
type Config struct {
	Service   ServiceConfig
	Database  DatabaseConfig
	Cache     CacheConfig
	LLM       LLMConfig
	Pipeline  PipelineConfig
	Telemetry TelemetryConfig
	Features  FeatureFlags
}

// ServiceConfig holds service-specific settings
type ServiceConfig struct {
	Name        string
	Port        int
	Environment string
	LogLevel    string
	LogFormat   string
}

// DatabaseConfig holds Postgres connection settings
type DatabaseConfig struct {
	Host        string
	Port        int
	Database    string
	User        string
	Password    string
	MaxConns    int
	MinConns    int
	MaxIdleTime time.Duration
	MaxLifetime time.Duration
}

// CacheConfig holds settings for the derived-data cache (currently the
// recommendation cache)
type CacheConfig struct {
	Enabled    bool
	DefaultTTL time.Duration
}

// LLMConfig holds settings for the recommendation backend
type LLMConfig struct {
	APIKey         string
	BaseURL        string
	Model          string
	MaxAttempts    int
	RetryBaseDelay time.Duration
	RetryMaxDelay  time.Duration
	RequestTimeout time.Duration
}

// PipelineConfig holds pipeline execution settings
type PipelineConfig struct {
	LockTTL time.Duration // per-workflow execution lock expiry

	// Base domain for synthesized deployment URLs; the environment is
	// prefixed as a subdomain ("https://archon.dev" ->
	// "https://production.archon.dev/workflows/<id>")
	DeployBaseURL string
}

// TelemetryConfig holds debug endpoint settings
type TelemetryConfig struct {
	EnablePprof bool
	PprofPort   int
}

// FeatureFlags for MVP toggles
type FeatureFlags struct {
	EnableRecommendations bool
	EnableRateLimits      bool
	EnableEvents          bool
}

// Load loads configuration from environment variables
func Load(serviceName string) (*Config, error) {
	cfg := &Config{
		Service: ServiceConfig{
			Name:        serviceName,
			Port:        getEnvInt("PORT", 8080),
			Environment: getEnv("ENVIRONMENT", "development"),
			LogLevel:    getEnv("LOG_LEVEL", "info"),
			LogFormat:   getEnv("LOG_FORMAT", "text"), // Default to text for development
		},
		Database: DatabaseConfig{
			Host:        getEnv("POSTGRES_HOST", "localhost"),
			Port:        getEnvInt("POSTGRES_PORT", 5432),
			Database:    getEnv("POSTGRES_DB", "archon"),
			User:        getEnv("POSTGRES_USER", "archon"),
			Password:    getEnv("POSTGRES_PASSWORD", "archon"),
			MaxConns:    getEnvInt("POSTGRES_MAX_CONNS", 50),
			MinConns:    getEnvInt("POSTGRES_MIN_CONNS", 10),
			MaxIdleTime: getEnvDuration("POSTGRES_MAX_IDLE_TIME", 30*time.Minute),
			MaxLifetime: getEnvDuration("POSTGRES_MAX_LIFETIME", 1*time.Hour),
		},
		Cache: CacheConfig{
			Enabled:    getEnvBool("CACHE_ENABLED", true),
			DefaultTTL: getEnvDuration("CACHE_DEFAULT_TTL", 15*time.Minute),
		},
		LLM: LLMConfig{
			APIKey:         getEnv("LLM_API_KEY", ""),
			BaseURL:        getEnv("LLM_BASE_URL", ""),
			Model:          getEnv("LLM_MODEL", ""),
			MaxAttempts:    getEnvInt("LLM_MAX_ATTEMPTS", 3),
			RetryBaseDelay: getEnvDuration("LLM_RETRY_BASE_DELAY", 500*time.Millisecond),
			RetryMaxDelay:  getEnvDuration("LLM_RETRY_MAX_DELAY", 5*time.Second),
			RequestTimeout: getEnvDuration("LLM_REQUEST_TIMEOUT", 30*time.Second),
		},
		Pipeline: PipelineConfig{
			LockTTL:       getEnvDuration("PIPELINE_LOCK_TTL", 5*time.Minute),
			DeployBaseURL: getEnv("DEPLOY_BASE_URL", "https://archon.dev"),
		},
		Telemetry: TelemetryConfig{
			EnablePprof: getEnvBool("ENABLE_PPROF", true),
			PprofPort:   getEnvInt("PPROF_PORT", 6060),
		},
		Features: FeatureFlags{
			EnableRecommendations: getEnvBool("ENABLE_RECOMMENDATIONS", false),
			EnableRateLimits:      getEnvBool("ENABLE_RATE_LIMITS", true),
			EnableEvents:          getEnvBool("ENABLE_EVENTS", true),
		},
	}

	return cfg, cfg.Validate()
}

// Validate checks if configuration is valid
func (c *Config) Validate() error {
	if c.Service.Port < 1 || c.Service.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Service.Port)
	}

	if c.Database.Host == "" {
		return fmt.Errorf("database host is required")
	}

	if c.Database.MaxConns < c.Database.MinConns {
		return fmt.Errorf("max_conns must be >= min_conns")
	}

	if c.Features.EnableRecommendations && c.LLM.APIKey == "" {
		return fmt.Errorf("LLM_API_KEY is required when recommendations are enabled")
	}

	return nil
}

// DatabaseURL returns the PostgreSQL connection string
func (c *Config) DatabaseURL() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=disable",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Database,
	)
}

// Helper functions

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

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
