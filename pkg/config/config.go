package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	// Load environment variables from .env files when present.
	_ "github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	Server        ServerConfig
	Database      DatabaseConfig
	Storage       StorageConfig
	Gemini        GeminiConfig
	Resilience    ResilienceConfig
	Observability ObservabilityConfig
}

type GeminiConfig struct {
	APIKey            string
	Model             string
	RequestsPerMinute int
}

type ServerConfig struct {
	Host string
	Port int
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

type StorageConfig struct {
	LocalPath string
}

// ResilienceConfig controls the guards around remote OCR/AI calls.
type ResilienceConfig struct {
	OCRCallsPerUserPerHour  int
	BreakerFailureThreshold int
	BreakerCooldownSeconds  int
	RetryMaxAttempts        int
}

type ObservabilityConfig struct {
	MetricsEnabled bool
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Host: getEnv("SERVER_HOST", "localhost"),
			Port: getEnvAsInt("SERVER_PORT", 8080),
		},
		Database: DatabaseConfig{
			Host:     getEnv("POSTGRES_HOST", "localhost"),
			Port:     getEnvAsInt("POSTGRES_PORT", 5432),
			User:     getEnv("POSTGRES_USER", "postgres"),
			Password: getEnv("POSTGRES_PASSWORD", "postgres"),
			Database: getEnv("POSTGRES_DB", "coinbag-dev"),
			SSLMode:  getEnv("POSTGRES_SSLMODE", "disable"),
		},
		Storage: StorageConfig{
			LocalPath: getEnv("STORAGE_LOCAL_PATH", "./uploads"),
		},
		Gemini: GeminiConfig{
			APIKey:            getEnv("GEMINI_API_KEY", ""),
			Model:             getEnv("GEMINI_MODEL", ""),
			RequestsPerMinute: getEnvAsInt("GEMINI_REQUESTS_PER_MINUTE", 30),
		},
		Resilience: ResilienceConfig{
			OCRCallsPerUserPerHour:  getEnvAsInt("OCR_CALLS_PER_USER_PER_HOUR", 10),
			BreakerFailureThreshold: getEnvAsInt("OCR_BREAKER_FAILURE_THRESHOLD", 3),
			BreakerCooldownSeconds:  getEnvAsInt("OCR_BREAKER_COOLDOWN_SECONDS", 60),
			RetryMaxAttempts:        getEnvAsInt("OCR_RETRY_MAX_ATTEMPTS", 3),
		},
		Observability: ObservabilityConfig{
			MetricsEnabled: getEnvAsBool("METRICS_ENABLED", true),
		},
	}

	if cfg.Gemini.APIKey == "" {
		return nil, errors.New("GEMINI_API_KEY is required")
	}

	if cfg.Gemini.Model == "" {
		return nil, errors.New("GEMINI_MODEL is required")
	}

	return cfg, nil
}

// DSN returns the database connection string
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}
