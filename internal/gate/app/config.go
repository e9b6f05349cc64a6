package app

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	ProviderURL string // Required: base URL of the identity provider API
	ServiceKey  string // Required: privileged service-role API key
	AnonKey     string // Required: public anon API key sent as Apikey header
	DatabaseURL string // Required: postgres connection string for the record store

	Env                 string        // Environment (dev, staging, prod) (default: dev)
	LogLevel            string        // Log level (debug, info, warn, error) (default: info)
	LogFormat           string        // Log format (json, text) (default: json)
	Port                int           // HTTP server port (default: 8080)
	ShutdownGracePeriod time.Duration // Graceful shutdown timeout (default: 10s)
}

func LoadConfig() Config {
	return Config{
		ProviderURL: os.Getenv("GATE_PROVIDER_URL"),
		ServiceKey:  os.Getenv("GATE_SERVICE_KEY"),
		AnonKey:     os.Getenv("GATE_ANON_KEY"),
		DatabaseURL: os.Getenv("GATE_DATABASE_URL"),

		Env:                 getEnvOrDefault("ENV", "dev"),
		LogLevel:            getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:           getEnvOrDefault("LOG_FORMAT", "json"),
		Port:                getEnvIntOrDefault("PORT", 8080),
		ShutdownGracePeriod: getEnvDurationOrDefault("SHUTDOWN_GRACE_PERIOD", 10*time.Second),
	}
}

// Validate fails fast on missing required settings so a misconfigured
// deployment never starts serving.
func (cfg Config) Validate() error {
	if cfg.ProviderURL == "" {
		return fmt.Errorf("GATE_PROVIDER_URL is required")
	}
	if cfg.ServiceKey == "" {
		return fmt.Errorf("GATE_SERVICE_KEY is required")
	}
	if cfg.AnonKey == "" {
		return fmt.Errorf("GATE_ANON_KEY is required")
	}
	if cfg.DatabaseURL == "" {
		return fmt.Errorf("GATE_DATABASE_URL is required")
	}
	return nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if intValue, err := strconv.Atoi(value); err == nil {
		return intValue
	}

	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if duration, err := time.ParseDuration(value); err == nil {
		return duration
	}

	return defaultValue
}
