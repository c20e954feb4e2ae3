package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds the application configuration
type Config struct {
	Environment        string
	ServerPort         int
	LogLevel           string
	CORSAllowedOrigins []string

	// StorageDriver is "postgres" or "memory". Memory is for development
	// and tests only; nothing survives a restart.
	StorageDriver string

	DatabaseHost     string
	DatabasePort     int
	DatabaseUser     string
	DatabasePassword string
	DatabaseName     string
	DatabaseSSLMode  string

	RedisURL string

	JWTSecret string

	ReaperInterval   time.Duration
	SnapshotInterval time.Duration

	JoinAttemptsPerMinute int
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	port, err := strconv.Atoi(getEnv("SERVER_PORT", "8080"))
	if err != nil {
		return nil, fmt.Errorf("invalid SERVER_PORT: %w", err)
	}

	dbPort, err := strconv.Atoi(getEnv("DATABASE_PORT", "5432"))
	if err != nil {
		return nil, fmt.Errorf("invalid DATABASE_PORT: %w", err)
	}

	reaperInterval, err := time.ParseDuration(getEnv("REAPER_INTERVAL", "1m"))
	if err != nil {
		return nil, fmt.Errorf("invalid REAPER_INTERVAL: %w", err)
	}

	snapshotInterval, err := time.ParseDuration(getEnv("SNAPSHOT_INTERVAL", "1h"))
	if err != nil {
		return nil, fmt.Errorf("invalid SNAPSHOT_INTERVAL: %w", err)
	}

	joinAttempts, err := strconv.Atoi(getEnv("JOIN_ATTEMPTS_PER_MINUTE", "10"))
	if err != nil {
		return nil, fmt.Errorf("invalid JOIN_ATTEMPTS_PER_MINUTE: %w", err)
	}

	driver := getEnv("STORAGE_DRIVER", "postgres")
	if driver != "postgres" && driver != "memory" {
		return nil, fmt.Errorf("invalid STORAGE_DRIVER %q: must be postgres or memory", driver)
	}

	cfg := &Config{
		Environment:   getEnv("ENVIRONMENT", "development"),
		ServerPort:    port,
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		StorageDriver: driver,
		CORSAllowedOrigins: parseCSVEnv("CORS_ALLOWED_ORIGINS", []string{
			"http://localhost:5173",
			"http://localhost:3000",
		}),
		DatabaseHost:          getEnv("DATABASE_HOST", "localhost"),
		DatabasePort:          dbPort,
		DatabaseUser:          getEnv("DATABASE_USER", "herdsphere"),
		DatabasePassword:      getEnv("DATABASE_PASSWORD", "dev"),
		DatabaseName:          getEnv("DATABASE_NAME", "herdsphere"),
		DatabaseSSLMode:       getEnv("DATABASE_SSLMODE", "disable"),
		RedisURL:              getEnv("REDIS_URL", ""),
		JWTSecret:             getEnv("JWT_SECRET", ""),
		ReaperInterval:        reaperInterval,
		SnapshotInterval:      snapshotInterval,
		JoinAttemptsPerMinute: joinAttempts,
	}

	if cfg.Environment != "development" && cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required outside development")
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func parseCSVEnv(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			trimmed := strings.TrimSpace(p)
			if trimmed != "" {
				out = append(out, trimmed)
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	return defaultValue
}
