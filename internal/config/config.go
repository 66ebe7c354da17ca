package config

import (
	"os"
	"strconv"
)

// ApplyEnv overrides configuration from environment variables
func ApplyEnv(cfg *LocalConfig) {
	cfg.Daemon.Port = getEnvInt("SKILLRANK_PORT", cfg.Daemon.Port)
	cfg.Daemon.Bind = getEnv("SKILLRANK_BIND", cfg.Daemon.Bind)
	cfg.Daemon.LogLevel = getEnv("SKILLRANK_LOG_LEVEL", cfg.Daemon.LogLevel)

	cfg.Storage.Driver = getEnv("SKILLRANK_STORAGE_DRIVER", cfg.Storage.Driver)
	cfg.Storage.SQLitePath = getEnv("SKILLRANK_SQLITE_PATH", cfg.Storage.SQLitePath)
	cfg.Storage.DatabaseURL = getEnv("SKILLRANK_DATABASE_URL", cfg.Storage.DatabaseURL)

	cfg.Queue.URL = getEnv("SKILLRANK_RABBITMQ_URL", cfg.Queue.URL)
	cfg.Queue.Enabled = getEnvBool("SKILLRANK_QUEUE_ENABLED", cfg.Queue.Enabled)
	cfg.Queue.Workers = getEnvInt("SKILLRANK_QUEUE_WORKERS", cfg.Queue.Workers)

	cfg.Scoring.Alpha = getEnvFloat("SKILLRANK_ALPHA", cfg.Scoring.Alpha)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}
