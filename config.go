package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds the application configuration.
type Config struct {
	Port     int
	DBPath   string
	LogLevel string
}

// loadConfig reads configuration from the environment, with a .env file as an
// optional source. Missing keys fall back to defaults.
func loadConfig() (*Config, error) {
	// Load .env if present; real environment variables win either way.
	_ = godotenv.Load()

	cfg := &Config{
		DBPath:   getEnv("DB_PATH", "jokers.db"),
		LogLevel: getEnv("LOG_LEVEL", "info"),
	}

	portStr := getEnv("PORT", "8080")
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, fmt.Errorf("invalid PORT value %q: %w", portStr, err)
	}
	cfg.Port = port

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}
