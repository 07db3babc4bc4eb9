/*
Package configs loads and parses the application's configuration settings.

All values come from environment variables (a .env file is honored when
present), with development-friendly defaults and validation for anything
that would misconfigure a running fleet member.
*/
package configs

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Default matchmaking categories, matching the channels every process
// subscribes to at startup.
var defaultMatchCategories = []string{"Coding", "Science", "Music", "Jobs"}

// AppConfig contains all configuration parameters required by the server.
type AppConfig struct {
	// General Server Settings
	Environment string
	Port        int

	// Security Settings
	AllowedOrigins []string

	// Broker Settings
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Chat Settings
	HistoryLimit    int
	SweepInterval   time.Duration
	MatchCategories []string
}

// LoadConfig reads and validates the application configuration from
// environment variables. A .env file in the working directory is loaded
// first when one exists.
func LoadConfig() (*AppConfig, error) {
	// Missing .env is fine; environment variables take over.
	_ = godotenv.Load()

	cfg := &AppConfig{}

	// --- General Server Settings ---
	cfg.Environment = os.Getenv("ENVIRONMENT")
	if cfg.Environment == "" {
		cfg.Environment = "development"
	}

	portStr := os.Getenv("PORT")
	if portStr == "" {
		portStr = "8080"
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, fmt.Errorf("invalid PORT environment variable: %w", err)
	}
	cfg.Port = port

	if cfg.Port < 1024 || cfg.Port > 65535 {
		return nil, fmt.Errorf("port number %d is outside the recommended range (%d-%d) to avoid privileged ports", cfg.Port, 1024, 65535)
	}

	// --- Security Settings ---
	originsStr := os.Getenv("ALLOWED_ORIGINS")
	if originsStr != "" {
		for _, origin := range strings.Split(originsStr, ",") {
			trimmed := strings.TrimSpace(origin)
			if trimmed != "" {
				cfg.AllowedOrigins = append(cfg.AllowedOrigins, trimmed)
			}
		}
	} else {
		cfg.AllowedOrigins = []string{}
	}

	// --- Broker Settings ---
	// An empty REDIS_ADDR selects the in-process store, which only makes
	// sense for a single development node.
	cfg.RedisAddr = os.Getenv("REDIS_ADDR")
	if cfg.RedisAddr == "" && cfg.Environment != "development" {
		return nil, fmt.Errorf("REDIS_ADDR environment variable is required in %s environment", cfg.Environment)
	}

	cfg.RedisPassword = os.Getenv("REDIS_PASSWORD")

	redisDBStr := os.Getenv("REDIS_DB")
	if redisDBStr == "" {
		redisDBStr = "0"
	}
	redisDB, err := strconv.Atoi(redisDBStr)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB environment variable: %w", err)
	}
	cfg.RedisDB = redisDB

	// --- Chat Settings ---
	historyStr := os.Getenv("HISTORY_LIMIT")
	if historyStr == "" {
		historyStr = "100"
	}
	historyLimit, err := strconv.Atoi(historyStr)
	if err != nil {
		return nil, fmt.Errorf("invalid HISTORY_LIMIT environment variable: %w", err)
	}
	if historyLimit <= 0 {
		return nil, fmt.Errorf("HISTORY_LIMIT must be positive, got %d", historyLimit)
	}
	cfg.HistoryLimit = historyLimit

	sweepStr := os.Getenv("SWEEP_INTERVAL")
	if sweepStr == "" {
		sweepStr = "60s"
	}
	sweepInterval, err := time.ParseDuration(sweepStr)
	if err != nil {
		return nil, fmt.Errorf("invalid SWEEP_INTERVAL environment variable: %w", err)
	}
	if sweepInterval <= 0 {
		return nil, fmt.Errorf("SWEEP_INTERVAL must be positive, got %s", sweepInterval)
	}
	cfg.SweepInterval = sweepInterval

	categoriesStr := os.Getenv("MATCH_CATEGORIES")
	if categoriesStr != "" {
		for _, category := range strings.Split(categoriesStr, ",") {
			trimmed := strings.TrimSpace(category)
			if trimmed != "" {
				cfg.MatchCategories = append(cfg.MatchCategories, trimmed)
			}
		}
	}
	if len(cfg.MatchCategories) == 0 {
		cfg.MatchCategories = append([]string{}, defaultMatchCategories...)
	}

	return cfg, nil
}
