package config

import (
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application.
type Config struct {
	Port        string
	Env         string
	DatabaseURL string // Postgres mirror; takes precedence over SQLitePath
	SQLitePath  string // SQLite mirror
	RedisURL    string

	SnapshotPath string // snapshot file; ignored when Redis is configured
	UploadDir    string
	AdminUsers   []string
	Origins      []string // allowed CORS and websocket origins

	SessionTTL   time.Duration
	PageCacheTTL time.Duration

	// Rate limiting
	RateLimitWhitelist []string // IPs or CIDRs exempt from rate limiting
	AutoBlockEnabled   bool     // Enable auto-blocking after repeated violations
}

// Load reads configuration from environment variables.
// In development, it loads from .env file if present.
// In production, it panics on missing required variables.
func Load() *Config {
	// Load .env file if it exists (for development)
	_ = godotenv.Load()

	cfg := &Config{
		Port:               getEnv("PORT", "8080"),
		Env:                getEnv("ENV", "development"),
		DatabaseURL:        os.Getenv("DATABASE_URL"),
		SQLitePath:         os.Getenv("SQLITE_PATH"),
		RedisURL:           os.Getenv("REDIS_URL"),
		SnapshotPath:       getEnv("SNAPSHOT_PATH", "data/state.json"),
		UploadDir:          getEnv("UPLOAD_DIR", "data/uploads"),
		AdminUsers:         getList("ADMIN_USERS"),
		Origins:            getList("ALLOWED_ORIGINS"),
		SessionTTL:         getDuration("SESSION_TTL", 7*24*time.Hour),
		PageCacheTTL:       getDuration("PAGE_CACHE_TTL", 30*time.Second),
		RateLimitWhitelist: getList("RATE_LIMIT_WHITELIST"),
		AutoBlockEnabled:   getEnv("AUTO_BLOCK_ENABLED", "false") == "true",
	}

	// In production, require a durable snapshot target
	if cfg.Env == "production" {
		if cfg.RedisURL == "" && cfg.SnapshotPath == "" {
			panic("REDIS_URL or SNAPSHOT_PATH is required in production")
		}
		if len(cfg.Origins) == 0 {
			panic("ALLOWED_ORIGINS is required in production")
		}
	}

	return cfg
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// MirrorDriver names the configured relational mirror, or "" for none.
func (c *Config) MirrorDriver() string {
	switch {
	case c.DatabaseURL != "":
		return "postgres"
	case c.SQLitePath != "":
		return "sqlite"
	default:
		return ""
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getList parses a comma-separated variable.
func getList(key string) []string {
	var out []string
	for _, entry := range strings.Split(os.Getenv(key), ",") {
		entry = strings.TrimSpace(entry)
		if entry != "" {
			out = append(out, entry)
		}
	}
	return out
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	d, err := time.ParseDuration(os.Getenv(key))
	if err != nil || d <= 0 {
		return defaultValue
	}
	return d
}
