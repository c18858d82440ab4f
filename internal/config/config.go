// Package config provides the service configuration loaded from environment
// variables, plus the runtime engine settings read from the collaborator-
// adjustable settings store. Shared by cmd/api and cmd/ingest.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// --------------------------------------------------------------------------
// Config struct — populated from environment variables
// --------------------------------------------------------------------------

type Config struct {
	// Database. Empty selects the in-process store: nothing survives a
	// restart, which is only suitable for demos and local development.
	DatabaseURL string

	// API server
	APIHost     string
	APIPort     int
	Environment string // development, staging, production
	Debug       bool

	// CORS
	CORSAllowOrigins []string

	// Rate limiting
	RateLimitEnabled  bool
	RateLimitRequests int
	RateLimitWindow   time.Duration

	// Sample source bridge. Sync modes are disabled when no URL is set;
	// collaborators can still push batches over the API.
	SourceURL               string
	SourceToken             string
	SourceRequestsPerMinute int
	SyncWindowDays          int

	// Notification delivery webhook (optional).
	WebhookURL string

	// Insight message enrichment service (optional).
	EnrichURL string

	// Engine
	Location        *time.Location // calendar-day boundaries
	RetentionDays   int            // raw sample retention
	RefreshInterval time.Duration  // best-effort live session refresh
	CleanupInterval time.Duration  // ledger prune + retention cadence

	// Cache
	CacheEnabled bool
}

// Load reads configuration from environment variables with sensible defaults.
func Load() (*Config, error) {
	tz := envOr("ENGINE_TIMEZONE", "UTC")
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("load ENGINE_TIMEZONE %q: %w", tz, err)
	}

	return &Config{
		DatabaseURL: envOr("DATABASE_URL", ""),

		APIHost:     envOr("API_HOST", "0.0.0.0"),
		APIPort:     envInt("API_PORT", envInt("PORT", 8000)),
		Environment: envOr("ENVIRONMENT", "development"),
		Debug:       envBool("DEBUG", false),

		CORSAllowOrigins: envList("CORS_ALLOW_ORIGINS", []string{
			"http://localhost:3000",
			"http://localhost:5173",
		}),

		RateLimitEnabled:  envBool("RATE_LIMIT_ENABLED", true),
		RateLimitRequests: envInt("RATE_LIMIT_REQUESTS", 100),
		RateLimitWindow:   time.Duration(envInt("RATE_LIMIT_WINDOW", 60)) * time.Second,

		SourceURL:               envOr("SOURCE_BRIDGE_URL", ""),
		SourceToken:             envOr("SOURCE_BRIDGE_TOKEN", ""),
		SourceRequestsPerMinute: envInt("SOURCE_REQUESTS_PER_MINUTE", 60),
		SyncWindowDays:          envInt("SYNC_WINDOW_DAYS", 14),

		WebhookURL: envOr("NOTIFY_WEBHOOK_URL", ""),
		EnrichURL:  envOr("ENRICH_SERVICE_URL", ""),

		Location:        loc,
		RetentionDays:   envInt("SAMPLE_RETENTION_DAYS", 365),
		RefreshInterval: time.Duration(envInt("SESSION_REFRESH_SECONDS", 60)) * time.Second,
		CleanupInterval: time.Duration(envInt("MAINTENANCE_INTERVAL_MINUTES", 30)) * time.Minute,

		CacheEnabled: envBool("CACHE_ENABLED", true),
	}, nil
}

// IsProduction returns true if running in production environment.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// --------------------------------------------------------------------------
// Env helpers
// --------------------------------------------------------------------------

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return fallback
}

func envList(key string, fallback []string) []string {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		if len(result) > 0 {
			return result
		}
	}
	return fallback
}
