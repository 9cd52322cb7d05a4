package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Environment string `envconfig:"ENVIRONMENT" default:"local"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	// DatabaseURL is optional; when empty, provider settings live in SettingsFile.
	DatabaseURL string `envconfig:"DATABASE_URL" default:""`
	DBMinConns  int32  `envconfig:"GLANCE_DB_MIN_CONNS" default:"1"`
	DBMaxConns  int32  `envconfig:"GLANCE_DB_MAX_CONNS" default:"4"`

	SettingsFile   string `envconfig:"SETTINGS_FILE" default:"glance.yaml"`
	SettingsSecret string `envconfig:"SETTINGS_SECRET" default:""`

	HoverActivationDelay time.Duration `envconfig:"HOVER_ACTIVATION_DELAY" default:"150ms"`
	HTTPTimeout          time.Duration `envconfig:"HTTP_TIMEOUT" default:"120s"`
	PageTextBudget       int           `envconfig:"PAGE_TEXT_BUDGET" default:"12000"`

	CORSAllowedOrigins string  `envconfig:"CORS_ALLOWED_ORIGINS" default:""`
	RateLimit          float64 `envconfig:"RATE_LIMIT" default:"2"`
	RateBurst          int     `envconfig:"RATE_BURST" default:"10"`
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.DBMinConns < 0 {
		return fmt.Errorf("GLANCE_DB_MIN_CONNS must be >= 0")
	}
	if c.DBMaxConns < 1 {
		return fmt.Errorf("GLANCE_DB_MAX_CONNS must be >= 1")
	}
	if c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("GLANCE_DB_MIN_CONNS (%d) cannot exceed GLANCE_DB_MAX_CONNS (%d)", c.DBMinConns, c.DBMaxConns)
	}
	if c.UsesDatabase() && strings.TrimSpace(c.SettingsSecret) == "" {
		return fmt.Errorf("SETTINGS_SECRET is required when DATABASE_URL is set")
	}
	if !c.UsesDatabase() && strings.TrimSpace(c.SettingsFile) == "" {
		return fmt.Errorf("SETTINGS_FILE is required when DATABASE_URL is empty")
	}
	if c.HoverActivationDelay <= 0 {
		return fmt.Errorf("HOVER_ACTIVATION_DELAY must be > 0")
	}
	if c.HTTPTimeout <= 0 {
		return fmt.Errorf("HTTP_TIMEOUT must be > 0")
	}
	if c.PageTextBudget < 500 {
		return fmt.Errorf("PAGE_TEXT_BUDGET must be >= 500")
	}
	if c.RateLimit < 0 {
		return fmt.Errorf("RATE_LIMIT must be >= 0")
	}
	if c.RateBurst < 0 {
		return fmt.Errorf("RATE_BURST must be >= 0")
	}
	return nil
}

// UsesDatabase reports whether provider settings should be kept in Postgres.
func (c *Config) UsesDatabase() bool {
	if c == nil {
		return false
	}
	return strings.TrimSpace(c.DatabaseURL) != ""
}

func (c *Config) CORSAllowedOriginsList() []string {
	if c == nil {
		return nil
	}

	parts := strings.Split(c.CORSAllowedOrigins, ",")
	origins := make([]string, 0, len(parts))
	seen := make(map[string]struct{}, len(parts))
	for _, part := range parts {
		origin := strings.TrimSpace(part)
		if origin == "" {
			continue
		}
		if _, exists := seen[origin]; exists {
			continue
		}
		seen[origin] = struct{}{}
		origins = append(origins, origin)
	}
	return origins
}
