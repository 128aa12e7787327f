// Package config loads service configuration from the environment.
package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all service configuration.
type Config struct {
	Addr            string        `envconfig:"ADDR" default:"127.0.0.1:8080"`
	DatabaseURL     string        `envconfig:"DATABASE_URL" required:"true"`
	SpotifyID       string        `envconfig:"SPOTIFY_ID" required:"true"`
	SpotifySecret   string        `envconfig:"SPOTIFY_SECRET" required:"true"`
	RedirectURL     string        `envconfig:"REDIRECT_URL" default:"http://127.0.0.1:8080/callback"`
	CacheWebhookURL string        `envconfig:"CACHE_WEBHOOK_URL"`
	SyncCooldown    time.Duration `envconfig:"SYNC_COOLDOWN" default:"1h"`
	SnapshotTTL     time.Duration `envconfig:"SNAPSHOT_TTL" default:"15m"`
	LogLevel        string        `envconfig:"LOG_LEVEL" default:"info"`
}

// Load reads configuration from the environment, failing fast when a
// required value is missing.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return &cfg, nil
}
