package config

import (
	"os"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/soundlens")
	t.Setenv("SPOTIFY_ID", "client-id")
	t.Setenv("SPOTIFY_SECRET", "client-secret")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Addr != "127.0.0.1:8080" {
		t.Errorf("Addr = %q", cfg.Addr)
	}
	if cfg.SyncCooldown != time.Hour {
		t.Errorf("SyncCooldown = %v, want 1h", cfg.SyncCooldown)
	}
	if cfg.SnapshotTTL != 15*time.Minute {
		t.Errorf("SnapshotTTL = %v, want 15m", cfg.SnapshotTTL)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel = %q, want info", cfg.LogLevel)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/soundlens")
	t.Setenv("SPOTIFY_ID", "client-id")
	t.Setenv("SPOTIFY_SECRET", "client-secret")
	t.Setenv("SYNC_COOLDOWN", "30m")
	t.Setenv("CACHE_WEBHOOK_URL", "http://cache.internal/invalidate")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.SyncCooldown != 30*time.Minute {
		t.Errorf("SyncCooldown = %v, want 30m", cfg.SyncCooldown)
	}
	if cfg.CacheWebhookURL != "http://cache.internal/invalidate" {
		t.Errorf("CacheWebhookURL = %q", cfg.CacheWebhookURL)
	}
}

func TestLoadMissingRequired(t *testing.T) {
	for _, key := range []string{"DATABASE_URL", "SPOTIFY_ID", "SPOTIFY_SECRET"} {
		t.Setenv(key, "") // registers restore
		os.Unsetenv(key)
	}

	if _, err := Load(); err == nil {
		t.Fatal("expected error when required values are missing")
	}
}
