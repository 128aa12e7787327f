// Command soundlens runs the listening-profile sync service.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/soundlens/go-spotify-soundlens/internal/cache"
	"github.com/soundlens/go-spotify-soundlens/internal/config"
	"github.com/soundlens/go-spotify-soundlens/internal/db"
	syncsvc "github.com/soundlens/go-spotify-soundlens/internal/sync"
	"github.com/soundlens/go-spotify-soundlens/internal/web"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	log := zerolog.New(os.Stdout).Level(level).With().Timestamp().Logger()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	database, err := db.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer database.Close()

	if err := database.Migrate(ctx); err != nil {
		return err
	}

	sweepCtx, stopSweep := context.WithCancel(context.Background())
	defer stopSweep()
	go sweepSessions(sweepCtx, database, log)

	snapshots := cache.NewSnapshotCache(cfg.SnapshotTTL)
	invalidators := cache.Multi{snapshots}
	if cfg.CacheWebhookURL != "" {
		invalidators = append(invalidators, cache.NewWebhookInvalidator(cfg.CacheWebhookURL, log))
	}

	syncer := syncsvc.New(
		syncsvc.NewStore(database),
		invalidators,
		log,
		syncsvc.WithCooldown(cfg.SyncCooldown),
	)

	server := web.NewServer(web.ServerConfig{
		Addr:         cfg.Addr,
		ClientID:     cfg.SpotifyID,
		ClientSecret: cfg.SpotifySecret,
		RedirectURL:  cfg.RedirectURL,
		DB:           database,
		Syncer:       syncer,
		Snapshots:    snapshots,
		Log:          log,
	})

	return server.Run()
}

// sweepSessions removes expired session rows once an hour.
func sweepSessions(ctx context.Context, database *db.DB, log zerolog.Logger) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := database.Sessions().DeleteExpired(ctx)
			if err != nil {
				log.Warn().Err(err).Msg("session sweep failed")
				continue
			}
			if n > 0 {
				log.Info().Int64("sessions", n).Msg("expired sessions removed")
			}
		}
	}
}
