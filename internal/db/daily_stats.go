package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// DailyStatRepository handles per-day aggregate database operations.
type DailyStatRepository struct {
	pool *pgxpool.Pool
}

// ReplaceBatch writes per-day aggregates, fully overwriting any existing row
// for the same (user, day). Replacement rather than accumulation keeps
// re-syncs over overlapping fetch windows idempotent: the same input always
// yields the same stored rows, never double counts.
func (r *DailyStatRepository) ReplaceBatch(ctx context.Context, userID string, stats []DailyStat) error {
	if len(stats) == 0 {
		return nil
	}

	query := `
		INSERT INTO daily_stats (user_id, day, minutes, track_count, top_artist_id, top_artist_name, top_track_id, top_track_name, updated_at)
		SELECT $1, * FROM unnest($2::date[], $3::int[], $4::int[], $5::text[], $6::text[], $7::text[], $8::text[], $9::timestamptz[])
		ON CONFLICT (user_id, day) DO UPDATE SET
			minutes = EXCLUDED.minutes,
			track_count = EXCLUDED.track_count,
			top_artist_id = EXCLUDED.top_artist_id,
			top_artist_name = EXCLUDED.top_artist_name,
			top_track_id = EXCLUDED.top_track_id,
			top_track_name = EXCLUDED.top_track_name,
			updated_at = EXCLUDED.updated_at
	`

	days := make([]time.Time, len(stats))
	minutes := make([]int, len(stats))
	trackCounts := make([]int, len(stats))
	artistIDs := make([]string, len(stats))
	artistNames := make([]string, len(stats))
	trackIDs := make([]string, len(stats))
	trackNames := make([]string, len(stats))
	updatedAts := make([]time.Time, len(stats))

	now := time.Now()
	for i, s := range stats {
		days[i] = s.Day
		minutes[i] = s.Minutes
		trackCounts[i] = s.TrackCount
		artistIDs[i] = s.TopArtistID
		artistNames[i] = s.TopArtistName
		trackIDs[i] = s.TopTrackID
		trackNames[i] = s.TopTrackName
		updatedAts[i] = now
	}

	_, err := r.pool.Exec(ctx, query, userID, days, minutes, trackCounts, artistIDs, artistNames, trackIDs, trackNames, updatedAts)
	if err != nil {
		return fmt.Errorf("replacing daily stats: %w", err)
	}
	return nil
}

// History retrieves a user's full daily history ordered by day ascending.
func (r *DailyStatRepository) History(ctx context.Context, userID string) ([]DailyStat, error) {
	query := `
		SELECT user_id, day, minutes, track_count, top_artist_id, top_artist_name, top_track_id, top_track_name, updated_at
		FROM daily_stats
		WHERE user_id = $1
		ORDER BY day ASC
	`
	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("querying daily stats: %w", err)
	}
	defer rows.Close()

	var stats []DailyStat
	for rows.Next() {
		var s DailyStat
		if err := rows.Scan(
			&s.UserID,
			&s.Day,
			&s.Minutes,
			&s.TrackCount,
			&s.TopArtistID,
			&s.TopArtistName,
			&s.TopTrackID,
			&s.TopTrackName,
			&s.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scanning daily stat: %w", err)
		}
		stats = append(stats, s)
	}
	return stats, rows.Err()
}

// Recent retrieves the most recent N days with data, ordered by day descending.
func (r *DailyStatRepository) Recent(ctx context.Context, userID string, limit int) ([]DailyStat, error) {
	query := `
		SELECT user_id, day, minutes, track_count, top_artist_id, top_artist_name, top_track_id, top_track_name, updated_at
		FROM daily_stats
		WHERE user_id = $1
		ORDER BY day DESC
		LIMIT $2
	`
	rows, err := r.pool.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("querying recent daily stats: %w", err)
	}
	defer rows.Close()

	var stats []DailyStat
	for rows.Next() {
		var s DailyStat
		if err := rows.Scan(
			&s.UserID,
			&s.Day,
			&s.Minutes,
			&s.TrackCount,
			&s.TopArtistID,
			&s.TopArtistName,
			&s.TopTrackID,
			&s.TopTrackName,
			&s.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scanning daily stat: %w", err)
		}
		stats = append(stats, s)
	}
	return stats, rows.Err()
}
