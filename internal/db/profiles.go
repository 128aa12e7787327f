package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ProfileRepository handles personality profile database operations.
type ProfileRepository struct {
	pool *pgxpool.Pool
}

// Upsert overwrites the single profile row for a user. Profiles are always
// recomputed from scratch, never patched field by field.
func (r *ProfileRepository) Upsert(ctx context.Context, profile *Profile) error {
	query := `
		INSERT INTO personality_profiles (user_id, tags, genre_diversity, repeat_rate, unique_artists, longest_streak, current_streak, streak_artist_id, computed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (user_id) DO UPDATE SET
			tags = EXCLUDED.tags,
			genre_diversity = EXCLUDED.genre_diversity,
			repeat_rate = EXCLUDED.repeat_rate,
			unique_artists = EXCLUDED.unique_artists,
			longest_streak = EXCLUDED.longest_streak,
			current_streak = EXCLUDED.current_streak,
			streak_artist_id = EXCLUDED.streak_artist_id,
			computed_at = EXCLUDED.computed_at
	`
	tags := profile.Tags
	if tags == nil {
		tags = []string{}
	}
	_, err := r.pool.Exec(ctx, query,
		profile.UserID,
		tags,
		profile.GenreDiversity,
		profile.RepeatRate,
		profile.UniqueArtists,
		profile.LongestStreak,
		profile.CurrentStreak,
		profile.StreakArtistID,
		profile.ComputedAt,
	)
	if err != nil {
		return fmt.Errorf("upserting profile: %w", err)
	}
	return nil
}

// Get retrieves a user's personality profile.
func (r *ProfileRepository) Get(ctx context.Context, userID string) (*Profile, error) {
	query := `
		SELECT user_id, tags, genre_diversity, repeat_rate, unique_artists, longest_streak, current_streak, streak_artist_id, computed_at
		FROM personality_profiles
		WHERE user_id = $1
	`
	var profile Profile
	err := r.pool.QueryRow(ctx, query, userID).Scan(
		&profile.UserID,
		&profile.Tags,
		&profile.GenreDiversity,
		&profile.RepeatRate,
		&profile.UniqueArtists,
		&profile.LongestStreak,
		&profile.CurrentStreak,
		&profile.StreakArtistID,
		&profile.ComputedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying profile: %w", err)
	}
	return &profile, nil
}
