package db

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// LeaseRepository handles per-user sync leases. A lease is acquired with a
// single compare-and-swap statement so that concurrent sync triggers for the
// same user, including triggers on different instances, cannot both proceed.
type LeaseRepository struct {
	pool *pgxpool.Pool
}

// Acquire attempts to take the sync lease for a user. It succeeds when no
// lease row exists or the existing lease has expired. On success it returns
// the lease token needed to release it.
func (r *LeaseRepository) Acquire(ctx context.Context, userID string, ttl time.Duration) (string, bool, error) {
	token := uuid.NewString()
	query := `
		INSERT INTO sync_leases (user_id, token, acquired_at, expires_at)
		VALUES ($1, $2, NOW(), $3)
		ON CONFLICT (user_id) DO UPDATE SET
			token = EXCLUDED.token,
			acquired_at = NOW(),
			expires_at = EXCLUDED.expires_at
		WHERE sync_leases.expires_at < NOW()
	`
	result, err := r.pool.Exec(ctx, query, userID, token, time.Now().Add(ttl))
	if err != nil {
		return "", false, fmt.Errorf("acquiring sync lease: %w", err)
	}
	if result.RowsAffected() == 0 {
		// Live lease held by another sync.
		return "", false, nil
	}
	return token, true, nil
}

// Release frees the lease. The token guard means an expired lease that was
// re-acquired elsewhere is never released by the original holder.
func (r *LeaseRepository) Release(ctx context.Context, userID, token string) error {
	query := `DELETE FROM sync_leases WHERE user_id = $1 AND token = $2`
	if _, err := r.pool.Exec(ctx, query, userID, token); err != nil {
		return fmt.Errorf("releasing sync lease: %w", err)
	}
	return nil
}
