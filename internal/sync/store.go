package sync

import (
	"context"
	"time"

	"github.com/soundlens/go-spotify-soundlens/internal/db"
)

// pgStore adapts *db.DB to the Store interface.
type pgStore struct {
	db *db.DB
}

// NewStore wraps the database as a sync Store.
func NewStore(database *db.DB) Store {
	return &pgStore{db: database}
}

func (s *pgStore) GetUser(ctx context.Context, id string) (*db.User, error) {
	return s.db.Users().Get(ctx, id)
}

func (s *pgStore) AcquireLease(ctx context.Context, userID string, ttl time.Duration) (string, bool, error) {
	return s.db.Leases().Acquire(ctx, userID, ttl)
}

func (s *pgStore) ReleaseLease(ctx context.Context, userID, token string) error {
	return s.db.Leases().Release(ctx, userID, token)
}

func (s *pgStore) ReplaceDailyStats(ctx context.Context, userID string, stats []db.DailyStat) error {
	return s.db.DailyStats().ReplaceBatch(ctx, userID, stats)
}

func (s *pgStore) ReplaceTopEntities(ctx context.Context, userID string, kind db.EntityKind, tr db.TimeRange, entities []db.TopEntity) error {
	return s.db.TopEntities().Replace(ctx, userID, kind, tr, entities)
}

func (s *pgStore) DailyHistory(ctx context.Context, userID string) ([]db.DailyStat, error) {
	return s.db.DailyStats().History(ctx, userID)
}

func (s *pgStore) SaveProfile(ctx context.Context, profile *db.Profile) error {
	return s.db.Profiles().Upsert(ctx, profile)
}

func (s *pgStore) SetLastSync(ctx context.Context, userID string, syncTime time.Time) error {
	return s.db.Users().UpdateLastSync(ctx, userID, syncTime)
}
