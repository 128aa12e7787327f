package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// TopEntityRepository handles ranked top-entity snapshot operations.
type TopEntityRepository struct {
	pool *pgxpool.Pool
}

// Replace swaps the stored snapshot for a (user, kind, range) triple with a
// new ranked set. Delete and insert run in one transaction so readers never
// observe a mix of old and new ranks.
func (r *TopEntityRepository) Replace(ctx context.Context, userID string, kind EntityKind, timeRange TimeRange, entities []TopEntity) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	deleteQuery := `
		DELETE FROM top_entities
		WHERE user_id = $1 AND entity_kind = $2 AND time_range = $3
	`
	if _, err := tx.Exec(ctx, deleteQuery, userID, kind, timeRange); err != nil {
		return fmt.Errorf("deleting prior snapshot: %w", err)
	}

	if len(entities) > 0 {
		now := time.Now()
		rows := make([][]any, len(entities))
		for i, e := range entities {
			genres := e.Genres
			if genres == nil {
				genres = []string{}
			}
			rows[i] = []any{userID, string(kind), string(timeRange), e.EntityID, e.Name, e.ImageURL, genres, e.Popularity, e.Rank, now}
		}

		_, err = tx.CopyFrom(ctx,
			pgx.Identifier{"top_entities"},
			[]string{"user_id", "entity_kind", "time_range", "entity_id", "name", "image_url", "genres", "popularity", "rank", "created_at"},
			pgx.CopyFromRows(rows),
		)
		if err != nil {
			return fmt.Errorf("inserting snapshot: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// Get retrieves the stored snapshot for a (user, kind, range) triple,
// ordered by rank ascending.
func (r *TopEntityRepository) Get(ctx context.Context, userID string, kind EntityKind, timeRange TimeRange) ([]TopEntity, error) {
	query := `
		SELECT user_id, entity_kind, time_range, entity_id, name, image_url, genres, popularity, rank, created_at
		FROM top_entities
		WHERE user_id = $1 AND entity_kind = $2 AND time_range = $3
		ORDER BY rank ASC
	`
	rows, err := r.pool.Query(ctx, query, userID, kind, timeRange)
	if err != nil {
		return nil, fmt.Errorf("querying top entities: %w", err)
	}
	defer rows.Close()

	return scanTopEntities(rows)
}

// GetAllRanges retrieves a user's snapshots for one kind across every time
// range. Used by the personality engine, which combines genre data from all
// three ranges.
func (r *TopEntityRepository) GetAllRanges(ctx context.Context, userID string, kind EntityKind) ([]TopEntity, error) {
	query := `
		SELECT user_id, entity_kind, time_range, entity_id, name, image_url, genres, popularity, rank, created_at
		FROM top_entities
		WHERE user_id = $1 AND entity_kind = $2
		ORDER BY time_range, rank ASC
	`
	rows, err := r.pool.Query(ctx, query, userID, kind)
	if err != nil {
		return nil, fmt.Errorf("querying top entities: %w", err)
	}
	defer rows.Close()

	return scanTopEntities(rows)
}

func scanTopEntities(rows pgx.Rows) ([]TopEntity, error) {
	var entities []TopEntity
	for rows.Next() {
		var e TopEntity
		if err := rows.Scan(
			&e.UserID,
			&e.Kind,
			&e.TimeRange,
			&e.EntityID,
			&e.Name,
			&e.ImageURL,
			&e.Genres,
			&e.Popularity,
			&e.Rank,
			&e.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scanning top entity: %w", err)
		}
		entities = append(entities, e)
	}
	return entities, rows.Err()
}
