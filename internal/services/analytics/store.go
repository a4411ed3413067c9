// internal/services/analytics/store.go
package analytics

import (
	"context"
	"database/sql"
	"time"
)

// Store accumulates event aggregates. All writes are idempotent upserts so a
// replayed batch converges instead of double counting.
type Store interface {
	RecordUsage(ctx context.Context, userID, eventType string, bucketStart time.Time) error
	RecordEventCount(ctx context.Context, eventType string, bucketStart time.Time) error
}

type sqlStore struct {
	db *sql.DB
}

func NewStore(db *sql.DB) Store {
	return &sqlStore{db: db}
}

func (s *sqlStore) RecordUsage(ctx context.Context, userID, eventType string, bucketStart time.Time) error {
	query := `INSERT INTO usage_tracking (user_id, event_type, bucket_start, count)
		VALUES ($1, $2, $3, 1)
		ON CONFLICT (user_id, event_type, bucket_start)
		DO UPDATE SET count = usage_tracking.count + 1`
	_, err := s.db.ExecContext(ctx, query, userID, eventType, bucketStart)
	return err
}

func (s *sqlStore) RecordEventCount(ctx context.Context, eventType string, bucketStart time.Time) error {
	query := `INSERT INTO event_counts (event_type, bucket_start, count)
		VALUES ($1, $2, 1)
		ON CONFLICT (event_type, bucket_start)
		DO UPDATE SET count = event_counts.count + 1`
	_, err := s.db.ExecContext(ctx, query, eventType, bucketStart)
	return err
}
