package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/konvohq/konvo/internal/db"
)

// DedupStore remembers which provider message ids have been processed, so a
// redelivered webhook does not run the pipeline twice.
type DedupStore interface {
	// MarkSeen records the delivery and reports whether this is the first
	// time it was seen.
	MarkSeen(ctx context.Context, channelID, providerMessageID string) (bool, error)
}

// DBDedupStore backs DedupStore with the webhook_events table.
type DBDedupStore struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

func NewDBDedupStore(log *slog.Logger, pool *pgxpool.Pool) *DBDedupStore {
	return &DBDedupStore{
		pool:   pool,
		logger: log.With(slog.String("service", "webhook_dedup")),
	}
}

func (s *DBDedupStore) MarkSeen(ctx context.Context, channelID, providerMessageID string) (bool, error) {
	if s.pool == nil {
		return false, fmt.Errorf("db not configured")
	}
	id, err := db.ParseUUID(channelID)
	if err != nil {
		return false, fmt.Errorf("invalid channel id: %w", err)
	}
	tag, err := s.pool.Exec(ctx,
		`INSERT INTO webhook_events (channel_id, provider_message_id)
		 VALUES ($1, $2)
		 ON CONFLICT DO NOTHING`,
		id, providerMessageID,
	)
	if err != nil {
		return false, fmt.Errorf("mark webhook seen: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// PurgeBefore drops dedup rows received before the cutoff. Providers stop
// redelivering long before the retention window ends, so old rows only cost
// space.
func (s *DBDedupStore) PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	if s.pool == nil {
		return 0, fmt.Errorf("db not configured")
	}
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM webhook_events WHERE received_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge webhook events: %w", err)
	}
	return tag.RowsAffected(), nil
}
