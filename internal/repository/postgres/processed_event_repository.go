package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ProcessedEventRepository is the consumer-side dedupe marker. The relay
// delivers at least once; each consumer group records (group, event_id) in the
// same transaction as its effect, so a redelivered event becomes a no-op.
type ProcessedEventRepository struct {
	pool *pgxpool.Pool
}

func NewProcessedEventRepository(pool *pgxpool.Pool) *ProcessedEventRepository {
	return &ProcessedEventRepository{pool: pool}
}

func (r *ProcessedEventRepository) db(ctx context.Context) DBTX {
	return ConnFromCtx(ctx, r.pool)
}

// MarkProcessed records the event for the group. Returns false if the marker
// already existed, meaning the event was handled before and the caller should
// skip its effect.
func (r *ProcessedEventRepository) MarkProcessed(ctx context.Context, group string, eventID uuid.UUID) (bool, error) {
	tag, err := r.db(ctx).Exec(ctx,
		`INSERT INTO processed_events (consumer_group, event_id, processed_at)
		 VALUES ($1, $2, now())
		 ON CONFLICT (consumer_group, event_id) DO NOTHING`,
		group, eventID,
	)
	if err != nil {
		return false, fmt.Errorf("mark event processed: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}
