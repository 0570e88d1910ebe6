package postgres

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hyunsookim/commerce/internal/domain/event"
	"github.com/hyunsookim/commerce/internal/domain/outbox"
)

// OutboxRepository persists relay records. ClaimPending is the contended path:
// it uses SKIP LOCKED so concurrent relay workers never block on or double-claim
// the same record.
type OutboxRepository struct {
	pool *pgxpool.Pool
	// staleAfter is how long a record may sit in processing before another
	// worker may reclaim it (crashed-worker recovery).
	staleAfter time.Duration
	// maxRetries is the configured publish-attempt ceiling stamped on each
	// appended record; zero keeps the domain default.
	maxRetries int
}

func NewOutboxRepository(pool *pgxpool.Pool, staleAfter time.Duration, maxRetries int) *OutboxRepository {
	return &OutboxRepository{pool: pool, staleAfter: staleAfter, maxRetries: maxRetries}
}

func (r *OutboxRepository) db(ctx context.Context) DBTX {
	return ConnFromCtx(ctx, r.pool)
}

func (r *OutboxRepository) Append(ctx context.Context, rec *outbox.Record) error {
	rec.ApplyRetryCeiling(r.maxRetries)
	_, err := r.db(ctx).Exec(ctx,
		`INSERT INTO outbox (id, event_id, aggregate_id, event_type, payload, status, retry_count, max_retries, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		rec.ID, rec.EventID, rec.AggregateID, string(rec.EventType), rec.Payload,
		string(rec.Status), rec.RetryCount, rec.MaxRetries, rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert outbox record: %w", err)
	}
	return nil
}

func (r *OutboxRepository) ClaimPending(ctx context.Context, limit int) ([]*outbox.Record, error) {
	if limit <= 0 {
		limit = 10
	}
	staleCutoff := time.Now().Add(-r.staleAfter)
	rows, err := r.db(ctx).Query(ctx,
		`WITH due AS (
		     SELECT id FROM outbox
		     WHERE status = 'pending'
		        OR (status = 'processing' AND last_attempt_at < $1)
		     ORDER BY aggregate_id, created_at
		     LIMIT $2
		     FOR UPDATE SKIP LOCKED
		 )
		 UPDATE outbox o
		 SET status = 'processing', last_attempt_at = now()
		 FROM due d
		 WHERE o.id = d.id
		 RETURNING o.id, o.event_id, o.aggregate_id, o.event_type, o.payload,
		           o.status, o.retry_count, o.max_retries, o.failed_reason,
		           o.created_at, o.last_attempt_at`,
		staleCutoff, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("claim pending outbox records: %w", err)
	}
	defer rows.Close()

	var records []*outbox.Record
	for rows.Next() {
		rec := &outbox.Record{}
		var status, eventType string
		if err := rows.Scan(&rec.ID, &rec.EventID, &rec.AggregateID, &eventType, &rec.Payload,
			&status, &rec.RetryCount, &rec.MaxRetries, &rec.FailedReason,
			&rec.CreatedAt, &rec.LastAttemptAt); err != nil {
			return nil, fmt.Errorf("scan outbox record: %w", err)
		}
		rec.Status = outbox.Status(status)
		rec.EventType = event.Type(eventType)
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// UPDATE ... RETURNING does not guarantee row order; restore the ordering
	// contract before handing the batch to the relay.
	sort.Slice(records, func(i, j int) bool {
		if records[i].AggregateID != records[j].AggregateID {
			return records[i].AggregateID < records[j].AggregateID
		}
		return records[i].CreatedAt.Before(records[j].CreatedAt)
	})
	return records, nil
}

func (r *OutboxRepository) MarkSuccess(ctx context.Context, id uuid.UUID) error {
	_, err := r.db(ctx).Exec(ctx,
		`UPDATE outbox SET status = 'success', last_attempt_at = now() WHERE id = $1`, id,
	)
	if err != nil {
		return fmt.Errorf("mark outbox success: %w", err)
	}
	return nil
}

func (r *OutboxRepository) MarkAttemptFailed(ctx context.Context, id uuid.UUID, reason string) error {
	_, err := r.db(ctx).Exec(ctx,
		`UPDATE outbox
		 SET retry_count = retry_count + 1,
		     failed_reason = $1,
		     last_attempt_at = now(),
		     status = CASE WHEN retry_count + 1 >= max_retries THEN 'failed' ELSE 'pending' END
		 WHERE id = $2`, reason, id,
	)
	if err != nil {
		return fmt.Errorf("mark outbox attempt failed: %w", err)
	}
	return nil
}

func (r *OutboxRepository) Requeue(ctx context.Context, id uuid.UUID) error {
	_, err := r.db(ctx).Exec(ctx,
		`UPDATE outbox SET status = 'pending' WHERE id = $1 AND status = 'processing'`, id,
	)
	if err != nil {
		return fmt.Errorf("requeue outbox record: %w", err)
	}
	return nil
}

func (r *OutboxRepository) CountByStatus(ctx context.Context, status outbox.Status) (int64, error) {
	var count int64
	err := r.db(ctx).QueryRow(ctx,
		`SELECT count(*) FROM outbox WHERE status = $1`, string(status),
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count outbox by status: %w", err)
	}
	return count, nil
}
