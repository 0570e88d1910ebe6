package postgres

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	domainErrors "github.com/hyunsookim/commerce/internal/domain/errors"
	"github.com/hyunsookim/commerce/internal/domain/queue"
)

type QueueRepository struct {
	pool *pgxpool.Pool
}

func NewQueueRepository(pool *pgxpool.Pool) *QueueRepository {
	return &QueueRepository{pool: pool}
}

func (r *QueueRepository) db(ctx context.Context) DBTX {
	return ConnFromCtx(ctx, r.pool)
}

// NextQueueNumber bumps the per-coupon counter row. Callers run it in the same
// transaction as the entry insert: if the insert aborts, the counter bump rolls
// back with it and the sequence stays gap-free.
func (r *QueueRepository) NextQueueNumber(ctx context.Context, couponID uuid.UUID) (int64, error) {
	var next int64
	err := r.db(ctx).QueryRow(ctx,
		`INSERT INTO queue_counters (coupon_id, next_number)
		 VALUES ($1, 1)
		 ON CONFLICT (coupon_id) DO UPDATE SET next_number = queue_counters.next_number + 1
		 RETURNING next_number`, couponID,
	).Scan(&next)
	if err != nil {
		return 0, fmt.Errorf("next queue number: %w", err)
	}
	return next, nil
}

func (r *QueueRepository) Create(ctx context.Context, e *queue.Entry) error {
	_, err := r.db(ctx).Exec(ctx,
		`INSERT INTO coupon_queue (id, coupon_id, user_id, queue_number, status, failed_reason, entered_at, processed_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		e.ID, e.CouponID, e.UserID, e.QueueNumber, string(e.Status), e.FailedReason, e.EnteredAt, e.ProcessedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domainErrors.ErrAlreadyInQueue
		}
		return fmt.Errorf("insert queue entry: %w", err)
	}
	return nil
}

func (r *QueueRepository) GetByCouponAndUser(ctx context.Context, couponID, userID uuid.UUID) (*queue.Entry, error) {
	e := &queue.Entry{}
	var status string
	err := r.db(ctx).QueryRow(ctx,
		`SELECT id, coupon_id, user_id, queue_number, status, failed_reason, entered_at, processed_at
		 FROM coupon_queue WHERE coupon_id = $1 AND user_id = $2`, couponID, userID,
	).Scan(&e.ID, &e.CouponID, &e.UserID, &e.QueueNumber, &status, &e.FailedReason, &e.EnteredAt, &e.ProcessedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domainErrors.ErrQueueEntryNotFound
		}
		return nil, fmt.Errorf("get queue entry: %w", err)
	}
	e.Status = queue.Status(status)
	return e, nil
}

// ClaimWaiting serves entries strictly in queue-number order. SKIP LOCKED lets
// concurrent drainers share the backlog without double-serving an entry.
func (r *QueueRepository) ClaimWaiting(ctx context.Context, couponID uuid.UUID, limit int) ([]*queue.Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db(ctx).Query(ctx,
		`WITH claimed AS (
		     SELECT id FROM coupon_queue
		     WHERE coupon_id = $1 AND status = 'waiting'
		     ORDER BY queue_number
		     LIMIT $2
		     FOR UPDATE SKIP LOCKED
		 )
		 UPDATE coupon_queue q
		 SET status = 'processing'
		 FROM claimed c
		 WHERE q.id = c.id
		 RETURNING q.id, q.coupon_id, q.user_id, q.queue_number, q.status, q.failed_reason, q.entered_at, q.processed_at`,
		couponID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("claim waiting queue entries: %w", err)
	}
	defer rows.Close()

	var entries []*queue.Entry
	for rows.Next() {
		e := &queue.Entry{}
		var status string
		if err := rows.Scan(&e.ID, &e.CouponID, &e.UserID, &e.QueueNumber, &status, &e.FailedReason, &e.EnteredAt, &e.ProcessedAt); err != nil {
			return nil, fmt.Errorf("scan queue entry: %w", err)
		}
		e.Status = queue.Status(status)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	// RETURNING order is unspecified; restore FCFS order.
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].QueueNumber < entries[j].QueueNumber
	})
	return entries, nil
}

func (r *QueueRepository) Update(ctx context.Context, e *queue.Entry) error {
	tag, err := r.db(ctx).Exec(ctx,
		`UPDATE coupon_queue SET status = $1, failed_reason = $2, processed_at = $3 WHERE id = $4`,
		string(e.Status), e.FailedReason, e.ProcessedAt, e.ID,
	)
	if err != nil {
		return fmt.Errorf("update queue entry: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domainErrors.ErrQueueEntryNotFound
	}
	return nil
}

func (r *QueueRepository) CountWaitingBefore(ctx context.Context, couponID uuid.UUID, queueNumber int64) (int64, error) {
	var count int64
	err := r.db(ctx).QueryRow(ctx,
		`SELECT count(*) FROM coupon_queue
		 WHERE coupon_id = $1 AND status = 'waiting' AND queue_number < $2`,
		couponID, queueNumber,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count waiting before: %w", err)
	}
	return count, nil
}

func (r *QueueRepository) ListCouponsWithWaiting(ctx context.Context, limit int) ([]uuid.UUID, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.db(ctx).Query(ctx,
		`SELECT DISTINCT coupon_id FROM coupon_queue WHERE status = 'waiting' LIMIT $1`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list coupons with waiting entries: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan coupon id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *QueueRepository) CountByStatus(ctx context.Context, couponID uuid.UUID, status queue.Status) (int64, error) {
	var count int64
	err := r.db(ctx).QueryRow(ctx,
		`SELECT count(*) FROM coupon_queue WHERE coupon_id = $1 AND status = $2`,
		couponID, string(status),
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count queue by status: %w", err)
	}
	return count, nil
}
