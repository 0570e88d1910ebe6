package queue

import (
	"context"

	"github.com/google/uuid"
)

// Repository is the persistence contract for coupon admission queues.
type Repository interface {
	// NextQueueNumber atomically allocates the next number for the coupon
	// from its counter row. Must run inside the same transaction as the
	// entry insert so an aborted join leaves no gap.
	NextQueueNumber(ctx context.Context, couponID uuid.UUID) (int64, error)
	Create(ctx context.Context, e *Entry) error
	GetByCouponAndUser(ctx context.Context, couponID, userID uuid.UUID) (*Entry, error)
	// ClaimWaiting locks up to limit waiting entries in queue-number order,
	// skipping rows held by concurrent drainers, and flips them to
	// processing.
	ClaimWaiting(ctx context.Context, couponID uuid.UUID, limit int) ([]*Entry, error)
	Update(ctx context.Context, e *Entry) error
	// CountWaitingBefore counts waiting entries with a smaller queue number,
	// the caller's estimated position.
	CountWaitingBefore(ctx context.Context, couponID uuid.UUID, queueNumber int64) (int64, error)
	// ListCouponsWithWaiting returns the coupon ids that currently have
	// waiting entries, for the drain scheduler.
	ListCouponsWithWaiting(ctx context.Context, limit int) ([]uuid.UUID, error)
	CountByStatus(ctx context.Context, couponID uuid.UUID, status Status) (int64, error)
}
