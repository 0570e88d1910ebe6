// Package couponqueue implements first-come-first-served coupon issuance: an
// admission queue with gap-free numbers and a background drain that issues
// coupons strictly in arrival order.
package couponqueue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hyunsookim/commerce/internal/domain/coupon"
	domainErrors "github.com/hyunsookim/commerce/internal/domain/errors"
	"github.com/hyunsookim/commerce/internal/domain/event"
	"github.com/hyunsookim/commerce/internal/domain/outbox"
	"github.com/hyunsookim/commerce/internal/domain/queue"
	"github.com/hyunsookim/commerce/internal/infrastructure/observability"
)

// TransactionManager runs fn inside one database transaction.
type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// JoinQueueUseCase assigns the caller a queue number. Counter bump, entry
// insert, and QueueEntered all commit in one transaction: a failed join leaves
// no number behind, so the sequence stays gap-free.
type JoinQueueUseCase struct {
	coupons coupon.Repository
	entries queue.Repository
	outbox  outbox.Repository
	tx      TransactionManager
	logger  zerolog.Logger
	metrics *observability.Metrics
}

func NewJoinQueueUseCase(
	coupons coupon.Repository,
	entries queue.Repository,
	outboxRepo outbox.Repository,
	tx TransactionManager,
	logger zerolog.Logger,
	metrics *observability.Metrics,
) *JoinQueueUseCase {
	return &JoinQueueUseCase{
		coupons: coupons,
		entries: entries,
		outbox:  outboxRepo,
		tx:      tx,
		logger:  logger.With().Str("component", "join_queue").Logger(),
		metrics: metrics,
	}
}

func (uc *JoinQueueUseCase) Execute(ctx context.Context, couponID, userID uuid.UUID) (*queue.Entry, error) {
	c, err := uc.coupons.GetByID(ctx, couponID)
	if err != nil {
		return nil, err
	}
	// Fast fail only; an entry that squeezes past this still competes for
	// stock in the drain and fails there if the coupon runs out.
	if !c.Issuable(time.Now()) {
		uc.metrics.QueueJoins.WithLabelValues("rejected").Inc()
		return nil, domainErrors.ErrCouponExhausted
	}

	// A user who already holds this coupon gets a clean conflict instead of a
	// queue entry doomed to fail at issuance.
	if _, err := uc.coupons.GetUserCouponByUser(ctx, couponID, userID); err == nil {
		uc.metrics.QueueJoins.WithLabelValues("rejected").Inc()
		return nil, domainErrors.ErrCouponAlreadyIssued
	} else if !errors.Is(err, domainErrors.ErrCouponNotIssued) {
		return nil, err
	}

	var entry *queue.Entry
	err = uc.tx.WithTransaction(ctx, func(txCtx context.Context) error {
		number, err := uc.entries.NextQueueNumber(txCtx, couponID)
		if err != nil {
			return err
		}
		entry = queue.NewEntry(couponID, userID, number)
		if err := uc.entries.Create(txCtx, entry); err != nil {
			return err
		}
		if err := outbox.AppendEvent(txCtx, uc.outbox, event.QueueEntered{
			CouponID:    couponID,
			UserID:      userID,
			QueueNumber: number,
			EnteredAt:   entry.EnteredAt,
		}); err != nil {
			return err
		}
		// The entry id doubles as the request id; CouponIssued and
		// CouponIssueFailed carry it back when the drain settles the request.
		return outbox.AppendEvent(txCtx, uc.outbox, event.CouponIssueRequested{
			RequestID:   entry.ID.String(),
			CouponID:    couponID,
			UserID:      userID,
			RequestedAt: entry.EnteredAt,
		})
	})
	if err != nil {
		if domainErrors.IsBusiness(err) {
			uc.metrics.QueueJoins.WithLabelValues("duplicate").Inc()
			return nil, err
		}
		return nil, fmt.Errorf("join queue: %w", err)
	}

	uc.metrics.QueueJoins.WithLabelValues("accepted").Inc()
	uc.logger.Info().
		Str("coupon_id", couponID.String()).
		Str("user_id", userID.String()).
		Int64("queue_number", entry.QueueNumber).
		Msg("joined coupon queue")
	return entry, nil
}
