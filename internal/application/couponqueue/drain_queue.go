package couponqueue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/hyunsookim/commerce/internal/domain/coupon"
	domainErrors "github.com/hyunsookim/commerce/internal/domain/errors"
	"github.com/hyunsookim/commerce/internal/domain/event"
	"github.com/hyunsookim/commerce/internal/domain/outbox"
	"github.com/hyunsookim/commerce/internal/domain/queue"
	"github.com/hyunsookim/commerce/internal/infrastructure/config"
	"github.com/hyunsookim/commerce/internal/infrastructure/observability"
	infraredis "github.com/hyunsookim/commerce/internal/infrastructure/redis"
)

// DrainScheduler walks every queue with waiting entries and issues coupons in
// queue-number order. A per-coupon Redis lock keeps drains single-flight, so
// FCFS order holds even with several workers running.
type DrainScheduler struct {
	coupons coupon.Repository
	entries queue.Repository
	outbox  outbox.Repository
	tx      TransactionManager
	redis   *goredis.Client
	logger  zerolog.Logger
	metrics *observability.Metrics

	drainInterval time.Duration
	batchSize     int
	lockTTL       time.Duration
}

func NewDrainScheduler(
	coupons coupon.Repository,
	entries queue.Repository,
	outboxRepo outbox.Repository,
	tx TransactionManager,
	redisClient *goredis.Client,
	cfg *config.QueueConfig,
	logger zerolog.Logger,
	metrics *observability.Metrics,
) *DrainScheduler {
	return &DrainScheduler{
		coupons:       coupons,
		entries:       entries,
		outbox:        outboxRepo,
		tx:            tx,
		redis:         redisClient,
		logger:        logger.With().Str("component", "queue_drain").Logger(),
		metrics:       metrics,
		drainInterval: cfg.DrainInterval,
		batchSize:     cfg.DrainBatchSize,
		lockTTL:       cfg.LockTTL,
	}
}

// Run drains until the context is cancelled.
func (s *DrainScheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.drainInterval)
	defer ticker.Stop()

	s.logger.Info().Dur("drain_interval", s.drainInterval).Msg("queue drain scheduler started")

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("queue drain scheduler stopped")
			return nil
		case <-ticker.C:
			if err := s.drainAll(ctx); err != nil {
				s.logger.Error().Err(err).Msg("drain pass failed")
			}
		}
	}
}

func (s *DrainScheduler) drainAll(ctx context.Context) error {
	start := time.Now()
	defer func() {
		s.metrics.QueueDrainDuration.Observe(time.Since(start).Seconds())
	}()

	couponIDs, err := s.entries.ListCouponsWithWaiting(ctx, s.batchSize)
	if err != nil {
		return err
	}

	for _, couponID := range couponIDs {
		if err := s.DrainCoupon(ctx, couponID); err != nil {
			s.logger.Error().Err(err).Str("coupon_id", couponID.String()).Msg("drain coupon failed")
		}
	}
	return nil
}

// DrainCoupon drains one coupon's queue under its distributed lock. Another
// worker holding the lock means the queue is already being served this tick.
func (s *DrainScheduler) DrainCoupon(ctx context.Context, couponID uuid.UUID) error {
	lock := infraredis.NewDistributedLock(s.redis, "queue:drain:"+couponID.String(), s.lockTTL)
	acquired, err := lock.Acquire(ctx)
	if err != nil {
		return err
	}
	if !acquired {
		return nil
	}
	defer func() {
		if err := lock.Release(context.WithoutCancel(ctx)); err != nil {
			s.logger.Warn().Err(err).Str("coupon_id", couponID.String()).Msg("lock release failed")
		}
	}()

	keepAlive := func(ctx context.Context) error { return lock.Extend(ctx, s.lockTTL) }
	return s.drainBatch(ctx, couponID, keepAlive)
}

// drainBatch claims and serves one batch, then reports how deep the queue
// still is so operators can see a backlog building up.
func (s *DrainScheduler) drainBatch(ctx context.Context, couponID uuid.UUID, keepAlive func(context.Context) error) error {
	claimed, err := s.entries.ClaimWaiting(ctx, couponID, s.batchSize)
	if err != nil {
		return err
	}
	if len(claimed) == 0 {
		return nil
	}

	for i, entry := range claimed {
		// A full batch can outlive the initial TTL; bump it halfway through
		// so a slow drain does not lose the lock to the next tick.
		if keepAlive != nil && i == len(claimed)/2 {
			if err := keepAlive(ctx); err != nil {
				s.logger.Warn().Err(err).Str("coupon_id", couponID.String()).Msg("lock extend failed")
			}
		}
		if err := s.serveEntry(ctx, entry); err != nil {
			return fmt.Errorf("serve entry %d: %w", entry.QueueNumber, err)
		}
	}

	waiting, err := s.entries.CountByStatus(ctx, couponID, queue.StatusWaiting)
	if err != nil {
		return fmt.Errorf("count waiting entries: %w", err)
	}
	s.logger.Info().
		Str("coupon_id", couponID.String()).
		Int("served", len(claimed)).
		Int64("waiting", waiting).
		Msg("queue batch drained")
	return nil
}

// serveEntry issues one coupon in one transaction. The conditional issued
// counter bump is the stock gate: once it refuses, this entry and everyone
// behind it fail with the same reason.
func (s *DrainScheduler) serveEntry(ctx context.Context, entry *queue.Entry) error {
	err := s.tx.WithTransaction(ctx, func(txCtx context.Context) error {
		if err := s.coupons.IncrementIssued(txCtx, entry.CouponID); err != nil {
			return err
		}

		uc := coupon.NewUserCoupon(entry.UserID, entry.CouponID)
		if err := s.coupons.CreateUserCoupon(txCtx, uc); err != nil {
			return err
		}

		now := time.Now()
		if err := entry.MarkCompleted(now); err != nil {
			return err
		}
		if err := s.entries.Update(txCtx, entry); err != nil {
			return err
		}

		if err := outbox.AppendEvent(txCtx, s.outbox, event.CouponIssued{
			RequestID:    entry.ID.String(),
			UserCouponID: uc.ID,
			CouponID:     entry.CouponID,
			UserID:       entry.UserID,
			IssuedAt:     now,
		}); err != nil {
			return err
		}
		return outbox.AppendEvent(txCtx, s.outbox, event.QueueProcessed{
			CouponID:    entry.CouponID,
			UserID:      entry.UserID,
			QueueNumber: entry.QueueNumber,
			ProcessedAt: now,
		})
	})
	if err == nil {
		s.metrics.QueueEntriesDrained.WithLabelValues("completed").Inc()
		return nil
	}
	if errors.Is(err, domainErrors.ErrCouponExhausted) {
		return s.failEntry(ctx, entry, err.Error())
	}
	return err
}

func (s *DrainScheduler) failEntry(ctx context.Context, entry *queue.Entry, reason string) error {
	err := s.tx.WithTransaction(ctx, func(txCtx context.Context) error {
		now := time.Now()
		if err := entry.MarkFailed(reason, now); err != nil {
			return err
		}
		if err := s.entries.Update(txCtx, entry); err != nil {
			return err
		}
		return outbox.AppendEvent(txCtx, s.outbox, event.CouponIssueFailed{
			RequestID: entry.ID.String(),
			CouponID:  entry.CouponID,
			UserID:    entry.UserID,
			Reason:    reason,
			FailedAt:  now,
		})
	})
	if err != nil {
		return fmt.Errorf("fail entry %d: %w", entry.QueueNumber, err)
	}
	s.metrics.QueueEntriesDrained.WithLabelValues("failed").Inc()
	s.logger.Info().
		Str("coupon_id", entry.CouponID.String()).
		Int64("queue_number", entry.QueueNumber).
		Str("reason", reason).
		Msg("queue entry failed")
	return nil
}
