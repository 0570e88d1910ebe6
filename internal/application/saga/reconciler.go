package saga

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hyunsookim/commerce/internal/domain/event"
	"github.com/hyunsookim/commerce/internal/domain/order"
	"github.com/hyunsookim/commerce/internal/domain/outbox"
	"github.com/hyunsookim/commerce/internal/infrastructure/observability"
)

// Reconciler force-fails orders stuck in pending past the timeout. A lost
// step-outcome event would otherwise leave the saga open forever; failing the
// order routes it through the normal compensation path.
type Reconciler struct {
	orders  order.Repository
	outbox  outbox.Repository
	tx      TransactionManager
	logger  zerolog.Logger
	metrics *observability.Metrics

	pendingTimeout time.Duration
	sweepInterval  time.Duration
	batchSize      int
}

func NewReconciler(
	orders order.Repository,
	outboxRepo outbox.Repository,
	tx TransactionManager,
	pendingTimeout, sweepInterval time.Duration,
	batchSize int,
	logger zerolog.Logger,
	metrics *observability.Metrics,
) *Reconciler {
	return &Reconciler{
		orders:         orders,
		outbox:         outboxRepo,
		tx:             tx,
		logger:         logger.With().Str("component", "saga_reconciler").Logger(),
		metrics:        metrics,
		pendingTimeout: pendingTimeout,
		sweepInterval:  sweepInterval,
		batchSize:      batchSize,
	}
}

// Run sweeps until the context is cancelled.
func (r *Reconciler) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.sweepInterval)
	defer ticker.Stop()

	r.logger.Info().Dur("sweep_interval", r.sweepInterval).Msg("saga reconciler started")

	for {
		select {
		case <-ctx.Done():
			r.logger.Info().Msg("saga reconciler stopped")
			return nil
		case <-ticker.C:
			if err := r.Sweep(ctx); err != nil {
				r.logger.Error().Err(err).Msg("reconciliation sweep failed")
			}
		}
	}
}

// Sweep fails every pending order older than the timeout.
func (r *Reconciler) Sweep(ctx context.Context) error {
	cutoff := time.Now().Add(-r.pendingTimeout)
	stale, err := r.orders.ListStalePending(ctx, cutoff, r.batchSize)
	if err != nil {
		return err
	}

	for _, o := range stale {
		if err := r.failOrder(ctx, o.ID); err != nil {
			r.logger.Error().Err(err).Str("order_id", o.ID.String()).Msg("force-fail failed")
		}
	}
	return nil
}

func (r *Reconciler) failOrder(ctx context.Context, orderID uuid.UUID) error {
	return r.tx.WithTransaction(ctx, func(txCtx context.Context) error {
		o, err := r.orders.GetByIDForUpdate(txCtx, orderID)
		if err != nil {
			return err
		}
		// A step outcome may have landed between the list and the lock.
		if o.Status != order.StatusPending {
			return nil
		}

		reason := "order timed out waiting for saga steps"
		o.Steps.FailureReason = &reason
		if err := o.Fail(reason); err != nil {
			return err
		}

		if err := outbox.AppendEvent(txCtx, r.outbox, event.OrderFailed{
			OrderID:        o.ID,
			Reason:         reason,
			CompletedSteps: o.Steps.CompletedSteps(),
		}); err != nil {
			return err
		}
		if err := r.orders.Update(txCtx, o); err != nil {
			return err
		}

		r.metrics.StaleOrdersSwept.Inc()
		r.metrics.OrdersTotal.WithLabelValues(string(order.StatusFailed)).Inc()
		r.logger.Warn().
			Str("order_id", o.ID.String()).
			Strs("completed_steps", o.Steps.CompletedSteps()).
			Msg("force-failed stale pending order")
		return nil
	})
}
