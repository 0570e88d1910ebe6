package saga

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	domainErrors "github.com/hyunsookim/commerce/internal/domain/errors"
	"github.com/hyunsookim/commerce/internal/domain/event"
	"github.com/hyunsookim/commerce/internal/domain/order"
	"github.com/hyunsookim/commerce/internal/domain/outbox"
	"github.com/hyunsookim/commerce/internal/infrastructure/observability"
)

// Coordinator consumes step-outcome events and advances the order. All
// decisions happen under the order's row lock, so concurrent outcomes for the
// same order serialize and the order emits exactly one terminal event.
type Coordinator struct {
	group   string
	orders  order.Repository
	outbox  outbox.Repository
	marker  ProcessedMarker
	tx      TransactionManager
	logger  zerolog.Logger
	metrics *observability.Metrics
}

func NewCoordinator(
	group string,
	orders order.Repository,
	outboxRepo outbox.Repository,
	marker ProcessedMarker,
	tx TransactionManager,
	logger zerolog.Logger,
	metrics *observability.Metrics,
) *Coordinator {
	return &Coordinator{
		group:   group,
		orders:  orders,
		outbox:  outboxRepo,
		marker:  marker,
		tx:      tx,
		logger:  logger.With().Str("component", "saga_coordinator").Logger(),
		metrics: metrics,
	}
}

// HandleEnvelope dispatches one step-outcome event.
func (c *Coordinator) HandleEnvelope(ctx context.Context, env event.Envelope) error {
	e, err := env.Decode()
	if err != nil {
		c.logger.Error().Err(err).Str("event_id", env.EventID.String()).Msg("dropping undecodable event")
		return nil
	}

	switch ev := e.(type) {
	case event.StockReserved:
		return c.applySuccess(ctx, env.EventID, ev.OrderID, event.StepStock, func(o *order.Order) {
			o.Steps.MarkStockReserved(ev.ReservationID)
		})
	case event.PaymentCompleted:
		return c.applySuccess(ctx, env.EventID, ev.OrderID, event.StepPayment, func(o *order.Order) {
			o.Steps.MarkPaymentCompleted(ev.PaymentID)
		})
	case event.CouponUsed:
		return c.applySuccess(ctx, env.EventID, ev.OrderID, event.StepCoupon, func(o *order.Order) {
			o.Steps.MarkCouponUsed(ev.UserCouponID)
		})
	case event.StockReservationFailed:
		return c.applyFailure(ctx, env.EventID, ev.OrderID, event.StepStock, ev.Reason)
	case event.PaymentFailed:
		return c.applyFailure(ctx, env.EventID, ev.OrderID, event.StepPayment, ev.Reason)
	case event.CouponUsageFailed:
		return c.applyFailure(ctx, env.EventID, ev.OrderID, event.StepCoupon, ev.Reason)
	default:
		c.logger.Warn().Str("event_type", string(env.Type)).Msg("unexpected event for coordinator")
		return nil
	}
}

func (c *Coordinator) applySuccess(ctx context.Context, eventID, orderID uuid.UUID, step string, apply func(*order.Order)) error {
	err := c.tx.WithTransaction(ctx, func(txCtx context.Context) error {
		fresh, err := c.marker.MarkProcessed(txCtx, c.group, eventID)
		if err != nil {
			return err
		}
		if !fresh {
			return errAlreadyProcessed
		}

		o, err := c.orders.GetByIDForUpdate(txCtx, orderID)
		if err != nil {
			return err
		}
		if o.IsTerminal() {
			// Late outcome for a finished saga: keep the marker, change nothing.
			c.logger.Debug().
				Str("order_id", orderID.String()).
				Str("step", step).
				Str("status", string(o.Status)).
				Msg("ignoring step outcome for terminal order")
			return nil
		}

		apply(o)

		if o.Steps.AllCompleted() {
			if err := o.Confirm(); err != nil {
				return err
			}
			if err := outbox.AppendEvent(txCtx, c.outbox, event.OrderConfirmed{
				OrderID: o.ID,
				Steps:   o.Steps.Snapshot(),
			}); err != nil {
				return err
			}
			c.metrics.OrdersTotal.WithLabelValues(string(order.StatusConfirmed)).Inc()
		}

		return c.orders.Update(txCtx, o)
	})
	if errors.Is(err, errAlreadyProcessed) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("apply %s success for order %s: %w", step, orderID, err)
	}
	c.metrics.SagaStepOutcomes.WithLabelValues(step, "success").Inc()
	return nil
}

func (c *Coordinator) applyFailure(ctx context.Context, eventID, orderID uuid.UUID, step, reason string) error {
	err := c.tx.WithTransaction(ctx, func(txCtx context.Context) error {
		fresh, err := c.marker.MarkProcessed(txCtx, c.group, eventID)
		if err != nil {
			return err
		}
		if !fresh {
			return errAlreadyProcessed
		}

		o, err := c.orders.GetByIDForUpdate(txCtx, orderID)
		if err != nil {
			return err
		}
		if o.IsTerminal() {
			c.logger.Debug().
				Str("order_id", orderID.String()).
				Str("step", step).
				Str("status", string(o.Status)).
				Msg("ignoring step failure for terminal order")
			return nil
		}

		o.Steps.MarkStepFailed(step, reason)
		if err := o.Fail(reason); err != nil {
			return err
		}

		// The completed-steps snapshot is the compensation instruction:
		// participants listed here undo their reservation, no one else acts.
		if err := outbox.AppendEvent(txCtx, c.outbox, event.OrderFailed{
			OrderID:        o.ID,
			Reason:         reason,
			CompletedSteps: o.Steps.CompletedSteps(),
		}); err != nil {
			return err
		}
		c.metrics.OrdersTotal.WithLabelValues(string(order.StatusFailed)).Inc()

		return c.orders.Update(txCtx, o)
	})
	if errors.Is(err, errAlreadyProcessed) {
		return nil
	}
	if err != nil {
		var de *domainErrors.DomainError
		if errors.As(err, &de) {
			c.logger.Warn().Err(err).Str("order_id", orderID.String()).Msg("failure event not applicable")
			return nil
		}
		return fmt.Errorf("apply %s failure for order %s: %w", step, orderID, err)
	}
	c.metrics.SagaStepOutcomes.WithLabelValues(step, "failure").Inc()
	return nil
}
