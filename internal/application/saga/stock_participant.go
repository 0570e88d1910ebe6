package saga

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	domainErrors "github.com/hyunsookim/commerce/internal/domain/errors"
	"github.com/hyunsookim/commerce/internal/domain/event"
	"github.com/hyunsookim/commerce/internal/domain/outbox"
	"github.com/hyunsookim/commerce/internal/domain/product"
	"github.com/hyunsookim/commerce/internal/infrastructure/observability"
)

// StockParticipant owns the stock step: it reserves stock on OrderCreated,
// removes the reservation on OrderConfirmed, and restores the stock when
// OrderFailed names STOCK among the completed steps.
type StockParticipant struct {
	group    string
	products product.Repository
	outbox   outbox.Repository
	marker   ProcessedMarker
	tx       TransactionManager
	logger   zerolog.Logger
	metrics  *observability.Metrics
}

func NewStockParticipant(
	group string,
	products product.Repository,
	outboxRepo outbox.Repository,
	marker ProcessedMarker,
	tx TransactionManager,
	logger zerolog.Logger,
	metrics *observability.Metrics,
) *StockParticipant {
	return &StockParticipant{
		group:    group,
		products: products,
		outbox:   outboxRepo,
		marker:   marker,
		tx:       tx,
		logger:   logger.With().Str("component", "stock_participant").Logger(),
		metrics:  metrics,
	}
}

// HandleEnvelope dispatches OrderCreated, OrderConfirmed and OrderFailed
// events.
func (p *StockParticipant) HandleEnvelope(ctx context.Context, env event.Envelope) error {
	e, err := env.Decode()
	if err != nil {
		p.logger.Error().Err(err).Str("event_id", env.EventID.String()).Msg("dropping undecodable event")
		return nil
	}

	switch ev := e.(type) {
	case event.OrderCreated:
		return p.reserve(ctx, env, ev)
	case event.OrderConfirmed:
		return p.finalize(ctx, env, ev)
	case event.OrderFailed:
		return p.compensate(ctx, env, ev)
	default:
		return nil
	}
}

func (p *StockParticipant) reserve(ctx context.Context, env event.Envelope, ev event.OrderCreated) error {
	err := p.tx.WithTransaction(ctx, func(txCtx context.Context) error {
		fresh, err := p.marker.MarkProcessed(txCtx, p.group, env.EventID)
		if err != nil {
			return err
		}
		if !fresh {
			return errAlreadyProcessed
		}

		items := make([]product.ReservationItem, len(ev.Items))
		for i, it := range ev.Items {
			if err := p.products.DecrementStock(txCtx, it.ProductID, it.Quantity); err != nil {
				return err
			}
			items[i] = product.ReservationItem{ProductID: it.ProductID, Quantity: it.Quantity}
		}

		res := product.NewReservation(ev.OrderID, items)
		if err := p.products.CreateReservation(txCtx, res); err != nil {
			return err
		}

		return outbox.AppendEvent(txCtx, p.outbox, event.StockReserved{
			OrderID:       ev.OrderID,
			ReservationID: res.ID,
		})
	})
	if errors.Is(err, errAlreadyProcessed) {
		return nil
	}
	if err == nil {
		p.metrics.SagaStepOutcomes.WithLabelValues(event.StepStock, "reserved").Inc()
		return nil
	}
	if domainErrors.IsBusiness(err) || errors.Is(err, domainErrors.ErrProductNotFound) {
		// The reservation rolled back; record the refusal durably instead.
		return p.reportFailure(ctx, env, ev, err)
	}
	return fmt.Errorf("reserve stock for order %s: %w", ev.OrderID, err)
}

// reportFailure commits the dedupe marker together with the failure event, in
// a fresh transaction since the reservation attempt rolled back.
func (p *StockParticipant) reportFailure(ctx context.Context, env event.Envelope, ev event.OrderCreated, cause error) error {
	err := p.tx.WithTransaction(ctx, func(txCtx context.Context) error {
		fresh, err := p.marker.MarkProcessed(txCtx, p.group, env.EventID)
		if err != nil {
			return err
		}
		if !fresh {
			return errAlreadyProcessed
		}
		return outbox.AppendEvent(txCtx, p.outbox, event.StockReservationFailed{
			OrderID: ev.OrderID,
			Reason:  cause.Error(),
		})
	})
	if errors.Is(err, errAlreadyProcessed) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("report stock failure for order %s: %w", ev.OrderID, err)
	}
	p.metrics.SagaStepOutcomes.WithLabelValues(event.StepStock, "refused").Inc()
	p.logger.Info().Str("order_id", ev.OrderID.String()).Str("reason", cause.Error()).Msg("stock reservation refused")
	return nil
}

// finalize deletes the reservation once the order is confirmed: the stock is
// spent, and a lingering reservation must never be restored by a later
// compensation replay.
func (p *StockParticipant) finalize(ctx context.Context, env event.Envelope, ev event.OrderConfirmed) error {
	err := p.tx.WithTransaction(ctx, func(txCtx context.Context) error {
		fresh, err := p.marker.MarkProcessed(txCtx, p.group, env.EventID)
		if err != nil {
			return err
		}
		if !fresh {
			return errAlreadyProcessed
		}

		id := ev.Steps.StockReservationID
		if id == nil {
			// Events written before the snapshot carried ids fall back to the
			// order lookup.
			res, err := p.products.GetReservationByOrderID(txCtx, ev.OrderID)
			if err != nil {
				if errors.Is(err, domainErrors.ErrReservationNotFound) {
					return nil
				}
				return err
			}
			id = &res.ID
		}
		return p.products.DeleteReservation(txCtx, *id)
	})
	if errors.Is(err, errAlreadyProcessed) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("finalize stock for order %s: %w", ev.OrderID, err)
	}
	p.metrics.SagaStepOutcomes.WithLabelValues(event.StepStock, "finalized").Inc()
	return nil
}

func (p *StockParticipant) compensate(ctx context.Context, env event.Envelope, ev event.OrderFailed) error {
	if !containsStep(ev.CompletedSteps, event.StepStock) {
		return nil
	}

	err := p.tx.WithTransaction(ctx, func(txCtx context.Context) error {
		fresh, err := p.marker.MarkProcessed(txCtx, p.group, env.EventID)
		if err != nil {
			return err
		}
		if !fresh {
			return errAlreadyProcessed
		}

		res, err := p.products.GetReservationByOrderID(txCtx, ev.OrderID)
		if err != nil {
			if errors.Is(err, domainErrors.ErrReservationNotFound) {
				return nil
			}
			return err
		}

		// The released flag makes this at-most-once even across redeliveries
		// that slipped past the marker.
		if err := p.products.MarkReservationReleased(txCtx, res.ID); err != nil {
			if errors.Is(err, domainErrors.ErrInvalidStateTransition) {
				return nil
			}
			return err
		}
		for _, it := range res.Items {
			if err := p.products.IncrementStock(txCtx, it.ProductID, it.Quantity); err != nil {
				return err
			}
		}
		return nil
	})
	if errors.Is(err, errAlreadyProcessed) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("compensate stock for order %s: %w", ev.OrderID, err)
	}
	p.metrics.CompensationsRun.WithLabelValues(event.StepStock).Inc()
	return nil
}

func containsStep(steps []string, step string) bool {
	for _, s := range steps {
		if s == step {
			return true
		}
	}
	return false
}
