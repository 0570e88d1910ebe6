package saga

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/hyunsookim/commerce/internal/domain/coupon"
	domainErrors "github.com/hyunsookim/commerce/internal/domain/errors"
	"github.com/hyunsookim/commerce/internal/domain/event"
	"github.com/hyunsookim/commerce/internal/domain/outbox"
	"github.com/hyunsookim/commerce/internal/infrastructure/observability"
)

// CouponParticipant owns the coupon step. Orders without a coupon pass the
// step immediately; orders with one consume it exactly once and give it back
// when OrderFailed names COUPON among the completed steps.
type CouponParticipant struct {
	group   string
	coupons coupon.Repository
	outbox  outbox.Repository
	marker  ProcessedMarker
	tx      TransactionManager
	logger  zerolog.Logger
	metrics *observability.Metrics
}

func NewCouponParticipant(
	group string,
	coupons coupon.Repository,
	outboxRepo outbox.Repository,
	marker ProcessedMarker,
	tx TransactionManager,
	logger zerolog.Logger,
	metrics *observability.Metrics,
) *CouponParticipant {
	return &CouponParticipant{
		group:   group,
		coupons: coupons,
		outbox:  outboxRepo,
		marker:  marker,
		tx:      tx,
		logger:  logger.With().Str("component", "coupon_participant").Logger(),
		metrics: metrics,
	}
}

func (p *CouponParticipant) HandleEnvelope(ctx context.Context, env event.Envelope) error {
	e, err := env.Decode()
	if err != nil {
		p.logger.Error().Err(err).Str("event_id", env.EventID.String()).Msg("dropping undecodable event")
		return nil
	}

	switch ev := e.(type) {
	case event.OrderCreated:
		return p.use(ctx, env, ev)
	case event.OrderConfirmed:
		return p.confirm(ctx, env, ev)
	case event.OrderFailed:
		return p.restore(ctx, env, ev)
	default:
		return nil
	}
}

// confirm closes the coupon step for a confirmed order. The coupon was marked
// used at consumption time and stays that way; only the dedupe marker is
// written.
func (p *CouponParticipant) confirm(ctx context.Context, env event.Envelope, ev event.OrderConfirmed) error {
	err := p.tx.WithTransaction(ctx, func(txCtx context.Context) error {
		fresh, err := p.marker.MarkProcessed(txCtx, p.group, env.EventID)
		if err != nil {
			return err
		}
		if !fresh {
			return errAlreadyProcessed
		}
		return nil
	})
	if errors.Is(err, errAlreadyProcessed) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("confirm coupon for order %s: %w", ev.OrderID, err)
	}
	p.metrics.SagaStepOutcomes.WithLabelValues(event.StepCoupon, "confirmed").Inc()
	p.logger.Debug().Str("order_id", ev.OrderID.String()).Msg("coupon usage confirmed")
	return nil
}

func (p *CouponParticipant) use(ctx context.Context, env event.Envelope, ev event.OrderCreated) error {
	err := p.tx.WithTransaction(ctx, func(txCtx context.Context) error {
		fresh, err := p.marker.MarkProcessed(txCtx, p.group, env.EventID)
		if err != nil {
			return err
		}
		if !fresh {
			return errAlreadyProcessed
		}

		if ev.UserCouponID != nil {
			uc, err := p.coupons.GetUserCouponByID(txCtx, *ev.UserCouponID)
			if err != nil {
				return err
			}
			if uc.UserID != ev.UserID {
				return domainErrors.ErrCouponNotIssued
			}
			if err := p.coupons.MarkUsed(txCtx, uc.ID, ev.OrderID); err != nil {
				return err
			}
		}

		return outbox.AppendEvent(txCtx, p.outbox, event.CouponUsed{
			OrderID:      ev.OrderID,
			UserCouponID: ev.UserCouponID,
		})
	})
	if errors.Is(err, errAlreadyProcessed) {
		return nil
	}
	if err == nil {
		p.metrics.SagaStepOutcomes.WithLabelValues(event.StepCoupon, "used").Inc()
		return nil
	}
	if domainErrors.IsBusiness(err) || errors.Is(err, domainErrors.ErrCouponNotFound) {
		return p.reportFailure(ctx, env, ev, err)
	}
	return fmt.Errorf("use coupon for order %s: %w", ev.OrderID, err)
}

func (p *CouponParticipant) reportFailure(ctx context.Context, env event.Envelope, ev event.OrderCreated, cause error) error {
	err := p.tx.WithTransaction(ctx, func(txCtx context.Context) error {
		fresh, err := p.marker.MarkProcessed(txCtx, p.group, env.EventID)
		if err != nil {
			return err
		}
		if !fresh {
			return errAlreadyProcessed
		}
		return outbox.AppendEvent(txCtx, p.outbox, event.CouponUsageFailed{
			OrderID: ev.OrderID,
			Reason:  cause.Error(),
		})
	})
	if errors.Is(err, errAlreadyProcessed) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("report coupon failure for order %s: %w", ev.OrderID, err)
	}
	p.metrics.SagaStepOutcomes.WithLabelValues(event.StepCoupon, "refused").Inc()
	p.logger.Info().Str("order_id", ev.OrderID.String()).Str("reason", cause.Error()).Msg("coupon usage refused")
	return nil
}

func (p *CouponParticipant) restore(ctx context.Context, env event.Envelope, ev event.OrderFailed) error {
	if !containsStep(ev.CompletedSteps, event.StepCoupon) {
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
		// No-op for orders that passed the step without a coupon.
		return p.coupons.RestoreByOrder(txCtx, ev.OrderID)
	})
	if errors.Is(err, errAlreadyProcessed) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("restore coupon for order %s: %w", ev.OrderID, err)
	}
	p.metrics.CompensationsRun.WithLabelValues(event.StepCoupon).Inc()
	return nil
}
