package saga

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/hyunsookim/commerce/internal/domain/account"
	domainErrors "github.com/hyunsookim/commerce/internal/domain/errors"
	"github.com/hyunsookim/commerce/internal/domain/event"
	"github.com/hyunsookim/commerce/internal/domain/outbox"
	"github.com/hyunsookim/commerce/internal/infrastructure/observability"
)

// PaymentParticipant owns the payment step: it debits the buyer's balance for
// the final amount on OrderCreated and refunds it when OrderFailed names
// PAYMENT among the completed steps.
type PaymentParticipant struct {
	group    string
	accounts account.Repository
	outbox   outbox.Repository
	marker   ProcessedMarker
	tx       TransactionManager
	logger   zerolog.Logger
	metrics  *observability.Metrics
}

func NewPaymentParticipant(
	group string,
	accounts account.Repository,
	outboxRepo outbox.Repository,
	marker ProcessedMarker,
	tx TransactionManager,
	logger zerolog.Logger,
	metrics *observability.Metrics,
) *PaymentParticipant {
	return &PaymentParticipant{
		group:    group,
		accounts: accounts,
		outbox:   outboxRepo,
		marker:   marker,
		tx:       tx,
		logger:   logger.With().Str("component", "payment_participant").Logger(),
		metrics:  metrics,
	}
}

func (p *PaymentParticipant) HandleEnvelope(ctx context.Context, env event.Envelope) error {
	e, err := env.Decode()
	if err != nil {
		p.logger.Error().Err(err).Str("event_id", env.EventID.String()).Msg("dropping undecodable event")
		return nil
	}

	switch ev := e.(type) {
	case event.OrderCreated:
		return p.charge(ctx, env, ev)
	case event.OrderConfirmed:
		return p.settle(ctx, env, ev)
	case event.OrderFailed:
		return p.refund(ctx, env, ev)
	default:
		return nil
	}
}

// settle closes the payment step for a confirmed order. The balance was
// already debited at charge time, so only the dedupe marker is written; the
// marker keeps a late OrderConfirmed redelivery from being mistaken for an
// unhandled event.
func (p *PaymentParticipant) settle(ctx context.Context, env event.Envelope, ev event.OrderConfirmed) error {
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
		return fmt.Errorf("settle payment for order %s: %w", ev.OrderID, err)
	}
	p.metrics.SagaStepOutcomes.WithLabelValues(event.StepPayment, "settled").Inc()
	p.logger.Debug().Str("order_id", ev.OrderID.String()).Msg("payment settled")
	return nil
}

func (p *PaymentParticipant) charge(ctx context.Context, env event.Envelope, ev event.OrderCreated) error {
	var payment *account.Payment
	err := p.tx.WithTransaction(ctx, func(txCtx context.Context) error {
		fresh, err := p.marker.MarkProcessed(txCtx, p.group, env.EventID)
		if err != nil {
			return err
		}
		if !fresh {
			return errAlreadyProcessed
		}

		if err := p.accounts.Debit(txCtx, ev.UserID, ev.FinalAmount); err != nil {
			return err
		}

		payment = account.NewPayment(ev.OrderID, ev.UserID, ev.FinalAmount)
		if err := p.accounts.CreatePayment(txCtx, payment); err != nil {
			return err
		}

		return outbox.AppendEvent(txCtx, p.outbox, event.PaymentCompleted{
			OrderID:   ev.OrderID,
			PaymentID: payment.ID,
			Amount:    payment.Amount,
		})
	})
	if errors.Is(err, errAlreadyProcessed) {
		return nil
	}
	if err == nil {
		p.metrics.SagaStepOutcomes.WithLabelValues(event.StepPayment, "charged").Inc()
		return nil
	}
	if domainErrors.IsBusiness(err) || errors.Is(err, domainErrors.ErrAccountNotFound) {
		return p.reportFailure(ctx, env, ev, err)
	}
	return fmt.Errorf("charge payment for order %s: %w", ev.OrderID, err)
}

func (p *PaymentParticipant) reportFailure(ctx context.Context, env event.Envelope, ev event.OrderCreated, cause error) error {
	err := p.tx.WithTransaction(ctx, func(txCtx context.Context) error {
		fresh, err := p.marker.MarkProcessed(txCtx, p.group, env.EventID)
		if err != nil {
			return err
		}
		if !fresh {
			return errAlreadyProcessed
		}
		return outbox.AppendEvent(txCtx, p.outbox, event.PaymentFailed{
			OrderID: ev.OrderID,
			Reason:  cause.Error(),
		})
	})
	if errors.Is(err, errAlreadyProcessed) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("report payment failure for order %s: %w", ev.OrderID, err)
	}
	p.metrics.SagaStepOutcomes.WithLabelValues(event.StepPayment, "refused").Inc()
	p.logger.Info().Str("order_id", ev.OrderID.String()).Str("reason", cause.Error()).Msg("payment refused")
	return nil
}

func (p *PaymentParticipant) refund(ctx context.Context, env event.Envelope, ev event.OrderFailed) error {
	if !containsStep(ev.CompletedSteps, event.StepPayment) {
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

		payment, err := p.accounts.GetPaymentByOrderID(txCtx, ev.OrderID)
		if err != nil {
			if errors.Is(err, domainErrors.ErrPaymentNotFound) {
				return nil
			}
			return err
		}

		// Conditional on completed status, so at most one refund ever runs.
		if err := p.accounts.MarkPaymentRefunded(txCtx, payment.ID); err != nil {
			if errors.Is(err, domainErrors.ErrInvalidStateTransition) {
				return nil
			}
			return err
		}
		return p.accounts.Credit(txCtx, payment.UserID, payment.Amount)
	})
	if errors.Is(err, errAlreadyProcessed) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("refund payment for order %s: %w", ev.OrderID, err)
	}
	p.metrics.CompensationsRun.WithLabelValues(event.StepPayment).Inc()
	return nil
}
