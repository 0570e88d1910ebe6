// Package relay moves committed outbox records onto the message channel. It is
// the only publisher in the system: everything on the wire went through a
// database transaction first.
package relay

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"

	"github.com/hyunsookim/commerce/internal/domain/event"
	"github.com/hyunsookim/commerce/internal/domain/outbox"
	"github.com/hyunsookim/commerce/internal/infrastructure/config"
	"github.com/hyunsookim/commerce/internal/infrastructure/observability"
)

// Publisher sends one envelope to the message channel.
type Publisher interface {
	PublishEnvelope(ctx context.Context, env event.Envelope) error
}

// Relay polls the outbox and publishes due records in (aggregate, created_at)
// order. Delivery is at least once: a crash between publish and MarkSuccess
// republishes the record, and consumers dedupe on event id.
type Relay struct {
	repo      outbox.Repository
	publisher Publisher
	breaker   *gobreaker.CircuitBreaker[any]
	logger    zerolog.Logger
	metrics   *observability.Metrics

	pollInterval time.Duration
	batchSize    int
}

func New(
	repo outbox.Repository,
	publisher Publisher,
	cfg *config.RelayConfig,
	logger zerolog.Logger,
	metrics *observability.Metrics,
) *Relay {
	threshold := uint32(cfg.CircuitBreakerThreshold)
	breaker := gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:    "outbox-publisher",
		Timeout: cfg.CircuitBreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
	})
	return &Relay{
		repo:         repo,
		publisher:    publisher,
		breaker:      breaker,
		logger:       logger.With().Str("component", "outbox_relay").Logger(),
		metrics:      metrics,
		pollInterval: cfg.PollInterval,
		batchSize:    cfg.BatchSize,
	}
}

// Run polls until the context is cancelled.
func (r *Relay) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.pollInterval)
	defer ticker.Stop()

	r.logger.Info().Dur("poll_interval", r.pollInterval).Msg("outbox relay started")

	for {
		select {
		case <-ctx.Done():
			r.logger.Info().Msg("outbox relay stopped")
			return nil
		case <-ticker.C:
			if err := r.ProcessBatch(ctx); err != nil {
				r.logger.Error().Err(err).Msg("relay batch failed")
			}
			r.observeBacklog(ctx)
		}
	}
}

// ProcessBatch claims one batch and publishes it. A publish failure for an
// aggregate skips that aggregate's remaining records in the batch, so a
// retried event can never overtake a later one with the same key.
func (r *Relay) ProcessBatch(ctx context.Context) error {
	start := time.Now()
	defer func() {
		r.metrics.RelayBatchDuration.Observe(time.Since(start).Seconds())
	}()

	records, err := r.repo.ClaimPending(ctx, r.batchSize)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		return nil
	}

	blocked := make(map[string]bool)
	for _, rec := range records {
		if blocked[rec.AggregateID] {
			if err := r.repo.Requeue(ctx, rec.ID); err != nil {
				r.logger.Error().Err(err).Str("record_id", rec.ID.String()).Msg("requeue failed")
			}
			continue
		}

		if err := r.publish(ctx, rec); err != nil {
			blocked[rec.AggregateID] = true
			r.metrics.OutboxPublishErrors.WithLabelValues(string(rec.EventType)).Inc()
			r.logger.Warn().Err(err).
				Str("record_id", rec.ID.String()).
				Str("aggregate_id", rec.AggregateID).
				Str("event_type", string(rec.EventType)).
				Int("retry_count", rec.RetryCount).
				Msg("publish failed")
			if err := r.repo.MarkAttemptFailed(ctx, rec.ID, err.Error()); err != nil {
				r.logger.Error().Err(err).Str("record_id", rec.ID.String()).Msg("mark attempt failed")
			}
			continue
		}

		if err := r.repo.MarkSuccess(ctx, rec.ID); err != nil {
			// The event is on the wire; the record will be republished and
			// consumers drop the duplicate.
			r.logger.Error().Err(err).Str("record_id", rec.ID.String()).Msg("mark success failed")
			continue
		}
		r.metrics.OutboxPublished.WithLabelValues(string(rec.EventType)).Inc()
	}
	return nil
}

func (r *Relay) publish(ctx context.Context, rec *outbox.Record) error {
	_, err := r.breaker.Execute(func() (any, error) {
		return nil, r.publisher.PublishEnvelope(ctx, rec.Envelope())
	})
	return err
}

func (r *Relay) observeBacklog(ctx context.Context) {
	for _, status := range []outbox.Status{outbox.StatusPending, outbox.StatusProcessing, outbox.StatusFailed} {
		n, err := r.repo.CountByStatus(ctx, status)
		if err != nil {
			return
		}
		r.metrics.OutboxBacklog.WithLabelValues(string(status)).Set(float64(n))
	}
}
