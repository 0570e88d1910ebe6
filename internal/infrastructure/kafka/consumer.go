package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"github.com/hyunsookim/commerce/internal/domain/event"
	"github.com/hyunsookim/commerce/internal/infrastructure/config"
)

// Handler processes one decoded envelope. Returning an error leaves the
// message uncommitted so the group redelivers it; handlers therefore swallow
// business failures after recording them and only return transport errors.
type Handler func(ctx context.Context, env event.Envelope) error

// Consumer reads one topic for one consumer group and dispatches to a Handler.
type Consumer struct {
	reader  *kafka.Reader
	handler Handler
	logger  zerolog.Logger
}

func NewConsumer(cfg *config.KafkaConfig, topic, groupID string, handler Handler, logger zerolog.Logger) *Consumer {
	minBytes := cfg.MinBytes
	if minBytes <= 0 {
		minBytes = 1
	}
	maxBytes := cfg.MaxBytes
	if maxBytes <= 0 {
		maxBytes = 10e6
	}
	return &Consumer{
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers:  cfg.Brokers,
			Topic:    topic,
			GroupID:  groupID,
			MinBytes: minBytes,
			MaxBytes: maxBytes,
		}),
		handler: handler,
		logger:  logger.With().Str("topic", topic).Str("group", groupID).Logger(),
	}
}

// Run consumes until the context is cancelled. Offsets are committed only
// after the handler succeeds, giving at-least-once delivery.
func (c *Consumer) Run(ctx context.Context) error {
	defer c.reader.Close()

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			return fmt.Errorf("fetch message: %w", err)
		}

		var env event.Envelope
		if err := json.Unmarshal(msg.Value, &env); err != nil {
			// Malformed payloads never become valid on redelivery.
			c.logger.Error().Err(err).Int64("offset", msg.Offset).Msg("dropping undecodable message")
			if err := c.reader.CommitMessages(ctx, msg); err != nil {
				return fmt.Errorf("commit message: %w", err)
			}
			continue
		}

		if err := c.handler(ctx, env); err != nil {
			c.logger.Error().Err(err).
				Str("event_id", env.EventID.String()).
				Str("event_type", string(env.Type)).
				Msg("handler failed, message will be redelivered")
			continue
		}

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			return fmt.Errorf("commit message: %w", err)
		}
	}
}
