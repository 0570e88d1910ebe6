package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/hyunsookim/commerce/internal/domain/event"
	"github.com/hyunsookim/commerce/internal/infrastructure/config"
)

// Publisher writes event envelopes to Kafka. Messages are keyed by aggregate
// id with a hash balancer, so all events of one order (or one coupon) land on
// the same partition and consumers see them in publication order.
type Publisher struct {
	writer *kafka.Writer
}

func NewPublisher(cfg *config.KafkaConfig) *Publisher {
	return &Publisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(cfg.Brokers...),
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
			WriteTimeout: cfg.WriteTimeout,
		},
	}
}

// PublishEnvelope sends the envelope to the topic derived from its event type.
func (p *Publisher) PublishEnvelope(ctx context.Context, env event.Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}
	msg := kafka.Message{
		Topic: event.Topic(env.Type),
		Key:   []byte(env.AggregateID),
		Value: data,
		Time:  time.Now().UTC(),
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("write message to %s: %w", msg.Topic, err)
	}
	return nil
}

func (p *Publisher) Close() error {
	return p.writer.Close()
}
