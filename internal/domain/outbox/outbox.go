package outbox

import (
	"context"
	"time"

	"github.com/google/uuid"

	domainErrors "github.com/hyunsookim/commerce/internal/domain/errors"
	"github.com/hyunsookim/commerce/internal/domain/event"
)

// Status of an outbox record.
//
// Transitions: pending → processing → {success | pending (retry) | failed}.
// A record never skips processing, and failed is only reached once the retry
// ceiling is hit.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusSuccess    Status = "success"
	StatusFailed     Status = "failed"
)

const defaultMaxRetries = 3

// Record is one event awaiting relay to the message channel. It is written in
// the same transaction as the state change it describes and mutated only by
// the relay afterwards.
type Record struct {
	ID            uuid.UUID
	EventID       uuid.UUID
	AggregateID   string
	EventType     event.Type
	Payload       []byte
	Status        Status
	RetryCount    int
	MaxRetries    int
	FailedReason  *string
	CreatedAt     time.Time
	LastAttemptAt *time.Time
}

// NewRecord builds a pending record from a wrapped event envelope.
func NewRecord(env event.Envelope) *Record {
	return &Record{
		ID:          uuid.New(),
		EventID:     env.EventID,
		AggregateID: env.AggregateID,
		EventType:   env.Type,
		Payload:     env.Payload,
		Status:      StatusPending,
		MaxRetries:  defaultMaxRetries,
		CreatedAt:   env.OccurredAt,
	}
}

// ApplyRetryCeiling overrides the default retry ceiling. Zero or negative
// keeps the default, so an unset config knob changes nothing.
func (r *Record) ApplyRetryCeiling(n int) {
	if n > 0 {
		r.MaxRetries = n
	}
}

// Envelope reconstructs the wire envelope for publication.
func (r *Record) Envelope() event.Envelope {
	return event.Envelope{
		EventID:     r.EventID,
		Type:        r.EventType,
		AggregateID: r.AggregateID,
		OccurredAt:  r.CreatedAt,
		Payload:     r.Payload,
	}
}

// MarkProcessing claims the record for a relay worker.
func (r *Record) MarkProcessing(now time.Time) error {
	if r.Status != StatusPending && r.Status != StatusProcessing {
		return domainErrors.NewDomainError(
			"invalid_outbox_transition",
			"cannot claim outbox record in status "+string(r.Status),
			domainErrors.ErrInvalidStateTransition,
		)
	}
	r.Status = StatusProcessing
	r.LastAttemptAt = &now
	return nil
}

// MarkSuccess records a successful publish.
func (r *Record) MarkSuccess(now time.Time) {
	r.Status = StatusSuccess
	r.LastAttemptAt = &now
}

// MarkAttemptFailed records a publish failure: the record returns to pending
// for a later tick, or goes to failed once the ceiling is reached.
func (r *Record) MarkAttemptFailed(reason string, now time.Time) {
	r.RetryCount++
	r.FailedReason = &reason
	r.LastAttemptAt = &now
	if r.RetryCount >= r.MaxRetries {
		r.Status = StatusFailed
		return
	}
	r.Status = StatusPending
}

// CanRetry reports whether another publish attempt is allowed.
func (r *Record) CanRetry() bool {
	return r.RetryCount < r.MaxRetries
}

// AppendEvent wraps e in an envelope and appends it as a pending record. Call
// it inside the transaction that performs the matching state change.
func AppendEvent(ctx context.Context, repo Repository, e event.Event) error {
	env, err := event.Wrap(e)
	if err != nil {
		return err
	}
	return repo.Append(ctx, NewRecord(env))
}
