// Package saga implements the order checkout choreography. Each participant
// reacts to OrderCreated by reserving its resource and reporting the outcome;
// the coordinator folds outcomes into the order and emits exactly one terminal
// event. Compensation is driven by the completed-steps snapshot carried on
// OrderFailed.
package saga

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// TransactionManager runs fn inside one database transaction.
type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// ProcessedMarker is the consumer-side dedupe table. MarkProcessed returns
// false when the (group, event) pair was already recorded, meaning the effect
// ran in an earlier delivery.
type ProcessedMarker interface {
	MarkProcessed(ctx context.Context, group string, eventID uuid.UUID) (bool, error)
}

// errAlreadyProcessed aborts a handler transaction when the dedupe marker
// shows a duplicate delivery. It never escapes the package.
var errAlreadyProcessed = errors.New("event already processed")
