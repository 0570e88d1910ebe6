package order

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Repository is the persistence contract for orders.
type Repository interface {
	Create(ctx context.Context, o *Order) error
	GetByID(ctx context.Context, id uuid.UUID) (*Order, error)
	// GetByIDForUpdate locks the order row for the duration of the enclosing
	// transaction. The coordinator uses it so concurrent step-outcome events
	// for the same order serialize on the row.
	GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*Order, error)
	Update(ctx context.Context, o *Order) error
	ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*Order, error)
	// ListStalePending returns pending orders created before the cutoff, for
	// the reconciliation sweep.
	ListStalePending(ctx context.Context, cutoff time.Time, limit int) ([]*Order, error)
}
