package product

import (
	"context"

	"github.com/google/uuid"
)

// Repository is the persistence contract for products and stock reservations.
type Repository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*Product, error)
	GetByIDs(ctx context.Context, ids []uuid.UUID) ([]*Product, error)
	// DecrementStock atomically subtracts quantity if enough stock remains.
	// Returns ErrInsufficientStock without mutating otherwise.
	DecrementStock(ctx context.Context, id uuid.UUID, quantity int) error
	// IncrementStock restores quantity (compensation path).
	IncrementStock(ctx context.Context, id uuid.UUID, quantity int) error

	CreateReservation(ctx context.Context, r *Reservation) error
	GetReservationByOrderID(ctx context.Context, orderID uuid.UUID) (*Reservation, error)
	MarkReservationReleased(ctx context.Context, id uuid.UUID) error
	// DeleteReservation removes a reservation for good once its order is
	// confirmed. Deleting a missing reservation is a no-op.
	DeleteReservation(ctx context.Context, id uuid.UUID) error
}
