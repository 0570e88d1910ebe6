package account

import (
	"context"

	"github.com/google/uuid"
)

// Repository is the persistence contract for balance accounts and payments.
type Repository interface {
	GetByUserID(ctx context.Context, userID uuid.UUID) (*Account, error)
	// Debit atomically subtracts amount if the balance covers it. Returns
	// ErrInsufficientBalance without mutating otherwise.
	Debit(ctx context.Context, userID uuid.UUID, amount int64) error
	// Credit restores amount (refund/compensation path).
	Credit(ctx context.Context, userID uuid.UUID, amount int64) error

	CreatePayment(ctx context.Context, p *Payment) error
	GetPaymentByOrderID(ctx context.Context, orderID uuid.UUID) (*Payment, error)
	MarkPaymentRefunded(ctx context.Context, id uuid.UUID) error
}
