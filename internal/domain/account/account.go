package account

import (
	"time"

	"github.com/google/uuid"
)

// Account holds a user's prepaid balance in the smallest currency unit.
// Debits and refunds go through atomic repository operations keyed by order
// id, which makes the payment step replay-safe.
type Account struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	Balance   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// PaymentStatus of a balance payment.
type PaymentStatus string

const (
	PaymentCompleted PaymentStatus = "completed"
	PaymentRefunded  PaymentStatus = "refunded"
)

// Payment records one balance debit for an order. The unique order id is the
// idempotency marker: a redelivered OrderCreated finds the row and re-emits
// the outcome instead of debiting twice.
type Payment struct {
	ID         uuid.UUID
	OrderID    uuid.UUID
	UserID     uuid.UUID
	Amount     int64
	Status     PaymentStatus
	CreatedAt  time.Time
	RefundedAt *time.Time
}

func NewPayment(orderID, userID uuid.UUID, amount int64) *Payment {
	return &Payment{
		ID:        uuid.New(),
		OrderID:   orderID,
		UserID:    userID,
		Amount:    amount,
		Status:    PaymentCompleted,
		CreatedAt: time.Now(),
	}
}
