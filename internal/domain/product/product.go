package product

import (
	"time"

	"github.com/google/uuid"

	domainErrors "github.com/hyunsookim/commerce/internal/domain/errors"
)

// Product is a catalog entry with its remaining stock counter. The counter is
// contended shared state: all mutations go through atomic repository
// operations, never read-modify-write in application code.
type Product struct {
	ID        uuid.UUID
	Name      string
	Price     int64
	Stock     int
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ValidateStock is the checkout fast-fail check. The authoritative check is
// the atomic decrement at reservation time.
func (p *Product) ValidateStock(quantity int) error {
	if quantity <= 0 {
		return domainErrors.ErrInvalidInput
	}
	if p.Stock < quantity {
		return domainErrors.NewDomainError(
			"insufficient_stock",
			"insufficient stock for product "+p.ID.String(),
			domainErrors.ErrInsufficientStock,
		)
	}
	return nil
}

// ReservationItem is one reserved line of an order.
type ReservationItem struct {
	ProductID uuid.UUID
	Quantity  int
}

// Reservation records the stock held for an order. It is the resource id
// carried on StockReserved and the undo-list for compensation.
type Reservation struct {
	ID        uuid.UUID
	OrderID   uuid.UUID
	Items     []ReservationItem
	Released  bool
	CreatedAt time.Time
}

func NewReservation(orderID uuid.UUID, items []ReservationItem) *Reservation {
	return &Reservation{
		ID:        uuid.New(),
		OrderID:   orderID,
		Items:     items,
		CreatedAt: time.Now(),
	}
}
