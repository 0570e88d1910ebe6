package checkout

import (
	"context"

	"github.com/google/uuid"

	"github.com/hyunsookim/commerce/internal/domain/order"
)

// GetOrderUseCase answers order status queries.
type GetOrderUseCase struct {
	orders order.Repository
}

func NewGetOrderUseCase(orders order.Repository) *GetOrderUseCase {
	return &GetOrderUseCase{orders: orders}
}

func (uc *GetOrderUseCase) Execute(ctx context.Context, id uuid.UUID) (*order.Order, error) {
	return uc.orders.GetByID(ctx, id)
}

func (uc *GetOrderUseCase) ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*order.Order, error) {
	return uc.orders.ListByUser(ctx, userID, limit, offset)
}
