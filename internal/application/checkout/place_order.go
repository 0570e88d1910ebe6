// Package checkout holds the synchronous order-facing use cases. Placing an
// order only validates and records intent; the saga participants do the actual
// reserving asynchronously.
package checkout

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hyunsookim/commerce/internal/domain/coupon"
	domainErrors "github.com/hyunsookim/commerce/internal/domain/errors"
	"github.com/hyunsookim/commerce/internal/domain/event"
	"github.com/hyunsookim/commerce/internal/domain/order"
	"github.com/hyunsookim/commerce/internal/domain/outbox"
	"github.com/hyunsookim/commerce/internal/domain/product"
	"github.com/hyunsookim/commerce/internal/infrastructure/observability"
)

// TransactionManager runs fn inside one database transaction.
type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// ItemInput is one requested order line.
type ItemInput struct {
	ProductID uuid.UUID
	Quantity  int
}

// PlaceOrderInput is the checkout request.
type PlaceOrderInput struct {
	UserID       uuid.UUID
	Items        []ItemInput
	UserCouponID *uuid.UUID
}

// PlaceOrderUseCase creates a pending order and enqueues OrderCreated in the
// same transaction. The stock and coupon checks here are fast-fail courtesy
// checks; the participants re-verify under their own atomic writes.
type PlaceOrderUseCase struct {
	orders   order.Repository
	products product.Repository
	coupons  coupon.Repository
	outbox   outbox.Repository
	tx       TransactionManager
	logger   zerolog.Logger
	metrics  *observability.Metrics
}

func NewPlaceOrderUseCase(
	orders order.Repository,
	products product.Repository,
	coupons coupon.Repository,
	outboxRepo outbox.Repository,
	tx TransactionManager,
	logger zerolog.Logger,
	metrics *observability.Metrics,
) *PlaceOrderUseCase {
	return &PlaceOrderUseCase{
		orders:   orders,
		products: products,
		coupons:  coupons,
		outbox:   outboxRepo,
		tx:       tx,
		logger:   logger.With().Str("component", "place_order").Logger(),
		metrics:  metrics,
	}
}

func (uc *PlaceOrderUseCase) Execute(ctx context.Context, in PlaceOrderInput) (*order.Order, error) {
	if len(in.Items) == 0 {
		return nil, domainErrors.ErrEmptyOrder
	}

	items, totalAmount, err := uc.priceItems(ctx, in.Items)
	if err != nil {
		return nil, err
	}

	var discountAmount int64
	if in.UserCouponID != nil {
		discountAmount, err = uc.couponDiscount(ctx, in.UserID, *in.UserCouponID, totalAmount)
		if err != nil {
			return nil, err
		}
	}

	o, err := order.New(in.UserID, items, totalAmount, discountAmount, in.UserCouponID)
	if err != nil {
		return nil, err
	}

	err = uc.tx.WithTransaction(ctx, func(txCtx context.Context) error {
		if err := uc.orders.Create(txCtx, o); err != nil {
			return err
		}
		return outbox.AppendEvent(txCtx, uc.outbox, event.OrderCreated{
			OrderID:        o.ID,
			UserID:         o.UserID,
			Items:          o.EventItems(),
			TotalAmount:    o.TotalAmount,
			DiscountAmount: o.DiscountAmount,
			FinalAmount:    o.FinalAmount,
			UserCouponID:   o.UserCouponID,
			CreatedAt:      o.CreatedAt,
		})
	})
	if err != nil {
		return nil, fmt.Errorf("create order: %w", err)
	}

	uc.metrics.OrdersTotal.WithLabelValues(string(order.StatusPending)).Inc()
	uc.logger.Info().
		Str("order_id", o.ID.String()).
		Str("user_id", o.UserID.String()).
		Int64("final_amount", o.FinalAmount).
		Msg("order placed")
	return o, nil
}

func (uc *PlaceOrderUseCase) priceItems(ctx context.Context, inputs []ItemInput) ([]order.Item, int64, error) {
	ids := make([]uuid.UUID, len(inputs))
	for i, in := range inputs {
		if in.Quantity <= 0 {
			return nil, 0, domainErrors.ErrInvalidInput
		}
		ids[i] = in.ProductID
	}

	products, err := uc.products.GetByIDs(ctx, ids)
	if err != nil {
		return nil, 0, err
	}
	byID := make(map[uuid.UUID]*product.Product, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}

	items := make([]order.Item, len(inputs))
	var total int64
	for i, in := range inputs {
		p, ok := byID[in.ProductID]
		if !ok {
			return nil, 0, domainErrors.ErrProductNotFound
		}
		if err := p.ValidateStock(in.Quantity); err != nil {
			return nil, 0, err
		}
		items[i] = order.Item{ProductID: p.ID, Quantity: in.Quantity, UnitPrice: p.Price}
		total += p.Price * int64(in.Quantity)
	}
	return items, total, nil
}

func (uc *PlaceOrderUseCase) couponDiscount(ctx context.Context, userID, userCouponID uuid.UUID, totalAmount int64) (int64, error) {
	uc2, err := uc.coupons.GetUserCouponByID(ctx, userCouponID)
	if err != nil {
		return 0, err
	}
	if uc2.UserID != userID {
		return 0, domainErrors.ErrCouponNotIssued
	}
	if uc2.Status != coupon.UserCouponUnused {
		return 0, domainErrors.ErrCouponAlreadyUsed
	}
	c, err := uc.coupons.GetByID(ctx, uc2.CouponID)
	if err != nil {
		return 0, err
	}
	return c.Discount(totalAmount), nil
}
