package coupon

import (
	"context"

	"github.com/google/uuid"
)

// Repository is the persistence contract for coupons and issued user coupons.
type Repository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*Coupon, error)
	// IncrementIssued atomically bumps issued_count if it is still below
	// total_count. Returns ErrCouponExhausted without mutating otherwise.
	IncrementIssued(ctx context.Context, id uuid.UUID) error

	CreateUserCoupon(ctx context.Context, uc *UserCoupon) error
	GetUserCouponByID(ctx context.Context, id uuid.UUID) (*UserCoupon, error)
	// GetUserCouponByUser returns ErrCouponNotIssued when the user holds no
	// coupon of this kind.
	GetUserCouponByUser(ctx context.Context, couponID, userID uuid.UUID) (*UserCoupon, error)
	// MarkUsed flips an unused coupon to used for the given order. Returns
	// ErrCouponAlreadyUsed if it was already consumed by a different order.
	MarkUsed(ctx context.Context, id, orderID uuid.UUID) error
	// RestoreByOrder is the compensation entry point: it frees whatever
	// coupon the failed order consumed, if any.
	RestoreByOrder(ctx context.Context, orderID uuid.UUID) error
}
