package coupon

import (
	"time"

	"github.com/google/uuid"
)

// DiscountType selects how a coupon reduces the order total.
type DiscountType string

const (
	DiscountFixed DiscountType = "fixed" // flat amount off
	DiscountRate  DiscountType = "rate"  // percentage off
)

// Coupon is a promotional coupon with finite stock. IssuedCount is contended
// shared state and only ever moves through the repository's atomic
// conditional increment, so concurrent drain workers cannot oversell it.
type Coupon struct {
	ID            uuid.UUID
	Name          string
	DiscountType  DiscountType
	DiscountValue int64 // amount in cents, or percentage 1..100
	TotalCount    int
	IssuedCount   int
	ExpiresAt     time.Time
	CreatedAt     time.Time
}

// Remaining returns how many issuances are left.
func (c *Coupon) Remaining() int {
	return c.TotalCount - c.IssuedCount
}

// Issuable reports whether the coupon still has stock and has not expired.
func (c *Coupon) Issuable(now time.Time) bool {
	return c.Remaining() > 0 && now.Before(c.ExpiresAt)
}

// Discount computes the discount for the given order total.
func (c *Coupon) Discount(totalAmount int64) int64 {
	var d int64
	switch c.DiscountType {
	case DiscountFixed:
		d = c.DiscountValue
	case DiscountRate:
		d = totalAmount * c.DiscountValue / 100
	}
	if d > totalAmount {
		d = totalAmount
	}
	return d
}

// UserCouponStatus of an issued coupon.
type UserCouponStatus string

const (
	UserCouponUnused UserCouponStatus = "unused"
	UserCouponUsed   UserCouponStatus = "used"
)

// UserCoupon is a coupon held by a user. UsedOrderID records which order
// consumed it; marking is conditional on the current status, so a redelivered
// OrderCreated cannot consume it twice.
type UserCoupon struct {
	ID          uuid.UUID
	UserID      uuid.UUID
	CouponID    uuid.UUID
	Status      UserCouponStatus
	UsedOrderID *uuid.UUID
	IssuedAt    time.Time
	UsedAt      *time.Time
}

func NewUserCoupon(userID, couponID uuid.UUID) *UserCoupon {
	return &UserCoupon{
		ID:       uuid.New(),
		UserID:   userID,
		CouponID: couponID,
		Status:   UserCouponUnused,
		IssuedAt: time.Now(),
	}
}
