package coupon_test

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/hyunsookim/commerce/internal/domain/coupon"
)

func TestCoupon_Discount(t *testing.T) {
	tests := []struct {
		name  string
		ctype coupon.DiscountType
		value int64
		total int64
		want  int64
	}{
		{"fixed amount", coupon.DiscountFixed, 1000, 5000, 1000},
		{"fixed capped at total", coupon.DiscountFixed, 9000, 5000, 5000},
		{"rate percentage", coupon.DiscountRate, 10, 5000, 500},
		{"rate rounds down", coupon.DiscountRate, 33, 100, 33},
		{"full rate", coupon.DiscountRate, 100, 5000, 5000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &coupon.Coupon{DiscountType: tt.ctype, DiscountValue: tt.value}
			assert.Equal(t, tt.want, c.Discount(tt.total))
		})
	}
}

func TestCoupon_Issuable(t *testing.T) {
	now := time.Now()
	c := &coupon.Coupon{
		TotalCount:  10,
		IssuedCount: 9,
		ExpiresAt:   now.Add(time.Hour),
	}

	assert.True(t, c.Issuable(now))
	assert.Equal(t, 1, c.Remaining())

	c.IssuedCount = 10
	assert.False(t, c.Issuable(now))

	c.IssuedCount = 0
	assert.False(t, c.Issuable(now.Add(2*time.Hour)))
}

func TestNewUserCoupon(t *testing.T) {
	userID := uuid.New()
	couponID := uuid.New()

	uc := coupon.NewUserCoupon(userID, couponID)
	assert.Equal(t, coupon.UserCouponUnused, uc.Status)
	assert.Equal(t, userID, uc.UserID)
	assert.Equal(t, couponID, uc.CouponID)
	assert.Nil(t, uc.UsedOrderID)
}
