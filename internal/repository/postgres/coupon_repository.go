package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hyunsookim/commerce/internal/domain/coupon"
	domainErrors "github.com/hyunsookim/commerce/internal/domain/errors"
)

type CouponRepository struct {
	pool *pgxpool.Pool
}

func NewCouponRepository(pool *pgxpool.Pool) *CouponRepository {
	return &CouponRepository{pool: pool}
}

func (r *CouponRepository) db(ctx context.Context) DBTX {
	return ConnFromCtx(ctx, r.pool)
}

func (r *CouponRepository) GetByID(ctx context.Context, id uuid.UUID) (*coupon.Coupon, error) {
	c := &coupon.Coupon{}
	var discountType string
	err := r.db(ctx).QueryRow(ctx,
		`SELECT id, name, discount_type, discount_value, total_count, issued_count, expires_at, created_at
		 FROM coupons WHERE id = $1`, id,
	).Scan(&c.ID, &c.Name, &discountType, &c.DiscountValue, &c.TotalCount, &c.IssuedCount, &c.ExpiresAt, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domainErrors.ErrCouponNotFound
		}
		return nil, fmt.Errorf("get coupon: %w", err)
	}
	c.DiscountType = coupon.DiscountType(discountType)
	return c, nil
}

// IncrementIssued is the single write that enforces the issuance cap. All
// drain workers race through it; at most total_count of them win.
func (r *CouponRepository) IncrementIssued(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db(ctx).Exec(ctx,
		`UPDATE coupons SET issued_count = issued_count + 1
		 WHERE id = $1 AND issued_count < total_count`, id,
	)
	if err != nil {
		return fmt.Errorf("increment issued count: %w", err)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := r.db(ctx).QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM coupons WHERE id = $1)`, id,
		).Scan(&exists); err != nil {
			return fmt.Errorf("check coupon exists: %w", err)
		}
		if !exists {
			return domainErrors.ErrCouponNotFound
		}
		return domainErrors.ErrCouponExhausted
	}
	return nil
}

func (r *CouponRepository) CreateUserCoupon(ctx context.Context, uc *coupon.UserCoupon) error {
	_, err := r.db(ctx).Exec(ctx,
		`INSERT INTO user_coupons (id, user_id, coupon_id, status, used_order_id, issued_at, used_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		uc.ID, uc.UserID, uc.CouponID, string(uc.Status), uc.UsedOrderID, uc.IssuedAt, uc.UsedAt,
	)
	if err != nil {
		return fmt.Errorf("insert user coupon: %w", err)
	}
	return nil
}

func (r *CouponRepository) GetUserCouponByID(ctx context.Context, id uuid.UUID) (*coupon.UserCoupon, error) {
	return r.getUserCoupon(ctx,
		`SELECT id, user_id, coupon_id, status, used_order_id, issued_at, used_at
		 FROM user_coupons WHERE id = $1`, id)
}

func (r *CouponRepository) GetUserCouponByUser(ctx context.Context, couponID, userID uuid.UUID) (*coupon.UserCoupon, error) {
	return r.getUserCoupon(ctx,
		`SELECT id, user_id, coupon_id, status, used_order_id, issued_at, used_at
		 FROM user_coupons WHERE coupon_id = $1 AND user_id = $2`, couponID, userID)
}

func (r *CouponRepository) getUserCoupon(ctx context.Context, sql string, args ...any) (*coupon.UserCoupon, error) {
	uc := &coupon.UserCoupon{}
	var status string
	err := r.db(ctx).QueryRow(ctx, sql, args...).
		Scan(&uc.ID, &uc.UserID, &uc.CouponID, &status, &uc.UsedOrderID, &uc.IssuedAt, &uc.UsedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domainErrors.ErrCouponNotIssued
		}
		return nil, fmt.Errorf("get user coupon: %w", err)
	}
	uc.Status = coupon.UserCouponStatus(status)
	return uc, nil
}

// MarkUsed is replay-safe: marking for the order that already consumed the
// coupon is a no-op success, marking for a different order fails.
func (r *CouponRepository) MarkUsed(ctx context.Context, id, orderID uuid.UUID) error {
	tag, err := r.db(ctx).Exec(ctx,
		`UPDATE user_coupons SET status = 'used', used_order_id = $1, used_at = now()
		 WHERE id = $2 AND status = 'unused'`, orderID, id,
	)
	if err != nil {
		return fmt.Errorf("mark user coupon used: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}
	uc, err := r.GetUserCouponByID(ctx, id)
	if err != nil {
		return err
	}
	if uc.UsedOrderID != nil && *uc.UsedOrderID == orderID {
		return nil
	}
	return domainErrors.ErrCouponAlreadyUsed
}

func (r *CouponRepository) RestoreByOrder(ctx context.Context, orderID uuid.UUID) error {
	_, err := r.db(ctx).Exec(ctx,
		`UPDATE user_coupons SET status = 'unused', used_order_id = NULL, used_at = NULL
		 WHERE used_order_id = $1`, orderID,
	)
	if err != nil {
		return fmt.Errorf("restore user coupon by order: %w", err)
	}
	return nil
}
