package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	domainErrors "github.com/hyunsookim/commerce/internal/domain/errors"
	"github.com/hyunsookim/commerce/internal/domain/order"
)

type OrderRepository struct {
	pool *pgxpool.Pool
}

func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

func (r *OrderRepository) db(ctx context.Context) DBTX {
	return ConnFromCtx(ctx, r.pool)
}

const orderColumns = `id, user_id, items, total_amount, discount_amount, final_amount, user_coupon_id,
	status, stock_step, payment_step, coupon_step, stock_reservation_id, payment_id, step_user_coupon_id,
	failed_step, failure_reason, created_at, updated_at`

func (r *OrderRepository) Create(ctx context.Context, o *order.Order) error {
	items, err := json.Marshal(o.Items)
	if err != nil {
		return fmt.Errorf("marshal order items: %w", err)
	}
	_, err = r.db(ctx).Exec(ctx,
		`INSERT INTO orders (`+orderColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)`,
		o.ID, o.UserID, items, o.TotalAmount, o.DiscountAmount, o.FinalAmount, o.UserCouponID,
		string(o.Status), string(o.Steps.Stock), string(o.Steps.Payment), string(o.Steps.Coupon),
		o.Steps.StockReservationID, o.Steps.PaymentID, o.Steps.UserCouponID,
		o.Steps.FailedStep, o.FailureReason, o.CreatedAt, o.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}
	return nil
}

func (r *OrderRepository) GetByID(ctx context.Context, id uuid.UUID) (*order.Order, error) {
	row := r.db(ctx).QueryRow(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE id = $1`, id)
	return scanOrder(row)
}

func (r *OrderRepository) GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*order.Order, error) {
	row := r.db(ctx).QueryRow(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE id = $1 FOR UPDATE`, id)
	return scanOrder(row)
}

func (r *OrderRepository) Update(ctx context.Context, o *order.Order) error {
	tag, err := r.db(ctx).Exec(ctx,
		`UPDATE orders
		 SET status = $1, stock_step = $2, payment_step = $3, coupon_step = $4,
		     stock_reservation_id = $5, payment_id = $6, step_user_coupon_id = $7,
		     failed_step = $8, failure_reason = $9, updated_at = $10
		 WHERE id = $11`,
		string(o.Status), string(o.Steps.Stock), string(o.Steps.Payment), string(o.Steps.Coupon),
		o.Steps.StockReservationID, o.Steps.PaymentID, o.Steps.UserCouponID,
		o.Steps.FailedStep, o.FailureReason, time.Now(), o.ID,
	)
	if err != nil {
		return fmt.Errorf("update order: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domainErrors.ErrOrderNotFound
	}
	return nil
}

func (r *OrderRepository) ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*order.Order, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.db(ctx).Query(ctx,
		`SELECT `+orderColumns+` FROM orders
		 WHERE user_id = $1
		 ORDER BY created_at DESC
		 LIMIT $2 OFFSET $3`, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list orders by user: %w", err)
	}
	defer rows.Close()
	return scanOrders(rows)
}

func (r *OrderRepository) ListStalePending(ctx context.Context, cutoff time.Time, limit int) ([]*order.Order, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db(ctx).Query(ctx,
		`SELECT `+orderColumns+` FROM orders
		 WHERE status = 'pending' AND created_at < $1
		 ORDER BY created_at ASC
		 LIMIT $2`, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("list stale pending orders: %w", err)
	}
	defer rows.Close()
	return scanOrders(rows)
}

func scanOrders(rows pgx.Rows) ([]*order.Order, error) {
	var orders []*order.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

func scanOrder(row pgx.Row) (*order.Order, error) {
	o := &order.Order{}
	var items []byte
	var status, stockStep, paymentStep, couponStep string
	err := row.Scan(&o.ID, &o.UserID, &items, &o.TotalAmount, &o.DiscountAmount, &o.FinalAmount, &o.UserCouponID,
		&status, &stockStep, &paymentStep, &couponStep,
		&o.Steps.StockReservationID, &o.Steps.PaymentID, &o.Steps.UserCouponID,
		&o.Steps.FailedStep, &o.FailureReason, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domainErrors.ErrOrderNotFound
		}
		return nil, fmt.Errorf("scan order: %w", err)
	}
	if err := json.Unmarshal(items, &o.Items); err != nil {
		return nil, fmt.Errorf("unmarshal order items: %w", err)
	}
	o.Status = order.Status(status)
	o.Steps.Stock = order.StepResult(stockStep)
	o.Steps.Payment = order.StepResult(paymentStep)
	o.Steps.Coupon = order.StepResult(couponStep)
	o.Steps.FailureReason = o.FailureReason
	return o, nil
}
