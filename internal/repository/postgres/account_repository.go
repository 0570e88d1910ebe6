package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hyunsookim/commerce/internal/domain/account"
	domainErrors "github.com/hyunsookim/commerce/internal/domain/errors"
)

type AccountRepository struct {
	pool *pgxpool.Pool
}

func NewAccountRepository(pool *pgxpool.Pool) *AccountRepository {
	return &AccountRepository{pool: pool}
}

func (r *AccountRepository) db(ctx context.Context) DBTX {
	return ConnFromCtx(ctx, r.pool)
}

func (r *AccountRepository) GetByUserID(ctx context.Context, userID uuid.UUID) (*account.Account, error) {
	a := &account.Account{}
	err := r.db(ctx).QueryRow(ctx,
		`SELECT id, user_id, balance, created_at, updated_at FROM accounts WHERE user_id = $1`, userID,
	).Scan(&a.ID, &a.UserID, &a.Balance, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domainErrors.ErrAccountNotFound
		}
		return nil, fmt.Errorf("get account: %w", err)
	}
	return a, nil
}

// Debit is conditional on the balance covering the amount, so concurrent
// payments for the same user serialize on the row and never overdraw.
func (r *AccountRepository) Debit(ctx context.Context, userID uuid.UUID, amount int64) error {
	tag, err := r.db(ctx).Exec(ctx,
		`UPDATE accounts SET balance = balance - $1, updated_at = now()
		 WHERE user_id = $2 AND balance >= $1`, amount, userID,
	)
	if err != nil {
		return fmt.Errorf("debit account: %w", err)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := r.db(ctx).QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM accounts WHERE user_id = $1)`, userID,
		).Scan(&exists); err != nil {
			return fmt.Errorf("check account exists: %w", err)
		}
		if !exists {
			return domainErrors.ErrAccountNotFound
		}
		return domainErrors.ErrInsufficientBalance
	}
	return nil
}

func (r *AccountRepository) Credit(ctx context.Context, userID uuid.UUID, amount int64) error {
	tag, err := r.db(ctx).Exec(ctx,
		`UPDATE accounts SET balance = balance + $1, updated_at = now() WHERE user_id = $2`,
		amount, userID,
	)
	if err != nil {
		return fmt.Errorf("credit account: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domainErrors.ErrAccountNotFound
	}
	return nil
}

func (r *AccountRepository) CreatePayment(ctx context.Context, p *account.Payment) error {
	_, err := r.db(ctx).Exec(ctx,
		`INSERT INTO payments (id, order_id, user_id, amount, status, created_at, refunded_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		p.ID, p.OrderID, p.UserID, p.Amount, string(p.Status), p.CreatedAt, p.RefundedAt,
	)
	if err != nil {
		return fmt.Errorf("insert payment: %w", err)
	}
	return nil
}

func (r *AccountRepository) GetPaymentByOrderID(ctx context.Context, orderID uuid.UUID) (*account.Payment, error) {
	p := &account.Payment{}
	var status string
	err := r.db(ctx).QueryRow(ctx,
		`SELECT id, order_id, user_id, amount, status, created_at, refunded_at
		 FROM payments WHERE order_id = $1`, orderID,
	).Scan(&p.ID, &p.OrderID, &p.UserID, &p.Amount, &status, &p.CreatedAt, &p.RefundedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domainErrors.ErrPaymentNotFound
		}
		return nil, fmt.Errorf("get payment: %w", err)
	}
	p.Status = account.PaymentStatus(status)
	return p, nil
}

// MarkPaymentRefunded flips a completed payment to refunded exactly once.
func (r *AccountRepository) MarkPaymentRefunded(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db(ctx).Exec(ctx,
		`UPDATE payments SET status = 'refunded', refunded_at = now()
		 WHERE id = $1 AND status = 'completed'`, id,
	)
	if err != nil {
		return fmt.Errorf("mark payment refunded: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domainErrors.ErrInvalidStateTransition
	}
	return nil
}
