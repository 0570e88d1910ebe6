package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	domainErrors "github.com/hyunsookim/commerce/internal/domain/errors"
	"github.com/hyunsookim/commerce/internal/domain/product"
)

type ProductRepository struct {
	pool *pgxpool.Pool
}

func NewProductRepository(pool *pgxpool.Pool) *ProductRepository {
	return &ProductRepository{pool: pool}
}

func (r *ProductRepository) db(ctx context.Context) DBTX {
	return ConnFromCtx(ctx, r.pool)
}

func (r *ProductRepository) GetByID(ctx context.Context, id uuid.UUID) (*product.Product, error) {
	p := &product.Product{}
	err := r.db(ctx).QueryRow(ctx,
		`SELECT id, name, price, stock, created_at, updated_at FROM products WHERE id = $1`, id,
	).Scan(&p.ID, &p.Name, &p.Price, &p.Stock, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domainErrors.ErrProductNotFound
		}
		return nil, fmt.Errorf("get product: %w", err)
	}
	return p, nil
}

func (r *ProductRepository) GetByIDs(ctx context.Context, ids []uuid.UUID) ([]*product.Product, error) {
	rows, err := r.db(ctx).Query(ctx,
		`SELECT id, name, price, stock, created_at, updated_at FROM products WHERE id = ANY($1)`, ids,
	)
	if err != nil {
		return nil, fmt.Errorf("get products: %w", err)
	}
	defer rows.Close()

	var products []*product.Product
	for rows.Next() {
		p := &product.Product{}
		if err := rows.Scan(&p.ID, &p.Name, &p.Price, &p.Stock, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

// DecrementStock is the authoritative stock check: the conditional update
// succeeds only if enough stock remains, regardless of what concurrent
// reservations are doing.
func (r *ProductRepository) DecrementStock(ctx context.Context, id uuid.UUID, quantity int) error {
	tag, err := r.db(ctx).Exec(ctx,
		`UPDATE products SET stock = stock - $1, updated_at = now()
		 WHERE id = $2 AND stock >= $1`, quantity, id,
	)
	if err != nil {
		return fmt.Errorf("decrement stock: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// Distinguish missing product from insufficient stock.
		var exists bool
		if err := r.db(ctx).QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM products WHERE id = $1)`, id,
		).Scan(&exists); err != nil {
			return fmt.Errorf("check product exists: %w", err)
		}
		if !exists {
			return domainErrors.ErrProductNotFound
		}
		return domainErrors.ErrInsufficientStock
	}
	return nil
}

func (r *ProductRepository) IncrementStock(ctx context.Context, id uuid.UUID, quantity int) error {
	tag, err := r.db(ctx).Exec(ctx,
		`UPDATE products SET stock = stock + $1, updated_at = now() WHERE id = $2`, quantity, id,
	)
	if err != nil {
		return fmt.Errorf("increment stock: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domainErrors.ErrProductNotFound
	}
	return nil
}

func (r *ProductRepository) CreateReservation(ctx context.Context, res *product.Reservation) error {
	items, err := json.Marshal(res.Items)
	if err != nil {
		return fmt.Errorf("marshal reservation items: %w", err)
	}
	_, err = r.db(ctx).Exec(ctx,
		`INSERT INTO stock_reservations (id, order_id, items, released, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		res.ID, res.OrderID, items, res.Released, res.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert stock reservation: %w", err)
	}
	return nil
}

func (r *ProductRepository) GetReservationByOrderID(ctx context.Context, orderID uuid.UUID) (*product.Reservation, error) {
	res := &product.Reservation{}
	var items []byte
	err := r.db(ctx).QueryRow(ctx,
		`SELECT id, order_id, items, released, created_at FROM stock_reservations WHERE order_id = $1`,
		orderID,
	).Scan(&res.ID, &res.OrderID, &items, &res.Released, &res.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domainErrors.ErrReservationNotFound
		}
		return nil, fmt.Errorf("get stock reservation: %w", err)
	}
	if err := json.Unmarshal(items, &res.Items); err != nil {
		return nil, fmt.Errorf("unmarshal reservation items: %w", err)
	}
	return res, nil
}

// DeleteReservation drops the reservation of a confirmed order. Zero affected
// rows just means a redelivery already removed it.
func (r *ProductRepository) DeleteReservation(ctx context.Context, id uuid.UUID) error {
	_, err := r.db(ctx).Exec(ctx,
		`DELETE FROM stock_reservations WHERE id = $1`, id,
	)
	if err != nil {
		return fmt.Errorf("delete stock reservation: %w", err)
	}
	return nil
}

// MarkReservationReleased flips released only once; compensation replays see
// zero affected rows and skip the stock restore.
func (r *ProductRepository) MarkReservationReleased(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db(ctx).Exec(ctx,
		`UPDATE stock_reservations SET released = true WHERE id = $1 AND released = false`, id,
	)
	if err != nil {
		return fmt.Errorf("mark reservation released: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domainErrors.ErrInvalidStateTransition
	}
	return nil
}
