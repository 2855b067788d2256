package postgres

import (
	"context"
	"errors"
	"fmt"

	"mining-bot-market/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// uniqueViolation is the PostgreSQL error code for a unique constraint hit.
const uniqueViolation = "23505"

// OrderRepo implements ports.OrderRepository. The orders table carries a
// unique constraint on (account_id, idempotency_key).
type OrderRepo struct {
	pool Pool
}

// NewOrderRepo creates a new OrderRepo.
func NewOrderRepo(pool Pool) *OrderRepo {
	return &OrderRepo{pool: pool}
}

// Create inserts a new order with its terms snapshot.
func (r *OrderRepo) Create(ctx context.Context, o *domain.Order) error {
	query := `INSERT INTO orders (id, account_id, product_id, idempotency_key, status,
		price, duration_days, yield_rate, hash_power, accrued_earnings, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	_, err := r.pool.Exec(ctx, query,
		o.ID, o.AccountID, o.ProductID, o.IdempotencyKey, o.Status,
		o.Terms.Price, o.Terms.DurationDays, o.Terms.YieldRate, o.Terms.HashPower,
		o.AccruedEarnings, o.CreatedAt, o.ExpiresAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return domain.ErrDuplicateIdempotencyKey
		}
		return fmt.Errorf("insert order: %w", err)
	}
	return nil
}

// CountActiveByAccount counts the account's active orders for a product.
func (r *OrderRepo) CountActiveByAccount(ctx context.Context, accountID, productID uuid.UUID) (int, error) {
	query := `SELECT COUNT(*) FROM orders
		WHERE account_id = $1 AND product_id = $2 AND status = $3`

	var count int
	err := r.pool.QueryRow(ctx, query, accountID, productID, domain.OrderStatusActive).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count active orders: %w", err)
	}
	return count, nil
}

// FindByIdempotencyKey fetches the order committed for (account, key), or nil.
func (r *OrderRepo) FindByIdempotencyKey(ctx context.Context, accountID uuid.UUID, key string) (*domain.Order, error) {
	query := `SELECT id, account_id, product_id, idempotency_key, status,
		price, duration_days, yield_rate, hash_power, accrued_earnings, created_at, expires_at
		FROM orders WHERE account_id = $1 AND idempotency_key = $2`

	return r.scanOrder(r.pool.QueryRow(ctx, query, accountID, key))
}

// GetByID fetches an order by UUID, or nil.
func (r *OrderRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	query := `SELECT id, account_id, product_id, idempotency_key, status,
		price, duration_days, yield_rate, hash_power, accrued_earnings, created_at, expires_at
		FROM orders WHERE id = $1`

	return r.scanOrder(r.pool.QueryRow(ctx, query, id))
}

func (r *OrderRepo) scanOrder(row pgx.Row) (*domain.Order, error) {
	o := &domain.Order{}
	err := row.Scan(
		&o.ID, &o.AccountID, &o.ProductID, &o.IdempotencyKey, &o.Status,
		&o.Terms.Price, &o.Terms.DurationDays, &o.Terms.YieldRate, &o.Terms.HashPower,
		&o.AccruedEarnings, &o.CreatedAt, &o.ExpiresAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan order: %w", err)
	}
	return o, nil
}
