package ports

import (
	"context"

	"mining-bot-market/internal/core/domain"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// LedgerRepository is the sole mutation surface for account balances.
// The conditional debit is a single atomic compare-and-swap write so that no
// concurrent debit can interleave with a read-modify-write cycle.
type LedgerRepository interface {
	GetBalance(ctx context.Context, accountID uuid.UUID) (decimal.Decimal, error)
	// ConditionalDebit subtracts amount only if the stored balance still equals
	// expectedPrior and the result is non-negative. Returns
	// domain.ErrStaleBalance when the balance moved since the read and
	// domain.ErrInsufficientBalance when the debit would go negative.
	ConditionalDebit(ctx context.Context, accountID uuid.UUID, amount, expectedPrior decimal.Decimal) error
	// Credit adds amount unconditionally and returns the new balance. Used for
	// deposits and for compensating a debit whose order never materialized.
	Credit(ctx context.Context, accountID uuid.UUID, amount decimal.Decimal) (decimal.Decimal, error)
}

// OrderRepository persists purchase orders. Uniqueness on
// (account_id, idempotency_key) is enforced by the store as a second line of
// defense behind the per-account critical section; violations surface
// domain.ErrDuplicateIdempotencyKey.
type OrderRepository interface {
	Create(ctx context.Context, order *domain.Order) error
	// CountActiveByAccount returns how many active orders the account holds
	// for the product. Backs the product capacity check.
	CountActiveByAccount(ctx context.Context, accountID, productID uuid.UUID) (int, error)
	// FindByIdempotencyKey returns (nil, nil) when no order exists for
	// (account, key). An error always means the lookup itself failed.
	FindByIdempotencyKey(ctx context.Context, accountID uuid.UUID, key string) (*domain.Order, error)
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Order, error)
}

// ProductRepository is the read-only product catalog.
type ProductRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Product, error)
	List(ctx context.Context) ([]domain.Product, error)
}

// ReconciliationRepository records compensations that exhausted their retries
// and await operator repair.
type ReconciliationRepository interface {
	Create(ctx context.Context, rec *domain.ReconciliationRecord) error
	// FindOpenByKey returns the unresolved record for (account, key), or nil.
	FindOpenByKey(ctx context.Context, accountID uuid.UUID, key string) (*domain.ReconciliationRecord, error)
}

// AccountLocker serializes purchase attempts per account. Requests for
// different accounts proceed fully in parallel.
type AccountLocker interface {
	// Acquire blocks until the per-account critical section is entered or the
	// bounded wait elapses. The returned release function is idempotent and
	// releases only the caller's own hold.
	Acquire(ctx context.Context, accountID uuid.UUID) (release func(), err error)
}
