package ports

import (
	"context"
	"time"

	"mining-bot-market/internal/core/domain"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ResultCache is the fast-path idempotency layer: committed purchase results
// keyed by (account, idempotency key), replayed without touching the stores.
type ResultCache interface {
	Get(ctx context.Context, key string) ([]byte, error) // Returns cached result JSON or nil
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// --- Service Ports (Business Logic) ---

// PurchaseService is the purchase transaction engine plus the balance
// operations built on the same ledger primitives.
type PurchaseService interface {
	Purchase(ctx context.Context, req PurchaseRequest) (*PurchaseResult, error)
	Deposit(ctx context.Context, req DepositRequest) (*BalanceResult, error)
	Withdraw(ctx context.Context, req WithdrawRequest) (*BalanceResult, error)
	GetBalance(ctx context.Context, accountID uuid.UUID) (*BalanceResult, error)
}

// PurchaseRequest holds validated input for a purchase attempt. The
// idempotency key is client-generated, unique per logical attempt, so retried
// network calls never double-charge.
type PurchaseRequest struct {
	AccountID      uuid.UUID
	ProductID      uuid.UUID
	IdempotencyKey string
}

// PurchaseResult is the committed outcome of a purchase, cached verbatim for
// idempotent replay.
type PurchaseResult struct {
	Order      *domain.Order   `json:"order"`
	NewBalance decimal.Decimal `json:"new_balance"`
	Replayed   bool            `json:"-"` // True when served from an earlier commit
}

// DepositRequest credits an account.
type DepositRequest struct {
	AccountID uuid.UUID
	Amount    decimal.Decimal
	Reference string
}

// WithdrawRequest debits an account without creating an order; it rides the
// same conditional-write loop as a purchase.
type WithdrawRequest struct {
	AccountID      uuid.UUID
	Amount         decimal.Decimal
	IdempotencyKey string
}

// BalanceResult reports the balance after a deposit or withdrawal.
type BalanceResult struct {
	AccountID  uuid.UUID       `json:"account_id"`
	NewBalance decimal.Decimal `json:"new_balance"`
}

// CatalogService exposes the read-only product catalog.
type CatalogService interface {
	GetProduct(ctx context.Context, id uuid.UUID) (*domain.Product, error)
	ListProducts(ctx context.Context) ([]domain.Product, error)
}
