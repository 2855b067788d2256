package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// OrderStatus represents the lifecycle state of a mining order.
type OrderStatus string

const (
	OrderStatusActive    OrderStatus = "ACTIVE"
	OrderStatusCompleted OrderStatus = "COMPLETED"
	OrderStatusCancelled OrderStatus = "CANCELLED"
)

// TermsSnapshot copies the product terms at purchase time so later catalog
// edits cannot retroactively change an issued order.
type TermsSnapshot struct {
	Price        decimal.Decimal `json:"price"`
	DurationDays int             `json:"duration_days"`
	YieldRate    decimal.Decimal `json:"yield_rate"`
	HashPower    string          `json:"hash_power"`
}

// Order is a time-bounded entitlement created exactly once per successful
// purchase. Every order has a corresponding prior debit of its snapshot price;
// no other component may create one.
type Order struct {
	ID              uuid.UUID       `json:"id"`
	AccountID       uuid.UUID       `json:"account_id"`
	ProductID       uuid.UUID       `json:"product_id"`
	IdempotencyKey  string          `json:"-"` // Stored for replay detection
	Status          OrderStatus     `json:"status"`
	Terms           TermsSnapshot   `json:"terms"`
	AccruedEarnings decimal.Decimal `json:"accrued_earnings"`
	CreatedAt       time.Time       `json:"created_at"`
	ExpiresAt       time.Time       `json:"expires_at"`
}

// NewOrder builds an active order for a product purchase, snapshotting the
// product's current terms.
func NewOrder(accountID uuid.UUID, product *Product, idempotencyKey string, now time.Time) *Order {
	return &Order{
		ID:             uuid.New(),
		AccountID:      accountID,
		ProductID:      product.ID,
		IdempotencyKey: idempotencyKey,
		Status:         OrderStatusActive,
		Terms: TermsSnapshot{
			Price:        product.Price,
			DurationDays: product.DurationDays,
			YieldRate:    product.YieldRate,
			HashPower:    product.HashPower,
		},
		AccruedEarnings: decimal.Zero,
		CreatedAt:       now,
		ExpiresAt:       now.Add(product.Duration()),
	}
}

// IsExpired reports whether the order's mining window has ended.
func (o *Order) IsExpired(now time.Time) bool {
	return !now.Before(o.ExpiresAt)
}

// BuildResultKey constructs the cache key for an idempotent purchase result.
func BuildResultKey(accountID uuid.UUID, idempotencyKey string) string {
	return accountID.String() + ":" + idempotencyKey
}
