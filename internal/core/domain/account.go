package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Account holds a user's spendable balance. The balance is never negative
// after any committed operation and is mutated only through the ledger
// debit/credit primitives, never by direct write.
type Account struct {
	ID        uuid.UUID       `json:"id"`
	Balance   decimal.Decimal `json:"balance"`
	Version   int64           `json:"-"` // Bumped on every balance write
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// CanAfford reports whether the account can pay the given price.
func (a *Account) CanAfford(price decimal.Decimal) bool {
	return a.Balance.GreaterThanOrEqual(price)
}
