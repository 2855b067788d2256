package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Product is a purchasable mining bot. Read-only from the engine's
// perspective; edits to the catalog never touch issued orders because
// orders carry their own snapshot of these terms.
type Product struct {
	ID           uuid.UUID       `json:"id"`
	Name         string          `json:"name"`
	Price        decimal.Decimal `json:"price"`
	DurationDays int             `json:"duration_days"`
	YieldRate    decimal.Decimal `json:"yield_rate"` // Daily ROI percentage
	HashPower    string          `json:"hash_power"`
	Capacity     int             `json:"capacity"` // Max active orders per account, zero = uncapped
	ImageURL     *string         `json:"image_url,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
}

// Duration returns the order lifetime this product grants.
func (p *Product) Duration() time.Duration {
	return time.Duration(p.DurationDays) * 24 * time.Hour
}
