package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ReconciliationRecord marks a compensation that could not be confirmed after
// bounded retries: the account was debited, the order insert failed, and the
// compensating credit kept failing. The record carries everything an operator
// needs for out-of-band repair. While one stays unresolved for an idempotency
// key, the engine refuses that key outright.
type ReconciliationRecord struct {
	ID             uuid.UUID       `json:"id"`
	AccountID      uuid.UUID       `json:"account_id"`
	IdempotencyKey string          `json:"idempotency_key"`
	Amount         decimal.Decimal `json:"amount"`
	Reason         string          `json:"reason"`
	Resolved       bool            `json:"resolved"`
	CreatedAt      time.Time       `json:"created_at"`
}
