package postgres

import (
	"context"
	"errors"
	"fmt"

	"mining-bot-market/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// LedgerRepo implements ports.LedgerRepository.
type LedgerRepo struct {
	pool Pool
}

// NewLedgerRepo creates a new LedgerRepo.
func NewLedgerRepo(pool Pool) *LedgerRepo {
	return &LedgerRepo{pool: pool}
}

// GetBalance fetches the current balance for an account.
func (r *LedgerRepo) GetBalance(ctx context.Context, accountID uuid.UUID) (decimal.Decimal, error) {
	query := `SELECT balance FROM accounts WHERE id = $1`

	var balance decimal.Decimal
	err := r.pool.QueryRow(ctx, query, accountID).Scan(&balance)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return decimal.Zero, domain.ErrNotFound
		}
		return decimal.Zero, fmt.Errorf("get balance: %w", err)
	}
	return balance, nil
}

// ConditionalDebit subtracts amount in a single conditional write. The row is
// touched only when the stored balance still equals expectedPrior and covers
// the debit, so no concurrent writer can interleave with the caller's read.
func (r *LedgerRepo) ConditionalDebit(ctx context.Context, accountID uuid.UUID, amount, expectedPrior decimal.Decimal) error {
	query := `UPDATE accounts
		SET balance = balance - $2, version = version + 1, updated_at = NOW()
		WHERE id = $1 AND balance = $3 AND balance >= $2`

	tag, err := r.pool.Exec(ctx, query, accountID, amount, expectedPrior)
	if err != nil {
		return fmt.Errorf("conditional debit: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	// The write missed: re-read to distinguish a moved balance from an
	// insufficient one so the engine retries only where retrying can help.
	current, err := r.GetBalance(ctx, accountID)
	if err != nil {
		return err
	}
	if !current.Equal(expectedPrior) {
		return domain.ErrStaleBalance
	}
	return domain.ErrInsufficientBalance
}

// Credit adds amount to the account and returns the new balance.
func (r *LedgerRepo) Credit(ctx context.Context, accountID uuid.UUID, amount decimal.Decimal) (decimal.Decimal, error) {
	query := `UPDATE accounts
		SET balance = balance + $2, version = version + 1, updated_at = NOW()
		WHERE id = $1
		RETURNING balance`

	var balance decimal.Decimal
	err := r.pool.QueryRow(ctx, query, accountID, amount).Scan(&balance)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return decimal.Zero, domain.ErrNotFound
		}
		return decimal.Zero, fmt.Errorf("credit account: %w", err)
	}
	return balance, nil
}
