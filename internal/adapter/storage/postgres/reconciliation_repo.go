package postgres

import (
	"context"
	"errors"
	"fmt"

	"mining-bot-market/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// ReconciliationRepo implements ports.ReconciliationRepository.
type ReconciliationRepo struct {
	pool Pool
}

// NewReconciliationRepo creates a new ReconciliationRepo.
func NewReconciliationRepo(pool Pool) *ReconciliationRepo {
	return &ReconciliationRepo{pool: pool}
}

// Create inserts an unresolved compensation record for operator repair.
func (r *ReconciliationRepo) Create(ctx context.Context, rec *domain.ReconciliationRecord) error {
	query := `INSERT INTO reconciliation_records (id, account_id, idempotency_key, amount, reason, resolved, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := r.pool.Exec(ctx, query,
		rec.ID, rec.AccountID, rec.IdempotencyKey,
		rec.Amount, rec.Reason, rec.Resolved, rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert reconciliation record: %w", err)
	}
	return nil
}

// FindOpenByKey fetches the unresolved record for (account, key), or nil.
func (r *ReconciliationRepo) FindOpenByKey(ctx context.Context, accountID uuid.UUID, key string) (*domain.ReconciliationRecord, error) {
	query := `SELECT id, account_id, idempotency_key, amount, reason, resolved, created_at
		FROM reconciliation_records
		WHERE account_id = $1 AND idempotency_key = $2 AND resolved = FALSE`

	rec := &domain.ReconciliationRecord{}
	err := r.pool.QueryRow(ctx, query, accountID, key).Scan(
		&rec.ID, &rec.AccountID, &rec.IdempotencyKey,
		&rec.Amount, &rec.Reason, &rec.Resolved, &rec.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get reconciliation record: %w", err)
	}
	return rec, nil
}
