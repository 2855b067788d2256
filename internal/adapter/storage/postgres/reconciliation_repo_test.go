package postgres

import (
	"context"
	"testing"
	"time"

	"mining-bot-market/internal/core/domain"

	"github.com/google/uuid"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRecord() *domain.ReconciliationRecord {
	return &domain.ReconciliationRecord{
		ID:             uuid.New(),
		AccountID:      uuid.New(),
		IdempotencyKey: "key-1",
		Amount:         decimal.NewFromInt(40),
		Reason:         "order creation failed",
		Resolved:       false,
		CreatedAt:      time.Now().UTC().Truncate(time.Microsecond),
	}
}

func TestReconciliationRepo_Create(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewReconciliationRepo(mock)
	rec := newTestRecord()

	mock.ExpectExec("INSERT INTO reconciliation_records").
		WithArgs(rec.ID, rec.AccountID, rec.IdempotencyKey, rec.Amount, rec.Reason, rec.Resolved, rec.CreatedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err = repo.Create(context.Background(), rec)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReconciliationRepo_FindOpenByKey(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewReconciliationRepo(mock)
	rec := newTestRecord()

	cols := []string{"id", "account_id", "idempotency_key", "amount", "reason", "resolved", "created_at"}
	mock.ExpectQuery("SELECT .+ FROM reconciliation_records").
		WithArgs(rec.AccountID, rec.IdempotencyKey).
		WillReturnRows(pgxmock.NewRows(cols).AddRow(
			rec.ID, rec.AccountID, rec.IdempotencyKey, rec.Amount, rec.Reason, rec.Resolved, rec.CreatedAt,
		))

	got, err := repo.FindOpenByKey(context.Background(), rec.AccountID, rec.IdempotencyKey)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, rec.ID, got.ID)
	assert.False(t, got.Resolved)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReconciliationRepo_FindOpenByKey_None(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewReconciliationRepo(mock)

	cols := []string{"id", "account_id", "idempotency_key", "amount", "reason", "resolved", "created_at"}
	mock.ExpectQuery("SELECT .+ FROM reconciliation_records").
		WithArgs(pgxmock.AnyArg(), "key-1").
		WillReturnRows(pgxmock.NewRows(cols))

	got, err := repo.FindOpenByKey(context.Background(), uuid.New(), "key-1")
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}
