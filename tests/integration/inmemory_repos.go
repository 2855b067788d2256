package integration

import (
	"context"
	"errors"
	"sync"

	"mining-bot-market/internal/core/domain"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// errFault is the injected storage failure used by the fault tests.
var errFault = errors.New("injected storage fault")

// --- In-Memory Ledger Repo ---

type inMemoryLedgerRepo struct {
	mu       sync.Mutex
	balances map[uuid.UUID]decimal.Decimal

	// failCredits makes the next N Credit calls fail, for compensation tests.
	failCredits int
}

func newInMemoryLedgerRepo() *inMemoryLedgerRepo {
	return &inMemoryLedgerRepo{balances: make(map[uuid.UUID]decimal.Decimal)}
}

func (r *inMemoryLedgerRepo) seed(accountID uuid.UUID, balance decimal.Decimal) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.balances[accountID] = balance
}

func (r *inMemoryLedgerRepo) GetBalance(ctx context.Context, accountID uuid.UUID) (decimal.Decimal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.balances[accountID]
	if !ok {
		return decimal.Zero, domain.ErrNotFound
	}
	return b, nil
}

func (r *inMemoryLedgerRepo) ConditionalDebit(ctx context.Context, accountID uuid.UUID, amount, expectedPrior decimal.Decimal) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.balances[accountID]
	if !ok {
		return domain.ErrNotFound
	}
	if !b.Equal(expectedPrior) {
		return domain.ErrStaleBalance
	}
	if b.LessThan(amount) {
		return domain.ErrInsufficientBalance
	}
	r.balances[accountID] = b.Sub(amount)
	return nil
}

func (r *inMemoryLedgerRepo) Credit(ctx context.Context, accountID uuid.UUID, amount decimal.Decimal) (decimal.Decimal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failCredits > 0 {
		r.failCredits--
		return decimal.Zero, errFault
	}
	b, ok := r.balances[accountID]
	if !ok {
		return decimal.Zero, domain.ErrNotFound
	}
	nb := b.Add(amount)
	r.balances[accountID] = nb
	return nb, nil
}

// --- In-Memory Order Repo ---

type inMemoryOrderRepo struct {
	mu     sync.RWMutex
	orders map[uuid.UUID]*domain.Order
	byKey  map[string]uuid.UUID

	// failCreates makes the next N Create calls fail after the debit, to
	// exercise compensation.
	failCreates int
}

func newInMemoryOrderRepo() *inMemoryOrderRepo {
	return &inMemoryOrderRepo{
		orders: make(map[uuid.UUID]*domain.Order),
		byKey:  make(map[string]uuid.UUID),
	}
}

func orderKey(accountID uuid.UUID, key string) string {
	return accountID.String() + "|" + key
}

func (r *inMemoryOrderRepo) Create(ctx context.Context, order *domain.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failCreates > 0 {
		r.failCreates--
		return errFault
	}
	k := orderKey(order.AccountID, order.IdempotencyKey)
	if _, exists := r.byKey[k]; exists {
		return domain.ErrDuplicateIdempotencyKey
	}
	cp := *order
	r.orders[order.ID] = &cp
	r.byKey[k] = order.ID
	return nil
}

func (r *inMemoryOrderRepo) CountActiveByAccount(ctx context.Context, accountID, productID uuid.UUID) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	count := 0
	for _, o := range r.orders {
		if o.AccountID == accountID && o.ProductID == productID && o.Status == domain.OrderStatusActive {
			count++
		}
	}
	return count, nil
}

// FindByIdempotencyKey returns (nil, nil) on a miss, matching the pgx repo.
func (r *inMemoryOrderRepo) FindByIdempotencyKey(ctx context.Context, accountID uuid.UUID, key string) (*domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byKey[orderKey(accountID, key)]
	if !ok {
		return nil, nil
	}
	cp := *r.orders[id]
	return &cp, nil
}

func (r *inMemoryOrderRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	o, ok := r.orders[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *o
	return &cp, nil
}

func (r *inMemoryOrderRepo) count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.orders)
}

// --- In-Memory Product Repo ---

type inMemoryProductRepo struct {
	mu       sync.RWMutex
	products map[uuid.UUID]*domain.Product
}

func newInMemoryProductRepo() *inMemoryProductRepo {
	return &inMemoryProductRepo{products: make(map[uuid.UUID]*domain.Product)}
}

func (r *inMemoryProductRepo) seed(p *domain.Product) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.products[p.ID] = p
}

func (r *inMemoryProductRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.products[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (r *inMemoryProductRepo) List(ctx context.Context) ([]domain.Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.Product, 0, len(r.products))
	for _, p := range r.products {
		out = append(out, *p)
	}
	return out, nil
}

// --- In-Memory Reconciliation Repo ---

type inMemoryReconciliationRepo struct {
	mu      sync.RWMutex
	records map[uuid.UUID]*domain.ReconciliationRecord
}

func newInMemoryReconciliationRepo() *inMemoryReconciliationRepo {
	return &inMemoryReconciliationRepo{records: make(map[uuid.UUID]*domain.ReconciliationRecord)}
}

func (r *inMemoryReconciliationRepo) Create(ctx context.Context, rec *domain.ReconciliationRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *rec
	r.records[rec.ID] = &cp
	return nil
}

func (r *inMemoryReconciliationRepo) FindOpenByKey(ctx context.Context, accountID uuid.UUID, key string) (*domain.ReconciliationRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, rec := range r.records {
		if rec.AccountID == accountID && rec.IdempotencyKey == key && !rec.Resolved {
			cp := *rec
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *inMemoryReconciliationRepo) count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.records)
}
