package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"mining-bot-market/config"
	"mining-bot-market/internal/core/domain"
	"mining-bot-market/internal/core/ports"
	"mining-bot-market/pkg/apperror"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const withdrawKeyPrefix = "withdraw:"

// purchaseService orchestrates the money movement of a purchase: debit the
// account, create the order, and undo the debit when the order cannot be
// created. All attempts for one account run serialized under the account
// lock; attempts for different accounts proceed in parallel.
type purchaseService struct {
	ledgerRepo ports.LedgerRepository
	orderRepo  ports.OrderRepository
	catalog    ports.ProductRepository
	reconRepo  ports.ReconciliationRepository
	locker     ports.AccountLocker
	cache      ports.ResultCache
	cfg        config.EngineConfig
	log        zerolog.Logger
}

// NewPurchaseService creates the purchase transaction engine.
func NewPurchaseService(
	ledgerRepo ports.LedgerRepository,
	orderRepo ports.OrderRepository,
	catalog ports.ProductRepository,
	reconRepo ports.ReconciliationRepository,
	locker ports.AccountLocker,
	cache ports.ResultCache,
	cfg config.EngineConfig,
	log zerolog.Logger,
) ports.PurchaseService {
	return &purchaseService{
		ledgerRepo: ledgerRepo,
		orderRepo:  orderRepo,
		catalog:    catalog,
		reconRepo:  reconRepo,
		locker:     locker,
		cache:      cache,
		cfg:        cfg,
		log:        log.With().Str("component", "purchase_service").Logger(),
	}
}

// Purchase executes one purchase attempt for (account, product, key).
// Replays of an already-committed key return the original order without
// touching the balance again.
func (s *purchaseService) Purchase(ctx context.Context, req ports.PurchaseRequest) (*ports.PurchaseResult, error) {
	log := s.log.With().
		Str("account_id", req.AccountID.String()).
		Str("product_id", req.ProductID.String()).
		Str("idempotency_key", req.IdempotencyKey).
		Logger()

	resultKey := domain.BuildResultKey(req.AccountID, req.IdempotencyKey)

	// Fast path: a committed result already cached for this key.
	if cached := s.cachedResult(ctx, resultKey); cached != nil {
		log.Info().Str("order_id", cached.Order.ID.String()).Msg("Purchase replayed from cache")
		return cached, nil
	}

	product, err := s.getProduct(ctx, req.ProductID)
	if err != nil {
		return nil, err
	}

	// A key with an open reconciliation record is poisoned: the earlier
	// attempt left the account in an unknown state and an operator has to
	// resolve it before the key can be retried.
	if err := s.checkPoisonedKey(ctx, req.AccountID, req.IdempotencyKey); err != nil {
		log.Warn().Msg("Purchase refused: idempotency key awaits manual reconciliation")
		return nil, err
	}

	release, err := s.acquireLock(ctx, req.AccountID)
	if err != nil {
		log.Warn().Err(err).Msg("Account lock not acquired")
		return nil, err
	}
	defer release()

	// Re-check under the lock: a concurrent attempt with the same key may
	// have committed while this one waited.
	if cached := s.cachedResult(ctx, resultKey); cached != nil {
		log.Info().Str("order_id", cached.Order.ID.String()).Msg("Purchase replayed from cache")
		return cached, nil
	}
	if replayed, err := s.replayFromStore(ctx, req.AccountID, req.IdempotencyKey); err != nil {
		return nil, err
	} else if replayed != nil {
		log.Info().Str("order_id", replayed.Order.ID.String()).Msg("Purchase replayed from order store")
		s.cacheResult(resultKey, replayed)
		return replayed, nil
	}

	if err := s.checkCapacity(ctx, req.AccountID, product, log); err != nil {
		return nil, err
	}

	newBalance, err := s.debitWithRetries(ctx, req.AccountID, product.Price, log)
	if err != nil {
		return nil, err
	}

	order := domain.NewOrder(req.AccountID, product, req.IdempotencyKey, time.Now().UTC())
	if err := s.createOrder(ctx, order); err != nil {
		return s.recoverFailedCreate(ctx, req, product.Price, err, log)
	}

	result := &ports.PurchaseResult{Order: order, NewBalance: newBalance}
	s.cacheResult(resultKey, result)

	log.Info().
		Str("order_id", order.ID.String()).
		Str("amount", product.Price.String()).
		Str("new_balance", newBalance.String()).
		Msg("Purchase committed")
	return result, nil
}

// Deposit credits the account. Credits never conflict, so no lock or retry
// loop is needed.
func (s *purchaseService) Deposit(ctx context.Context, req ports.DepositRequest) (*ports.BalanceResult, error) {
	if !req.Amount.IsPositive() {
		return nil, apperror.ErrInvalidAmount()
	}

	sctx, cancel := s.storageCtx(ctx)
	defer cancel()
	newBalance, err := s.ledgerRepo.Credit(sctx, req.AccountID, req.Amount)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, apperror.ErrAccountNotFound()
		}
		return nil, s.storageErr("deposit credit", err)
	}

	s.log.Info().
		Str("account_id", req.AccountID.String()).
		Str("amount", req.Amount.String()).
		Str("reference", req.Reference).
		Msg("Deposit credited")
	return &ports.BalanceResult{AccountID: req.AccountID, NewBalance: newBalance}, nil
}

// Withdraw debits the account through the same serialized conditional-write
// loop as a purchase, without creating an order. A retried key replays the
// committed result instead of debiting the account a second time.
func (s *purchaseService) Withdraw(ctx context.Context, req ports.WithdrawRequest) (*ports.BalanceResult, error) {
	if !req.Amount.IsPositive() {
		return nil, apperror.ErrInvalidAmount()
	}

	log := s.log.With().
		Str("account_id", req.AccountID.String()).
		Str("idempotency_key", req.IdempotencyKey).
		Logger()

	// Withdrawal keys live in the same cache as purchase results, under their
	// own prefix so the two key spaces cannot collide.
	resultKey := withdrawKeyPrefix + domain.BuildResultKey(req.AccountID, req.IdempotencyKey)
	if cached := s.cachedBalance(ctx, resultKey); cached != nil {
		log.Info().Msg("Withdrawal replayed from cache")
		return cached, nil
	}

	release, err := s.acquireLock(ctx, req.AccountID)
	if err != nil {
		return nil, err
	}
	defer release()

	// Re-check under the lock, same as a purchase.
	if cached := s.cachedBalance(ctx, resultKey); cached != nil {
		log.Info().Msg("Withdrawal replayed from cache")
		return cached, nil
	}

	newBalance, err := s.debitWithRetries(ctx, req.AccountID, req.Amount, log)
	if err != nil {
		return nil, err
	}

	result := &ports.BalanceResult{AccountID: req.AccountID, NewBalance: newBalance}
	s.cacheBalance(resultKey, result)

	log.Info().
		Str("amount", req.Amount.String()).
		Str("new_balance", newBalance.String()).
		Msg("Withdrawal debited")
	return result, nil
}

// GetBalance reads the current balance for an account.
func (s *purchaseService) GetBalance(ctx context.Context, accountID uuid.UUID) (*ports.BalanceResult, error) {
	balance, err := s.getBalance(ctx, accountID)
	if err != nil {
		return nil, err
	}
	return &ports.BalanceResult{AccountID: accountID, NewBalance: balance}, nil
}

// debitWithRetries runs the read-then-conditional-write loop. A stale compare
// means another writer moved the balance between this attempt's read and
// write, so the loop re-reads and tries again up to the configured cap.
// Returns the balance after the successful debit.
func (s *purchaseService) debitWithRetries(ctx context.Context, accountID uuid.UUID, amount decimal.Decimal, log zerolog.Logger) (decimal.Decimal, error) {
	for attempt := 1; attempt <= s.cfg.DebitRetries; attempt++ {
		balance, err := s.getBalance(ctx, accountID)
		if err != nil {
			return decimal.Zero, err
		}
		if balance.LessThan(amount) {
			log.Info().
				Str("balance", balance.String()).
				Str("amount", amount.String()).
				Msg("Debit rejected: insufficient funds")
			return decimal.Zero, apperror.ErrInsufficientFunds()
		}

		sctx, cancel := s.storageCtx(ctx)
		err = s.ledgerRepo.ConditionalDebit(sctx, accountID, amount, balance)
		cancel()
		switch {
		case err == nil:
			return balance.Sub(amount), nil
		case errors.Is(err, domain.ErrStaleBalance):
			log.Debug().Int("attempt", attempt).Msg("Conditional debit lost the compare, retrying")
			continue
		case errors.Is(err, domain.ErrInsufficientBalance):
			return decimal.Zero, apperror.ErrInsufficientFunds()
		case errors.Is(err, domain.ErrNotFound):
			return decimal.Zero, apperror.ErrAccountNotFound()
		default:
			return decimal.Zero, s.storageErr("conditional debit", err)
		}
	}

	log.Warn().Int("retries", s.cfg.DebitRetries).Msg("Conditional debit retries exhausted")
	return decimal.Zero, apperror.ErrConflict()
}

// recoverFailedCreate handles an order insert that failed after the debit
// committed. A duplicate-key failure means the order already exists, so the
// fresh debit is refunded and the committed order replayed. Any other failure
// triggers the compensation loop.
func (s *purchaseService) recoverFailedCreate(ctx context.Context, req ports.PurchaseRequest, amount decimal.Decimal, createErr error, log zerolog.Logger) (*ports.PurchaseResult, error) {
	if errors.Is(createErr, domain.ErrDuplicateIdempotencyKey) {
		log.Info().Msg("Order already committed for key, refunding fresh debit")
		if err := s.compensate(req, amount, "duplicate-key refund", log); err != nil {
			return nil, err
		}
		replayed, err := s.replayFromStore(ctx, req.AccountID, req.IdempotencyKey)
		if err != nil {
			return nil, err
		}
		if replayed == nil {
			return nil, apperror.InternalError(errors.New("committed order vanished after duplicate key"))
		}
		s.cacheResult(domain.BuildResultKey(req.AccountID, req.IdempotencyKey), replayed)
		return replayed, nil
	}

	log.Error().Err(createErr).Msg("Order creation failed after debit, compensating")
	if err := s.compensate(req, amount, "order creation failed", log); err != nil {
		return nil, err
	}
	return nil, apperror.ErrOrderCreationFailed(createErr)
}

// compensate credits back a debit whose order never materialized, retrying
// with backoff. When every retry fails the account is short by amount with
// nothing to show for it, so a reconciliation record is written for operator
// repair and the key is poisoned until it resolves.
func (s *purchaseService) compensate(req ports.PurchaseRequest, amount decimal.Decimal, reason string, log zerolog.Logger) error {
	// Compensation must survive the caller giving up on the request.
	ctx := context.Background()

	var lastErr error
	for attempt := 1; attempt <= s.cfg.CompensationRetries; attempt++ {
		sctx, cancel := s.storageCtx(ctx)
		_, err := s.ledgerRepo.Credit(sctx, req.AccountID, amount)
		cancel()
		if err == nil {
			log.Info().
				Str("amount", amount.String()).
				Int("attempt", attempt).
				Msg("Compensating credit applied")
			return nil
		}
		lastErr = err
		log.Warn().Err(err).Int("attempt", attempt).Msg("Compensating credit failed")
		if attempt < s.cfg.CompensationRetries {
			time.Sleep(s.cfg.CompensationBackoff)
		}
	}

	rec := &domain.ReconciliationRecord{
		ID:             uuid.New(),
		AccountID:      req.AccountID,
		IdempotencyKey: req.IdempotencyKey,
		Amount:         amount,
		Reason:         reason,
		CreatedAt:      time.Now().UTC(),
	}
	sctx, cancel := s.storageCtx(ctx)
	defer cancel()
	if err := s.reconRepo.Create(sctx, rec); err != nil {
		// The record itself could not be written. The structured log line is
		// the remaining trail for the operator.
		log.Error().Err(err).
			Str("amount", amount.String()).
			Msg("CRITICAL: compensation exhausted and reconciliation record not persisted")
	} else {
		log.Error().
			Str("reconciliation_id", rec.ID.String()).
			Str("amount", amount.String()).
			Msg("Compensation exhausted, escalated to manual reconciliation")
	}
	appErr := apperror.ErrManualReconciliationRequired()
	appErr.Err = lastErr
	return appErr
}

// replayFromStore returns the committed result for (account, key) when the
// order store already holds it, or nil when the key is unused.
func (s *purchaseService) replayFromStore(ctx context.Context, accountID uuid.UUID, key string) (*ports.PurchaseResult, error) {
	sctx, cancel := s.storageCtx(ctx)
	defer cancel()
	order, err := s.orderRepo.FindByIdempotencyKey(sctx, accountID, key)
	if err != nil {
		return nil, s.storageErr("idempotency lookup", err)
	}
	if order == nil {
		return nil, nil
	}

	balance, err := s.getBalance(ctx, accountID)
	if err != nil {
		return nil, err
	}
	return &ports.PurchaseResult{Order: order, NewBalance: balance, Replayed: true}, nil
}

// checkCapacity enforces the product's cap on concurrently active orders per
// account. Capacity zero means the product is uncapped. Runs under the account
// lock, so the count cannot race a concurrent purchase on the same account.
func (s *purchaseService) checkCapacity(ctx context.Context, accountID uuid.UUID, product *domain.Product, log zerolog.Logger) error {
	if product.Capacity <= 0 {
		return nil
	}
	sctx, cancel := s.storageCtx(ctx)
	defer cancel()
	active, err := s.orderRepo.CountActiveByAccount(sctx, accountID, product.ID)
	if err != nil {
		return s.storageErr("active order count", err)
	}
	if active >= product.Capacity {
		log.Info().
			Int("active", active).
			Int("capacity", product.Capacity).
			Msg("Purchase rejected: product capacity reached")
		return apperror.ErrCapacityExceeded()
	}
	return nil
}

func (s *purchaseService) checkPoisonedKey(ctx context.Context, accountID uuid.UUID, key string) error {
	sctx, cancel := s.storageCtx(ctx)
	defer cancel()
	rec, err := s.reconRepo.FindOpenByKey(sctx, accountID, key)
	if err != nil {
		return s.storageErr("reconciliation lookup", err)
	}
	if rec != nil {
		return apperror.ErrManualReconciliationRequired()
	}
	return nil
}

func (s *purchaseService) acquireLock(ctx context.Context, accountID uuid.UUID) (func(), error) {
	release, err := s.locker.Acquire(ctx, accountID)
	if err != nil {
		return nil, apperror.ErrTimeout(fmt.Errorf("account lock: %w", err))
	}
	return release, nil
}

func (s *purchaseService) getProduct(ctx context.Context, id uuid.UUID) (*domain.Product, error) {
	sctx, cancel := s.storageCtx(ctx)
	defer cancel()
	product, err := s.catalog.GetByID(sctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, apperror.ErrProductNotFound()
		}
		return nil, s.storageErr("product lookup", err)
	}
	return product, nil
}

func (s *purchaseService) getBalance(ctx context.Context, accountID uuid.UUID) (decimal.Decimal, error) {
	sctx, cancel := s.storageCtx(ctx)
	defer cancel()
	balance, err := s.ledgerRepo.GetBalance(sctx, accountID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return decimal.Zero, apperror.ErrAccountNotFound()
		}
		return decimal.Zero, s.storageErr("balance read", err)
	}
	return balance, nil
}

// cachedResult returns the cached committed result for key, or nil. Cache
// failures degrade to the slow path rather than failing the request.
func (s *purchaseService) cachedResult(ctx context.Context, key string) *ports.PurchaseResult {
	sctx, cancel := s.storageCtx(ctx)
	defer cancel()
	data, err := s.cache.Get(sctx, key)
	if err != nil {
		s.log.Warn().Err(err).Msg("Result cache read failed, falling through")
		return nil
	}
	if data == nil {
		return nil
	}
	var result ports.PurchaseResult
	if err := json.Unmarshal(data, &result); err != nil {
		s.log.Warn().Err(err).Msg("Cached result unreadable, falling through")
		return nil
	}
	result.Replayed = true
	return &result
}

// cachedBalance returns the cached committed balance result for key, or nil.
// Like cachedResult, cache failures degrade to the slow path.
func (s *purchaseService) cachedBalance(ctx context.Context, key string) *ports.BalanceResult {
	sctx, cancel := s.storageCtx(ctx)
	defer cancel()
	data, err := s.cache.Get(sctx, key)
	if err != nil {
		s.log.Warn().Err(err).Msg("Result cache read failed, falling through")
		return nil
	}
	if data == nil {
		return nil
	}
	var result ports.BalanceResult
	if err := json.Unmarshal(data, &result); err != nil {
		s.log.Warn().Err(err).Msg("Cached result unreadable, falling through")
		return nil
	}
	return &result
}

// cacheBalance stores a committed withdrawal result, best effort.
func (s *purchaseService) cacheBalance(key string, result *ports.BalanceResult) {
	data, err := json.Marshal(result)
	if err != nil {
		s.log.Warn().Err(err).Msg("Result not cacheable")
		return
	}
	ctx, cancel := s.storageCtx(context.Background())
	defer cancel()
	if err := s.cache.Set(ctx, key, data, s.cfg.ResultTTL); err != nil {
		s.log.Warn().Err(err).Msg("Result cache write failed")
	}
}

// cacheResult stores a committed result, best effort. The order store remains
// the authoritative replay source when the cache write is lost.
func (s *purchaseService) cacheResult(key string, result *ports.PurchaseResult) {
	data, err := json.Marshal(result)
	if err != nil {
		s.log.Warn().Err(err).Msg("Result not cacheable")
		return
	}
	ctx, cancel := s.storageCtx(context.Background())
	defer cancel()
	if err := s.cache.Set(ctx, key, data, s.cfg.ResultTTL); err != nil {
		s.log.Warn().Err(err).Msg("Result cache write failed")
	}
}

func (s *purchaseService) createOrder(ctx context.Context, order *domain.Order) error {
	sctx, cancel := s.storageCtx(ctx)
	defer cancel()
	return s.orderRepo.Create(sctx, order)
}

func (s *purchaseService) storageCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.cfg.StorageTimeout)
}

// storageErr maps a failed storage call to its API error. A call that ran out
// of its storage_timeout budget is a timeout, not a generic internal failure.
func (s *purchaseService) storageErr(op string, err error) *apperror.AppError {
	wrapped := fmt.Errorf("%s: %w", op, err)
	if errors.Is(err, context.DeadlineExceeded) {
		return apperror.ErrTimeout(wrapped)
	}
	return apperror.InternalError(wrapped)
}
