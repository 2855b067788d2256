package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"mining-bot-market/config"
	httpHandler "mining-bot-market/internal/adapter/http/handler"
	redisStorage "mining-bot-market/internal/adapter/storage/redis"
	"mining-bot-market/internal/core/domain"
	"mining-bot-market/internal/service"
	"mining-bot-market/pkg/logger"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testApp builds a full application stack: in-memory Redis (miniredis) for the
// lock, result cache, and rate limiting, in-memory stores for the ledger and
// orders, and the real HTTP layer, services, and middleware on top.

type testApp struct {
	server  *httptest.Server
	redis   *miniredis.Miniredis
	ledger  *inMemoryLedgerRepo
	orders  *inMemoryOrderRepo
	catalog *inMemoryProductRepo
	recon   *inMemoryReconciliationRepo
	product *domain.Product
	account uuid.UUID
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)

	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})

	engineCfg := config.EngineConfig{
		DebitRetries:        3,
		CompensationRetries: 2,
		CompensationBackoff: time.Millisecond,
		StorageTimeout:      2 * time.Second,
		LockTTL:             5 * time.Second,
		LockWait:            3 * time.Second,
		ResultTTL:           time.Hour,
	}

	// Redis stores
	resultCache := redisStorage.NewResultCache(rdb)
	accountLock := redisStorage.NewAccountLock(rdb, engineCfg.LockTTL, engineCfg.LockWait)

	// In-memory repos
	ledgerRepo := newInMemoryLedgerRepo()
	orderRepo := newInMemoryOrderRepo()
	productRepo := newInMemoryProductRepo()
	reconRepo := newInMemoryReconciliationRepo()

	// Seeded fixtures: one funded account and one product
	accountID := uuid.New()
	ledgerRepo.seed(accountID, decimal.NewFromInt(100))

	product := &domain.Product{
		ID:           uuid.New(),
		Name:         "Starter Bot",
		Price:        decimal.NewFromInt(40),
		DurationDays: 30,
		YieldRate:    decimal.NewFromFloat(0.012),
		HashPower:    "12 TH/s",
	}
	productRepo.seed(product)

	// Business services
	log := logger.New("error", false)
	purchaseSvc := service.NewPurchaseService(ledgerRepo, orderRepo, productRepo, reconRepo, accountLock, resultCache, engineCfg, log)
	catalogSvc := service.NewCatalogService(productRepo, log)

	router := httpHandler.SetupRouter(httpHandler.RouterDeps{
		PurchaseSvc: purchaseSvc,
		CatalogSvc:  catalogSvc,
		Logger:      log,
	})

	server := httptest.NewServer(router)

	return &testApp{
		server:  server,
		redis:   mr,
		ledger:  ledgerRepo,
		orders:  orderRepo,
		catalog: productRepo,
		recon:   reconRepo,
		product: product,
		account: accountID,
	}
}

func (a *testApp) close() {
	a.server.Close()
	a.redis.Close()
}

func seedAccount(a *testApp, balance decimal.Decimal) string {
	id := uuid.New()
	a.ledger.seed(id, balance)
	return id.String()
}

func (a *testApp) purchaseBody(key string) string {
	return fmt.Sprintf(`{"account_id":%q,"product_id":%q,"idempotency_key":%q}`,
		a.account.String(), a.product.ID.String(), key)
}

func (a *testApp) postPurchase(t *testing.T, key string) (*http.Response, map[string]any) {
	t.Helper()
	resp, err := http.Post(a.server.URL+"/api/v1/purchases", "application/json",
		bytes.NewBufferString(a.purchaseBody(key)))
	require.NoError(t, err)
	defer resp.Body.Close()

	var body map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&body)
	return resp, body
}

// --- Integration Tests ---

func TestIntegration_HealthCheck(t *testing.T) {
	app := newTestApp(t)
	defer app.close()

	resp, err := http.Get(app.server.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, 200, resp.StatusCode)
}

func TestIntegration_PurchaseDebitsAndCreatesOrder(t *testing.T) {
	app := newTestApp(t)
	defer app.close()

	resp, body := app.postPurchase(t, "order-1")
	assert.Equal(t, 201, resp.StatusCode)

	data := body["data"].(map[string]any)
	assert.Equal(t, "40", data["new_balance"])
	order := data["order"].(map[string]any)
	assert.Equal(t, "ACTIVE", order["status"])

	balance, err := app.ledger.GetBalance(t.Context(), app.account)
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(60).Equal(balance))
	assert.Equal(t, 1, app.orders.count())
}

func TestIntegration_InsufficientFundsLeavesBalanceUntouched(t *testing.T) {
	app := newTestApp(t)
	defer app.close()

	app.ledger.seed(app.account, decimal.NewFromInt(30))

	resp, body := app.postPurchase(t, "order-1")
	assert.Equal(t, http.StatusPaymentRequired, resp.StatusCode)
	assert.Equal(t, "LED_001", body["error_code"])

	balance, err := app.ledger.GetBalance(t.Context(), app.account)
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(30).Equal(balance))
	assert.Equal(t, 0, app.orders.count())
}

func TestIntegration_DoublePostSameKeyChargesOnce(t *testing.T) {
	app := newTestApp(t)
	defer app.close()

	first, firstBody := app.postPurchase(t, "order-1")
	assert.Equal(t, 201, first.StatusCode)

	second, secondBody := app.postPurchase(t, "order-1")
	assert.Equal(t, 200, second.StatusCode)

	firstOrder := firstBody["data"].(map[string]any)["order"].(map[string]any)
	secondOrder := secondBody["data"].(map[string]any)["order"].(map[string]any)
	assert.Equal(t, firstOrder["id"], secondOrder["id"])

	balance, err := app.ledger.GetBalance(t.Context(), app.account)
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(60).Equal(balance))
	assert.Equal(t, 1, app.orders.count())
}

func TestIntegration_ReplaySurvivesCacheLoss(t *testing.T) {
	app := newTestApp(t)
	defer app.close()

	first, _ := app.postPurchase(t, "order-1")
	assert.Equal(t, 201, first.StatusCode)

	// The cache entry is gone but the order store still knows the key.
	app.redis.FlushAll()

	second, _ := app.postPurchase(t, "order-1")
	assert.Equal(t, 200, second.StatusCode)

	balance, err := app.ledger.GetBalance(t.Context(), app.account)
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(60).Equal(balance))
	assert.Equal(t, 1, app.orders.count())
}

func TestIntegration_FailedOrderCreateRefunds(t *testing.T) {
	app := newTestApp(t)
	defer app.close()

	app.orders.failCreates = 1

	resp, body := app.postPurchase(t, "order-1")
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, "PUR_002", body["error_code"])

	balance, err := app.ledger.GetBalance(t.Context(), app.account)
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(100).Equal(balance))
	assert.Equal(t, 0, app.orders.count())
}

func TestIntegration_CompensationExhaustionPoisonsKey(t *testing.T) {
	app := newTestApp(t)
	defer app.close()

	app.orders.failCreates = 1
	app.ledger.failCredits = 2 // matches CompensationRetries

	resp, body := app.postPurchase(t, "order-1")
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, "PUR_003", body["error_code"])
	assert.Equal(t, 1, app.recon.count())

	// The key stays refused while the record is open, even though storage
	// has recovered.
	retry, retryBody := app.postPurchase(t, "order-1")
	assert.Equal(t, http.StatusServiceUnavailable, retry.StatusCode)
	assert.Equal(t, "PUR_003", retryBody["error_code"])

	// A different key on the same account still works.
	ok, _ := app.postPurchase(t, "order-2")
	assert.Equal(t, 201, ok.StatusCode)
}

func TestIntegration_DepositWithdrawBalance(t *testing.T) {
	app := newTestApp(t)
	defer app.close()

	depositBody := fmt.Sprintf(`{"account_id":%q,"amount":"50"}`, app.account.String())
	resp, err := http.Post(app.server.URL+"/api/v1/deposits", "application/json",
		bytes.NewBufferString(depositBody))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, 200, resp.StatusCode)

	withdrawBody := fmt.Sprintf(`{"account_id":%q,"amount":"30","idempotency_key":"wd-1"}`, app.account.String())
	resp, err = http.Post(app.server.URL+"/api/v1/withdrawals", "application/json",
		bytes.NewBufferString(withdrawBody))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, 200, resp.StatusCode)

	resp, err = http.Get(app.server.URL + "/api/v1/accounts/" + app.account.String() + "/balance")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, 200, resp.StatusCode)

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	data := body["data"].(map[string]any)
	assert.Equal(t, "120", data["balance"])
}

func TestIntegration_DoubleWithdrawSameKeyDebitsOnce(t *testing.T) {
	app := newTestApp(t)
	defer app.close()

	withdrawBody := fmt.Sprintf(`{"account_id":%q,"amount":"30","idempotency_key":"wd-retry"}`, app.account.String())
	for i := 0; i < 2; i++ {
		resp, err := http.Post(app.server.URL+"/api/v1/withdrawals", "application/json",
			bytes.NewBufferString(withdrawBody))
		require.NoError(t, err)

		var body map[string]any
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		resp.Body.Close()
		assert.Equal(t, 200, resp.StatusCode)
		data := body["data"].(map[string]any)
		assert.Equal(t, "70", data["new_balance"])
	}

	balance, err := app.ledger.GetBalance(context.Background(), app.account)
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(70).Equal(balance), "retried key must debit exactly once, got %s", balance)
}

func TestIntegration_PurchaseCapacityEnforced(t *testing.T) {
	app := newTestApp(t)
	defer app.close()

	capped := &domain.Product{
		ID:           uuid.New(),
		Name:         "Limited Bot",
		Price:        decimal.NewFromInt(10),
		DurationDays: 30,
		YieldRate:    decimal.NewFromFloat(0.012),
		HashPower:    "12 TH/s",
		Capacity:     2,
	}
	app.catalog.seed(capped)

	post := func(key string) int {
		body := fmt.Sprintf(`{"account_id":%q,"product_id":%q,"idempotency_key":%q}`,
			app.account.String(), capped.ID.String(), key)
		resp, err := http.Post(app.server.URL+"/api/v1/purchases", "application/json",
			bytes.NewBufferString(body))
		require.NoError(t, err)
		resp.Body.Close()
		return resp.StatusCode
	}

	assert.Equal(t, 201, post("cap-1"))
	assert.Equal(t, 201, post("cap-2"))
	assert.Equal(t, 409, post("cap-3"))

	// The uncapped product is unaffected by the capped one's limit.
	ok, _ := app.postPurchase(t, "cap-other")
	assert.Equal(t, 201, ok.StatusCode)
}

func TestIntegration_ProductCatalog(t *testing.T) {
	app := newTestApp(t)
	defer app.close()

	resp, err := http.Get(app.server.URL + "/api/v1/products")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, 200, resp.StatusCode)

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	data := body["data"].(map[string]any)
	assert.Equal(t, float64(1), data["total"])

	single, err := http.Get(app.server.URL + "/api/v1/products/" + app.product.ID.String())
	require.NoError(t, err)
	single.Body.Close()
	assert.Equal(t, 200, single.StatusCode)

	missing, err := http.Get(app.server.URL + "/api/v1/products/" + uuid.NewString())
	require.NoError(t, err)
	missing.Body.Close()
	assert.Equal(t, 404, missing.StatusCode)
}
