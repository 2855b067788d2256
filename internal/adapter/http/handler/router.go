package handler

import (
	"mining-bot-market/internal/adapter/http/middleware"
	redisStore "mining-bot-market/internal/adapter/storage/redis"
	"mining-bot-market/internal/core/ports"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// RouterDeps holds all dependencies needed to set up routes.
type RouterDeps struct {
	PurchaseSvc    ports.PurchaseService
	CatalogSvc     ports.CatalogService
	RateLimitStore *redisStore.RateLimitStore // nil = rate limiting disabled
	HealthCheckers []ports.HealthChecker
	Logger         zerolog.Logger
}

// SetupRouter initialises the Gin engine with all routes and middleware.
func SetupRouter(deps RouterDeps) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()

	// Global middleware
	r.Use(middleware.Recovery(deps.Logger))
	r.Use(middleware.RequestLogger(deps.Logger))
	r.Use(middleware.MaxBodySize(1 << 20)) // 1 MB request body limit

	// Health check (deep — verifies PostgreSQL + Redis)
	r.GET("/health", HealthCheck(deps.HealthCheckers...))

	// Rate limit rules
	rules := middleware.DefaultRateLimitRules()

	// Helper: return rate limiter middleware if store is available, else noop.
	rl := func(group string) gin.HandlerFunc {
		if deps.RateLimitStore == nil {
			return func(c *gin.Context) { c.Next() }
		}
		rule, ok := rules[group]
		if !ok {
			return func(c *gin.Context) { c.Next() }
		}
		return middleware.RateLimiter(deps.RateLimitStore, group, rule, deps.Logger)
	}

	// API v1 routes
	v1 := r.Group("/api/v1")

	catalogHandler := NewCatalogHandler(deps.CatalogSvc)
	products := v1.Group("/products")
	{
		products.GET("", rl("catalog"), catalogHandler.ListProducts)
		products.GET("/:id", rl("catalog"), catalogHandler.GetProduct)
	}

	purchaseHandler := NewPurchaseHandler(deps.PurchaseSvc)
	v1.POST("/purchases", rl("purchases"), purchaseHandler.Purchase)

	accountHandler := NewAccountHandler(deps.PurchaseSvc)
	v1.POST("/deposits", rl("deposits"), accountHandler.Deposit)
	v1.POST("/withdrawals", rl("withdrawals"), accountHandler.Withdraw)
	v1.GET("/accounts/:id/balance", rl("accounts"), accountHandler.GetBalance)

	return r
}
