package handler

import (
	"net/http"

	"mining-bot-market/internal/adapter/http/dto"
	"mining-bot-market/internal/core/ports"
	"mining-bot-market/pkg/apperror"
	"mining-bot-market/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AccountHandler handles account balance endpoints.
type AccountHandler struct {
	purchaseSvc ports.PurchaseService
}

// NewAccountHandler creates a new AccountHandler.
func NewAccountHandler(purchaseSvc ports.PurchaseService) *AccountHandler {
	return &AccountHandler{purchaseSvc: purchaseSvc}
}

// Deposit handles POST /api/v1/deposits.
func (h *AccountHandler) Deposit(c *gin.Context) {
	var req dto.DepositRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}

	accountID, amount, err := parseAccountAmount(req.AccountID, req.Amount)
	if err != nil {
		response.Error(c, err)
		return
	}

	reference := ""
	if req.Reference != nil {
		reference = *req.Reference
	}

	result, err := h.purchaseSvc.Deposit(c.Request.Context(), ports.DepositRequest{
		AccountID: accountID,
		Amount:    amount,
		Reference: reference,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, toBalanceResponse(result))
}

// Withdraw handles POST /api/v1/withdrawals.
func (h *AccountHandler) Withdraw(c *gin.Context) {
	var req dto.WithdrawRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}

	accountID, amount, err := parseAccountAmount(req.AccountID, req.Amount)
	if err != nil {
		response.Error(c, err)
		return
	}

	result, err := h.purchaseSvc.Withdraw(c.Request.Context(), ports.WithdrawRequest{
		AccountID:      accountID,
		Amount:         amount,
		IdempotencyKey: req.IdempotencyKey,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, toBalanceResponse(result))
}

// GetBalance handles GET /api/v1/accounts/:id/balance.
func (h *AccountHandler) GetBalance(c *gin.Context) {
	accountID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Error(c, apperror.Validation("invalid account id"))
		return
	}

	result, err := h.purchaseSvc.GetBalance(c.Request.Context(), accountID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, toBalanceResponse(result))
}

func parseAccountAmount(rawID, rawAmount string) (uuid.UUID, decimal.Decimal, error) {
	accountID, err := uuid.Parse(rawID)
	if err != nil {
		return uuid.Nil, decimal.Zero, apperror.Validation("invalid account_id")
	}
	amount, err := decimal.NewFromString(rawAmount)
	if err != nil {
		return uuid.Nil, decimal.Zero, apperror.ErrInvalidAmount()
	}
	return accountID, amount, nil
}

func toBalanceResponse(result *ports.BalanceResult) dto.BalanceResponse {
	return dto.BalanceResponse{
		AccountID: result.AccountID.String(),
		Balance:   result.NewBalance.String(),
	}
}

// HealthCheck handles GET /health — deep health check verifying all dependencies.
func HealthCheck(checkers ...ports.HealthChecker) gin.HandlerFunc {
	return func(c *gin.Context) {
		type depStatus struct {
			Status string `json:"status"`
			Error  string `json:"error,omitempty"`
		}

		deps := make(map[string]depStatus)
		allHealthy := true

		for _, checker := range checkers {
			if err := checker.Ping(c.Request.Context()); err != nil {
				deps[checker.Name()] = depStatus{Status: "unhealthy", Error: err.Error()}
				allHealthy = false
			} else {
				deps[checker.Name()] = depStatus{Status: "healthy"}
			}
		}

		status := "healthy"
		httpCode := http.StatusOK
		if !allHealthy {
			status = "degraded"
			httpCode = http.StatusServiceUnavailable
		}

		c.JSON(httpCode, gin.H{
			"status":       status,
			"dependencies": deps,
		})
	}
}
