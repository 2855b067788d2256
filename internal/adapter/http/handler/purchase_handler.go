package handler

import (
	"mining-bot-market/internal/adapter/http/dto"
	"mining-bot-market/internal/core/domain"
	"mining-bot-market/internal/core/ports"
	"mining-bot-market/pkg/apperror"
	"mining-bot-market/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// PurchaseHandler handles purchase endpoints.
type PurchaseHandler struct {
	purchaseSvc ports.PurchaseService
}

// NewPurchaseHandler creates a new PurchaseHandler.
func NewPurchaseHandler(purchaseSvc ports.PurchaseService) *PurchaseHandler {
	return &PurchaseHandler{purchaseSvc: purchaseSvc}
}

// Purchase handles POST /api/v1/purchases.
func (h *PurchaseHandler) Purchase(c *gin.Context) {
	var req dto.PurchaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}

	accountID, err := uuid.Parse(req.AccountID)
	if err != nil {
		response.Error(c, apperror.Validation("invalid account_id"))
		return
	}
	productID, err := uuid.Parse(req.ProductID)
	if err != nil {
		response.Error(c, apperror.Validation("invalid product_id"))
		return
	}

	result, err := h.purchaseSvc.Purchase(c.Request.Context(), ports.PurchaseRequest{
		AccountID:      accountID,
		ProductID:      productID,
		IdempotencyKey: req.IdempotencyKey,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	body := dto.PurchaseResponse{
		Order:      toOrderResponse(result.Order),
		NewBalance: result.NewBalance.String(),
	}
	if result.Replayed {
		response.OK(c, body)
		return
	}
	response.Created(c, body)
}

// toOrderResponse converts a domain.Order to its DTO.
func toOrderResponse(order *domain.Order) dto.OrderResponse {
	return dto.OrderResponse{
		ID:        order.ID.String(),
		AccountID: order.AccountID.String(),
		ProductID: order.ProductID.String(),
		Status:    string(order.Status),
		Terms: dto.TermsResponse{
			Price:        order.Terms.Price.String(),
			DurationDays: order.Terms.DurationDays,
			YieldRate:    order.Terms.YieldRate.String(),
			HashPower:    order.Terms.HashPower,
		},
		AccruedEarnings: order.AccruedEarnings.String(),
		CreatedAt:       order.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
		ExpiresAt:       order.ExpiresAt.Format("2006-01-02T15:04:05Z07:00"),
	}
}
