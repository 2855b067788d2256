package dto

// PurchaseRequest is the request body for a purchase.
type PurchaseRequest struct {
	AccountID      string `json:"account_id" binding:"required,uuid"`
	ProductID      string `json:"product_id" binding:"required,uuid"`
	IdempotencyKey string `json:"idempotency_key" binding:"required,max=128,safe_id"`
}

// DepositRequest is the request body for crediting an account.
type DepositRequest struct {
	AccountID string  `json:"account_id" binding:"required,uuid"`
	Amount    string  `json:"amount" binding:"required,decimal_amount"`
	Reference *string `json:"reference,omitempty"`
}

// WithdrawRequest is the request body for debiting an account.
type WithdrawRequest struct {
	AccountID      string `json:"account_id" binding:"required,uuid"`
	Amount         string `json:"amount" binding:"required,decimal_amount"`
	IdempotencyKey string `json:"idempotency_key" binding:"required,max=128,safe_id"`
}

// OrderResponse is the response body for a purchase order.
type OrderResponse struct {
	ID              string        `json:"id"`
	AccountID       string        `json:"account_id"`
	ProductID       string        `json:"product_id"`
	Status          string        `json:"status"`
	Terms           TermsResponse `json:"terms"`
	AccruedEarnings string        `json:"accrued_earnings"`
	CreatedAt       string        `json:"created_at"`
	ExpiresAt       string        `json:"expires_at"`
}

// TermsResponse is the product terms snapshot embedded in an order.
type TermsResponse struct {
	Price        string `json:"price"`
	DurationDays int    `json:"duration_days"`
	YieldRate    string `json:"yield_rate"`
	HashPower    string `json:"hash_power"`
}

// PurchaseResponse is the response body for a committed purchase.
type PurchaseResponse struct {
	Order      OrderResponse `json:"order"`
	NewBalance string        `json:"new_balance"`
}

// BalanceResponse is the response body for balance reads, deposits, and
// withdrawals.
type BalanceResponse struct {
	AccountID string `json:"account_id"`
	Balance   string `json:"balance"`
}

// ProductResponse is the response body for a catalog product.
type ProductResponse struct {
	ID           string  `json:"id"`
	Name         string  `json:"name"`
	Price        string  `json:"price"`
	DurationDays int     `json:"duration_days"`
	YieldRate    string  `json:"yield_rate"`
	HashPower    string  `json:"hash_power"`
	Capacity     int     `json:"capacity"`
	ImageURL     *string `json:"image_url,omitempty"`
}

// ProductListResponse wraps the product catalog.
type ProductListResponse struct {
	Items []ProductResponse `json:"items"`
	Total int               `json:"total"`
}
