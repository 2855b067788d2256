package apperror

import (
	"fmt"
	"net/http"
)

// AppError is a structured error that maps to HTTP responses.
type AppError struct {
	Code       string `json:"error_code"`
	Message    string `json:"message"`
	HTTPStatus int    `json:"-"`
	Err        error  `json:"-"` // Wrapped internal error (not exposed to client)
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError.
func New(code string, message string, httpStatus int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
	}
}

// Wrap wraps an internal error with an AppError.
func Wrap(code string, message string, httpStatus int, err error) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
		Err:        err,
	}
}

// ---- Purchase Engine (PUR) ----

func ErrProductNotFound() *AppError {
	return New("PUR_001", "Product not found", http.StatusNotFound)
}

// ErrOrderCreationFailed signals that the order insert failed and the debited
// amount was credited back. The caller sees no side effect.
func ErrOrderCreationFailed(err error) *AppError {
	return Wrap("PUR_002", "Order creation failed, balance restored", http.StatusInternalServerError, err)
}

// ErrManualReconciliationRequired is terminal: the compensating credit could not
// be confirmed and the account is flagged for operator review. The same
// idempotency key is refused while the record stays open.
func ErrManualReconciliationRequired() *AppError {
	return New("PUR_003", "Purchase could not be reconciled, contact support", http.StatusServiceUnavailable)
}

// ErrCapacityExceeded rejects a purchase when the account already holds the
// product's maximum number of active orders.
func ErrCapacityExceeded() *AppError {
	return New("PUR_004", "Product capacity reached for this account", http.StatusConflict)
}

// ---- Ledger (LED) ----

func ErrInsufficientFunds() *AppError {
	return New("LED_001", "Insufficient account balance", http.StatusPaymentRequired)
}

// ErrConflict is returned when the balance kept moving underneath the request
// and the bounded optimistic retries were exhausted. Safe for the caller to retry.
func ErrConflict() *AppError {
	return New("LED_002", "Concurrent balance update, please retry", http.StatusConflict)
}

func ErrAccountNotFound() *AppError {
	return New("LED_003", "Account not found", http.StatusNotFound)
}

func ErrInvalidAmount() *AppError {
	return New("LED_004", "Invalid amount", http.StatusBadRequest)
}

// ---- Rate Limiting (RATE) ----

func ErrRateLimitExceeded() *AppError {
	return New("RATE_001", "Rate limit exceeded", http.StatusTooManyRequests)
}

// ---- System & Infrastructure (SYS) ----

// InternalError wraps an internal error as a SYS_001 error.
func InternalError(err error) *AppError {
	return Wrap("SYS_001", "Internal server error", http.StatusInternalServerError, err)
}

// ErrTimeout covers storage call timeouts and lock acquisition timeouts alike;
// the engine treats a timed-out call as failed, never as unknown.
func ErrTimeout(err error) *AppError {
	return Wrap("SYS_002", "Operation timed out", http.StatusGatewayTimeout, err)
}

// Validation returns a request validation error. Kept distinct from LED_004 so
// malformed input and a rejected ledger amount stay distinguishable to clients.
func Validation(message string) *AppError {
	return New("VAL_001", message, http.StatusBadRequest)
}
