package domain

import "errors"

// Sentinel errors surfaced by the storage contracts. The service layer
// translates them into apperror values; repositories never import apperror.
var (
	// ErrStaleBalance means a conditional debit lost the compare: the balance
	// changed between the read and the write. Distinct from insufficiency so
	// the engine knows to re-read and retry.
	ErrStaleBalance = errors.New("balance changed since read")

	// ErrInsufficientBalance means the write was rejected because it would
	// drive the balance negative.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrDuplicateIdempotencyKey means an order already exists for the same
	// (account, idempotency key) pair. The store enforces this uniqueness as a
	// second line of defense behind the per-account critical section.
	ErrDuplicateIdempotencyKey = errors.New("duplicate idempotency key")

	// ErrNotFound is returned by lookups for absent entities where nil results
	// are not part of the contract.
	ErrNotFound = errors.New("not found")
)
