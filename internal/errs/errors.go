package errs

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Common sentinel errors for cross-layer signaling.
var (
	ErrNotFound  = errors.New("not_found")
	ErrForbidden = errors.New("forbidden")
	ErrConflict  = errors.New("conflict")
	ErrInvalid   = errors.New("invalid")
	// ErrUnprocessable is used for semantic validation failures (HTTP 422)
	ErrUnprocessable = errors.New("unprocessable")
	// ErrImmutable indicates a safe entry that is linked to a payment, sale or
	// expense and must be edited through its source record, not the ledger.
	ErrImmutable = errors.New("immutable")
	// ErrExchangeRate indicates a zero or negative exchange rate where a
	// positive one is required.
	ErrExchangeRate = errors.New("exchange_rate")
	// ErrOversold indicates a sale requested more inventory than available.
	ErrOversold = errors.New("oversold")
	// ErrPolicyActive indicates an operation that requires a different costing
	// policy than the market currently uses.
	ErrPolicyActive = errors.New("policy_active")
)

// OversoldError identifies the item and quantities of a rejected or partial
// allocation. It unwraps to ErrOversold.
type OversoldError struct {
	ItemID    uuid.UUID
	ItemCode  string
	Requested string
	Available string
}

func (e *OversoldError) Error() string {
	return fmt.Sprintf("oversold item %s: requested %s, available %s", e.ItemCode, e.Requested, e.Available)
}

func (e *OversoldError) Unwrap() error { return ErrOversold }
