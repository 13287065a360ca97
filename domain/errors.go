/*
errors.go - Centralized error types for the bill ledger

PURPOSE:
  All error types in one place for consistency and discoverability.
  Callers branch with errors.Is on the sentinels and errors.As on the
  structured types when they need the details (which entity, which limit).

ERROR CATEGORIES:
  1. Validation errors - caller-correctable, never retried
     (ErrInvalidAmount, ErrMissingPaymentMethod, ErrMissingCategory,
     ErrMissingOwner, ErrMissingBill)
  2. Invariant protection - abort before anything is mutated
     (ErrOwnerMismatch, ErrCreditLimitExceeded)
  3. Persistence - storage failed after a mutation may have been applied
     (ErrPersistence, ErrRollbackFailed)
  4. Storage contract - returned by Repository implementations
     (ErrNotFound, ErrAlreadyExists, ErrStillReferenced, ErrDanglingReference)

SEE ALSO:
  - ledger/engine.go: produces categories 1-3
  - store/sqlite/sqlite.go: produces category 4
*/
package domain

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrInvalidAmount is returned for a zero bill amount.
	ErrInvalidAmount = errors.New("invalid amount: must be nonzero")

	// ErrMissingPaymentMethod is returned when the referenced payment method does not exist.
	ErrMissingPaymentMethod = errors.New("payment method not found")

	// ErrMissingCategory is returned when no category is given or one does not exist.
	ErrMissingCategory = errors.New("category not found")

	// ErrMissingOwner is returned when the referenced owner does not exist.
	ErrMissingOwner = errors.New("owner not found")

	// ErrMissingBill is returned when the bill to update or delete is gone.
	ErrMissingBill = errors.New("bill not found")

	// ErrOwnerMismatch is returned when a bill's owner differs from its payment method's owner.
	ErrOwnerMismatch = errors.New("owner mismatch")

	// ErrCreditLimitExceeded is returned when outstanding debt would exceed the credit limit.
	ErrCreditLimitExceeded = errors.New("credit limit exceeded")

	// ErrPersistence is returned when storage failed during a ledger operation.
	// Any balance change already applied has been reverted.
	ErrPersistence = errors.New("persistence failure")

	// ErrRollbackFailed is returned when reverting an applied balance change failed.
	// The ledger is known to be inconsistent.
	ErrRollbackFailed = errors.New("rollback failed")

	// ErrNotFound is returned by storage when updating or deleting a missing row.
	ErrNotFound = errors.New("record not found")

	// ErrAlreadyExists is returned by storage when saving a duplicate id.
	ErrAlreadyExists = errors.New("record already exists")

	// ErrStillReferenced is returned by storage when deleting a row bills still point to.
	ErrStillReferenced = errors.New("record still referenced")

	// ErrDanglingReference is returned by storage when a row points to a missing parent.
	ErrDanglingReference = errors.New("dangling reference")

	// ErrUnknownAccountType is returned for an unrecognized payment method variant.
	ErrUnknownAccountType = errors.New("unknown account type")

	// ErrImmutableField is returned when an edit tries to change a payment
	// method's account type or owner.
	ErrImmutableField = errors.New("field cannot be changed")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// EntityKind names the table an error refers to.
type EntityKind string

const (
	KindOwner         EntityKind = "owner"
	KindCategory      EntityKind = "category"
	KindPaymentMethod EntityKind = "payment_method"
	KindBill          EntityKind = "bill"
)

// MissingReferenceError names the entity that failed referential validation.
type MissingReferenceError struct {
	Kind EntityKind
	ID   uuid.UUID // uuid.Nil when nothing was referenced at all
}

func (e *MissingReferenceError) Error() string {
	if e.ID == uuid.Nil {
		return fmt.Sprintf("%s: none given", e.Unwrap())
	}
	return fmt.Sprintf("%s: %s", e.Unwrap(), e.ID)
}

func (e *MissingReferenceError) Unwrap() error {
	switch e.Kind {
	case KindOwner:
		return ErrMissingOwner
	case KindCategory:
		return ErrMissingCategory
	case KindPaymentMethod:
		return ErrMissingPaymentMethod
	default:
		return ErrMissingBill
	}
}

// OwnerMismatchError reports a bill owner that differs from the payment method owner.
type OwnerMismatchError struct {
	PaymentMethodID    uuid.UUID
	PaymentMethodOwner uuid.UUID
	BillOwner          uuid.UUID
}

func (e *OwnerMismatchError) Error() string {
	return fmt.Sprintf("owner mismatch: payment method %s belongs to %s, bill owner is %s",
		e.PaymentMethodID, e.PaymentMethodOwner, e.BillOwner)
}

func (e *OwnerMismatchError) Unwrap() error {
	return ErrOwnerMismatch
}

// CreditLimitExceededError provides details about a rejected credit mutation.
type CreditLimitExceededError struct {
	PaymentMethodID uuid.UUID
	CreditLimit     decimal.Decimal
	Outstanding     decimal.Decimal // before the mutation
	Attempted       decimal.Decimal // outstanding the mutation would have produced
}

func (e *CreditLimitExceededError) Error() string {
	return fmt.Sprintf("credit limit exceeded on %s: limit %s, outstanding %s, attempted %s",
		e.PaymentMethodID, e.CreditLimit, e.Outstanding, e.Attempted)
}

func (e *CreditLimitExceededError) Unwrap() error {
	return ErrCreditLimitExceeded
}

// PersistenceError wraps a storage failure hit during a ledger operation.
type PersistenceError struct {
	Op   string // e.g. "create_bill"
	Kind EntityKind
	ID   uuid.UUID
	Err  error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s: persist %s %s: %v", e.Op, e.Kind, e.ID, e.Err)
}

func (e *PersistenceError) Unwrap() []error {
	return []error{ErrPersistence, e.Err}
}

// RollbackError reports a compensation that failed after an earlier failure.
// Cause is what triggered the rollback, Rollback is why reverting failed.
type RollbackError struct {
	Op       string
	Cause    error
	Rollback error
}

func (e *RollbackError) Error() string {
	return fmt.Sprintf("%s: rollback failed (%v) after: %v", e.Op, e.Rollback, e.Cause)
}

func (e *RollbackError) Unwrap() []error {
	return []error{ErrRollbackFailed, e.Cause, e.Rollback}
}

// StillReferencedError reports a delete blocked by bills pointing at the row.
type StillReferencedError struct {
	Kind EntityKind
	ID   uuid.UUID
}

func (e *StillReferencedError) Error() string {
	return fmt.Sprintf("%s %s is still referenced by bills", e.Kind, e.ID)
}

func (e *StillReferencedError) Unwrap() error {
	return ErrStillReferenced
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid caller input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidAmount) ||
		errors.Is(err, ErrMissingPaymentMethod) ||
		errors.Is(err, ErrMissingCategory) ||
		errors.Is(err, ErrMissingOwner) ||
		errors.Is(err, ErrOwnerMismatch) ||
		errors.Is(err, ErrCreditLimitExceeded) ||
		errors.Is(err, ErrImmutableField)
}

// IsNotFound returns true if the error indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrMissingBill)
}
