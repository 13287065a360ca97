/*
Package domain provides the core types of the bill ledger.

PURPOSE:
  This package holds the entities every other package speaks in: owners,
  bill categories, payment methods and bills. It also owns the balance
  arithmetic that moves a payment method's running total when a bill is
  applied or reversed, so the rule lives in exactly one place.

KEY CONCEPTS IN THIS FILE (types.go):
  - TransactionType: expense / income / excluded classification
  - Owner, BillCategory: reference data
  - Bill: a signed amount charged against one payment method

DESIGN PRINCIPLES:
  1. Precision: all money is decimal.Decimal, never float64
  2. Type Safety: ids are uuid.UUID, transaction types are a named string
  3. Sign convention: negative amount = money leaves the payment method,
     positive amount = money enters it

SEE ALSO:
  - payment.go: PaymentMethod sum type and balance arithmetic
  - errors.go: error taxonomy
  - store.go: Repository contract
*/
package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// =============================================================================
// TRANSACTION TYPE
// =============================================================================

// TransactionType classifies categories and payment methods.
type TransactionType string

const (
	TransactionExpense  TransactionType = "expense"
	TransactionIncome   TransactionType = "income"
	TransactionExcluded TransactionType = "excluded" // moves money, omitted from income/expense totals
)

// Valid reports whether t is one of the known transaction types.
func (t TransactionType) Valid() bool {
	switch t {
	case TransactionExpense, TransactionIncome, TransactionExcluded:
		return true
	}
	return false
}

// =============================================================================
// REFERENCE DATA
// =============================================================================

// Owner is the person a payment method or bill belongs to.
type Owner struct {
	ID   uuid.UUID
	Name string
}

// BillCategory labels bills for statistics.
type BillCategory struct {
	ID              uuid.UUID
	Name            string
	TransactionType TransactionType
	SortOrder       int
}

// =============================================================================
// BILL
// =============================================================================

// Bill is a single expense or income entry.
//
// Amount is never zero. A bill carries at least one category.
type Bill struct {
	ID              uuid.UUID
	Amount          decimal.Decimal
	PaymentMethodID uuid.UUID
	CategoryIDs     []uuid.UUID
	OwnerID         uuid.UUID
	Note            *string
	CreatedAt       time.Time
	UpdatedAt       time.Time

	// ExcludedFlow marks bills created through the excluded entry flow.
	// Their balance effect is applied regardless of the payment method type.
	ExcludedFlow bool

	// BalanceApplied is true when Amount is currently reflected in the
	// payment method's running total.
	BalanceApplied bool
}

// NoteText returns the note or "" when there is none.
func (b Bill) NoteText() string {
	if b.Note == nil {
		return ""
	}
	return *b.Note
}

// Clone returns a copy that shares no slices or pointers with b.
func (b Bill) Clone() Bill {
	out := b
	out.CategoryIDs = append([]uuid.UUID(nil), b.CategoryIDs...)
	if b.Note != nil {
		note := *b.Note
		out.Note = &note
	}
	return out
}

// HasCategory reports whether the bill is tagged with id.
func (b Bill) HasCategory(id uuid.UUID) bool {
	for _, c := range b.CategoryIDs {
		if c == id {
			return true
		}
	}
	return false
}

// EffectiveType derives the statistics classification of a bill.
//
// A bill is excluded when every one of its categories is excluded. Otherwise
// the sign decides: positive amounts are income, negative ones expense.
// Categories missing from the lookup count as not excluded.
func EffectiveType(b Bill, categories map[uuid.UUID]BillCategory) TransactionType {
	if len(b.CategoryIDs) > 0 {
		allExcluded := true
		for _, id := range b.CategoryIDs {
			c, ok := categories[id]
			if !ok || c.TransactionType != TransactionExcluded {
				allExcluded = false
				break
			}
		}
		if allExcluded {
			return TransactionExcluded
		}
	}
	if b.Amount.IsPositive() {
		return TransactionIncome
	}
	return TransactionExpense
}

// =============================================================================
// SNAPSHOT - Consistent read of every table
// =============================================================================

// Snapshot is a materialized, point-in-time copy of the ledger tables.
// Statistics and exports run over a Snapshot, never over a live view.
type Snapshot struct {
	Owners         []Owner
	Categories     []BillCategory
	PaymentMethods []PaymentMethod
	Bills          []Bill // newest first
}

// CategoryIndex returns the categories keyed by id.
func (s Snapshot) CategoryIndex() map[uuid.UUID]BillCategory {
	idx := make(map[uuid.UUID]BillCategory, len(s.Categories))
	for _, c := range s.Categories {
		idx[c.ID] = c
	}
	return idx
}

// OwnerIndex returns the owners keyed by id.
func (s Snapshot) OwnerIndex() map[uuid.UUID]Owner {
	idx := make(map[uuid.UUID]Owner, len(s.Owners))
	for _, o := range s.Owners {
		idx[o.ID] = o
	}
	return idx
}

// PaymentMethodIndex returns the payment methods keyed by id.
func (s Snapshot) PaymentMethodIndex() map[uuid.UUID]PaymentMethod {
	idx := make(map[uuid.UUID]PaymentMethod, len(s.PaymentMethods))
	for _, pm := range s.PaymentMethods {
		idx[pm.Info().ID] = pm
	}
	return idx
}
