/*
store.go - Persistence contract for the bill ledger

PURPOSE:
  Defines the interface between the ledger engine and the database.
  Every entity kind gets the same Fetch / Save / Update / Delete surface.
  Implementations must enforce referential integrity themselves.

KEY INTERFACES:
  Repository:     CRUD for owners, categories, payment methods and bills
  TxRepository:   Atomic multi-row writes (optional capability)
  SnapshotReader: Consistent read of every table (optional capability)

REFERENTIAL INTEGRITY:
  - Deleting an Owner cascades to its PaymentMethods
  - Deleting a PaymentMethod, Category or Owner still referenced by a Bill
    fails with StillReferencedError
  - Bill categories are a child set; UpdateBill replaces the whole set

BILLS ARE WRITTEN BY THE LEDGER ONLY:
  SaveBill / UpdateBill / DeleteBill never touch payment method balances.
  Going through them directly bypasses the balance invariant; use
  ledger.Engine instead.

IMPLEMENTATIONS:
  - store/sqlite/sqlite.go: Production SQLite
  - domain/store/memory.go: In-memory for testing

SEE ALSO:
  - ledger/engine.go: the only writer of bills
*/
package domain

import (
	"context"

	"github.com/google/uuid"
)

// =============================================================================
// REPOSITORY - Storage contract
// =============================================================================

// Repository is the storage contract the ledger engine is built on.
//
// FetchX by id returns (nil, nil) when the row does not exist.
// UpdateX and DeleteX return ErrNotFound for a missing row.
// SaveX returns ErrAlreadyExists for a duplicate id.
type Repository interface {
	FetchOwners(ctx context.Context) ([]Owner, error)
	FetchOwner(ctx context.Context, id uuid.UUID) (*Owner, error)
	SaveOwner(ctx context.Context, o Owner) error
	UpdateOwner(ctx context.Context, o Owner) error
	DeleteOwner(ctx context.Context, id uuid.UUID) error

	FetchCategories(ctx context.Context) ([]BillCategory, error)
	FetchCategory(ctx context.Context, id uuid.UUID) (*BillCategory, error)
	SaveCategory(ctx context.Context, c BillCategory) error
	UpdateCategory(ctx context.Context, c BillCategory) error
	DeleteCategory(ctx context.Context, id uuid.UUID) error

	FetchPaymentMethods(ctx context.Context) ([]PaymentMethod, error)
	FetchPaymentMethod(ctx context.Context, id uuid.UUID) (PaymentMethod, error)
	SavePaymentMethod(ctx context.Context, pm PaymentMethod) error
	UpdatePaymentMethod(ctx context.Context, pm PaymentMethod) error
	DeletePaymentMethod(ctx context.Context, id uuid.UUID) error

	// FetchBills returns every bill, newest first by CreatedAt.
	FetchBills(ctx context.Context) ([]Bill, error)
	FetchBill(ctx context.Context, id uuid.UUID) (*Bill, error)
	SaveBill(ctx context.Context, b Bill) error
	UpdateBill(ctx context.Context, b Bill) error
	DeleteBill(ctx context.Context, id uuid.UUID) error
}

// =============================================================================
// OPTIONAL CAPABILITIES
// =============================================================================

// TxRepository wraps Repository with transaction support.
type TxRepository interface {
	Repository

	// WithTx executes fn within a transaction.
	// If fn returns error, transaction is rolled back.
	// If fn returns nil, transaction is committed.
	WithTx(ctx context.Context, fn func(Repository) error) error
}

// SnapshotReader loads every table as of a single instant.
type SnapshotReader interface {
	Snapshot(ctx context.Context) (Snapshot, error)
}
