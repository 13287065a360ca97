/*
Package ledger implements the bill ledger engine.

PURPOSE:
  The Engine is the only writer of bills. Every create, update and delete
  moves the referenced payment method's running total in the same logical
  step, so that for each payment method:

    credit:  OutstandingBalance = OpeningBalance - Σ applied bill amounts
    savings: Balance            = OpeningBalance + Σ applied bill amounts

CRITICAL INVARIANTS:
  1. A bill's amount is reflected in its payment method at most once
     (Bill.BalanceApplied records whether it currently is)
  2. A credit card never ends an operation above its credit limit
  3. A failed operation leaves payment methods and bills as they were

ATOMICITY:
  When the repository implements domain.TxRepository the whole operation
  runs in one database transaction and a failure is undone by rollback.
  Otherwise every applied balance change pushes an inverse onto an undo
  log, and the log is replayed in reverse order when a later step fails.
  A failing undo is logged and surfaced as *domain.RollbackError.

CONCURRENCY:
  Operations are serialized per payment method id (keyedMutex). UpdateBill
  locks both the old and the new payment method. Once the locks are held
  the operation ignores cancellation until it has finished, compensation
  included.

EXAMPLE FLOW (credit card, limit 1000, outstanding 0):
  1. CreateBill(-1200) -> CreditLimitExceeded, outstanding stays 0
  2. CreateBill(-800)  -> outstanding 800
  3. DeleteBill(that)  -> outstanding 0

SEE ALSO:
  - domain/payment.go: ApplyBillAmount / RevertBillAmount
  - audit.go: Verify recomputes every running total from its bills
  - admin.go: opening balance and payment method edits
*/
package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/warp/ledger-engine/domain"
)

const (
	opCreateBill          = "create_bill"
	opCreateExcludedBill  = "create_excluded_bill"
	opUpdateBill          = "update_bill"
	opDeleteBill          = "delete_bill"
	opSetOpeningBalance   = "set_opening_balance"
	opUpdatePaymentMethod = "update_payment_method"

	// maxRelock bounds how often UpdateBill/DeleteBill retry when the stored
	// bill moved to a payment method that was not locked.
	maxRelock = 3
)

// errRelock is returned from inside an operation, before anything has been
// mutated, when the lock set has to grow.
var errRelock = errors.New("payment method lock set changed")

// =============================================================================
// ENGINE
// =============================================================================

// Engine orchestrates bill mutations together with their balance effect.
type Engine struct {
	repo  domain.Repository
	locks *keyedMutex
	log   zerolog.Logger
	now   func() time.Time
	newID func() uuid.UUID
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger. The default discards everything.
func WithLogger(l zerolog.Logger) Option {
	return func(e *Engine) { e.log = l }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithIDGenerator replaces uuid.New for new bill ids.
func WithIDGenerator(gen func() uuid.UUID) Option {
	return func(e *Engine) { e.newID = gen }
}

// NewEngine creates an engine over repo.
func NewEngine(repo domain.Repository, opts ...Option) *Engine {
	e := &Engine{
		repo:  repo,
		locks: newKeyedMutex(),
		log:   zerolog.Nop(),
		now:   time.Now,
		newID: uuid.New,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Repository returns the underlying repository for read paths and
// reference data maintenance.
func (e *Engine) Repository() domain.Repository {
	return e.repo
}

// BillInput carries the caller-controlled fields of a bill.
type BillInput struct {
	Amount          decimal.Decimal
	PaymentMethodID uuid.UUID
	CategoryIDs     []uuid.UUID
	OwnerID         uuid.UUID
	Note            *string
	CreatedAt       time.Time // zero means now
}

// precheck runs the validations that need no storage access.
func (in BillInput) precheck() error {
	if in.Amount.IsZero() {
		return domain.ErrInvalidAmount
	}
	if len(in.CategoryIDs) == 0 {
		return &domain.MissingReferenceError{Kind: domain.KindCategory}
	}
	return nil
}

// =============================================================================
// OPERATIONS
// =============================================================================

// CreateBill validates and persists a new bill.
//
// The balance effect is applied unless the payment method's own transaction
// type is excluded; the bill records which case happened.
func (e *Engine) CreateBill(ctx context.Context, in BillInput) (domain.Bill, error) {
	return e.create(ctx, opCreateBill, in, false)
}

// CreateExcludedBill is CreateBill for the excluded entry flow: the balance
// effect is always applied, whatever the payment method's type.
func (e *Engine) CreateExcludedBill(ctx context.Context, in BillInput) (domain.Bill, error) {
	return e.create(ctx, opCreateExcludedBill, in, true)
}

func (e *Engine) create(ctx context.Context, op string, in BillInput, excludedFlow bool) (domain.Bill, error) {
	if err := in.precheck(); err != nil {
		return domain.Bill{}, err
	}

	now := e.now().UTC()
	bill := domain.Bill{
		ID:              e.newID(),
		Amount:          in.Amount,
		PaymentMethodID: in.PaymentMethodID,
		CategoryIDs:     dedupe(in.CategoryIDs),
		OwnerID:         in.OwnerID,
		Note:            copyNote(in.Note),
		CreatedAt:       in.CreatedAt,
		UpdatedAt:       now,
		ExcludedFlow:    excludedFlow,
	}
	if bill.CreatedAt.IsZero() {
		bill.CreatedAt = now
	}

	err := e.run(ctx, op, domain.KindBill, bill.ID, []uuid.UUID{in.PaymentMethodID}, func(ctx context.Context, t *txn) error {
		pm, err := t.validate(ctx, in)
		if err != nil {
			return err
		}
		bill.BalanceApplied = excludedFlow || pm.Info().TransactionType != domain.TransactionExcluded
		if bill.BalanceApplied {
			if _, err := t.apply(ctx, pm, bill.Amount); err != nil {
				return err
			}
		}
		if err := t.repo.SaveBill(ctx, bill); err != nil {
			return t.persistence(domain.KindBill, bill.ID, err)
		}
		return nil
	})
	if err != nil {
		return domain.Bill{}, err
	}

	e.log.Debug().Str("op", op).Str("bill_id", bill.ID.String()).
		Str("payment_method_id", bill.PaymentMethodID.String()).
		Str("amount", bill.Amount.String()).Bool("balance_applied", bill.BalanceApplied).
		Msg("bill created")
	return bill, nil
}

// UpdateBill replaces the caller-controlled fields of an existing bill.
//
// The stored bill is re-read under lock, so a stale existing value cannot
// double count. Phases: reverse the old effect on the old payment method,
// validate the new values, apply the new effect on the (re-read) new
// payment method, persist.
func (e *Engine) UpdateBill(ctx context.Context, existing domain.Bill, in BillInput) (domain.Bill, error) {
	if err := in.precheck(); err != nil {
		return domain.Bill{}, err
	}

	var updated domain.Bill
	ids := []uuid.UUID{existing.PaymentMethodID, in.PaymentMethodID}

	for attempt := 0; ; attempt++ {
		err := e.run(ctx, opUpdateBill, domain.KindBill, existing.ID, ids, func(ctx context.Context, t *txn) error {
			stored, err := t.storedBill(ctx, existing.ID)
			if err != nil {
				return err
			}
			if !containsID(ids, stored.PaymentMethodID) {
				ids = append(ids, stored.PaymentMethodID)
				return errRelock
			}

			// Phase 1: take the old amount off the old payment method
			if stored.BalanceApplied {
				oldPM, err := t.paymentMethod(ctx, stored.PaymentMethodID)
				if err != nil {
					return err
				}
				if _, err := t.apply(ctx, oldPM, stored.Amount.Neg()); err != nil {
					return err
				}
			}

			// Phase 2: validate against the post-reversal state
			newPM, err := t.validate(ctx, in)
			if err != nil {
				return err
			}

			// Phase 3: apply the new amount
			updated = stored.Clone()
			updated.Amount = in.Amount
			updated.PaymentMethodID = in.PaymentMethodID
			updated.CategoryIDs = dedupe(in.CategoryIDs)
			updated.OwnerID = in.OwnerID
			updated.Note = copyNote(in.Note)
			if !in.CreatedAt.IsZero() {
				updated.CreatedAt = in.CreatedAt
			}
			updated.UpdatedAt = e.now().UTC()
			updated.BalanceApplied = stored.ExcludedFlow || newPM.Info().TransactionType != domain.TransactionExcluded
			if updated.BalanceApplied {
				if _, err := t.apply(ctx, newPM, updated.Amount); err != nil {
					return err
				}
			}

			// Phase 4: persist the row
			if err := t.repo.UpdateBill(ctx, updated); err != nil {
				return t.persistence(domain.KindBill, updated.ID, err)
			}
			return nil
		})
		if errors.Is(err, errRelock) && attempt < maxRelock {
			continue
		}
		if err != nil {
			return domain.Bill{}, err
		}
		break
	}

	e.log.Debug().Str("op", opUpdateBill).Str("bill_id", updated.ID.String()).
		Str("payment_method_id", updated.PaymentMethodID.String()).
		Str("amount", updated.Amount.String()).Msg("bill updated")
	return updated, nil
}

// DeleteBill reverses the bill's balance effect and removes it.
// Category exclusion plays no part here: if the amount was applied, it is
// taken back.
func (e *Engine) DeleteBill(ctx context.Context, bill domain.Bill) error {
	ids := []uuid.UUID{bill.PaymentMethodID}

	for attempt := 0; ; attempt++ {
		err := e.run(ctx, opDeleteBill, domain.KindBill, bill.ID, ids, func(ctx context.Context, t *txn) error {
			stored, err := t.storedBill(ctx, bill.ID)
			if err != nil {
				return err
			}
			if !containsID(ids, stored.PaymentMethodID) {
				ids = append(ids, stored.PaymentMethodID)
				return errRelock
			}

			if stored.BalanceApplied {
				pm, err := t.paymentMethod(ctx, stored.PaymentMethodID)
				if err != nil {
					return err
				}
				if _, err := t.apply(ctx, pm, stored.Amount.Neg()); err != nil {
					return err
				}
			}
			if err := t.repo.DeleteBill(ctx, stored.ID); err != nil {
				if errors.Is(err, domain.ErrNotFound) {
					return &domain.MissingReferenceError{Kind: domain.KindBill, ID: stored.ID}
				}
				return t.persistence(domain.KindBill, stored.ID, err)
			}
			return nil
		})
		if errors.Is(err, errRelock) && attempt < maxRelock {
			continue
		}
		if err != nil {
			return err
		}
		break
	}

	e.log.Debug().Str("op", opDeleteBill).Str("bill_id", bill.ID.String()).Msg("bill deleted")
	return nil
}

// =============================================================================
// RUNNER - locking, transactions and compensation
// =============================================================================

// run executes fn under the payment method locks, inside a transaction when
// the repository supports one, with compensation otherwise.
func (e *Engine) run(ctx context.Context, op string, kind domain.EntityKind, subject uuid.UUID, lockIDs []uuid.UUID, fn func(context.Context, *txn) error) error {
	unlock, err := e.locks.Lock(ctx, lockIDs...)
	if err != nil {
		return err
	}
	defer unlock()

	// Past this point the operation completes whatever happens to the caller.
	ctx = context.WithoutCancel(ctx)

	if txRepo, ok := e.repo.(domain.TxRepository); ok {
		err := txRepo.WithTx(ctx, func(r domain.Repository) error {
			return fn(ctx, &txn{op: op, repo: r})
		})
		if err != nil && !isLedgerError(err) {
			err = &domain.PersistenceError{Op: op, Kind: kind, ID: subject, Err: err}
		}
		if err != nil && errors.Is(err, domain.ErrPersistence) {
			e.log.Warn().Err(err).Str("op", op).Str("id", subject.String()).
				Msg("transaction rolled back")
		}
		return err
	}

	t := &txn{op: op, repo: e.repo}
	if err := fn(ctx, t); err != nil {
		return e.compensate(ctx, t, err)
	}
	return nil
}

// compensate replays the undo log in reverse. Every step runs even when an
// earlier one fails. The original error is returned unless a step failed.
func (e *Engine) compensate(ctx context.Context, t *txn, cause error) error {
	if len(t.undo) == 0 {
		return cause
	}
	var failed []error
	for i := len(t.undo) - 1; i >= 0; i-- {
		if err := t.undo[i](ctx); err != nil {
			e.log.Error().Err(err).AnErr("cause", cause).Str("op", t.op).
				Int("step", i).Msg("compensating rollback failed, ledger is inconsistent")
			failed = append(failed, err)
		}
	}
	if len(failed) > 0 {
		return &domain.RollbackError{Op: t.op, Cause: cause, Rollback: errors.Join(failed...)}
	}
	e.log.Warn().Err(cause).Str("op", t.op).Int("steps", len(t.undo)).
		Msg("operation failed, balance changes reverted")
	return cause
}

func isLedgerError(err error) bool {
	return errors.Is(err, errRelock) ||
		errors.Is(err, domain.ErrPersistence) ||
		errors.Is(err, domain.ErrRollbackFailed) ||
		errors.Is(err, domain.ErrMissingBill) ||
		errors.Is(err, domain.ErrUnknownAccountType) ||
		domain.IsClientError(err)
}

// =============================================================================
// TXN - one operation's view of the repository
// =============================================================================

type txn struct {
	op   string
	repo domain.Repository
	undo []func(context.Context) error
}

// apply moves pm by amount (checked), persists it and records the inverse.
func (t *txn) apply(ctx context.Context, pm domain.PaymentMethod, amount decimal.Decimal) (domain.PaymentMethod, error) {
	next, err := domain.ApplyBillAmount(pm, amount)
	if err != nil {
		return nil, err
	}
	id := pm.Info().ID
	if err := t.repo.UpdatePaymentMethod(ctx, next); err != nil {
		return nil, t.persistence(domain.KindPaymentMethod, id, err)
	}
	t.undo = append(t.undo, func(ctx context.Context) error {
		return t.repo.UpdatePaymentMethod(ctx, domain.RevertBillAmount(next, amount))
	})
	return next, nil
}

// validate resolves every reference of in, in a fixed order, and returns
// the payment method as currently stored.
func (t *txn) validate(ctx context.Context, in BillInput) (domain.PaymentMethod, error) {
	pm, err := t.paymentMethod(ctx, in.PaymentMethodID)
	if err != nil {
		return nil, err
	}

	owner, err := t.repo.FetchOwner(ctx, in.OwnerID)
	if err != nil {
		return nil, t.persistence(domain.KindOwner, in.OwnerID, err)
	}
	if owner == nil {
		return nil, &domain.MissingReferenceError{Kind: domain.KindOwner, ID: in.OwnerID}
	}

	for _, id := range in.CategoryIDs {
		c, err := t.repo.FetchCategory(ctx, id)
		if err != nil {
			return nil, t.persistence(domain.KindCategory, id, err)
		}
		if c == nil {
			return nil, &domain.MissingReferenceError{Kind: domain.KindCategory, ID: id}
		}
	}

	if pmOwner := pm.Info().OwnerID; pmOwner != in.OwnerID {
		return nil, &domain.OwnerMismatchError{
			PaymentMethodID:    in.PaymentMethodID,
			PaymentMethodOwner: pmOwner,
			BillOwner:          in.OwnerID,
		}
	}
	return pm, nil
}

func (t *txn) paymentMethod(ctx context.Context, id uuid.UUID) (domain.PaymentMethod, error) {
	pm, err := t.repo.FetchPaymentMethod(ctx, id)
	if err != nil {
		return nil, t.persistence(domain.KindPaymentMethod, id, err)
	}
	if pm == nil {
		return nil, &domain.MissingReferenceError{Kind: domain.KindPaymentMethod, ID: id}
	}
	return pm, nil
}

func (t *txn) storedBill(ctx context.Context, id uuid.UUID) (domain.Bill, error) {
	b, err := t.repo.FetchBill(ctx, id)
	if err != nil {
		return domain.Bill{}, t.persistence(domain.KindBill, id, err)
	}
	if b == nil {
		return domain.Bill{}, &domain.MissingReferenceError{Kind: domain.KindBill, ID: id}
	}
	return *b, nil
}

func (t *txn) persistence(kind domain.EntityKind, id uuid.UUID, err error) error {
	return &domain.PersistenceError{Op: t.op, Kind: kind, ID: id, Err: err}
}

// Helper functions

func dedupe(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func containsID(ids []uuid.UUID, id uuid.UUID) bool {
	for _, x := range ids {
		if x == id {
			return true
		}
	}
	return false
}

func copyNote(note *string) *string {
	if note == nil {
		return nil
	}
	n := *note
	return &n
}
