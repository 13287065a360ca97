package ledger_test

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/ledger-engine/domain"
	"github.com/warp/ledger-engine/domain/store"
	"github.com/warp/ledger-engine/ledger"
	"github.com/warp/ledger-engine/store/sqlite"
)

// =============================================================================
// FAULT INJECTION
// =============================================================================

// faults configures which repository writes fail.
type faults struct {
	saveBill   error
	updateBill error
	deleteBill error

	// pmUpdateErr is returned by the pmFailAt-th UpdatePaymentMethod call (1-based).
	pmUpdateErr error
	pmFailAt    int

	mu        sync.Mutex
	pmUpdates int
}

// faultRepo wraps a Repository and fails the configured writes.
type faultRepo struct {
	domain.Repository
	f *faults
}

func (r faultRepo) SaveBill(ctx context.Context, b domain.Bill) error {
	if r.f.saveBill != nil {
		return r.f.saveBill
	}
	return r.Repository.SaveBill(ctx, b)
}

func (r faultRepo) UpdateBill(ctx context.Context, b domain.Bill) error {
	if r.f.updateBill != nil {
		return r.f.updateBill
	}
	return r.Repository.UpdateBill(ctx, b)
}

func (r faultRepo) DeleteBill(ctx context.Context, id uuid.UUID) error {
	if r.f.deleteBill != nil {
		return r.f.deleteBill
	}
	return r.Repository.DeleteBill(ctx, id)
}

func (r faultRepo) UpdatePaymentMethod(ctx context.Context, pm domain.PaymentMethod) error {
	r.f.mu.Lock()
	r.f.pmUpdates++
	fail := r.f.pmUpdateErr != nil && r.f.pmUpdates == r.f.pmFailAt
	r.f.mu.Unlock()
	if fail {
		return r.f.pmUpdateErr
	}
	return r.Repository.UpdatePaymentMethod(ctx, pm)
}

// faultTxRepo injects the same faults inside SQLite transactions.
type faultTxRepo struct {
	faultRepo
	tx domain.TxRepository
}

func (r faultTxRepo) WithTx(ctx context.Context, fn func(domain.Repository) error) error {
	return r.tx.WithTx(ctx, func(inner domain.Repository) error {
		return fn(faultRepo{Repository: inner, f: r.f})
	})
}

// =============================================================================
// BACKENDS
// =============================================================================

// backend is one storage flavour the engine is tested against.
type backend struct {
	name string
	// open returns the repository the engine uses (fault injecting) and the
	// plain repository for seeding and inspection.
	open func(t *testing.T) (engineRepo domain.Repository, plain domain.Repository, f *faults)
}

var backends = []backend{
	{
		name: "memory",
		open: func(t *testing.T) (domain.Repository, domain.Repository, *faults) {
			mem := store.NewMemory()
			f := &faults{}
			return faultRepo{Repository: mem, f: f}, mem, f
		},
	},
	{
		name: "sqlite",
		open: func(t *testing.T) (domain.Repository, domain.Repository, *faults) {
			s, err := sqlite.New(":memory:")
			require.NoError(t, err)
			t.Cleanup(func() { s.Close() })
			f := &faults{}
			return faultTxRepo{faultRepo: faultRepo{Repository: s, f: f}, tx: s}, s, f
		},
	},
}

func forEachBackend(t *testing.T, test func(t *testing.T, env *env)) {
	for _, b := range backends {
		t.Run(b.name, func(t *testing.T) {
			test(t, newEnv(t, b))
		})
	}
}

// =============================================================================
// ENVIRONMENT
// =============================================================================

type env struct {
	ctx    context.Context
	engine *ledger.Engine
	repo   domain.Repository
	faults *faults

	alice, bob domain.Owner
	food       domain.BillCategory
	salary     domain.BillCategory
	transfer   domain.BillCategory // excluded
}

func newEnv(t *testing.T, b backend) *env {
	engineRepo, plain, f := b.open(t)
	e := &env{
		ctx:    context.Background(),
		engine: ledger.NewEngine(engineRepo),
		repo:   plain,
		faults: f,
		alice:  domain.Owner{ID: uuid.New(), Name: "Alice"},
		bob:    domain.Owner{ID: uuid.New(), Name: "Bob"},
		food:   domain.BillCategory{ID: uuid.New(), Name: "Food", TransactionType: domain.TransactionExpense},
		salary: domain.BillCategory{ID: uuid.New(), Name: "Salary", TransactionType: domain.TransactionIncome},
		transfer: domain.BillCategory{
			ID: uuid.New(), Name: "Transfer", TransactionType: domain.TransactionExcluded,
		},
	}
	require.NoError(t, plain.SaveOwner(e.ctx, e.alice))
	require.NoError(t, plain.SaveOwner(e.ctx, e.bob))
	for _, c := range []domain.BillCategory{e.food, e.salary, e.transfer} {
		require.NoError(t, plain.SaveCategory(e.ctx, c))
	}
	return e
}

func (e *env) credit(t *testing.T, owner domain.Owner, limit, outstanding string) domain.CreditCard {
	card := domain.NewCreditCard(domain.PaymentMethodInfo{
		ID: uuid.New(), Name: "Card " + owner.Name, TransactionType: domain.TransactionExpense, OwnerID: owner.ID,
	}, dec(limit), dec(outstanding), 1)
	require.NoError(t, e.repo.SavePaymentMethod(e.ctx, card))
	return card
}

func (e *env) savings(t *testing.T, owner domain.Owner, balance string) domain.SavingsAccount {
	return e.savingsTyped(t, owner, balance, domain.TransactionExpense)
}

func (e *env) savingsTyped(t *testing.T, owner domain.Owner, balance string, tt domain.TransactionType) domain.SavingsAccount {
	acc := domain.NewSavingsAccount(domain.PaymentMethodInfo{
		ID: uuid.New(), Name: "Savings " + owner.Name, TransactionType: tt, OwnerID: owner.ID,
	}, dec(balance))
	require.NoError(t, e.repo.SavePaymentMethod(e.ctx, acc))
	return acc
}

func (e *env) input(amount string, pmID uuid.UUID, owner domain.Owner, cats ...domain.BillCategory) ledger.BillInput {
	if len(cats) == 0 {
		cats = []domain.BillCategory{e.food}
	}
	ids := make([]uuid.UUID, len(cats))
	for i, c := range cats {
		ids[i] = c.ID
	}
	return ledger.BillInput{Amount: dec(amount), PaymentMethodID: pmID, CategoryIDs: ids, OwnerID: owner.ID}
}

// total returns the stored running total of a payment method.
func (e *env) total(t *testing.T, id uuid.UUID) decimal.Decimal {
	pm, err := e.repo.FetchPaymentMethod(e.ctx, id)
	require.NoError(t, err)
	require.NotNil(t, pm)
	return domain.RunningTotal(pm)
}

func (e *env) bills(t *testing.T) []domain.Bill {
	bills, err := e.repo.FetchBills(e.ctx)
	require.NoError(t, err)
	return bills
}

func (e *env) assertConsistent(t *testing.T) {
	t.Helper()
	discrepancies, err := e.engine.Verify(e.ctx)
	require.NoError(t, err)
	assert.Empty(t, discrepancies, "ledger should reconcile")
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func assertDecimal(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	assert.True(t, dec(want).Equal(got), "want %s, got %s", want, got.String())
}
