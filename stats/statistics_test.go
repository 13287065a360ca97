package stats_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/ledger-engine/domain"
	"github.com/warp/ledger-engine/domain/store"
	"github.com/warp/ledger-engine/stats"
)

// =============================================================================
// TEST SETUP
// =============================================================================

type world struct {
	snap                  domain.Snapshot
	alice, bob            domain.Owner
	food, salary, move    domain.BillCategory
	visa, cash, transfers domain.PaymentMethod
}

func day(d int) time.Time { return time.Date(2025, time.March, d, 12, 0, 0, 0, time.UTC) }

func newWorld() *world {
	w := &world{
		alice:  domain.Owner{ID: uuid.New(), Name: "Alice"},
		bob:    domain.Owner{ID: uuid.New(), Name: "Bob"},
		food:   domain.BillCategory{ID: uuid.New(), Name: "Food", TransactionType: domain.TransactionExpense},
		salary: domain.BillCategory{ID: uuid.New(), Name: "Salary", TransactionType: domain.TransactionIncome},
		move:   domain.BillCategory{ID: uuid.New(), Name: "Move", TransactionType: domain.TransactionExcluded},
	}
	w.visa = domain.NewCreditCard(domain.PaymentMethodInfo{ID: uuid.New(), Name: "Visa", OwnerID: w.alice.ID,
		TransactionType: domain.TransactionExpense}, decimal.NewFromInt(1000), decimal.Zero, 1)
	w.cash = domain.NewSavingsAccount(domain.PaymentMethodInfo{ID: uuid.New(), Name: "Cash", OwnerID: w.bob.ID,
		TransactionType: domain.TransactionIncome}, decimal.Zero)
	w.transfers = domain.NewSavingsAccount(domain.PaymentMethodInfo{ID: uuid.New(), Name: "Transfers", OwnerID: w.alice.ID,
		TransactionType: domain.TransactionExcluded}, decimal.Zero)

	w.snap = domain.Snapshot{
		Owners:         []domain.Owner{w.alice, w.bob},
		Categories:     []domain.BillCategory{w.food, w.salary, w.move},
		PaymentMethods: []domain.PaymentMethod{w.visa, w.cash, w.transfers},
	}
	return w
}

func (w *world) add(amount string, pm domain.PaymentMethod, at time.Time, cats ...domain.BillCategory) domain.Bill {
	b := domain.Bill{
		ID:              uuid.New(),
		Amount:          decimal.RequireFromString(amount),
		PaymentMethodID: pm.Info().ID,
		OwnerID:         pm.Info().OwnerID,
		CreatedAt:       at,
		BalanceApplied:  true,
	}
	for _, c := range cats {
		b.CategoryIDs = append(b.CategoryIDs, c.ID)
	}
	w.snap.Bills = append([]domain.Bill{b}, w.snap.Bills...)
	return b
}

func assertDec(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	assert.True(t, decimal.RequireFromString(want).Equal(got), "want %s, got %s", want, got)
}

// =============================================================================
// CALCULATE
// =============================================================================

func TestCalculate_TotalsSkipAllExcludedBills(t *testing.T) {
	w := newWorld()
	w.add("-30", w.visa, day(1), w.food)
	w.add("1000", w.cash, day(2), w.salary)
	w.add("-500", w.transfers, day(3), w.move)        // all excluded
	w.add("-20", w.visa, day(4), w.food, w.move)      // mixed -> counts
	w.add("200", w.transfers, day(5), w.move, w.move) // all excluded

	st := stats.Calculate(w.snap, nil)

	assertDec(t, "1000", st.TotalIncome)
	assertDec(t, "50", st.TotalExpense)
	assertDec(t, "950", st.Net())
	assert.Equal(t, 5, st.BillCount)
}

func TestCalculate_GroupingsBucketByPaymentMethodType(t *testing.T) {
	w := newWorld()
	w.add("-30", w.visa, day(1), w.food)
	w.add("-20", w.visa, day(2), w.food, w.move)
	w.add("1000", w.cash, day(3), w.salary)
	w.add("-500", w.transfers, day(4), w.move)

	st := stats.Calculate(w.snap, nil)

	expense := st.ByCategory[domain.TransactionExpense]
	require.Len(t, expense, 2)
	assert.Equal(t, "Food", expense[0].Name)
	assertDec(t, "-50", expense[0].Total)
	assert.Equal(t, 2, expense[0].Count)
	assert.Equal(t, "Move", expense[1].Name)
	assertDec(t, "-20", expense[1].Total)

	excluded := st.ByCategory[domain.TransactionExcluded]
	require.Len(t, excluded, 1)
	assertDec(t, "-500", excluded[0].Total)

	income := st.ByOwner[domain.TransactionIncome]
	require.Len(t, income, 1)
	assert.Equal(t, "Bob", income[0].Name)

	byPM := st.ByPaymentMethod[domain.TransactionExpense]
	require.Len(t, byPM, 1)
	assert.Equal(t, "Visa", byPM[0].Name)
	assertDec(t, "-50", byPM[0].Total)
}

func TestCalculate_InclusiveWindow(t *testing.T) {
	w := newWorld()
	w.add("-1", w.visa, day(1), w.food)
	w.add("-2", w.visa, day(2), w.food)
	w.add("-4", w.visa, day(3), w.food)
	w.add("-8", w.visa, day(4), w.food)

	st := stats.Calculate(w.snap, &stats.DateRange{Start: day(2), End: day(3)})
	assertDec(t, "6", st.TotalExpense)
	assert.Equal(t, 2, st.BillCount)

	open := stats.Calculate(w.snap, &stats.DateRange{Start: day(3)})
	assertDec(t, "12", open.TotalExpense)
}

func TestCalculate_EmptySnapshot(t *testing.T) {
	st := stats.Calculate(domain.Snapshot{}, nil)
	assert.True(t, st.TotalIncome.IsZero())
	assert.True(t, st.TotalExpense.IsZero())
	assert.Empty(t, st.ByCategory)
}

// =============================================================================
// FILTER
// =============================================================================

func TestFilter_Match(t *testing.T) {
	w := newWorld()
	a := w.add("-1", w.visa, day(1), w.food)
	b := w.add("5", w.cash, day(2), w.salary)

	assert.True(t, stats.Filter{}.Match(a))

	byCat := stats.Filter{CategoryIDs: []uuid.UUID{w.salary.ID, w.move.ID}}
	assert.False(t, byCat.Match(a))
	assert.True(t, byCat.Match(b))

	byOwner := stats.Filter{OwnerIDs: []uuid.UUID{w.alice.ID}}
	assert.True(t, byOwner.Match(a))
	assert.False(t, byOwner.Match(b))

	combined := stats.Filter{PaymentMethodIDs: []uuid.UUID{w.cash.Info().ID}, Range: &stats.DateRange{End: day(1)}}
	assert.False(t, combined.Match(b))

	filtered := byOwner.Apply(w.snap)
	require.Len(t, filtered.Bills, 1)
	assert.Len(t, w.snap.Bills, 2, "Apply must not touch the input")
	assert.Len(t, filtered.Categories, 3)
}

// =============================================================================
// SERVICE
// =============================================================================

func TestService_CalculateFromStore(t *testing.T) {
	ctx := context.Background()
	w := newWorld()
	mem := store.NewMemory()
	for _, o := range w.snap.Owners {
		require.NoError(t, mem.SaveOwner(ctx, o))
	}
	for _, c := range w.snap.Categories {
		require.NoError(t, mem.SaveCategory(ctx, c))
	}
	for _, pm := range w.snap.PaymentMethods {
		require.NoError(t, mem.SavePaymentMethod(ctx, pm))
	}
	require.NoError(t, mem.SaveBill(ctx, w.add("-12", w.visa, day(1), w.food)))
	require.NoError(t, mem.SaveBill(ctx, w.add("40", w.cash, day(2), w.salary)))

	svc := stats.NewService(mem)
	st, err := svc.Calculate(ctx, stats.Filter{OwnerIDs: []uuid.UUID{w.alice.ID}})
	require.NoError(t, err)
	assertDec(t, "12", st.TotalExpense)
	assert.True(t, st.TotalIncome.IsZero())

	bills, err := svc.Bills(ctx, stats.Filter{})
	require.NoError(t, err)
	require.Len(t, bills, 2)
	assert.Equal(t, day(2), bills[0].CreatedAt)
}
