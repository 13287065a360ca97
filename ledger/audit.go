package ledger

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/warp/ledger-engine/domain"
)

// Discrepancy is a payment method whose stored running total does not match
// its opening balance plus the bills applied to it.
type Discrepancy struct {
	PaymentMethodID uuid.UUID
	Name            string
	Expected        decimal.Decimal
	Actual          decimal.Decimal
	AppliedBills    int
}

// Difference is Actual - Expected.
func (d Discrepancy) Difference() decimal.Decimal {
	return d.Actual.Sub(d.Expected)
}

// Verify recomputes every payment method's running total from storage and
// reports the ones that disagree. An empty result means the ledger holds.
//
// Verify reads one consistent snapshot when the repository can provide it
// and never mutates anything.
func (e *Engine) Verify(ctx context.Context) ([]Discrepancy, error) {
	snap, err := LoadSnapshot(ctx, e.repo)
	if err != nil {
		return nil, err
	}

	applied := make(map[uuid.UUID][]decimal.Decimal, len(snap.PaymentMethods))
	for _, b := range snap.Bills {
		if b.BalanceApplied {
			applied[b.PaymentMethodID] = append(applied[b.PaymentMethodID], b.Amount)
		}
	}

	var out []Discrepancy
	for _, pm := range snap.PaymentMethods {
		info := pm.Info()
		expected := domain.ExpectedRunningTotal(pm, applied[info.ID])
		actual := domain.RunningTotal(pm)
		if expected.Equal(actual) {
			continue
		}
		out = append(out, Discrepancy{
			PaymentMethodID: info.ID,
			Name:            info.Name,
			Expected:        expected,
			Actual:          actual,
			AppliedBills:    len(applied[info.ID]),
		})
	}

	if len(out) > 0 {
		e.log.Error().Int("discrepancies", len(out)).Msg("ledger audit found mismatched balances")
	}
	return out, nil
}

// LoadSnapshot reads every table of repo. It uses domain.SnapshotReader when
// available and falls back to four independent reads otherwise.
func LoadSnapshot(ctx context.Context, repo domain.Repository) (domain.Snapshot, error) {
	if sr, ok := repo.(domain.SnapshotReader); ok {
		snap, err := sr.Snapshot(ctx)
		if err != nil {
			return domain.Snapshot{}, fmt.Errorf("load snapshot: %w", err)
		}
		return snap, nil
	}

	var (
		snap domain.Snapshot
		err  error
	)
	if snap.Owners, err = repo.FetchOwners(ctx); err != nil {
		return snap, fmt.Errorf("load owners: %w", err)
	}
	if snap.Categories, err = repo.FetchCategories(ctx); err != nil {
		return snap, fmt.Errorf("load categories: %w", err)
	}
	if snap.PaymentMethods, err = repo.FetchPaymentMethods(ctx); err != nil {
		return snap, fmt.Errorf("load payment methods: %w", err)
	}
	if snap.Bills, err = repo.FetchBills(ctx); err != nil {
		return snap, fmt.Errorf("load bills: %w", err)
	}
	return snap, nil
}
