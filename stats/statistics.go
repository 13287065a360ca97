/*
Package stats computes read-only statistics over a ledger snapshot.

PURPOSE:
  Turns a domain.Snapshot into income / expense totals and per-category,
  per-owner and per-payment-method breakdowns. Everything here is a pure
  function of its inputs: no storage access, no mutation, safe to run from
  any number of goroutines.

CONSISTENCY:
  Callers must hand in one consistent snapshot (domain.SnapshotReader), not
  a live view. A half-applied ledger update is never observable that way.

EXCLUSION:
  A bill whose every category is excluded is left out of TotalIncome and
  TotalExpense. It still appears in the groupings, because groupings report
  where money moved, and excluded bills do move money.

SEE ALSO:
  - filter.go: bill selection by category / owner / payment method / date
  - service.go: loads the snapshot and runs Calculate
*/
package stats

import (
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/warp/ledger-engine/domain"
)

// DateRange is an inclusive [Start, End] window. A zero bound is open.
type DateRange struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether t falls inside the window.
func (r DateRange) Contains(t time.Time) bool {
	if !r.Start.IsZero() && t.Before(r.Start) {
		return false
	}
	if !r.End.IsZero() && t.After(r.End) {
		return false
	}
	return true
}

// GroupTotal is the signed sum of the bills sharing one name.
type GroupTotal struct {
	Name  string
	Total decimal.Decimal
	Count int
}

// Grouping buckets group totals by the payment method's transaction type.
// Each bucket is sorted by name.
type Grouping map[domain.TransactionType][]GroupTotal

// Statistics is the result of Calculate.
type Statistics struct {
	TotalIncome  decimal.Decimal // sum of positive amounts
	TotalExpense decimal.Decimal // sum of |negative amounts|
	BillCount    int             // bills inside the window, excluded ones included

	ByCategory      Grouping
	ByOwner         Grouping
	ByPaymentMethod Grouping
}

// Net is TotalIncome - TotalExpense.
func (s Statistics) Net() decimal.Decimal {
	return s.TotalIncome.Sub(s.TotalExpense)
}

// Calculate aggregates the snapshot's bills, restricted to window when it
// is non-nil.
func Calculate(snap domain.Snapshot, window *DateRange) Statistics {
	categories := snap.CategoryIndex()
	owners := snap.OwnerIndex()
	methods := snap.PaymentMethodIndex()

	st := Statistics{
		TotalIncome:  decimal.Zero,
		TotalExpense: decimal.Zero,
	}
	byCategory := newAccumulator()
	byOwner := newAccumulator()
	byMethod := newAccumulator()

	for _, b := range snap.Bills {
		if window != nil && !window.Contains(b.CreatedAt) {
			continue
		}
		st.BillCount++

		effective := domain.EffectiveType(b, categories)
		switch effective {
		case domain.TransactionIncome:
			st.TotalIncome = st.TotalIncome.Add(b.Amount)
		case domain.TransactionExpense:
			st.TotalExpense = st.TotalExpense.Add(b.Amount.Abs())
		}

		bucket := effective
		pmName := b.PaymentMethodID.String()
		if pm, ok := methods[b.PaymentMethodID]; ok {
			bucket = pm.Info().TransactionType
			pmName = pm.Info().Name
		}

		for _, id := range b.CategoryIDs {
			byCategory.add(bucket, nameOf(categories, id, func(c domain.BillCategory) string { return c.Name }), b.Amount)
		}
		byOwner.add(bucket, nameOf(owners, b.OwnerID, func(o domain.Owner) string { return o.Name }), b.Amount)
		byMethod.add(bucket, pmName, b.Amount)
	}

	st.ByCategory = byCategory.grouping()
	st.ByOwner = byOwner.grouping()
	st.ByPaymentMethod = byMethod.grouping()
	return st
}

func nameOf[T any](idx map[uuid.UUID]T, id uuid.UUID, name func(T) string) string {
	if v, ok := idx[id]; ok {
		return name(v)
	}
	return id.String()
}

// accumulator sums amounts per (bucket, name).
type accumulator map[domain.TransactionType]map[string]*GroupTotal

func newAccumulator() accumulator {
	return make(accumulator)
}

func (a accumulator) add(bucket domain.TransactionType, name string, amount decimal.Decimal) {
	names, ok := a[bucket]
	if !ok {
		names = make(map[string]*GroupTotal)
		a[bucket] = names
	}
	g, ok := names[name]
	if !ok {
		g = &GroupTotal{Name: name, Total: decimal.Zero}
		names[name] = g
	}
	g.Total = g.Total.Add(amount)
	g.Count++
}

func (a accumulator) grouping() Grouping {
	out := make(Grouping, len(a))
	for bucket, names := range a {
		totals := make([]GroupTotal, 0, len(names))
		for _, g := range names {
			totals = append(totals, *g)
		}
		sort.Slice(totals, func(i, j int) bool { return totals[i].Name < totals[j].Name })
		out[bucket] = totals
	}
	return out
}
