package stats

import (
	"github.com/google/uuid"
	"github.com/warp/ledger-engine/domain"
)

// Filter selects bills. Empty id lists match everything; within one list
// any id matches. A bill must satisfy every non-empty criterion.
type Filter struct {
	CategoryIDs      []uuid.UUID
	OwnerIDs         []uuid.UUID
	PaymentMethodIDs []uuid.UUID
	Range            *DateRange
}

// Match reports whether b passes the filter.
func (f Filter) Match(b domain.Bill) bool {
	if len(f.CategoryIDs) > 0 && !anyCategory(b, f.CategoryIDs) {
		return false
	}
	if len(f.OwnerIDs) > 0 && !contains(f.OwnerIDs, b.OwnerID) {
		return false
	}
	if len(f.PaymentMethodIDs) > 0 && !contains(f.PaymentMethodIDs, b.PaymentMethodID) {
		return false
	}
	if f.Range != nil && !f.Range.Contains(b.CreatedAt) {
		return false
	}
	return true
}

// Apply returns a copy of snap holding only the matching bills, in their
// original order. Reference data is kept whole.
func (f Filter) Apply(snap domain.Snapshot) domain.Snapshot {
	out := snap
	out.Bills = make([]domain.Bill, 0, len(snap.Bills))
	for _, b := range snap.Bills {
		if f.Match(b) {
			out.Bills = append(out.Bills, b)
		}
	}
	return out
}

func anyCategory(b domain.Bill, ids []uuid.UUID) bool {
	for _, id := range ids {
		if b.HasCategory(id) {
			return true
		}
	}
	return false
}

func contains(ids []uuid.UUID, id uuid.UUID) bool {
	for _, x := range ids {
		if x == id {
			return true
		}
	}
	return false
}
