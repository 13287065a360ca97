// Package store provides Repository implementations.
package store

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/warp/ledger-engine/domain"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Memory keeps every table in maps and enforces the same foreign key rules
// as the SQLite store. It has no transactions, so the ledger engine falls
// back to compensating rollback when running on it.
type Memory struct {
	mu             sync.RWMutex
	owners         map[uuid.UUID]domain.Owner
	categories     map[uuid.UUID]domain.BillCategory
	paymentMethods map[uuid.UUID]domain.PaymentMethod
	bills          map[uuid.UUID]domain.Bill
}

var (
	_ domain.Repository     = (*Memory)(nil)
	_ domain.SnapshotReader = (*Memory)(nil)
)

func NewMemory() *Memory {
	return &Memory{
		owners:         make(map[uuid.UUID]domain.Owner),
		categories:     make(map[uuid.UUID]domain.BillCategory),
		paymentMethods: make(map[uuid.UUID]domain.PaymentMethod),
		bills:          make(map[uuid.UUID]domain.Bill),
	}
}

// =============================================================================
// OWNERS
// =============================================================================

func (m *Memory) FetchOwners(_ context.Context) ([]domain.Owner, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.ownersLocked(), nil
}

func (m *Memory) ownersLocked() []domain.Owner {
	out := make([]domain.Owner, 0, len(m.owners))
	for _, o := range m.owners {
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (m *Memory) FetchOwner(_ context.Context, id uuid.UUID) (*domain.Owner, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	o, ok := m.owners[id]
	if !ok {
		return nil, nil
	}
	return &o, nil
}

func (m *Memory) SaveOwner(_ context.Context, o domain.Owner) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.owners[o.ID]; ok {
		return domain.ErrAlreadyExists
	}
	m.owners[o.ID] = o
	return nil
}

func (m *Memory) UpdateOwner(_ context.Context, o domain.Owner) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.owners[o.ID]; !ok {
		return domain.ErrNotFound
	}
	m.owners[o.ID] = o
	return nil
}

// DeleteOwner cascades to the owner's payment methods. It fails when any
// bill references the owner or one of those payment methods.
func (m *Memory) DeleteOwner(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.owners[id]; !ok {
		return domain.ErrNotFound
	}
	var owned []uuid.UUID
	for pmID, pm := range m.paymentMethods {
		if pm.Info().OwnerID == id {
			owned = append(owned, pmID)
		}
	}
	for _, b := range m.bills {
		if b.OwnerID == id {
			return &domain.StillReferencedError{Kind: domain.KindOwner, ID: id}
		}
		for _, pmID := range owned {
			if b.PaymentMethodID == pmID {
				return &domain.StillReferencedError{Kind: domain.KindOwner, ID: id}
			}
		}
	}
	for _, pmID := range owned {
		delete(m.paymentMethods, pmID)
	}
	delete(m.owners, id)
	return nil
}

// =============================================================================
// CATEGORIES
// =============================================================================

func (m *Memory) FetchCategories(_ context.Context) ([]domain.BillCategory, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.categoriesLocked(), nil
}

func (m *Memory) categoriesLocked() []domain.BillCategory {
	out := make([]domain.BillCategory, 0, len(m.categories))
	for _, c := range m.categories {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].SortOrder != out[j].SortOrder {
			return out[i].SortOrder < out[j].SortOrder
		}
		return out[i].Name < out[j].Name
	})
	return out
}

func (m *Memory) FetchCategory(_ context.Context, id uuid.UUID) (*domain.BillCategory, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.categories[id]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (m *Memory) SaveCategory(_ context.Context, c domain.BillCategory) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.categories[c.ID]; ok {
		return domain.ErrAlreadyExists
	}
	m.categories[c.ID] = c
	return nil
}

func (m *Memory) UpdateCategory(_ context.Context, c domain.BillCategory) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.categories[c.ID]; !ok {
		return domain.ErrNotFound
	}
	m.categories[c.ID] = c
	return nil
}

func (m *Memory) DeleteCategory(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.categories[id]; !ok {
		return domain.ErrNotFound
	}
	for _, b := range m.bills {
		if b.HasCategory(id) {
			return &domain.StillReferencedError{Kind: domain.KindCategory, ID: id}
		}
	}
	delete(m.categories, id)
	return nil
}

// =============================================================================
// PAYMENT METHODS
// =============================================================================

func (m *Memory) FetchPaymentMethods(_ context.Context) ([]domain.PaymentMethod, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.paymentMethodsLocked(), nil
}

func (m *Memory) paymentMethodsLocked() []domain.PaymentMethod {
	out := make([]domain.PaymentMethod, 0, len(m.paymentMethods))
	for _, pm := range m.paymentMethods {
		out = append(out, pm)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].Info(), out[j].Info()
		if a.SortOrder != b.SortOrder {
			return a.SortOrder < b.SortOrder
		}
		return a.Name < b.Name
	})
	return out
}

func (m *Memory) FetchPaymentMethod(_ context.Context, id uuid.UUID) (domain.PaymentMethod, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	pm, ok := m.paymentMethods[id]
	if !ok {
		return nil, nil
	}
	return pm, nil
}

func (m *Memory) SavePaymentMethod(_ context.Context, pm domain.PaymentMethod) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	info := pm.Info()
	if _, ok := m.paymentMethods[info.ID]; ok {
		return domain.ErrAlreadyExists
	}
	if _, ok := m.owners[info.OwnerID]; !ok {
		return domain.ErrDanglingReference
	}
	m.paymentMethods[info.ID] = pm
	return nil
}

func (m *Memory) UpdatePaymentMethod(_ context.Context, pm domain.PaymentMethod) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	info := pm.Info()
	if _, ok := m.paymentMethods[info.ID]; !ok {
		return domain.ErrNotFound
	}
	if _, ok := m.owners[info.OwnerID]; !ok {
		return domain.ErrDanglingReference
	}
	m.paymentMethods[info.ID] = pm
	return nil
}

func (m *Memory) DeletePaymentMethod(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.paymentMethods[id]; !ok {
		return domain.ErrNotFound
	}
	for _, b := range m.bills {
		if b.PaymentMethodID == id {
			return &domain.StillReferencedError{Kind: domain.KindPaymentMethod, ID: id}
		}
	}
	delete(m.paymentMethods, id)
	return nil
}

// =============================================================================
// BILLS
// =============================================================================

func (m *Memory) FetchBills(_ context.Context) ([]domain.Bill, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.billsLocked(), nil
}

func (m *Memory) billsLocked() []domain.Bill {
	out := make([]domain.Bill, 0, len(m.bills))
	for _, b := range m.bills {
		out = append(out, b.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out
}

func (m *Memory) FetchBill(_ context.Context, id uuid.UUID) (*domain.Bill, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.bills[id]
	if !ok {
		return nil, nil
	}
	out := b.Clone()
	return &out, nil
}

func (m *Memory) SaveBill(_ context.Context, b domain.Bill) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.bills[b.ID]; ok {
		return domain.ErrAlreadyExists
	}
	if err := m.checkBillRefsLocked(b); err != nil {
		return err
	}
	m.bills[b.ID] = b.Clone()
	return nil
}

func (m *Memory) UpdateBill(_ context.Context, b domain.Bill) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.bills[b.ID]; !ok {
		return domain.ErrNotFound
	}
	if err := m.checkBillRefsLocked(b); err != nil {
		return err
	}
	m.bills[b.ID] = b.Clone()
	return nil
}

func (m *Memory) DeleteBill(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.bills[id]; !ok {
		return domain.ErrNotFound
	}
	delete(m.bills, id)
	return nil
}

func (m *Memory) checkBillRefsLocked(b domain.Bill) error {
	if _, ok := m.paymentMethods[b.PaymentMethodID]; !ok {
		return domain.ErrDanglingReference
	}
	if _, ok := m.owners[b.OwnerID]; !ok {
		return domain.ErrDanglingReference
	}
	for _, c := range b.CategoryIDs {
		if _, ok := m.categories[c]; !ok {
			return domain.ErrDanglingReference
		}
	}
	return nil
}

// =============================================================================
// SNAPSHOT
// =============================================================================

// Snapshot copies every table under a single read lock.
func (m *Memory) Snapshot(_ context.Context) (domain.Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return domain.Snapshot{
		Owners:         m.ownersLocked(),
		Categories:     m.categoriesLocked(),
		PaymentMethods: m.paymentMethodsLocked(),
		Bills:          m.billsLocked(),
	}, nil
}
