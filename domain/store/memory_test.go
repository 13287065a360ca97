package store_test

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
)

func seed(t *testing.T) (*store.Memory, domain.Owner, domain.BillCategory, domain.SavingsAccount) {
	m := store.NewMemory()
	ctx := context.Background()

	owner := domain.Owner{ID: uuid.New(), Name: "Alice"}
	require.NoError(t, m.SaveOwner(ctx, owner))
	cat := domain.BillCategory{ID: uuid.New(), Name: "Food", TransactionType: domain.TransactionExpense}
	require.NoError(t, m.SaveCategory(ctx, cat))
	acc := domain.NewSavingsAccount(domain.PaymentMethodInfo{ID: uuid.New(), Name: "Cash", OwnerID: owner.ID}, decimal.Zero)
	require.NoError(t, m.SavePaymentMethod(ctx, acc))
	return m, owner, cat, acc
}

func TestMemory_ForeignKeys(t *testing.T) {
	m, owner, cat, acc := seed(t)
	ctx := context.Background()

	b := domain.Bill{
		ID: uuid.New(), Amount: decimal.NewFromInt(-1), PaymentMethodID: acc.ID,
		CategoryIDs: []uuid.UUID{cat.ID}, OwnerID: owner.ID, CreatedAt: time.Now(),
	}
	require.NoError(t, m.SaveBill(ctx, b))

	assert.ErrorIs(t, m.DeletePaymentMethod(ctx, acc.ID), domain.ErrStillReferenced)
	assert.ErrorIs(t, m.DeleteCategory(ctx, cat.ID), domain.ErrStillReferenced)
	err := m.DeleteOwner(ctx, owner.ID)
	assert.ErrorIs(t, err, domain.ErrStillReferenced)
	var refErr *domain.StillReferencedError
	require.ErrorAs(t, err, &refErr)
	assert.Equal(t, domain.KindOwner, refErr.Kind)
	assert.Equal(t, owner.ID, refErr.ID)

	require.NoError(t, m.DeleteBill(ctx, b.ID))
	require.NoError(t, m.DeleteOwner(ctx, owner.ID))

	methods, err := m.FetchPaymentMethods(ctx)
	require.NoError(t, err)
	assert.Empty(t, methods, "owner delete cascades")
}

func TestMemory_DeleteOwnerBlockedThroughPaymentMethod(t *testing.T) {
	m, owner, cat, acc := seed(t)
	ctx := context.Background()

	// A bill on Alice's account but booked to Bob
	bob := domain.Owner{ID: uuid.New(), Name: "Bob"}
	require.NoError(t, m.SaveOwner(ctx, bob))
	require.NoError(t, m.SaveBill(ctx, domain.Bill{
		ID: uuid.New(), Amount: decimal.NewFromInt(-1), PaymentMethodID: acc.ID,
		CategoryIDs: []uuid.UUID{cat.ID}, OwnerID: bob.ID, CreatedAt: time.Now(),
	}))

	var refErr *domain.StillReferencedError
	require.ErrorAs(t, m.DeleteOwner(ctx, owner.ID), &refErr)
	assert.Equal(t, domain.KindOwner, refErr.Kind)
	assert.Equal(t, owner.ID, refErr.ID)
}

func TestMemory_DanglingWrites(t *testing.T) {
	m, owner, cat, acc := seed(t)
	ctx := context.Background()

	b := domain.Bill{ID: uuid.New(), Amount: decimal.NewFromInt(-1), PaymentMethodID: acc.ID,
		CategoryIDs: []uuid.UUID{uuid.New()}, OwnerID: owner.ID}
	assert.ErrorIs(t, m.SaveBill(ctx, b), domain.ErrDanglingReference)

	b.CategoryIDs = []uuid.UUID{cat.ID}
	b.OwnerID = uuid.New()
	assert.ErrorIs(t, m.SaveBill(ctx, b), domain.ErrDanglingReference)

	orphan := domain.NewSavingsAccount(domain.PaymentMethodInfo{ID: uuid.New(), OwnerID: uuid.New()}, decimal.Zero)
	assert.ErrorIs(t, m.SavePaymentMethod(ctx, orphan), domain.ErrDanglingReference)
}

func TestMemory_BillsAreCopies(t *testing.T) {
	m, owner, cat, acc := seed(t)
	ctx := context.Background()

	note := "original"
	b := domain.Bill{ID: uuid.New(), Amount: decimal.NewFromInt(-1), PaymentMethodID: acc.ID,
		CategoryIDs: []uuid.UUID{cat.ID}, OwnerID: owner.ID, Note: &note}
	require.NoError(t, m.SaveBill(ctx, b))

	note = "mutated"
	b.CategoryIDs[0] = uuid.New()

	got, err := m.FetchBill(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, "original", *got.Note)
	assert.Equal(t, cat.ID, got.CategoryIDs[0])
}

func TestMemory_NewestFirst(t *testing.T) {
	m, owner, cat, acc := seed(t)
	ctx := context.Background()
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	var ids []uuid.UUID
	for i := 0; i < 3; i++ {
		b := domain.Bill{ID: uuid.New(), Amount: decimal.NewFromInt(-1), PaymentMethodID: acc.ID,
			CategoryIDs: []uuid.UUID{cat.ID}, OwnerID: owner.ID, CreatedAt: base.Add(time.Duration(i) * time.Hour)}
		require.NoError(t, m.SaveBill(ctx, b))
		ids = append(ids, b.ID)
	}

	bills, err := m.FetchBills(ctx)
	require.NoError(t, err)
	require.Len(t, bills, 3)
	assert.Equal(t, ids[2], bills[0].ID)
	assert.Equal(t, ids[0], bills[2].ID)
}
