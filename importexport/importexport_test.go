package importexport_test

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/ledger-engine/domain"
	"github.com/warp/ledger-engine/importexport"
	"github.com/warp/ledger-engine/ledger"
	"github.com/warp/ledger-engine/store/sqlite"
	"github.com/xuri/excelize/v2"
)

// =============================================================================
// TEST SETUP
// =============================================================================

var shanghai = time.FixedZone("CST", 8*3600)

type harness struct {
	ctx      context.Context
	store    *sqlite.Store
	engine   *ledger.Engine
	importer *importexport.Importer
	exporter *importexport.Exporter
}

func newHarness(t *testing.T) *harness {
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	engine := ledger.NewEngine(store)
	return &harness{
		ctx:      context.Background(),
		store:    store,
		engine:   engine,
		importer: importexport.NewImporter(store, engine, shanghai, zerolog.Nop()),
		exporter: importexport.NewExporter(shanghai),
	}
}

func (h *harness) snapshot(t *testing.T) domain.Snapshot {
	snap, err := h.store.Snapshot(h.ctx)
	require.NoError(t, err)
	return snap
}

func (h *harness) balanceOf(t *testing.T, name string) decimal.Decimal {
	for _, pm := range h.snapshot(t).PaymentMethods {
		if pm.Info().Name == name {
			return domain.RunningTotal(pm)
		}
	}
	t.Fatalf("payment method %q not found", name)
	return decimal.Zero
}

const sampleCSV = "\ufeff日期,金额,账单类型,归属人,支付方式,备注\n" +
	"2025-03-02 09:15:00,-25.50,餐饮; 交通,张三,招商银行,午饭\n" +
	"2025-03-01 18:00:00,8000,工资,张三,招商银行,\n" +
	"2025-03-01 08:00:00,-3,交通,李四,现金,地铁\n"

// =============================================================================
// IMPORT
// =============================================================================

func TestImportCSV_CreatesReferencesAndMovesBalances(t *testing.T) {
	// GIVEN: An empty ledger
	h := newHarness(t)

	// WHEN: Importing three rows
	res, err := h.importer.ImportCSV(h.ctx, strings.NewReader(sampleCSV))

	// THEN: Every row is a bill, every name became an entity
	require.NoError(t, err)
	assert.Equal(t, 3, res.Imported)
	assert.Zero(t, res.Skipped)
	assert.Empty(t, res.Failed)

	snap := h.snapshot(t)
	assert.Len(t, snap.Owners, 2)
	assert.Len(t, snap.Categories, 3)
	assert.Len(t, snap.PaymentMethods, 2)
	require.Len(t, snap.Bills, 3)

	byName := map[string]domain.BillCategory{}
	for _, c := range snap.Categories {
		byName[c.Name] = c
	}
	assert.Equal(t, domain.TransactionIncome, byName["工资"].TransactionType)
	assert.Equal(t, domain.TransactionExpense, byName["餐饮"].TransactionType)

	newest := snap.Bills[0]
	assert.Len(t, newest.CategoryIDs, 2)
	assert.True(t, newest.CreatedAt.Equal(time.Date(2025, 3, 2, 9, 15, 0, 0, shanghai)))
	require.NotNil(t, newest.Note)
	assert.Equal(t, "午饭", *newest.Note)
	assert.Nil(t, snap.Bills[1].Note)

	assert.True(t, h.balanceOf(t, "招商银行").Equal(decimal.RequireFromString("7974.5")))
	assert.True(t, h.balanceOf(t, "现金").Equal(decimal.RequireFromString("-3")))

	discrepancies, err := h.engine.Verify(h.ctx)
	require.NoError(t, err)
	assert.Empty(t, discrepancies)
}

func TestImportCSV_ReimportSkipsDuplicates(t *testing.T) {
	h := newHarness(t)
	_, err := h.importer.ImportCSV(h.ctx, strings.NewReader(sampleCSV))
	require.NoError(t, err)

	res, err := h.importer.ImportCSV(h.ctx, strings.NewReader(sampleCSV))
	require.NoError(t, err)
	assert.Zero(t, res.Imported)
	assert.Equal(t, 3, res.Skipped)
	assert.Len(t, h.snapshot(t).Bills, 3)
}

func TestImportCSV_DuplicateTolerances(t *testing.T) {
	h := newHarness(t)
	_, err := h.importer.ImportCSV(h.ctx, strings.NewReader(sampleCSV))
	require.NoError(t, err)

	csv := "日期,金额,账单类型,归属人,支付方式,备注\n" +
		// within 0.01 and 60s -> duplicate
		"2025-03-01 08:00:59,-3.01,交通,李四,现金,地铁\n" +
		// amount off by 0.02 -> new
		"2025-03-01 08:00:00,-3.02,交通,李四,现金,地铁\n" +
		// 61 seconds later -> new
		"2025-03-01 08:01:01,-3,交通,李四,现金,地铁\n" +
		// different note -> new
		"2025-03-01 08:00:00,-3,交通,李四,现金,公交\n"

	res, err := h.importer.ImportCSV(h.ctx, strings.NewReader(csv))
	require.NoError(t, err)
	assert.Equal(t, 1, res.Skipped)
	assert.Equal(t, 3, res.Imported)
}

func TestImportCSV_BadRowsAreReportedPerLine(t *testing.T) {
	h := newHarness(t)
	csv := "日期,金额,账单类型,归属人,支付方式,备注\n" +
		"2025-03-01 08:00:00,-3,交通,李四,现金,\n" +
		"yesterday,-3,交通,李四,现金,\n" +
		"2025-03-01 09:00:00,0,交通,李四,现金,\n" +
		"2025-03-01 10:00:00,abc,交通,李四,现金,\n" +
		"2025-03-01 11:00:00,-1,,李四,现金,\n"

	res, err := h.importer.ImportCSV(h.ctx, strings.NewReader(csv))
	require.NoError(t, err)
	assert.Equal(t, 1, res.Imported)
	require.Len(t, res.Failed, 4)

	lines := []int{res.Failed[0].Line, res.Failed[1].Line, res.Failed[2].Line, res.Failed[3].Line}
	assert.Equal(t, []int{3, 4, 5, 6}, lines)
	assert.ErrorIs(t, res.Failed[1], domain.ErrInvalidAmount)
}

type failingCreator struct{ err error }

func (c failingCreator) CreateBill(context.Context, ledger.BillInput) (domain.Bill, error) {
	return domain.Bill{}, c.err
}

func (h *harness) counts(t *testing.T) (owners, methods, categories int) {
	snap := h.snapshot(t)
	return len(snap.Owners), len(snap.PaymentMethods), len(snap.Categories)
}

func TestImportCSV_FailedRowsLeaveNoReferenceData(t *testing.T) {
	// GIVEN: Zhang San's card with 100 of credit
	h := newHarness(t)
	zhang := domain.Owner{ID: uuid.New(), Name: "张三"}
	require.NoError(t, h.store.SaveOwner(h.ctx, zhang))
	card := domain.NewCreditCard(domain.PaymentMethodInfo{
		ID: uuid.New(), Name: "信用卡", TransactionType: domain.TransactionExpense, OwnerID: zhang.ID,
	}, decimal.NewFromInt(100), decimal.Zero, 1)
	require.NoError(t, h.store.SavePaymentMethod(h.ctx, card))
	owners, methods, categories := h.counts(t)

	// WHEN: One row has a zero amount and one exceeds the limit
	csv := "日期,金额,账单类型,归属人,支付方式,备注\n" +
		"2025-03-01 08:00:00,0,幽灵分类,王五,幽灵卡,\n" +
		"2025-03-01 09:00:00,-500,奢侈品,张三,信用卡,\n"
	res, err := h.importer.ImportCSV(h.ctx, strings.NewReader(csv))

	// THEN: Both fail and nothing new is stored
	require.NoError(t, err)
	require.Len(t, res.Failed, 2)
	assert.ErrorIs(t, res.Failed[0], domain.ErrInvalidAmount)
	assert.ErrorIs(t, res.Failed[1], domain.ErrCreditLimitExceeded)

	o, m, c := h.counts(t)
	assert.Equal(t, owners, o)
	assert.Equal(t, methods, m)
	assert.Equal(t, categories, c)
}

func TestImportCSV_LedgerFailureRemovesCreatedRecords(t *testing.T) {
	// GIVEN: A ledger that rejects every bill
	h := newHarness(t)
	rejecting := importexport.NewImporter(h.store, failingCreator{err: domain.ErrPersistence}, shanghai, zerolog.Nop())

	// WHEN: Importing rows with new owners, methods and categories
	res, err := rejecting.ImportCSV(h.ctx, strings.NewReader(sampleCSV))

	// THEN: Every row failed and the ledger is still empty
	require.NoError(t, err)
	assert.Len(t, res.Failed, 3)
	o, m, c := h.counts(t)
	assert.Zero(t, o)
	assert.Zero(t, m)
	assert.Zero(t, c)

	// And the same names import normally afterwards
	res, err = h.importer.ImportCSV(h.ctx, strings.NewReader(sampleCSV))
	require.NoError(t, err)
	assert.Equal(t, 3, res.Imported)
	o, m, c = h.counts(t)
	assert.Equal(t, 2, o)
	assert.Equal(t, 2, m)
	assert.Equal(t, 3, c)
}

func TestImportCSV_RejectsUnknownHeader(t *testing.T) {
	h := newHarness(t)

	_, err := h.importer.ImportCSV(h.ctx, strings.NewReader("date,amount\n2025-01-01,1\n"))
	assert.ErrorIs(t, err, importexport.ErrBadHeader)

	_, err = h.importer.ImportCSV(h.ctx, strings.NewReader(""))
	assert.ErrorIs(t, err, importexport.ErrBadHeader)
}

// =============================================================================
// EXPORT
// =============================================================================

func TestExportCSV_FormatAndOrder(t *testing.T) {
	h := newHarness(t)
	_, err := h.importer.ImportCSV(h.ctx, strings.NewReader(sampleCSV))
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, h.exporter.WriteCSV(&buf, h.snapshot(t)))

	out := buf.String()
	assert.True(t, strings.HasPrefix(out, "\ufeff日期,金额,账单类型,归属人,支付方式,备注\n"))
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "2025-03-02 09:15:00,-25.5,餐饮; 交通,张三,招商银行,午饭", lines[1])
	assert.Equal(t, "2025-03-01 08:00:00,-3,交通,李四,现金,地铁", lines[3])
}

func TestExport_RoundTripIntoFreshLedger(t *testing.T) {
	src := newHarness(t)
	_, err := src.importer.ImportCSV(src.ctx, strings.NewReader(sampleCSV))
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, src.exporter.WriteCSV(&buf, src.snapshot(t)))

	dst := newHarness(t)
	res, err := dst.importer.ImportCSV(dst.ctx, &buf)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Imported)
	assert.True(t, dst.balanceOf(t, "招商银行").Equal(src.balanceOf(t, "招商银行")))
}

func TestExportXLSX(t *testing.T) {
	h := newHarness(t)
	_, err := h.importer.ImportCSV(h.ctx, strings.NewReader(sampleCSV))
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, h.exporter.WriteXLSX(&buf, h.snapshot(t)))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows("账单明细")
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, importexport.Header, rows[0])
	assert.Equal(t, "-25.5", rows[1][1])
	assert.Equal(t, "张三", rows[1][3])
}

func TestExporter_RowsWithDanglingNames(t *testing.T) {
	x := importexport.NewExporter(nil)
	snap := domain.Snapshot{Bills: []domain.Bill{{
		ID:          uuid.New(),
		Amount:      decimal.NewFromInt(-1),
		CategoryIDs: []uuid.UUID{uuid.New()},
		CreatedAt:   time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC),
	}}}

	rows := x.Rows(snap)
	require.Len(t, rows, 1)
	assert.Equal(t, []string{"2025-01-02 03:04:05", "-1", "", "", "", ""}, rows[0])
}
