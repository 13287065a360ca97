/*
Package importexport moves bills in and out of the ledger as CSV or XLSX.

PURPOSE:
  A thin adapter around the ledger. Exports render one consistent snapshot.
  Imports resolve names to entities, create the ones that are missing, skip
  rows that duplicate an existing bill and send every remaining row through
  the ledger engine, so imported bills move balances like any other bill.

FILE FORMAT:
  Header:  日期,金额,账单类型,归属人,支付方式,备注
           (date, amount, categories, owner, payment method, note)
  Date:    2006-01-02 15:04:05 in the configured location
  Amount:  raw signed decimal, negative = money out
  Types:   category names joined with "; "

  CSV exports start with a UTF-8 BOM so spreadsheet tools detect the
  encoding. Rows are newest first.

SEE ALSO:
  - import.go: CSV import and deduplication
  - ledger/engine.go: CreateBill, used for every imported row
*/
package importexport

import (
	"encoding/csv"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/warp/ledger-engine/domain"
	"github.com/xuri/excelize/v2"
)

// DateLayout is the timestamp format of the date column.
const DateLayout = "2006-01-02 15:04:05"

// CategorySeparator joins multiple category names in one cell.
const CategorySeparator = "; "

const sheetName = "账单明细"

// Header is the column row shared by CSV and XLSX.
var Header = []string{"日期", "金额", "账单类型", "归属人", "支付方式", "备注"}

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Exporter renders snapshots. Dates are written in loc.
type Exporter struct {
	loc *time.Location
}

// NewExporter creates an exporter. A nil loc means UTC.
func NewExporter(loc *time.Location) *Exporter {
	if loc == nil {
		loc = time.UTC
	}
	return &Exporter{loc: loc}
}

// Rows renders the snapshot's bills, newest first, without the header.
// Names that no longer resolve are left empty.
func (x *Exporter) Rows(snap domain.Snapshot) [][]string {
	categories := snap.CategoryIndex()
	owners := snap.OwnerIndex()
	methods := snap.PaymentMethodIndex()

	rows := make([][]string, 0, len(snap.Bills))
	for _, b := range newestFirst(snap.Bills) {
		names := make([]string, 0, len(b.CategoryIDs))
		for _, id := range b.CategoryIDs {
			if c, ok := categories[id]; ok {
				names = append(names, c.Name)
			}
		}
		var pmName string
		if pm, ok := methods[b.PaymentMethodID]; ok {
			pmName = pm.Info().Name
		}
		rows = append(rows, []string{
			b.CreatedAt.In(x.loc).Format(DateLayout),
			b.Amount.String(),
			strings.Join(names, CategorySeparator),
			owners[b.OwnerID].Name,
			pmName,
			b.NoteText(),
		})
	}
	return rows
}

// WriteCSV writes the BOM, the header and every bill.
func (x *Exporter) WriteCSV(w io.Writer, snap domain.Snapshot) error {
	if _, err := w.Write(utf8BOM); err != nil {
		return fmt.Errorf("write bom: %w", err)
	}
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	if err := cw.WriteAll(x.Rows(snap)); err != nil {
		return fmt.Errorf("write rows: %w", err)
	}
	return nil
}

// WriteXLSX writes a single-sheet workbook with the same columns as the CSV.
// Amounts stay text so no value passes through floating point.
func (x *Exporter) WriteXLSX(w io.Writer, snap domain.Snapshot) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), sheetName); err != nil {
		return fmt.Errorf("name sheet: %w", err)
	}

	header := make([]any, len(Header))
	for i, h := range Header {
		header[i] = h
	}
	if err := f.SetSheetRow(sheetName, "A1", &header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	for i, row := range x.Rows(snap) {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		values := make([]any, len(row))
		for j, v := range row {
			values[j] = v
		}
		if err := f.SetSheetRow(sheetName, cell, &values); err != nil {
			return fmt.Errorf("write row %d: %w", i+2, err)
		}
	}

	widths := []float64{20, 12, 24, 12, 16, 30}
	for i, width := range widths {
		col, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			return err
		}
		if err := f.SetColWidth(sheetName, col, col, width); err != nil {
			return fmt.Errorf("set column width: %w", err)
		}
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

// newestFirst returns bills ordered by CreatedAt descending without
// touching the input. Snapshots already come ordered; this keeps exports
// correct for hand-built snapshots too.
func newestFirst(bills []domain.Bill) []domain.Bill {
	out := append([]domain.Bill(nil), bills...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}
