package importexport

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/warp/ledger-engine/domain"
	"github.com/warp/ledger-engine/ledger"
)

// Duplicate detection tolerances.
var (
	amountTolerance = decimal.RequireFromString("0.01")
	timeTolerance   = 60 * time.Second
)

// ErrBadHeader is returned when the first row is not the expected header.
var ErrBadHeader = errors.New("unexpected csv header")

// BillCreator is the part of the ledger engine the importer needs.
type BillCreator interface {
	CreateBill(ctx context.Context, in ledger.BillInput) (domain.Bill, error)
}

// RowError reports a row that could not be imported.
type RowError struct {
	Line int
	Err  error
}

func (e RowError) Error() string {
	return fmt.Sprintf("line %d: %v", e.Line, e.Err)
}

func (e RowError) Unwrap() error { return e.Err }

// Result summarizes an import.
type Result struct {
	Imported int
	Skipped  int // duplicates of existing bills
	Failed   []RowError
}

// Importer reads CSV files in the export format.
type Importer struct {
	repo    domain.Repository
	creator BillCreator
	loc     *time.Location
	log     zerolog.Logger
}

// NewImporter creates an importer. Reference data (owners, categories,
// payment methods) is created through repo; bills go through creator.
func NewImporter(repo domain.Repository, creator BillCreator, loc *time.Location, log zerolog.Logger) *Importer {
	if loc == nil {
		loc = time.UTC
	}
	return &Importer{repo: repo, creator: creator, loc: loc, log: log}
}

// ImportCSV imports every row of r. A bad row is recorded in Result.Failed
// and does not stop the import. The returned error is reserved for problems
// with the file as a whole or with loading existing data.
func (im *Importer) ImportCSV(ctx context.Context, r io.Reader) (Result, error) {
	var res Result

	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return res, fmt.Errorf("%w: empty file", ErrBadHeader)
	}
	if err != nil {
		return res, fmt.Errorf("read header: %w", err)
	}
	if !validHeader(header) {
		return res, fmt.Errorf("%w: %q", ErrBadHeader, strings.Join(header, ","))
	}

	snap, err := ledger.LoadSnapshot(ctx, im.repo)
	if err != nil {
		return res, err
	}
	refs := newResolver(im.repo, snap)

	for {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var perr *csv.ParseError
			if errors.As(err, &perr) {
				res.Failed = append(res.Failed, RowError{Line: perr.Line, Err: err})
				continue
			}
			return res, fmt.Errorf("read csv: %w", err)
		}
		line, _ := cr.FieldPos(0)
		if isBlank(record) {
			continue
		}

		skipped, err := im.importRow(ctx, refs, record)
		switch {
		case err != nil:
			res.Failed = append(res.Failed, RowError{Line: line, Err: err})
		case skipped:
			res.Skipped++
		default:
			res.Imported++
		}
	}

	im.log.Info().Int("imported", res.Imported).Int("skipped", res.Skipped).
		Int("failed", len(res.Failed)).Msg("csv import finished")
	return res, nil
}

// row is one parsed CSV record.
type row struct {
	at         time.Time
	amount     decimal.Decimal
	categories []string
	owner      string
	method     string
	note       string
}

func (im *Importer) parse(record []string) (row, error) {
	if len(record) < len(Header)-1 {
		return row{}, fmt.Errorf("expected %d columns, got %d", len(Header), len(record))
	}
	var r row
	var err error

	if r.at, err = time.ParseInLocation(DateLayout, strings.TrimSpace(record[0]), im.loc); err != nil {
		return r, fmt.Errorf("bad date %q: %w", record[0], err)
	}
	if r.amount, err = decimal.NewFromString(strings.TrimSpace(record[1])); err != nil {
		return r, fmt.Errorf("bad amount %q: %w", record[1], err)
	}
	if r.amount.IsZero() {
		return r, fmt.Errorf("%w: %q", domain.ErrInvalidAmount, record[1])
	}
	for _, name := range strings.Split(record[2], strings.TrimSpace(CategorySeparator)) {
		if name = strings.TrimSpace(name); name != "" {
			r.categories = append(r.categories, name)
		}
	}
	r.owner = strings.TrimSpace(record[3])
	r.method = strings.TrimSpace(record[4])
	if len(record) > 5 {
		r.note = record[5]
	}

	switch {
	case len(r.categories) == 0:
		return r, errors.New("no category")
	case r.owner == "":
		return r, errors.New("no owner")
	case r.method == "":
		return r, errors.New("no payment method")
	}
	return r, nil
}

// importRow imports one record. Owners, payment methods and categories
// created for a row that then fails are removed again.
func (im *Importer) importRow(ctx context.Context, refs *resolver, record []string) (skipped bool, err error) {
	r, err := im.parse(record)
	if err != nil {
		return false, err
	}

	refs.begin()
	skipped, err = im.createBill(ctx, refs, r)
	if err != nil {
		if derr := refs.discard(ctx); derr != nil {
			im.log.Warn().Err(derr).AnErr("cause", err).Msg("could not remove records created for a failed row")
			return false, errors.Join(err, derr)
		}
		return false, err
	}
	return skipped, nil
}

func (im *Importer) createBill(ctx context.Context, refs *resolver, r row) (skipped bool, err error) {
	owner, err := refs.owner(ctx, r.owner)
	if err != nil {
		return false, err
	}
	pm, err := refs.paymentMethod(ctx, owner, r.method)
	if err != nil {
		return false, err
	}
	if refs.isDuplicate(r, pm.Info().ID, owner.ID) {
		return true, nil
	}

	categoryIDs := make([]uuid.UUID, 0, len(r.categories))
	for _, name := range r.categories {
		c, err := refs.category(ctx, name, r.amount)
		if err != nil {
			return false, err
		}
		categoryIDs = append(categoryIDs, c.ID)
	}

	in := ledger.BillInput{
		Amount:          r.amount,
		PaymentMethodID: pm.Info().ID,
		CategoryIDs:     categoryIDs,
		OwnerID:         owner.ID,
		CreatedAt:       r.at,
	}
	if r.note != "" {
		note := r.note
		in.Note = &note
	}

	bill, err := im.creator.CreateBill(ctx, in)
	if err != nil {
		return false, err
	}
	refs.bills = append(refs.bills, bill)
	return false, nil
}

// =============================================================================
// RESOLVER - name lookups with implicit creation
// =============================================================================

type methodKey struct {
	owner uuid.UUID
	name  string
}

type resolver struct {
	repo       domain.Repository
	owners     map[string]domain.Owner
	categories map[string]domain.BillCategory
	methods    map[methodKey]domain.PaymentMethod
	bills      []domain.Bill
	nextSort   int

	// created holds one removal per record created for the current row.
	created   []func(context.Context) error
	startSort int
}

func newResolver(repo domain.Repository, snap domain.Snapshot) *resolver {
	r := &resolver{
		repo:       repo,
		owners:     make(map[string]domain.Owner, len(snap.Owners)),
		categories: make(map[string]domain.BillCategory, len(snap.Categories)),
		methods:    make(map[methodKey]domain.PaymentMethod, len(snap.PaymentMethods)),
		bills:      snap.Bills,
	}
	for _, o := range snap.Owners {
		r.owners[o.Name] = o
	}
	for _, c := range snap.Categories {
		r.categories[c.Name] = c
		if c.SortOrder >= r.nextSort {
			r.nextSort = c.SortOrder + 1
		}
	}
	for _, pm := range snap.PaymentMethods {
		info := pm.Info()
		r.methods[methodKey{owner: info.OwnerID, name: info.Name}] = pm
	}
	return r
}

// begin starts tracking records created for a new row.
func (r *resolver) begin() {
	r.created = r.created[:0]
	r.startSort = r.nextSort
}

// discard removes what the current row created, newest first.
func (r *resolver) discard(ctx context.Context) error {
	var errs []error
	for i := len(r.created) - 1; i >= 0; i-- {
		if err := r.created[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	r.created = r.created[:0]
	r.nextSort = r.startSort
	return errors.Join(errs...)
}

func (r *resolver) owner(ctx context.Context, name string) (domain.Owner, error) {
	if o, ok := r.owners[name]; ok {
		return o, nil
	}
	o := domain.Owner{ID: uuid.New(), Name: name}
	if err := r.repo.SaveOwner(ctx, o); err != nil {
		return o, fmt.Errorf("create owner %q: %w", name, err)
	}
	r.owners[name] = o
	r.created = append(r.created, func(ctx context.Context) error {
		delete(r.owners, name)
		if err := r.repo.DeleteOwner(ctx, o.ID); err != nil {
			return fmt.Errorf("remove owner %q: %w", name, err)
		}
		return nil
	})
	return o, nil
}

// category returns the named category, creating it with a transaction type
// derived from the sign of the first amount it is seen with.
func (r *resolver) category(ctx context.Context, name string, amount decimal.Decimal) (domain.BillCategory, error) {
	if c, ok := r.categories[name]; ok {
		return c, nil
	}
	tt := domain.TransactionExpense
	if amount.IsPositive() {
		tt = domain.TransactionIncome
	}
	c := domain.BillCategory{ID: uuid.New(), Name: name, TransactionType: tt, SortOrder: r.nextSort}
	if err := r.repo.SaveCategory(ctx, c); err != nil {
		return c, fmt.Errorf("create category %q: %w", name, err)
	}
	r.nextSort++
	r.categories[name] = c
	r.created = append(r.created, func(ctx context.Context) error {
		delete(r.categories, name)
		if err := r.repo.DeleteCategory(ctx, c.ID); err != nil {
			return fmt.Errorf("remove category %q: %w", name, err)
		}
		return nil
	})
	return c, nil
}

// paymentMethod returns the owner's payment method with that name. Unknown
// ones are created as empty savings accounts.
func (r *resolver) paymentMethod(ctx context.Context, owner domain.Owner, name string) (domain.PaymentMethod, error) {
	key := methodKey{owner: owner.ID, name: name}
	if pm, ok := r.methods[key]; ok {
		return pm, nil
	}
	pm := domain.NewSavingsAccount(domain.PaymentMethodInfo{
		ID:              uuid.New(),
		Name:            name,
		TransactionType: domain.TransactionExpense,
		OwnerID:         owner.ID,
	}, decimal.Zero)
	if err := r.repo.SavePaymentMethod(ctx, pm); err != nil {
		return nil, fmt.Errorf("create payment method %q: %w", name, err)
	}
	r.methods[key] = pm
	r.created = append(r.created, func(ctx context.Context) error {
		delete(r.methods, key)
		if err := r.repo.DeletePaymentMethod(ctx, pm.Info().ID); err != nil {
			return fmt.Errorf("remove payment method %q: %w", name, err)
		}
		return nil
	})
	return pm, nil
}

// isDuplicate reports whether an existing bill matches the row: same payment
// method, owner and note, amount within 0.01 and time within 60 seconds.
func (r *resolver) isDuplicate(row row, pmID, ownerID uuid.UUID) bool {
	for _, b := range r.bills {
		if b.PaymentMethodID != pmID || b.OwnerID != ownerID || b.NoteText() != row.note {
			continue
		}
		if b.Amount.Sub(row.amount).Abs().GreaterThan(amountTolerance) {
			continue
		}
		gap := b.CreatedAt.Sub(row.at)
		if gap < 0 {
			gap = -gap
		}
		if gap <= timeTolerance {
			return true
		}
	}
	return false
}

func validHeader(header []string) bool {
	if len(header) < len(Header) {
		return false
	}
	for i, want := range Header {
		got := strings.TrimSpace(header[i])
		if i == 0 {
			got = strings.TrimPrefix(got, string(utf8BOM))
		}
		if got != want {
			return false
		}
	}
	return true
}

func isBlank(record []string) bool {
	for _, f := range record {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}
