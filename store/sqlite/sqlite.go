/*
Package sqlite provides a SQLite-backed implementation of the storage interfaces.

PURPOSE:
  Implements domain.Repository, domain.TxRepository and domain.SnapshotReader
  on SQLite. The ledger engine runs every bill mutation inside WithTx, so the
  payment method row and the bill row commit or roll back together.

KEY TABLES:
  owners:          Identity anchor for payment methods and bills
  categories:      Bill categories with their transaction type
  payment_methods: Credit and savings variants in one table
  bills:           Signed amounts against a payment method
  bill_categories: Bill <-> category association

FOREIGN KEYS:
  payment_methods.owner_id     ON DELETE CASCADE
  bills.payment_method_id      ON DELETE RESTRICT
  bills.owner_id               ON DELETE RESTRICT
  bill_categories.bill_id      ON DELETE CASCADE
  bill_categories.category_id  ON DELETE RESTRICT

  Constraint failures are decoded from sqlite3.Error into the domain
  storage errors (ErrStillReferenced, ErrDanglingReference, ErrAlreadyExists).

ENCODING:
  Money is stored as decimal strings, never REAL. Timestamps are UTC
  ISO-8601 with fixed nanosecond width so that ORDER BY created_at on the
  text column matches chronological order.

CONCURRENCY:
  The pool is capped at one connection: SQLite has a single writer anyway
  and ":memory:" databases live on one connection only. Every query fully
  drains its rows before the next one starts.

MIGRATION:
  Schema is migrated on New() with golang-migrate from embedded SQL files.

USAGE:
  store, err := sqlite.New("./data/ledger.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  engine := ledger.NewEngine(store)

SEE ALSO:
  - domain/store.go: Interface definitions
  - domain/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
	"github.com/warp/ledger-engine/domain"
)

const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Store implements all storage interfaces using SQLite.
type Store struct {
	conn
	db *sql.DB
}

var (
	_ domain.TxRepository   = (*Store)(nil)
	_ domain.SnapshotReader = (*Store)(nil)
)

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// conn runs the repository queries against either the pool or a transaction.
type conn struct {
	q querier
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(0)

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return &Store{conn: conn{q: db}, db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// =============================================================================
// TRANSACTIONAL STORE (domain.TxRepository interface)
// =============================================================================

// WithTx executes a function within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(domain.Repository) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(conn{q: sqlTx}); err != nil {
		return err
	}
	return sqlTx.Commit()
}

// Snapshot reads every table inside one transaction.
func (s *Store) Snapshot(ctx context.Context) (domain.Snapshot, error) {
	var snap domain.Snapshot
	err := s.WithTx(ctx, func(r domain.Repository) error {
		var err error
		if snap.Owners, err = r.FetchOwners(ctx); err != nil {
			return err
		}
		if snap.Categories, err = r.FetchCategories(ctx); err != nil {
			return err
		}
		if snap.PaymentMethods, err = r.FetchPaymentMethods(ctx); err != nil {
			return err
		}
		snap.Bills, err = r.FetchBills(ctx)
		return err
	})
	return snap, err
}

// atomic runs fn in a transaction unless c already is one.
func (c conn) atomic(ctx context.Context, fn func(conn) error) error {
	db, ok := c.q.(*sql.DB)
	if !ok {
		return fn(c)
	}
	sqlTx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(conn{q: sqlTx}); err != nil {
		return err
	}
	return sqlTx.Commit()
}

// =============================================================================
// OWNERS
// =============================================================================

// FetchOwners returns all owners ordered by name.
func (c conn) FetchOwners(ctx context.Context) ([]domain.Owner, error) {
	rows, err := c.q.QueryContext(ctx, "SELECT id, name FROM owners ORDER BY name, id")
	if err != nil {
		return nil, fmt.Errorf("failed to query owners: %w", err)
	}
	defer rows.Close()

	var owners []domain.Owner
	for rows.Next() {
		var o domain.Owner
		var id string
		if err := rows.Scan(&id, &o.Name); err != nil {
			return nil, fmt.Errorf("failed to scan owner: %w", err)
		}
		if o.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("failed to decode owner id %q: %w", id, err)
		}
		owners = append(owners, o)
	}
	return owners, rows.Err()
}

// FetchOwner retrieves an owner by ID.
func (c conn) FetchOwner(ctx context.Context, id uuid.UUID) (*domain.Owner, error) {
	o := domain.Owner{ID: id}
	err := c.q.QueryRowContext(ctx, "SELECT name FROM owners WHERE id = ?", id.String()).Scan(&o.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get owner: %w", err)
	}
	return &o, nil
}

// SaveOwner inserts an owner.
func (c conn) SaveOwner(ctx context.Context, o domain.Owner) error {
	_, err := c.q.ExecContext(ctx, "INSERT INTO owners (id, name) VALUES (?, ?)", o.ID.String(), o.Name)
	return translateWrite(err, "save owner")
}

// UpdateOwner renames an owner.
func (c conn) UpdateOwner(ctx context.Context, o domain.Owner) error {
	res, err := c.q.ExecContext(ctx, "UPDATE owners SET name = ? WHERE id = ?", o.Name, o.ID.String())
	return affectedOne(res, translateWrite(err, "update owner"))
}

// DeleteOwner removes an owner and, by cascade, its payment methods.
func (c conn) DeleteOwner(ctx context.Context, id uuid.UUID) error {
	res, err := c.q.ExecContext(ctx, "DELETE FROM owners WHERE id = ?", id.String())
	return affectedOne(res, translateDelete(err, domain.KindOwner, id))
}

// =============================================================================
// CATEGORIES
// =============================================================================

// FetchCategories returns all categories ordered by sort order.
func (c conn) FetchCategories(ctx context.Context) ([]domain.BillCategory, error) {
	rows, err := c.q.QueryContext(ctx,
		"SELECT id, name, transaction_type, sort_order FROM categories ORDER BY sort_order, name, id")
	if err != nil {
		return nil, fmt.Errorf("failed to query categories: %w", err)
	}
	defer rows.Close()

	var categories []domain.BillCategory
	for rows.Next() {
		var cat domain.BillCategory
		var id, txType string
		if err := rows.Scan(&id, &cat.Name, &txType, &cat.SortOrder); err != nil {
			return nil, fmt.Errorf("failed to scan category: %w", err)
		}
		if cat.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("failed to decode category id %q: %w", id, err)
		}
		cat.TransactionType = domain.TransactionType(txType)
		categories = append(categories, cat)
	}
	return categories, rows.Err()
}

// FetchCategory retrieves a category by ID.
func (c conn) FetchCategory(ctx context.Context, id uuid.UUID) (*domain.BillCategory, error) {
	cat := domain.BillCategory{ID: id}
	var txType string
	err := c.q.QueryRowContext(ctx,
		"SELECT name, transaction_type, sort_order FROM categories WHERE id = ?", id.String(),
	).Scan(&cat.Name, &txType, &cat.SortOrder)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get category: %w", err)
	}
	cat.TransactionType = domain.TransactionType(txType)
	return &cat, nil
}

// SaveCategory inserts a category.
func (c conn) SaveCategory(ctx context.Context, cat domain.BillCategory) error {
	_, err := c.q.ExecContext(ctx,
		"INSERT INTO categories (id, name, transaction_type, sort_order) VALUES (?, ?, ?, ?)",
		cat.ID.String(), cat.Name, string(cat.TransactionType), cat.SortOrder,
	)
	return translateWrite(err, "save category")
}

// UpdateCategory updates a category in place.
func (c conn) UpdateCategory(ctx context.Context, cat domain.BillCategory) error {
	res, err := c.q.ExecContext(ctx,
		"UPDATE categories SET name = ?, transaction_type = ?, sort_order = ? WHERE id = ?",
		cat.Name, string(cat.TransactionType), cat.SortOrder, cat.ID.String(),
	)
	return affectedOne(res, translateWrite(err, "update category"))
}

// DeleteCategory removes a category no bill references.
func (c conn) DeleteCategory(ctx context.Context, id uuid.UUID) error {
	res, err := c.q.ExecContext(ctx, "DELETE FROM categories WHERE id = ?", id.String())
	return affectedOne(res, translateDelete(err, domain.KindCategory, id))
}

// =============================================================================
// PAYMENT METHODS
// =============================================================================

const paymentMethodColumns = `id, name, transaction_type, account_type, owner_id, credit_limit,
	outstanding_balance, billing_date, balance, opening_balance, sort_order`

// FetchPaymentMethods returns all payment methods ordered by sort order.
func (c conn) FetchPaymentMethods(ctx context.Context) ([]domain.PaymentMethod, error) {
	rows, err := c.q.QueryContext(ctx,
		"SELECT "+paymentMethodColumns+" FROM payment_methods ORDER BY sort_order, name, id")
	if err != nil {
		return nil, fmt.Errorf("failed to query payment methods: %w", err)
	}
	defer rows.Close()

	var methods []domain.PaymentMethod
	for rows.Next() {
		pm, err := scanPaymentMethod(rows)
		if err != nil {
			return nil, err
		}
		methods = append(methods, pm)
	}
	return methods, rows.Err()
}

// FetchPaymentMethod retrieves a payment method by ID.
func (c conn) FetchPaymentMethod(ctx context.Context, id uuid.UUID) (domain.PaymentMethod, error) {
	row := c.q.QueryRowContext(ctx,
		"SELECT "+paymentMethodColumns+" FROM payment_methods WHERE id = ?", id.String())
	pm, err := scanPaymentMethod(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return pm, err
}

// SavePaymentMethod inserts a payment method.
func (c conn) SavePaymentMethod(ctx context.Context, pm domain.PaymentMethod) error {
	cols, err := paymentMethodValues(pm)
	if err != nil {
		return err
	}
	info := pm.Info()
	_, err = c.q.ExecContext(ctx, `
		INSERT INTO payment_methods (`+paymentMethodColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		info.ID.String(), info.Name, string(info.TransactionType), string(pm.AccountType()),
		info.OwnerID.String(), cols.creditLimit, cols.outstanding, cols.billingDate, cols.balance,
		info.OpeningBalance.String(), info.SortOrder,
	)
	return translateWrite(err, "save payment method")
}

// UpdatePaymentMethod overwrites every column of a payment method.
func (c conn) UpdatePaymentMethod(ctx context.Context, pm domain.PaymentMethod) error {
	cols, err := paymentMethodValues(pm)
	if err != nil {
		return err
	}
	info := pm.Info()
	res, err := c.q.ExecContext(ctx, `
		UPDATE payment_methods SET
			name = ?, transaction_type = ?, account_type = ?, owner_id = ?,
			credit_limit = ?, outstanding_balance = ?, billing_date = ?, balance = ?,
			opening_balance = ?, sort_order = ?
		WHERE id = ?`,
		info.Name, string(info.TransactionType), string(pm.AccountType()), info.OwnerID.String(),
		cols.creditLimit, cols.outstanding, cols.billingDate, cols.balance,
		info.OpeningBalance.String(), info.SortOrder, info.ID.String(),
	)
	return affectedOne(res, translateWrite(err, "update payment method"))
}

// DeletePaymentMethod removes a payment method no bill references.
func (c conn) DeletePaymentMethod(ctx context.Context, id uuid.UUID) error {
	res, err := c.q.ExecContext(ctx, "DELETE FROM payment_methods WHERE id = ?", id.String())
	return affectedOne(res, translateDelete(err, domain.KindPaymentMethod, id))
}

type paymentMethodCols struct {
	creditLimit sql.NullString
	outstanding sql.NullString
	balance     sql.NullString
	billingDate sql.NullInt64
}

func paymentMethodValues(pm domain.PaymentMethod) (paymentMethodCols, error) {
	var cols paymentMethodCols
	switch m := pm.(type) {
	case domain.CreditCard:
		cols.creditLimit = sql.NullString{String: m.CreditLimit.String(), Valid: true}
		cols.outstanding = sql.NullString{String: m.OutstandingBalance.String(), Valid: true}
		cols.billingDate = sql.NullInt64{Int64: int64(m.BillingDate), Valid: m.BillingDate != 0}
	case domain.SavingsAccount:
		cols.balance = sql.NullString{String: m.Balance.String(), Valid: true}
	default:
		return cols, fmt.Errorf("%w: %T", domain.ErrUnknownAccountType, pm)
	}
	return cols, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanPaymentMethod(row scanner) (domain.PaymentMethod, error) {
	var (
		id, name, txType, accountType, ownerID string
		creditLimit, outstanding, balance      sql.NullString
		billingDate                            sql.NullInt64
		opening                                string
		info                                   domain.PaymentMethodInfo
	)
	err := row.Scan(&id, &name, &txType, &accountType, &ownerID, &creditLimit,
		&outstanding, &billingDate, &balance, &opening, &info.SortOrder)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan payment method: %w", err)
	}

	if info.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("failed to decode payment method id %q: %w", id, err)
	}
	if info.OwnerID, err = uuid.Parse(ownerID); err != nil {
		return nil, fmt.Errorf("failed to decode owner id %q: %w", ownerID, err)
	}
	if info.OpeningBalance, err = decimal.NewFromString(opening); err != nil {
		return nil, fmt.Errorf("failed to decode opening balance of %s: %w", id, err)
	}
	info.Name = name
	info.TransactionType = domain.TransactionType(txType)

	switch domain.AccountType(accountType) {
	case domain.AccountCredit:
		limit, err := parseDecimal(creditLimit, "credit_limit", id)
		if err != nil {
			return nil, err
		}
		out, err := parseDecimal(outstanding, "outstanding_balance", id)
		if err != nil {
			return nil, err
		}
		return domain.CreditCard{
			PaymentMethodInfo:  info,
			CreditLimit:        limit,
			OutstandingBalance: out,
			BillingDate:        int(billingDate.Int64),
		}, nil
	case domain.AccountSavings:
		bal, err := parseDecimal(balance, "balance", id)
		if err != nil {
			return nil, err
		}
		return domain.SavingsAccount{PaymentMethodInfo: info, Balance: bal}, nil
	default:
		return nil, fmt.Errorf("%w: %q on %s", domain.ErrUnknownAccountType, accountType, id)
	}
}

// =============================================================================
// BILLS
// =============================================================================

const billColumns = `id, amount, payment_method_id, owner_id, note, created_at, updated_at,
	excluded_flow, balance_applied`

// FetchBills returns all bills, newest first.
func (c conn) FetchBills(ctx context.Context) ([]domain.Bill, error) {
	rows, err := c.q.QueryContext(ctx,
		"SELECT "+billColumns+" FROM bills ORDER BY created_at DESC, id")
	if err != nil {
		return nil, fmt.Errorf("failed to query bills: %w", err)
	}
	var bills []domain.Bill
	for rows.Next() {
		b, err := scanBill(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		bills = append(bills, b)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	categories, err := c.billCategories(ctx, "")
	if err != nil {
		return nil, err
	}
	for i := range bills {
		bills[i].CategoryIDs = categories[bills[i].ID]
	}
	return bills, nil
}

// FetchBill retrieves a bill with its categories.
func (c conn) FetchBill(ctx context.Context, id uuid.UUID) (*domain.Bill, error) {
	row := c.q.QueryRowContext(ctx, "SELECT "+billColumns+" FROM bills WHERE id = ?", id.String())
	b, err := scanBill(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	categories, err := c.billCategories(ctx, id.String())
	if err != nil {
		return nil, err
	}
	b.CategoryIDs = categories[id]
	return &b, nil
}

// SaveBill inserts a bill and its category set atomically.
func (c conn) SaveBill(ctx context.Context, b domain.Bill) error {
	return c.atomic(ctx, func(tc conn) error {
		_, err := tc.q.ExecContext(ctx, `
			INSERT INTO bills (`+billColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			b.ID.String(), b.Amount.String(), b.PaymentMethodID.String(), b.OwnerID.String(),
			nullNote(b.Note), formatTime(b.CreatedAt), formatTime(b.UpdatedAt),
			b.ExcludedFlow, b.BalanceApplied,
		)
		if err := translateWrite(err, "save bill"); err != nil {
			return err
		}
		return tc.insertBillCategories(ctx, b)
	})
}

// UpdateBill overwrites a bill and replaces its category set.
func (c conn) UpdateBill(ctx context.Context, b domain.Bill) error {
	return c.atomic(ctx, func(tc conn) error {
		res, err := tc.q.ExecContext(ctx, `
			UPDATE bills SET
				amount = ?, payment_method_id = ?, owner_id = ?, note = ?,
				created_at = ?, updated_at = ?, excluded_flow = ?, balance_applied = ?
			WHERE id = ?`,
			b.Amount.String(), b.PaymentMethodID.String(), b.OwnerID.String(), nullNote(b.Note),
			formatTime(b.CreatedAt), formatTime(b.UpdatedAt), b.ExcludedFlow, b.BalanceApplied,
			b.ID.String(),
		)
		if err := affectedOne(res, translateWrite(err, "update bill")); err != nil {
			return err
		}
		if _, err := tc.q.ExecContext(ctx, "DELETE FROM bill_categories WHERE bill_id = ?", b.ID.String()); err != nil {
			return fmt.Errorf("failed to clear bill categories: %w", err)
		}
		return tc.insertBillCategories(ctx, b)
	})
}

// DeleteBill removes a bill; its category rows go with it.
func (c conn) DeleteBill(ctx context.Context, id uuid.UUID) error {
	res, err := c.q.ExecContext(ctx, "DELETE FROM bills WHERE id = ?", id.String())
	return affectedOne(res, translateDelete(err, domain.KindBill, id))
}

func (c conn) insertBillCategories(ctx context.Context, b domain.Bill) error {
	for _, catID := range b.CategoryIDs {
		_, err := c.q.ExecContext(ctx,
			"INSERT INTO bill_categories (bill_id, category_id) VALUES (?, ?)",
			b.ID.String(), catID.String(),
		)
		if err := translateWrite(err, "save bill category"); err != nil {
			return err
		}
	}
	return nil
}

// billCategories loads the category ids of one bill, or of all bills when
// billID is empty, in insertion order.
func (c conn) billCategories(ctx context.Context, billID string) (map[uuid.UUID][]uuid.UUID, error) {
	query := "SELECT bill_id, category_id FROM bill_categories"
	var args []any
	if billID != "" {
		query += " WHERE bill_id = ?"
		args = append(args, billID)
	}
	query += " ORDER BY bill_id, rowid"

	rows, err := c.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query bill categories: %w", err)
	}
	defer rows.Close()

	out := make(map[uuid.UUID][]uuid.UUID)
	for rows.Next() {
		var b, cat string
		if err := rows.Scan(&b, &cat); err != nil {
			return nil, fmt.Errorf("failed to scan bill category: %w", err)
		}
		bID, err := uuid.Parse(b)
		if err != nil {
			return nil, fmt.Errorf("failed to decode bill id %q: %w", b, err)
		}
		cID, err := uuid.Parse(cat)
		if err != nil {
			return nil, fmt.Errorf("failed to decode category id %q: %w", cat, err)
		}
		out[bID] = append(out[bID], cID)
	}
	return out, rows.Err()
}

func scanBill(row scanner) (domain.Bill, error) {
	var (
		b                         domain.Bill
		id, amount, pmID, ownerID string
		note                      sql.NullString
		createdAt, updatedAt      string
	)
	err := row.Scan(&id, &amount, &pmID, &ownerID, &note, &createdAt, &updatedAt,
		&b.ExcludedFlow, &b.BalanceApplied)
	if errors.Is(err, sql.ErrNoRows) {
		return b, err
	}
	if err != nil {
		return b, fmt.Errorf("failed to scan bill: %w", err)
	}

	if b.ID, err = uuid.Parse(id); err != nil {
		return b, fmt.Errorf("failed to decode bill id %q: %w", id, err)
	}
	if b.PaymentMethodID, err = uuid.Parse(pmID); err != nil {
		return b, fmt.Errorf("failed to decode payment method id %q: %w", pmID, err)
	}
	if b.OwnerID, err = uuid.Parse(ownerID); err != nil {
		return b, fmt.Errorf("failed to decode owner id %q: %w", ownerID, err)
	}
	if b.Amount, err = decimal.NewFromString(amount); err != nil {
		return b, fmt.Errorf("failed to decode amount of bill %s: %w", id, err)
	}
	if b.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return b, fmt.Errorf("failed to decode created_at of bill %s: %w", id, err)
	}
	if b.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt); err != nil {
		return b, fmt.Errorf("failed to decode updated_at of bill %s: %w", id, err)
	}
	if note.Valid {
		n := note.String
		b.Note = &n
	}
	return b, nil
}

// Helper functions

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func nullNote(note *string) sql.NullString {
	if note == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *note, Valid: true}
}

func parseDecimal(v sql.NullString, column, id string) (decimal.Decimal, error) {
	if !v.Valid {
		return decimal.Zero, fmt.Errorf("payment method %s: %s is NULL", id, column)
	}
	d, err := decimal.NewFromString(v.String)
	if err != nil {
		return decimal.Zero, fmt.Errorf("payment method %s: failed to decode %s: %w", id, column, err)
	}
	return d, nil
}

// affectedOne turns "no row matched" into domain.ErrNotFound.
func affectedOne(res sql.Result, err error) error {
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func translateWrite(err error, op string) error {
	if err == nil {
		return nil
	}
	var se sqlite3.Error
	if errors.As(err, &se) {
		switch se.ExtendedCode {
		case sqlite3.ErrConstraintPrimaryKey, sqlite3.ErrConstraintUnique:
			return fmt.Errorf("failed to %s: %w", op, domain.ErrAlreadyExists)
		case sqlite3.ErrConstraintForeignKey:
			return fmt.Errorf("failed to %s: %w", op, domain.ErrDanglingReference)
		}
	}
	if isForeignKeyError(err) {
		return fmt.Errorf("failed to %s: %w", op, domain.ErrDanglingReference)
	}
	return fmt.Errorf("failed to %s: %w", op, err)
}

func translateDelete(err error, kind domain.EntityKind, id uuid.UUID) error {
	if err == nil {
		return nil
	}
	var se sqlite3.Error
	if (errors.As(err, &se) && se.ExtendedCode == sqlite3.ErrConstraintForeignKey) || isForeignKeyError(err) {
		return &domain.StillReferencedError{Kind: kind, ID: id}
	}
	return fmt.Errorf("failed to delete %s %s: %w", kind, id, err)
}

func isForeignKeyError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "FOREIGN KEY constraint failed")
}
