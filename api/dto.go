/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the domain model from the external API contract. Payment methods are a
  sum type in the domain; on the wire they are one flat object with an
  account_type discriminator and variant fields left out when unused.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

MONEY:
  decimal.Decimal marshals as a JSON string ("12.34") and accepts both
  strings and numbers on input. Floats are never used for amounts.

VALIDATION:
  Request types carry go-playground/validator struct tags. Shape checks live
  here; referential checks (does the owner exist, does it match) stay in the
  ledger engine so that they produce the same errors for every caller.

SEE ALSO:
  - handlers.go: Uses these types
  - domain/types.go, domain/payment.go: the domain model
*/
package api

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/warp/ledger-engine/domain"
	"github.com/warp/ledger-engine/importexport"
	"github.com/warp/ledger-engine/ledger"
	"github.com/warp/ledger-engine/stats"
)

// =============================================================================
// REFERENCE DATA
// =============================================================================

// OwnerDTO represents an owner in API responses.
type OwnerDTO struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
}

// OwnerRequest creates or renames an owner.
type OwnerRequest struct {
	Name string `json:"name" validate:"required,max=100"`
}

// CategoryDTO represents a bill category.
type CategoryDTO struct {
	ID              uuid.UUID `json:"id"`
	Name            string    `json:"name"`
	TransactionType string    `json:"transaction_type"`
	SortOrder       int       `json:"sort_order"`
}

// CategoryRequest creates or edits a category.
type CategoryRequest struct {
	Name            string `json:"name" validate:"required,max=100"`
	TransactionType string `json:"transaction_type" validate:"required,oneof=expense income excluded"`
	SortOrder       int    `json:"sort_order" validate:"gte=0"`
}

// =============================================================================
// PAYMENT METHODS
// =============================================================================

// PaymentMethodDTO flattens both payment method variants.
type PaymentMethodDTO struct {
	ID              uuid.UUID       `json:"id"`
	Name            string          `json:"name"`
	AccountType     string          `json:"account_type"`
	TransactionType string          `json:"transaction_type"`
	OwnerID         uuid.UUID       `json:"owner_id"`
	SortOrder       int             `json:"sort_order"`
	OpeningBalance  decimal.Decimal `json:"opening_balance"`

	// Credit only
	CreditLimit        *decimal.Decimal `json:"credit_limit,omitempty"`
	OutstandingBalance *decimal.Decimal `json:"outstanding_balance,omitempty"`
	BillingDate        *int             `json:"billing_date,omitempty"`

	// Savings only
	Balance *decimal.Decimal `json:"balance,omitempty"`
}

// CreatePaymentMethodRequest opens a credit card or savings account.
// OpeningBalance is the outstanding debt for a card, the balance otherwise.
type CreatePaymentMethodRequest struct {
	Name            string           `json:"name" validate:"required,max=100"`
	AccountType     string           `json:"account_type" validate:"required,oneof=credit savings"`
	TransactionType string           `json:"transaction_type" validate:"required,oneof=expense income excluded"`
	OwnerID         uuid.UUID        `json:"owner_id" validate:"required"`
	SortOrder       int              `json:"sort_order" validate:"gte=0"`
	OpeningBalance  decimal.Decimal  `json:"opening_balance"`
	CreditLimit     *decimal.Decimal `json:"credit_limit" validate:"required_if=AccountType credit"`
	BillingDate     int              `json:"billing_date" validate:"omitempty,min=1,max=31"`
}

// UpdatePaymentMethodRequest edits the descriptive fields of a payment method.
// Balances are not editable here; see SetOpeningBalanceRequest.
type UpdatePaymentMethodRequest struct {
	Name            string           `json:"name" validate:"required,max=100"`
	TransactionType string           `json:"transaction_type" validate:"required,oneof=expense income excluded"`
	SortOrder       int              `json:"sort_order" validate:"gte=0"`
	CreditLimit     *decimal.Decimal `json:"credit_limit"`
	BillingDate     int              `json:"billing_date" validate:"omitempty,min=1,max=31"`
}

// SetOpeningBalanceRequest moves a payment method's opening balance.
type SetOpeningBalanceRequest struct {
	OpeningBalance decimal.Decimal `json:"opening_balance"`
}

// =============================================================================
// BILLS
// =============================================================================

// BillDTO represents a bill in API responses.
type BillDTO struct {
	ID              uuid.UUID       `json:"id"`
	Amount          decimal.Decimal `json:"amount"`
	Type            string          `json:"type"` // effective: income, expense or excluded
	PaymentMethodID uuid.UUID       `json:"payment_method_id"`
	CategoryIDs     []uuid.UUID     `json:"category_ids"`
	OwnerID         uuid.UUID       `json:"owner_id"`
	Note            *string         `json:"note,omitempty"`
	CreatedAt       string          `json:"created_at"`
	UpdatedAt       string          `json:"updated_at"`
	ExcludedFlow    bool            `json:"excluded_flow"`
	BalanceApplied  bool            `json:"balance_applied"`
}

// BillRequest creates or replaces a bill. Amount must be nonzero: negative
// for money going out, positive for money coming in.
type BillRequest struct {
	Amount          decimal.Decimal `json:"amount"`
	PaymentMethodID uuid.UUID       `json:"payment_method_id" validate:"required"`
	CategoryIDs     []uuid.UUID     `json:"category_ids"`
	OwnerID         uuid.UUID       `json:"owner_id" validate:"required"`
	Note            *string         `json:"note" validate:"omitempty,max=500"`
	CreatedAt       *time.Time      `json:"created_at"`
}

func (r BillRequest) input() ledger.BillInput {
	in := ledger.BillInput{
		Amount:          r.Amount,
		PaymentMethodID: r.PaymentMethodID,
		CategoryIDs:     r.CategoryIDs,
		OwnerID:         r.OwnerID,
		Note:            r.Note,
	}
	if r.CreatedAt != nil {
		in.CreatedAt = *r.CreatedAt
	}
	return in
}

// =============================================================================
// STATISTICS, IMPORT, AUDIT
// =============================================================================

// GroupTotalDTO is one named total inside a grouping.
type GroupTotalDTO struct {
	Name  string          `json:"name"`
	Total decimal.Decimal `json:"total"`
	Count int             `json:"count"`
}

// StatisticsDTO is the response of GET /api/statistics.
type StatisticsDTO struct {
	TotalIncome     decimal.Decimal            `json:"total_income"`
	TotalExpense    decimal.Decimal            `json:"total_expense"`
	Net             decimal.Decimal            `json:"net"`
	BillCount       int                        `json:"bill_count"`
	ByCategory      map[string][]GroupTotalDTO `json:"by_category"`
	ByOwner         map[string][]GroupTotalDTO `json:"by_owner"`
	ByPaymentMethod map[string][]GroupTotalDTO `json:"by_payment_method"`
}

// ImportResultDTO summarizes a CSV import.
type ImportResultDTO struct {
	Imported int           `json:"imported"`
	Skipped  int           `json:"skipped"`
	Failed   []RowErrorDTO `json:"failed"`
}

// RowErrorDTO is one rejected CSV row.
type RowErrorDTO struct {
	Line  int    `json:"line"`
	Error string `json:"error"`
}

// DiscrepancyDTO is one payment method whose running total does not match its bills.
type DiscrepancyDTO struct {
	PaymentMethodID uuid.UUID       `json:"payment_method_id"`
	Name            string          `json:"name"`
	Expected        decimal.Decimal `json:"expected"`
	Actual          decimal.Decimal `json:"actual"`
	Difference      decimal.Decimal `json:"difference"`
	AppliedBills    int             `json:"applied_bills"`
}

// AuditReportDTO is the outcome of one ledger audit.
type AuditReportDTO struct {
	RanAt         string           `json:"ran_at"`
	Consistent    bool             `json:"consistent"`
	Discrepancies []DiscrepancyDTO `json:"discrepancies"`
	Error         string           `json:"error,omitempty"`
	NextRunAt     string           `json:"next_run_at,omitempty"` // empty when audits are not scheduled
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code"`
	Details string `json:"details,omitempty"`
}

// =============================================================================
// CONVERSIONS
// =============================================================================

func toOwnerDTO(o domain.Owner) OwnerDTO {
	return OwnerDTO{ID: o.ID, Name: o.Name}
}

func toCategoryDTO(c domain.BillCategory) CategoryDTO {
	return CategoryDTO{
		ID:              c.ID,
		Name:            c.Name,
		TransactionType: string(c.TransactionType),
		SortOrder:       c.SortOrder,
	}
}

func toPaymentMethodDTO(pm domain.PaymentMethod) PaymentMethodDTO {
	info := pm.Info()
	dto := PaymentMethodDTO{
		ID:              info.ID,
		Name:            info.Name,
		AccountType:     string(pm.AccountType()),
		TransactionType: string(info.TransactionType),
		OwnerID:         info.OwnerID,
		SortOrder:       info.SortOrder,
		OpeningBalance:  info.OpeningBalance,
	}
	switch m := pm.(type) {
	case domain.CreditCard:
		limit, outstanding, day := m.CreditLimit, m.OutstandingBalance, m.BillingDate
		dto.CreditLimit = &limit
		dto.OutstandingBalance = &outstanding
		if day > 0 {
			dto.BillingDate = &day
		}
	case domain.SavingsAccount:
		balance := m.Balance
		dto.Balance = &balance
	}
	return dto
}

func toBillDTO(b domain.Bill, categories map[uuid.UUID]domain.BillCategory) BillDTO {
	ids := b.CategoryIDs
	if ids == nil {
		ids = []uuid.UUID{}
	}
	return BillDTO{
		ID:              b.ID,
		Amount:          b.Amount,
		Type:            string(domain.EffectiveType(b, categories)),
		PaymentMethodID: b.PaymentMethodID,
		CategoryIDs:     ids,
		OwnerID:         b.OwnerID,
		Note:            b.Note,
		CreatedAt:       b.CreatedAt.Format(time.RFC3339Nano),
		UpdatedAt:       b.UpdatedAt.Format(time.RFC3339Nano),
		ExcludedFlow:    b.ExcludedFlow,
		BalanceApplied:  b.BalanceApplied,
	}
}

func toGroupingDTO(g stats.Grouping) map[string][]GroupTotalDTO {
	out := make(map[string][]GroupTotalDTO, len(g))
	for tt, totals := range g {
		dtos := make([]GroupTotalDTO, len(totals))
		for i, t := range totals {
			dtos[i] = GroupTotalDTO{Name: t.Name, Total: t.Total, Count: t.Count}
		}
		out[string(tt)] = dtos
	}
	return out
}

func toStatisticsDTO(s stats.Statistics) StatisticsDTO {
	return StatisticsDTO{
		TotalIncome:     s.TotalIncome,
		TotalExpense:    s.TotalExpense,
		Net:             s.Net(),
		BillCount:       s.BillCount,
		ByCategory:      toGroupingDTO(s.ByCategory),
		ByOwner:         toGroupingDTO(s.ByOwner),
		ByPaymentMethod: toGroupingDTO(s.ByPaymentMethod),
	}
}

func toImportResultDTO(r importexport.Result) ImportResultDTO {
	dto := ImportResultDTO{Imported: r.Imported, Skipped: r.Skipped, Failed: []RowErrorDTO{}}
	for _, f := range r.Failed {
		dto.Failed = append(dto.Failed, RowErrorDTO{Line: f.Line, Error: f.Err.Error()})
	}
	return dto
}

func toAuditReportDTO(r AuditReport) AuditReportDTO {
	dto := AuditReportDTO{
		RanAt:         r.RanAt.Format(time.RFC3339),
		Consistent:    r.Err == nil && len(r.Discrepancies) == 0,
		Discrepancies: []DiscrepancyDTO{},
	}
	if r.Err != nil {
		dto.Error = r.Err.Error()
	}
	for _, d := range r.Discrepancies {
		dto.Discrepancies = append(dto.Discrepancies, DiscrepancyDTO{
			PaymentMethodID: d.PaymentMethodID,
			Name:            d.Name,
			Expected:        d.Expected,
			Actual:          d.Actual,
			Difference:      d.Difference(),
			AppliedBills:    d.AppliedBills,
		})
	}
	return dto
}
