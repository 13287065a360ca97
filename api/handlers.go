/*
handlers.go - HTTP API handlers for the bill ledger

PURPOSE:
  Exposes the ledger engine, statistics and import/export over REST. Handles
  HTTP request/response, JSON serialization, and delegates to domain logic.
  Every bill mutation and every balance change goes through ledger.Engine;
  reference data (owners, categories, payment method creation) is written
  straight to the repository.

ENDPOINTS:
  Owners:
    GET    /api/owners                          List owners
    POST   /api/owners                          Create owner
    PUT    /api/owners/{id}                     Rename owner
    DELETE /api/owners/{id}                     Delete owner (cascades to payment methods)

  Categories:
    GET    /api/categories                      List categories
    POST   /api/categories                      Create category
    PUT    /api/categories/{id}                 Edit category
    DELETE /api/categories/{id}                 Delete category

  Payment methods:
    GET    /api/payment-methods                 List payment methods
    POST   /api/payment-methods                 Open credit card or savings account
    GET    /api/payment-methods/{id}            Get payment method
    PUT    /api/payment-methods/{id}            Edit descriptive fields / credit limit
    PUT    /api/payment-methods/{id}/opening-balance
    DELETE /api/payment-methods/{id}            Delete payment method

  Bills:
    GET    /api/bills                           List bills (filterable, newest first)
    POST   /api/bills                           Create bill
    POST   /api/bills/excluded                  Create bill through the excluded flow
    GET    /api/bills/{id}                      Get bill
    PUT    /api/bills/{id}                      Replace bill
    DELETE /api/bills/{id}                      Delete bill

  Reporting:
    GET    /api/statistics                      Income / expense totals and groupings
    GET    /api/export.csv                      CSV export   (entitlement: data_export)
    GET    /api/export.xlsx                     Excel export (entitlement: data_export)
    POST   /api/import                          CSV import   (entitlement: csv_import)
    GET    /api/audit                           Last ledger audit report
    POST   /api/audit                           Run the ledger audit now

FILTER QUERY PARAMETERS (bills, statistics, exports):
  start, end             RFC3339 or YYYY-MM-DD (inclusive; a date-only end
                         covers the whole day)
  category_id            repeatable or comma separated
  owner_id               repeatable or comma separated
  payment_method_id      repeatable or comma separated

ERROR HANDLING:
  Errors are returned as {error, code, details} with:
  - 400: Malformed body, validation errors, zero amount, bad CSV header
  - 403: Feature not entitled
  - 404: Resource not found
  - 409: Credit limit exceeded, still referenced, duplicate, immutable field
  - 422: Missing reference, owner mismatch
  - 500: Persistence failure, rollback failure (code rollback_failed)

SECURITY NOTE:
  Currently NO authentication or authorization. All endpoints are public.

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
  - scheduler.go: Periodic audit
*/
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/warp/ledger-engine/domain"
	"github.com/warp/ledger-engine/entitlement"
	"github.com/warp/ledger-engine/importexport"
	"github.com/warp/ledger-engine/ledger"
	"github.com/warp/ledger-engine/stats"
)

// maxUploadSize bounds CSV imports.
const maxUploadSize = 10 << 20

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Engine       *ledger.Engine
	Stats        *stats.Service
	Importer     *importexport.Importer
	Exporter     *importexport.Exporter
	Entitlements entitlement.Checker
	Audit        *AuditScheduler

	// Location interprets date-only filter bounds.
	Location *time.Location

	validate *validator.Validate
	log      zerolog.Logger
}

// NewHandler creates a handler with UTC dates, every feature entitled and a
// disabled audit scheduler. Callers replace the fields they configure.
func NewHandler(engine *ledger.Engine, reader domain.SnapshotReader, log zerolog.Logger) *Handler {
	return &Handler{
		Engine:       engine,
		Stats:        stats.NewService(reader),
		Importer:     importexport.NewImporter(engine.Repository(), engine, time.UTC, log),
		Exporter:     importexport.NewExporter(time.UTC),
		Entitlements: entitlement.All{},
		Audit:        NewAuditScheduler(engine, 0, log),
		Location:     time.UTC,
		validate:     validator.New(validator.WithRequiredStructEnabled()),
		log:          log,
	}
}

func (h *Handler) repo() domain.Repository {
	return h.Engine.Repository()
}

// =============================================================================
// OWNER HANDLERS
// =============================================================================

// ListOwners returns all owners.
func (h *Handler) ListOwners(w http.ResponseWriter, r *http.Request) {
	owners, err := h.repo().FetchOwners(r.Context())
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	dtos := make([]OwnerDTO, len(owners))
	for i, o := range owners {
		dtos[i] = toOwnerDTO(o)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateOwner creates a new owner.
func (h *Handler) CreateOwner(w http.ResponseWriter, r *http.Request) {
	var req OwnerRequest
	if !h.decode(w, r, &req) {
		return
	}
	owner := domain.Owner{ID: uuid.New(), Name: strings.TrimSpace(req.Name)}
	if err := h.repo().SaveOwner(r.Context(), owner); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toOwnerDTO(owner))
}

// UpdateOwner renames an owner.
func (h *Handler) UpdateOwner(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req OwnerRequest
	if !h.decode(w, r, &req) {
		return
	}
	owner := domain.Owner{ID: id, Name: strings.TrimSpace(req.Name)}
	if err := h.repo().UpdateOwner(r.Context(), owner); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOwnerDTO(owner))
}

// DeleteOwner deletes an owner and, through the cascade, its payment methods.
func (h *Handler) DeleteOwner(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := h.repo().DeleteOwner(r.Context(), id); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// CATEGORY HANDLERS
// =============================================================================

// ListCategories returns all categories in insertion order.
func (h *Handler) ListCategories(w http.ResponseWriter, r *http.Request) {
	cats, err := h.repo().FetchCategories(r.Context())
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	dtos := make([]CategoryDTO, len(cats))
	for i, c := range cats {
		dtos[i] = toCategoryDTO(c)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateCategory creates a new category.
func (h *Handler) CreateCategory(w http.ResponseWriter, r *http.Request) {
	var req CategoryRequest
	if !h.decode(w, r, &req) {
		return
	}
	cat := domain.BillCategory{
		ID:              uuid.New(),
		Name:            strings.TrimSpace(req.Name),
		TransactionType: domain.TransactionType(req.TransactionType),
		SortOrder:       req.SortOrder,
	}
	if err := h.repo().SaveCategory(r.Context(), cat); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toCategoryDTO(cat))
}

// UpdateCategory edits a category. Changing the transaction type only
// affects statistics; no balance moves.
func (h *Handler) UpdateCategory(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req CategoryRequest
	if !h.decode(w, r, &req) {
		return
	}
	cat := domain.BillCategory{
		ID:              id,
		Name:            strings.TrimSpace(req.Name),
		TransactionType: domain.TransactionType(req.TransactionType),
		SortOrder:       req.SortOrder,
	}
	if err := h.repo().UpdateCategory(r.Context(), cat); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCategoryDTO(cat))
}

// DeleteCategory deletes a category no bill uses.
func (h *Handler) DeleteCategory(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := h.repo().DeleteCategory(r.Context(), id); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// PAYMENT METHOD HANDLERS
// =============================================================================

// ListPaymentMethods returns all payment methods.
func (h *Handler) ListPaymentMethods(w http.ResponseWriter, r *http.Request) {
	methods, err := h.repo().FetchPaymentMethods(r.Context())
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	dtos := make([]PaymentMethodDTO, len(methods))
	for i, pm := range methods {
		dtos[i] = toPaymentMethodDTO(pm)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetPaymentMethod returns a single payment method.
func (h *Handler) GetPaymentMethod(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	pm, err := h.repo().FetchPaymentMethod(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	if pm == nil {
		h.writeDomainError(w, r, domain.ErrNotFound)
		return
	}
	writeJSON(w, http.StatusOK, toPaymentMethodDTO(pm))
}

// CreatePaymentMethod opens a credit card or savings account.
func (h *Handler) CreatePaymentMethod(w http.ResponseWriter, r *http.Request) {
	var req CreatePaymentMethodRequest
	if !h.decode(w, r, &req) {
		return
	}

	info := domain.PaymentMethodInfo{
		ID:              uuid.New(),
		Name:            strings.TrimSpace(req.Name),
		TransactionType: domain.TransactionType(req.TransactionType),
		OwnerID:         req.OwnerID,
		SortOrder:       req.SortOrder,
	}

	var pm domain.PaymentMethod
	switch domain.AccountType(req.AccountType) {
	case domain.AccountCredit:
		if req.OpeningBalance.GreaterThan(*req.CreditLimit) {
			h.writeDomainError(w, r, &domain.CreditLimitExceededError{
				PaymentMethodID: info.ID,
				CreditLimit:     *req.CreditLimit,
				Attempted:       req.OpeningBalance,
			})
			return
		}
		pm = domain.NewCreditCard(info, *req.CreditLimit, req.OpeningBalance, req.BillingDate)
	default:
		if !checkSavingsOpening(w, req.OpeningBalance) {
			return
		}
		pm = domain.NewSavingsAccount(info, req.OpeningBalance)
	}

	if err := h.repo().SavePaymentMethod(r.Context(), pm); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toPaymentMethodDTO(pm))
}

// UpdatePaymentMethod edits name, type, sort order, credit limit and
// billing date. Balances are kept as stored.
func (h *Handler) UpdatePaymentMethod(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req UpdatePaymentMethodRequest
	if !h.decode(w, r, &req) {
		return
	}

	current, err := h.repo().FetchPaymentMethod(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	if current == nil {
		h.writeDomainError(w, r, domain.ErrNotFound)
		return
	}

	info := current.Info()
	info.Name = strings.TrimSpace(req.Name)
	info.TransactionType = domain.TransactionType(req.TransactionType)
	info.SortOrder = req.SortOrder

	var edit domain.PaymentMethod
	switch m := current.(type) {
	case domain.CreditCard:
		m.PaymentMethodInfo = info
		if req.CreditLimit != nil {
			m.CreditLimit = *req.CreditLimit
		}
		m.BillingDate = req.BillingDate
		edit = m
	case domain.SavingsAccount:
		m.PaymentMethodInfo = info
		edit = m
	default:
		h.writeDomainError(w, r, fmt.Errorf("%w: %T", domain.ErrUnknownAccountType, current))
		return
	}

	updated, err := h.Engine.UpdatePaymentMethodDetails(r.Context(), edit)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toPaymentMethodDTO(updated))
}

// SetOpeningBalance moves the opening balance; the running total shifts by
// the same difference.
func (h *Handler) SetOpeningBalance(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req SetOpeningBalanceRequest
	if !h.decode(w, r, &req) {
		return
	}
	current, err := h.repo().FetchPaymentMethod(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	if _, ok := current.(domain.SavingsAccount); ok && !checkSavingsOpening(w, req.OpeningBalance) {
		return
	}
	pm, err := h.Engine.SetOpeningBalance(r.Context(), id, req.OpeningBalance)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toPaymentMethodDTO(pm))
}

// checkSavingsOpening rejects a negative savings opening balance. Bills may
// still overdraw the account afterwards.
func checkSavingsOpening(w http.ResponseWriter, opening decimal.Decimal) bool {
	if opening.IsNegative() {
		writeError(w, http.StatusBadRequest, "validation_failed", "Validation failed",
			errors.New("opening_balance must not be negative for a savings account"))
		return false
	}
	return true
}

// DeletePaymentMethod deletes a payment method no bill uses.
func (h *Handler) DeletePaymentMethod(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := h.repo().DeletePaymentMethod(r.Context(), id); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// BILL HANDLERS
// =============================================================================

// ListBills returns the bills matching the filter, newest first.
func (h *Handler) ListBills(w http.ResponseWriter, r *http.Request) {
	filter, err := h.parseFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_filter", "Invalid filter", err)
		return
	}
	snap, err := ledger.LoadSnapshot(r.Context(), h.repo())
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	snap = filter.Apply(snap)

	idx := snap.CategoryIndex()
	dtos := make([]BillDTO, len(snap.Bills))
	for i, b := range snap.Bills {
		dtos[i] = toBillDTO(b, idx)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetBill returns a single bill.
func (h *Handler) GetBill(w http.ResponseWriter, r *http.Request) {
	bill, ok := h.loadBill(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, h.billDTO(r.Context(), bill))
}

// CreateBill records a bill and applies its amount to the payment method.
func (h *Handler) CreateBill(w http.ResponseWriter, r *http.Request) {
	h.createBill(w, r, h.Engine.CreateBill)
}

// CreateExcludedBill records a bill through the excluded flow: the amount
// always moves the payment method, whatever its transaction type.
func (h *Handler) CreateExcludedBill(w http.ResponseWriter, r *http.Request) {
	h.createBill(w, r, h.Engine.CreateExcludedBill)
}

func (h *Handler) createBill(w http.ResponseWriter, r *http.Request, create func(context.Context, ledger.BillInput) (domain.Bill, error)) {
	var req BillRequest
	if !h.decode(w, r, &req) {
		return
	}
	bill, err := create(r.Context(), req.input())
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, h.billDTO(r.Context(), bill))
}

// UpdateBill replaces every caller-controlled field of a bill. The old
// amount is reversed and the new one applied in one step.
func (h *Handler) UpdateBill(w http.ResponseWriter, r *http.Request) {
	existing, ok := h.loadBill(w, r)
	if !ok {
		return
	}
	var req BillRequest
	if !h.decode(w, r, &req) {
		return
	}
	updated, err := h.Engine.UpdateBill(r.Context(), existing, req.input())
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.billDTO(r.Context(), updated))
}

// DeleteBill removes a bill and reverses its amount.
func (h *Handler) DeleteBill(w http.ResponseWriter, r *http.Request) {
	bill, ok := h.loadBill(w, r)
	if !ok {
		return
	}
	if err := h.Engine.DeleteBill(r.Context(), bill); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) loadBill(w http.ResponseWriter, r *http.Request) (domain.Bill, bool) {
	id, ok := pathID(w, r)
	if !ok {
		return domain.Bill{}, false
	}
	bill, err := h.repo().FetchBill(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, r, err)
		return domain.Bill{}, false
	}
	if bill == nil {
		h.writeDomainError(w, r, &domain.MissingReferenceError{Kind: domain.KindBill, ID: id})
		return domain.Bill{}, false
	}
	return *bill, true
}

// billDTO resolves the effective type. A failed category lookup only costs
// the label, so it falls back to the sign.
func (h *Handler) billDTO(ctx context.Context, b domain.Bill) BillDTO {
	idx := make(map[uuid.UUID]domain.BillCategory, len(b.CategoryIDs))
	for _, id := range b.CategoryIDs {
		c, err := h.repo().FetchCategory(ctx, id)
		if err != nil {
			h.log.Warn().Err(err).Str("category_id", id.String()).Msg("category lookup failed")
			continue
		}
		if c != nil {
			idx[id] = *c
		}
	}
	return toBillDTO(b, idx)
}

// =============================================================================
// STATISTICS
// =============================================================================

// GetStatistics aggregates the bills matching the filter.
func (h *Handler) GetStatistics(w http.ResponseWriter, r *http.Request) {
	filter, err := h.parseFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_filter", "Invalid filter", err)
		return
	}
	result, err := h.Stats.Calculate(r.Context(), filter)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toStatisticsDTO(result))
}

// =============================================================================
// IMPORT / EXPORT
// =============================================================================

// ExportCSV streams the filtered bills in the CSV interchange format.
func (h *Handler) ExportCSV(w http.ResponseWriter, r *http.Request) {
	h.export(w, r, "csv", "text/csv; charset=utf-8", h.Exporter.WriteCSV)
}

// ExportXLSX streams the filtered bills as an Excel workbook.
func (h *Handler) ExportXLSX(w http.ResponseWriter, r *http.Request) {
	h.export(w, r, "xlsx", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", h.Exporter.WriteXLSX)
}

func (h *Handler) export(w http.ResponseWriter, r *http.Request, ext, contentType string, write func(io.Writer, domain.Snapshot) error) {
	if !h.requireFeature(w, entitlement.FeatureDataExport) {
		return
	}
	filter, err := h.parseFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_filter", "Invalid filter", err)
		return
	}
	snap, err := ledger.LoadSnapshot(r.Context(), h.repo())
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	snap = filter.Apply(snap)

	// Render fully before writing headers so a failure can still become JSON
	var buf bytes.Buffer
	if err := write(&buf, snap); err != nil {
		h.writeDomainError(w, r, fmt.Errorf("render %s: %w", ext, err))
		return
	}

	filename := fmt.Sprintf("bills-%s.%s", time.Now().In(h.Location).Format("20060102-150405"), ext)
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": filename}))
	w.WriteHeader(http.StatusOK)
	if _, err := buf.WriteTo(w); err != nil {
		h.log.Warn().Err(err).Msg("export write interrupted")
	}
}

// ImportCSV imports bills from a CSV file, sent either as the "file" field
// of a multipart form or as the raw request body.
func (h *Handler) ImportCSV(w http.ResponseWriter, r *http.Request) {
	if !h.requireFeature(w, entitlement.FeatureCSVImport) {
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)

	var src io.Reader = r.Body
	if mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type")); mediaType == "multipart/form-data" {
		file, _, err := r.FormFile("file")
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_upload", "Missing file field", err)
			return
		}
		defer file.Close()
		src = file
	}

	result, err := h.Importer.ImportCSV(r.Context(), src)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toImportResultDTO(result))
}

func (h *Handler) requireFeature(w http.ResponseWriter, f entitlement.Feature) bool {
	if h.Entitlements != nil && h.Entitlements.IsEntitled(f) {
		return true
	}
	writeError(w, http.StatusForbidden, "not_entitled", "Feature not available", fmt.Errorf("feature %s", f))
	return false
}

// =============================================================================
// AUDIT
// =============================================================================

// GetAudit returns the last audit report, running one when none exists yet.
func (h *Handler) GetAudit(w http.ResponseWriter, r *http.Request) {
	report, ok := h.Audit.Last()
	if !ok {
		report = h.Audit.RunNow(r.Context())
	}
	writeJSON(w, http.StatusOK, h.auditDTO(report))
}

// RunAudit audits the ledger now.
func (h *Handler) RunAudit(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.auditDTO(h.Audit.RunNow(r.Context())))
}

func (h *Handler) auditDTO(report AuditReport) AuditReportDTO {
	dto := toAuditReportDTO(report)
	if next := h.Audit.NextRunTime(); !next.IsZero() {
		dto.NextRunAt = next.Format(time.RFC3339)
	}
	return dto
}

// Health reports liveness.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// REQUEST HELPERS
// =============================================================================

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "Invalid request body", err)
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", "Validation failed", err)
		return false
	}
	return true
}

func pathID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_id", "Invalid id", err)
		return uuid.Nil, false
	}
	return id, true
}

// parseFilter reads the filter query parameters.
func (h *Handler) parseFilter(r *http.Request) (stats.Filter, error) {
	q := r.URL.Query()
	var (
		f   stats.Filter
		err error
	)
	if f.CategoryIDs, err = parseIDs(q["category_id"]); err != nil {
		return f, fmt.Errorf("category_id: %w", err)
	}
	if f.OwnerIDs, err = parseIDs(q["owner_id"]); err != nil {
		return f, fmt.Errorf("owner_id: %w", err)
	}
	if f.PaymentMethodIDs, err = parseIDs(q["payment_method_id"]); err != nil {
		return f, fmt.Errorf("payment_method_id: %w", err)
	}

	start, err := h.parseBound(q.Get("start"), false)
	if err != nil {
		return f, fmt.Errorf("start: %w", err)
	}
	end, err := h.parseBound(q.Get("end"), true)
	if err != nil {
		return f, fmt.Errorf("end: %w", err)
	}
	if !start.IsZero() || !end.IsZero() {
		if !start.IsZero() && !end.IsZero() && end.Before(start) {
			return f, errors.New("end is before start")
		}
		f.Range = &stats.DateRange{Start: start, End: end}
	}
	return f, nil
}

// parseBound accepts RFC3339 or a date. A date-only end bound covers the
// whole day.
func (h *Handler) parseBound(s string, end bool) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	day, err := time.ParseInLocation("2006-01-02", s, h.Location)
	if err != nil {
		return time.Time{}, fmt.Errorf("want RFC3339 or YYYY-MM-DD, got %q", s)
	}
	if end {
		return day.AddDate(0, 0, 1).Add(-time.Nanosecond), nil
	}
	return day, nil
}

func parseIDs(values []string) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part == "" {
				continue
			}
			id, err := uuid.Parse(part)
			if err != nil {
				return nil, err
			}
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// =============================================================================
// RESPONSE HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code, message string, err error) {
	resp := ErrorResponse{Error: message, Code: code}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeDomainError maps the ledger error taxonomy onto HTTP.
func (h *Handler) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	status, code, message := classify(err)
	if status >= http.StatusInternalServerError {
		h.log.Error().Err(err).
			Str("code", code).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg(message)
	}
	writeError(w, status, code, message, err)
}

// classify checks rollback and persistence first: both wrap their cause,
// which may itself look like a client error.
func classify(err error) (status int, code, message string) {
	switch {
	case errors.Is(err, domain.ErrRollbackFailed):
		return http.StatusInternalServerError, "rollback_failed", "Rollback failed, ledger needs an audit"
	case errors.Is(err, domain.ErrPersistence):
		return http.StatusInternalServerError, "persistence_failure", "Storage failure, nothing was changed"
	case errors.Is(err, domain.ErrInvalidAmount):
		return http.StatusBadRequest, "invalid_amount", "Amount must be nonzero"
	case errors.Is(err, importexport.ErrBadHeader):
		return http.StatusBadRequest, "bad_header", "Unexpected CSV header"
	case errors.Is(err, domain.ErrUnknownAccountType):
		return http.StatusBadRequest, "unknown_account_type", "Unknown account type"
	case errors.Is(err, domain.ErrMissingBill), errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, "not_found", "Not found"
	case errors.Is(err, domain.ErrMissingPaymentMethod),
		errors.Is(err, domain.ErrMissingCategory),
		errors.Is(err, domain.ErrMissingOwner),
		errors.Is(err, domain.ErrDanglingReference):
		return http.StatusUnprocessableEntity, "missing_reference", "Referenced record does not exist"
	case errors.Is(err, domain.ErrOwnerMismatch):
		return http.StatusUnprocessableEntity, "owner_mismatch", "Bill owner differs from payment method owner"
	case errors.Is(err, domain.ErrCreditLimitExceeded):
		return http.StatusConflict, "credit_limit_exceeded", "Credit limit exceeded"
	case errors.Is(err, domain.ErrStillReferenced):
		return http.StatusConflict, "still_referenced", "Record is still used by bills"
	case errors.Is(err, domain.ErrImmutableField):
		return http.StatusConflict, "immutable_field", "Field cannot be changed"
	case errors.Is(err, domain.ErrAlreadyExists):
		return http.StatusConflict, "already_exists", "Record already exists"
	default:
		return http.StatusInternalServerError, "internal_error", "Internal error"
	}
}
