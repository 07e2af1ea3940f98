/*
handlers.go - HTTP API handlers for the salary engine

PURPOSE:
  Exposes invoice generation and the invoice lifecycle over REST.
  Handles HTTP request/response, JSON serialization, and delegates to
  the domain services. No business rule lives here.

ENDPOINTS:
  Generation:
    POST   /api/teacher-salary/admin/generate                   Batch generation for a month

  Invoice lifecycle:
    POST   /api/teacher-salary/admin/invoices/{id}/publish      draft -> published
    POST   /api/teacher-salary/admin/invoices/{id}/mark-paid    published -> paid
    DELETE /api/teacher-salary/admin/invoices/{id}              Archive (soft delete)

  Financial edits (draft/published only):
    POST   /api/teacher-salary/admin/invoices/{id}/bonuses
    POST   /api/teacher-salary/admin/invoices/{id}/extras
    POST   /api/teacher-salary/admin/invoices/{id}/overrides

  Refunds (paid only):
    POST   /api/invoices/{id}/refund

  Reads:
    GET    /api/teacher-salary/admin/invoices                   List (month/year/teacherId/status filters)
    GET    /api/teacher-salary/admin/invoices/{id}              Detail
    GET    /api/teacher-salary/admin/invoices/{id}/history      Change history

  Configuration:
    GET    /api/teacher-salary/admin/settings
    PUT    /api/teacher-salary/admin/settings/rate-partitions
    PUT    /api/teacher-salary/admin/settings/transfer-fee
    GET    /api/teacher-salary/admin/exchange-rates
    POST   /api/teacher-salary/admin/exchange-rates

  Teachers and sessions:
    GET    /api/teacher-salary/admin/teachers
    POST   /api/teacher-salary/admin/teachers
    GET    /api/teacher-salary/admin/teachers/{id}/class-sessions
    POST   /api/teacher-salary/admin/class-sessions

ERROR HANDLING:
  Domain errors map onto HTTP statuses through the billing package's
  classification helpers:
  - 400: invalid input or configuration
  - 404: missing invoice/teacher/rate
  - 409: status machine and immutability violations
  - 422: refund pairs rejected on their own figures
  - 500: everything else
  Every failure body is {"success": false, "message": "..."} with the
  business-rule text verbatim.

SECURITY NOTE:
  No authentication; identity arrives as an optional changedBy field
  and defaults to "admin". Auth is the gateway's job in this
  deployment.

SEE ALSO:
  - dto.go: request/response types and conversions
  - scenarios.go: demo scenario loaders
  - server.go: router and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/meridian/salary-engine/billing"
	"github.com/meridian/salary-engine/invoice"
	"github.com/meridian/salary-engine/logger"
	"github.com/meridian/salary-engine/settings"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// DataStore is everything the API needs from persistence: the full
// domain store plus the demo-scenario reset.
type DataStore interface {
	invoice.TxStore
	Reset(ctx context.Context) error
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store     DataStore
	Generator *invoice.Generator
	Invoices  *invoice.Service

	validate *validator.Validate
	log      zerolog.Logger

	// Track the currently loaded demo scenario
	currentScenario string
}

// NewHandler wires the domain services on top of the given store.
func NewHandler(store DataStore) *Handler {
	return &Handler{
		Store:     store,
		Generator: invoice.NewGenerator(store),
		Invoices:  invoice.NewService(store),
		validate:  newValidator(),
		log:       logger.WithComponent("api"),
	}
}

// newValidator builds the request validator. Decimal fields validate
// through their float value so numeric tags (gt, gte) apply to them.
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterCustomTypeFunc(func(field reflect.Value) interface{} {
		if d, ok := field.Interface().(decimal.Decimal); ok {
			f, _ := d.Float64()
			return f
		}
		return nil
	}, decimal.Decimal{})
	return v
}

// =============================================================================
// GENERATION
// =============================================================================

// GenerateInvoices runs batch generation for a month. Per-teacher
// failures land in the result's failed bucket; only batch-level
// preconditions (bad period, missing exchange rate, broken settings)
// fail the request itself.
func (h *Handler) GenerateInvoices(w http.ResponseWriter, r *http.Request) {
	var req GenerateRequest
	if err := h.decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	period, err := billing.NewPeriod(req.Month, req.Year)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	result, err := h.Generator.Run(r.Context(), period, req.TeacherIDs, actorOr(req.ChangedBy))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	if err := result.Err(); err != nil {
		h.log.Warn().Err(err).Str("period", period.String()).Msg("batch finished with failures")
	}

	writeJSON(w, http.StatusOK, GenerateResponse{Success: true, Results: toBatchResultDTO(result)})
}

// =============================================================================
// INVOICE LIFECYCLE
// =============================================================================

// PublishInvoice moves a draft to published.
func (h *Handler) PublishInvoice(w http.ResponseWriter, r *http.Request) {
	var req ActorRequest
	if err := h.decodeOptional(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	inv, err := h.Invoices.Publish(r.Context(), chi.URLParam(r, "id"), actorOr(req.ChangedBy))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, InvoiceResponse{Success: true, Invoice: toInvoiceDTO(inv)})
}

// MarkInvoicePaid records the payout of a published invoice.
func (h *Handler) MarkInvoicePaid(w http.ResponseWriter, r *http.Request) {
	var req MarkPaidRequest
	if err := h.decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	inv, err := h.Invoices.MarkPaid(r.Context(), chi.URLParam(r, "id"), invoice.MarkPaidInput{
		Method:   req.PaymentMethod,
		ProofURL: req.PaymentProofURL,
		Notes:    req.Notes,
		Actor:    actorOr(req.ChangedBy),
	})
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, InvoiceResponse{Success: true, Invoice: toInvoiceDTO(inv)})
}

// ArchiveInvoice soft-deletes an invoice and releases its sessions
// back into the unbilled pool.
func (h *Handler) ArchiveInvoice(w http.ResponseWriter, r *http.Request) {
	var req ActorRequest
	if err := h.decodeOptional(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	inv, err := h.Invoices.Archive(r.Context(), chi.URLParam(r, "id"), actorOr(req.ChangedBy))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, InvoiceResponse{Success: true, Invoice: toInvoiceDTO(inv)})
}

// =============================================================================
// FINANCIAL EDITS
// =============================================================================

// AddBonus credits a bonus on a draft or published invoice.
func (h *Handler) AddBonus(w http.ResponseWriter, r *http.Request) {
	var req BonusRequest
	if err := h.decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	amount, err := req.Amount()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	inv, err := h.Invoices.AddBonus(r.Context(), chi.URLParam(r, "id"), invoice.BonusInput{
		Source:     req.Source,
		AmountUSD:  amount,
		GuardianID: req.GuardianID,
		Reason:     req.Reason,
		Actor:      actorOr(req.ChangedBy),
	})
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, InvoiceResponse{Success: true, Invoice: toInvoiceDTO(inv)})
}

// AddExtra credits (positive) or debits (negative) an extra.
func (h *Handler) AddExtra(w http.ResponseWriter, r *http.Request) {
	var req ExtraRequest
	if err := h.decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.AmountUSD.IsZero() {
		writeError(w, http.StatusBadRequest, "amountUSD must be non-zero")
		return
	}

	inv, err := h.Invoices.AddExtra(r.Context(), chi.URLParam(r, "id"), invoice.ExtraInput{
		AmountUSD:   req.AmountUSD,
		Description: req.Description,
		Actor:       actorOr(req.ChangedBy),
	})
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, InvoiceResponse{Success: true, Invoice: toInvoiceDTO(inv)})
}

// ApplyOverrides writes whitelisted money fields directly.
func (h *Handler) ApplyOverrides(w http.ResponseWriter, r *http.Request) {
	var req OverridesRequest
	if err := h.decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	inv, err := h.Invoices.ApplyOverrides(r.Context(), chi.URLParam(r, "id"), invoice.OverridesInput{
		Fields: req.Overrides,
		Note:   req.Note,
		Actor:  actorOr(req.ChangedBy),
	})
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, InvoiceResponse{Success: true, Invoice: toInvoiceDTO(inv)})
}

// =============================================================================
// REFUNDS
// =============================================================================

// RefundInvoice claws hours back from a paid invoice. The amount and
// hours must agree within tolerance; disagreement returns 422 with the
// expected amount in the message.
func (h *Handler) RefundInvoice(w http.ResponseWriter, r *http.Request) {
	var req RefundRequest
	if err := h.decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	inv, err := h.Invoices.Refund(r.Context(), chi.URLParam(r, "id"), invoice.RefundInput{
		AmountEGP: req.RefundAmount,
		Hours:     req.RefundHours,
		Reason:    req.Reason,
		Reference: req.RefundReference,
		Actor:     actorOr(req.ChangedBy),
	})
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, InvoiceResponse{Success: true, Invoice: toInvoiceDTO(inv)})
}

// =============================================================================
// INVOICE READS
// =============================================================================

// ListInvoices returns invoices matching the query filters.
func (h *Handler) ListInvoices(w http.ResponseWriter, r *http.Request) {
	var f invoice.Filter
	q := r.URL.Query()

	if s := q.Get("month"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil {
			writeError(w, http.StatusBadRequest, "month must be a number")
			return
		}
		f.Month = n
	}
	if s := q.Get("year"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil {
			writeError(w, http.StatusBadRequest, "year must be a number")
			return
		}
		f.Year = n
	}
	f.TeacherID = q.Get("teacherId")
	if s := q.Get("status"); s != "" {
		status := billing.Status(s)
		if !status.Valid() {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown status %q", s))
			return
		}
		f.Status = status
	}

	invs, err := h.Invoices.List(r.Context(), f)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, InvoiceListResponse{Success: true, Invoices: toInvoiceDTOs(invs)})
}

// GetInvoice returns one fully assembled invoice.
func (h *Handler) GetInvoice(w http.ResponseWriter, r *http.Request) {
	inv, err := h.Invoices.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, InvoiceResponse{Success: true, Invoice: toInvoiceDTO(inv)})
}

// GetInvoiceHistory returns the append-only change log, oldest first.
func (h *Handler) GetInvoiceHistory(w http.ResponseWriter, r *http.Request) {
	changes, err := h.Invoices.History(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, HistoryResponse{Success: true, History: toChangeDTOs(changes)})
}

// =============================================================================
// SETTINGS
// =============================================================================

// GetSettings returns the current rate partitions and transfer fee,
// falling back to the defaults when nothing has been saved.
func (h *Handler) GetSettings(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	rawTiers, err := h.Store.GetSetting(ctx, settings.KeyRatePartitions)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	table, err := settings.ParseRatePartitions(rawTiers)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	rawFee, err := h.Store.GetSetting(ctx, settings.KeyTransferFee)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	fee, err := settings.ParseTransferFee(rawFee)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, SettingsResponse{Success: true, Settings: SettingsDTO{
		RatePartitions: settings.RowsFromTable(table),
		TransferFee:    settings.RowFromFee(fee),
	}})
}

// SaveRatePartitions replaces the hour-tier rate table. The table must
// pass full structural validation before it is stored; invoices
// generated earlier keep their snapshots.
func (h *Handler) SaveRatePartitions(w http.ResponseWriter, r *http.Request) {
	var req RatePartitionsRequest
	if err := h.decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	table, err := settings.TableFromRows(req.RatePartitions)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	raw, err := settings.EncodeRatePartitions(table)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	if err := h.Store.SaveSetting(r.Context(), settings.KeyRatePartitions, raw, actorOr(req.ChangedBy)); err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageResponse{Success: true, Message: "rate partitions saved"})
}

// SaveTransferFee replaces the transfer fee configuration.
func (h *Handler) SaveTransferFee(w http.ResponseWriter, r *http.Request) {
	var req TransferFeeRequest
	if err := h.decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	fee, err := settings.FeeFromRow(settings.TransferFeeJSON{Model: req.Model, Value: req.Value})
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	raw, err := settings.EncodeTransferFee(fee)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	if err := h.Store.SaveSetting(r.Context(), settings.KeyTransferFee, raw, actorOr(req.ChangedBy)); err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageResponse{Success: true, Message: "transfer fee saved"})
}

// =============================================================================
// EXCHANGE RATES
// =============================================================================

// ListExchangeRates returns all saved rates, newest period first.
func (h *Handler) ListExchangeRates(w http.ResponseWriter, r *http.Request) {
	rates, err := h.Store.ListExchangeRates(r.Context())
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	dtos := make([]ExchangeRateDTO, len(rates))
	for i, rate := range rates {
		dtos[i] = toRateDTO(rate)
	}
	writeJSON(w, http.StatusOK, RateListResponse{Success: true, Rates: dtos})
}

// SaveExchangeRate saves or overwrites the USD rate for one month.
func (h *Handler) SaveExchangeRate(w http.ResponseWriter, r *http.Request) {
	var req SaveRateRequest
	if err := h.decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	period, err := billing.NewPeriod(req.Month, req.Year)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	err = h.Store.SaveExchangeRate(r.Context(), invoice.ExchangeRate{
		Period: period,
		Rate:   req.Rate,
		Source: req.Source,
		Notes:  req.Notes,
	})
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageResponse{
		Success: true,
		Message: fmt.Sprintf("exchange rate saved for %s", period),
	})
}

// =============================================================================
// TEACHERS
// =============================================================================

// ListTeachers returns all teachers ordered by name.
func (h *Handler) ListTeachers(w http.ResponseWriter, r *http.Request) {
	teachers, err := h.Store.ListTeachers(r.Context())
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	dtos := make([]TeacherDTO, len(teachers))
	for i, t := range teachers {
		dtos[i] = toTeacherDTO(t)
	}
	writeJSON(w, http.StatusOK, TeacherListResponse{Success: true, Teachers: dtos})
}

// CreateTeacher registers a teacher. Omitted fields get defaults:
// generated ID, EGP payout, active.
func (h *Handler) CreateTeacher(w http.ResponseWriter, r *http.Request) {
	var req CreateTeacherRequest
	if err := h.decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	t := invoice.Teacher{
		ID:             req.ID,
		Name:           req.Name,
		Email:          req.Email,
		PayoutCurrency: billing.EGP,
		Active:         true,
		CreatedAt:      time.Now().UTC(),
	}
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if req.PayoutCurrency != "" {
		t.PayoutCurrency = billing.Currency(req.PayoutCurrency)
	}
	if req.Active != nil {
		t.Active = *req.Active
	}

	if err := h.Store.SaveTeacher(r.Context(), t); err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, TeacherResponse{Success: true, Teacher: toTeacherDTO(t)})
}

// GetTeacherSessions returns every session a teacher has reported.
func (h *Handler) GetTeacherSessions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")

	t, err := h.Store.GetTeacher(ctx, id)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	if t == nil {
		h.writeDomainError(w, fmt.Errorf("%w: %s", billing.ErrTeacherNotFound, id))
		return
	}

	sessions, err := h.Store.SessionsForTeacher(ctx, id)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, SessionListResponse{Success: true, Sessions: toSessionDTOs(sessions)})
}

// =============================================================================
// CLASS SESSIONS
// =============================================================================

// ReportSession records one taught class session. New sessions start
// unbilled; generation picks them up.
func (h *Handler) ReportSession(w http.ResponseWriter, r *http.Request) {
	var req ReportSessionRequest
	if err := h.decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx := r.Context()
	t, err := h.Store.GetTeacher(ctx, req.TeacherID)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	if t == nil {
		h.writeDomainError(w, fmt.Errorf("%w: %s", billing.ErrTeacherNotFound, req.TeacherID))
		return
	}

	occurred, err := time.Parse("2006-01-02", req.OccurredOn)
	if err != nil {
		writeError(w, http.StatusBadRequest, "occurredOn must be a YYYY-MM-DD date")
		return
	}

	now := time.Now().UTC()
	s := invoice.ClassSession{
		ID:          req.ID,
		TeacherID:   req.TeacherID,
		GuardianID:  req.GuardianID,
		StudentName: req.StudentName,
		OccurredOn:  occurred.UTC(),
		Hours:       req.Hours,
		Status:      invoice.SessionCompleted,
		ReportedAt:  now,
		CreatedAt:   now,
	}
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	if req.Status != "" {
		s.Status = invoice.SessionStatus(req.Status)
	}

	if err := h.Store.SaveSession(ctx, s); err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, SessionResponse{Success: true, Session: toSessionDTO(s)})
}

// =============================================================================
// ADMIN
// =============================================================================

// Health is the liveness probe.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ResetDatabase wipes every record. Demo/dev environments only.
func (h *Handler) ResetDatabase(w http.ResponseWriter, r *http.Request) {
	if err := h.Store.Reset(r.Context()); err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.currentScenario = ""
	writeJSON(w, http.StatusOK, MessageResponse{Success: true, Message: "database reset"})
}

// =============================================================================
// HELPERS
// =============================================================================

// decode reads and validates a JSON request body.
func (h *Handler) decode(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return h.validate.Struct(dst)
}

// decodeOptional tolerates an absent body for mutations whose body
// carries nothing but the acting admin.
func (h *Handler) decodeOptional(r *http.Request, dst any) error {
	err := json.NewDecoder(r.Body).Decode(dst)
	if err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

// actorOr defaults the acting admin when the request names nobody.
func actorOr(changedBy string) string {
	if changedBy == "" {
		return invoice.DefaultActor
	}
	return changedBy
}

// statusForError maps a domain error onto an HTTP status.
func statusForError(err error) int {
	switch {
	case billing.IsNotFound(err):
		return http.StatusNotFound
	case billing.IsConflict(err):
		return http.StatusConflict
	case billing.IsRefundRejection(err):
		return http.StatusUnprocessableEntity
	case billing.IsClientError(err):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// writeDomainError maps and writes a domain failure. Unexpected
// failures are logged; business rejections are the caller's problem.
func (h *Handler) writeDomainError(w http.ResponseWriter, err error) {
	status := statusForError(err)
	if status == http.StatusInternalServerError {
		h.log.Error().Err(err).Msg("request failed")
	}
	writeError(w, status, err.Error())
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, ErrorResponse{Success: false, Message: message})
}
