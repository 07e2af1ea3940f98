/*
dto.go - Data transfer objects for API requests and responses

PURPOSE:
  Defines the JSON structures of the admin API. These types decouple
  the internal domain model from the wire contract: field names stay
  stable for the dashboard even when internals move.

NAMING CONVENTION:
  - *DTO: response payload types
  - *Request: request body types
  - *Response: envelope wrappers

ENVELOPE:
  Every response carries {"success": bool, ...}. Mutations return the
  full updated invoice under "invoice"; batch generation returns the
  outcome buckets under "results"; failures return {"success": false,
  "message": "..."} with the business-rule text verbatim.

VALIDATION:
  Request structs carry validator/v10 tags. Decimal fields validate
  through a registered custom type func (see handlers.go); checks that
  tags cannot express (exactly-one-of, non-zero decimals) live next to
  the type as methods.

SEE ALSO:
  - handlers.go: decoding, validation, and envelope writing
  - settings/settings.go: the settings JSON row schemas reused here
*/
package api

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/meridian/salary-engine/billing"
	"github.com/meridian/salary-engine/invoice"
	"github.com/meridian/salary-engine/settings"
)

// =============================================================================
// INVOICE RESPONSES
// =============================================================================

// InvoiceDTO is the full invoice as the dashboard sees it. Money and
// hour fields render as decimal strings; timestamps as RFC3339.
type InvoiceDTO struct {
	ID               string                     `json:"id"`
	TeacherID        string                     `json:"teacherId"`
	Month            int                        `json:"month"`
	Year             int                        `json:"year"`
	Status           string                     `json:"status"`
	Currency         string                     `json:"currency"`
	ExchangeRate     decimal.Decimal            `json:"exchangeRate"`
	Tier             settings.RatePartitionJSON `json:"tier"`
	TransferFee      settings.TransferFeeJSON   `json:"transferFee"`
	TotalHours       decimal.Decimal            `json:"totalHours"`
	CoveredHours     decimal.Decimal            `json:"coveredHours"`
	GrossAmountUSD   decimal.Decimal            `json:"grossAmountUSD"`
	GrossAmountEGP   decimal.Decimal            `json:"grossAmountEGP"`
	BonusesUSD       decimal.Decimal            `json:"bonusesUSD"`
	BonusesEGP       decimal.Decimal            `json:"bonusesEGP"`
	ExtrasUSD        decimal.Decimal            `json:"extrasUSD"`
	ExtrasEGP        decimal.Decimal            `json:"extrasEGP"`
	TotalUSD         decimal.Decimal            `json:"totalUSD"`
	TotalEGP         decimal.Decimal            `json:"totalEGP"`
	TransferFeeEGP   decimal.Decimal            `json:"transferFeeEGP"`
	NetAmountEGP     decimal.Decimal            `json:"netAmountEGP"`
	Bonuses          []BonusDTO                 `json:"bonuses,omitempty"`
	Extras           []ExtraDTO                 `json:"extras,omitempty"`
	Refunds          []RefundDTO                `json:"refunds,omitempty"`
	SessionIDs       []string                   `json:"sessionIds,omitempty"`
	IsAdjustment     bool                       `json:"isAdjustment"`
	AdjustsInvoiceID string                     `json:"adjustsInvoiceId,omitempty"`
	PaymentMethod    string                     `json:"paymentMethod,omitempty"`
	PaymentProofURL  string                     `json:"paymentProofUrl,omitempty"`
	PaymentNotes     string                     `json:"paymentNotes,omitempty"`
	GeneratedBy      string                     `json:"generatedBy,omitempty"`
	PublishedAt      string                     `json:"publishedAt,omitempty"`
	PaidAt           string                     `json:"paidAt,omitempty"`
	ArchivedAt       string                     `json:"archivedAt,omitempty"`
	CreatedAt        string                     `json:"createdAt"`
	UpdatedAt        string                     `json:"updatedAt"`
	Version          int                        `json:"version"`
}

// BonusDTO is one bonus line on an invoice.
type BonusDTO struct {
	ID         string          `json:"id"`
	Source     string          `json:"source"`
	AmountUSD  decimal.Decimal `json:"amountUSD"`
	AmountEGP  decimal.Decimal `json:"amountEGP"`
	GuardianID string          `json:"guardianId,omitempty"`
	Reason     string          `json:"reason,omitempty"`
	CreatedBy  string          `json:"createdBy"`
	CreatedAt  string          `json:"createdAt"`
}

// ExtraDTO is one extra line; negative amounts are deductions.
type ExtraDTO struct {
	ID          string          `json:"id"`
	AmountUSD   decimal.Decimal `json:"amountUSD"`
	AmountEGP   decimal.Decimal `json:"amountEGP"`
	Description string          `json:"description"`
	CreatedBy   string          `json:"createdBy"`
	CreatedAt   string          `json:"createdAt"`
}

// RefundDTO is one refund clawed back from a paid invoice.
type RefundDTO struct {
	ID        string          `json:"id"`
	AmountEGP decimal.Decimal `json:"amountEGP"`
	Hours     decimal.Decimal `json:"hours"`
	Reason    string          `json:"reason"`
	Reference string          `json:"reference,omitempty"`
	CreatedBy string          `json:"createdBy"`
	CreatedAt string          `json:"createdAt"`
}

// ChangeDTO is one append-only history entry.
type ChangeDTO struct {
	Action    string `json:"action"`
	Field     string `json:"field,omitempty"`
	OldValue  string `json:"oldValue,omitempty"`
	NewValue  string `json:"newValue,omitempty"`
	ChangedBy string `json:"changedBy"`
	ChangedAt string `json:"changedAt"`
	Note      string `json:"note,omitempty"`
}

// BatchResultDTO summarizes one generation run. The buckets reuse the
// generator's wire-tagged outcome entries.
type BatchResultDTO struct {
	Month    int               `json:"month"`
	Year     int               `json:"year"`
	Created  []invoice.Outcome `json:"created"`
	Adjusted []invoice.Outcome `json:"adjusted"`
	Skipped  []invoice.Outcome `json:"skipped"`
	Failed   []invoice.Outcome `json:"failed"`
	Total    int               `json:"total"`
}

// TeacherDTO is a teacher as the dashboard sees one.
type TeacherDTO struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	Email          string `json:"email"`
	PayoutCurrency string `json:"payoutCurrency"`
	Active         bool   `json:"active"`
	CreatedAt      string `json:"createdAt,omitempty"`
}

// SessionDTO is one reported class session.
type SessionDTO struct {
	ID          string          `json:"id"`
	TeacherID   string          `json:"teacherId"`
	GuardianID  string          `json:"guardianId,omitempty"`
	StudentName string          `json:"studentName,omitempty"`
	OccurredOn  string          `json:"occurredOn"`
	Hours       decimal.Decimal `json:"hours"`
	Status      string          `json:"status"`
	InvoiceID   string          `json:"invoiceId,omitempty"`
	ReportedAt  string          `json:"reportedAt,omitempty"`
}

// ExchangeRateDTO is one saved monthly USD rate.
type ExchangeRateDTO struct {
	Month     int             `json:"month"`
	Year      int             `json:"year"`
	Rate      decimal.Decimal `json:"rate"`
	Source    string          `json:"source,omitempty"`
	Notes     string          `json:"notes,omitempty"`
	UpdatedAt string          `json:"updatedAt,omitempty"`
}

// SettingsDTO bundles the two billing settings documents.
type SettingsDTO struct {
	RatePartitions []settings.RatePartitionJSON `json:"ratePartitions"`
	TransferFee    settings.TransferFeeJSON     `json:"transferFee"`
}

// ScenarioDTO describes one demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// =============================================================================
// ENVELOPES
// =============================================================================

type InvoiceResponse struct {
	Success bool       `json:"success"`
	Invoice InvoiceDTO `json:"invoice"`
}

type InvoiceListResponse struct {
	Success  bool         `json:"success"`
	Invoices []InvoiceDTO `json:"invoices"`
}

type HistoryResponse struct {
	Success bool        `json:"success"`
	History []ChangeDTO `json:"history"`
}

type GenerateResponse struct {
	Success bool           `json:"success"`
	Results BatchResultDTO `json:"results"`
}

type MessageResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// ErrorResponse is the failure envelope; Message carries the
// business-rule text verbatim.
type ErrorResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type TeacherResponse struct {
	Success bool       `json:"success"`
	Teacher TeacherDTO `json:"teacher"`
}

type TeacherListResponse struct {
	Success  bool         `json:"success"`
	Teachers []TeacherDTO `json:"teachers"`
}

type SessionResponse struct {
	Success bool       `json:"success"`
	Session SessionDTO `json:"session"`
}

type SessionListResponse struct {
	Success  bool         `json:"success"`
	Sessions []SessionDTO `json:"sessions"`
}

type RateListResponse struct {
	Success bool              `json:"success"`
	Rates   []ExchangeRateDTO `json:"rates"`
}

type SettingsResponse struct {
	Success  bool        `json:"success"`
	Settings SettingsDTO `json:"settings"`
}

type ScenarioListResponse struct {
	Success   bool          `json:"success"`
	Scenarios []ScenarioDTO `json:"scenarios"`
}

type ScenarioResponse struct {
	Success  bool         `json:"success"`
	Scenario *ScenarioDTO `json:"scenario"`
}

// =============================================================================
// REQUEST TYPES
// =============================================================================

// GenerateRequest triggers batch generation for one month.
type GenerateRequest struct {
	Month      int      `json:"month" validate:"required,min=1,max=12"`
	Year       int      `json:"year" validate:"required,min=2015,max=2100"`
	TeacherIDs []string `json:"teacherIds,omitempty"`
	ChangedBy  string   `json:"changedBy,omitempty"`
}

// ActorRequest is the optional body of mutations that carry nothing
// but the acting admin (publish, archive).
type ActorRequest struct {
	ChangedBy string `json:"changedBy,omitempty"`
}

// MarkPaidRequest records how a published invoice was paid out.
type MarkPaidRequest struct {
	PaymentMethod   string `json:"paymentMethod" validate:"required"`
	PaymentProofURL string `json:"paymentProofUrl,omitempty" validate:"omitempty,url"`
	Notes           string `json:"notes,omitempty"`
	ChangedBy       string `json:"changedBy,omitempty"`
}

// BonusRequest credits a bonus. The two amount fields are aliases
// (different UI sources name the same figure differently); exactly one
// must be present.
type BonusRequest struct {
	Source         string           `json:"source" validate:"required"`
	AmountUSD      *decimal.Decimal `json:"amountUSD,omitempty"`
	GrossAmountUSD *decimal.Decimal `json:"grossAmountUSD,omitempty"`
	GuardianID     string           `json:"guardianId,omitempty"`
	Reason         string           `json:"reason,omitempty"`
	ChangedBy      string           `json:"changedBy,omitempty"`
}

// Amount returns the credited USD figure, requiring exactly one of the
// two alias fields.
func (r BonusRequest) Amount() (decimal.Decimal, error) {
	switch {
	case r.AmountUSD != nil && r.GrossAmountUSD != nil:
		return decimal.Zero, errors.New("provide exactly one of amountUSD and grossAmountUSD")
	case r.AmountUSD != nil:
		return *r.AmountUSD, nil
	case r.GrossAmountUSD != nil:
		return *r.GrossAmountUSD, nil
	default:
		return decimal.Zero, errors.New("provide exactly one of amountUSD and grossAmountUSD")
	}
}

// ExtraRequest credits or debits an extra.
type ExtraRequest struct {
	AmountUSD   decimal.Decimal `json:"amountUSD"`
	Description string          `json:"description" validate:"required"`
	ChangedBy   string          `json:"changedBy,omitempty"`
}

// OverridesRequest writes whitelisted invoice fields directly.
type OverridesRequest struct {
	Overrides map[string]decimal.Decimal `json:"overrides" validate:"required,min=1"`
	Note      string                     `json:"note,omitempty"`
	ChangedBy string                     `json:"changedBy,omitempty"`
}

// RefundRequest claws hours back from a paid invoice. Amount and hours
// must describe the same refund; the server checks the pair.
type RefundRequest struct {
	RefundAmount    decimal.Decimal `json:"refundAmount" validate:"gte=0"`
	RefundHours     decimal.Decimal `json:"refundHours" validate:"gte=0"`
	Reason          string          `json:"reason" validate:"required"`
	RefundReference string          `json:"refundReference,omitempty"`
	ChangedBy       string          `json:"changedBy,omitempty"`
}

// RatePartitionsRequest replaces the hour-tier rate table.
type RatePartitionsRequest struct {
	RatePartitions []settings.RatePartitionJSON `json:"ratePartitions" validate:"required,min=1,dive"`
	ChangedBy      string                       `json:"changedBy,omitempty"`
}

// TransferFeeRequest replaces the transfer fee configuration.
type TransferFeeRequest struct {
	Model     string  `json:"model" validate:"required,oneof=flat percentage none"`
	Value     float64 `json:"value" validate:"gte=0"`
	ChangedBy string  `json:"changedBy,omitempty"`
}

// SaveRateRequest saves the USD exchange rate for one month.
type SaveRateRequest struct {
	Month     int             `json:"month" validate:"required,min=1,max=12"`
	Year      int             `json:"year" validate:"required,min=2015,max=2100"`
	Rate      decimal.Decimal `json:"rate" validate:"gt=0"`
	Source    string          `json:"source,omitempty"`
	Notes     string          `json:"notes,omitempty"`
	ChangedBy string          `json:"changedBy,omitempty"`
}

// CreateTeacherRequest registers a teacher.
type CreateTeacherRequest struct {
	ID             string `json:"id,omitempty"`
	Name           string `json:"name" validate:"required"`
	Email          string `json:"email" validate:"required,email"`
	PayoutCurrency string `json:"payoutCurrency,omitempty" validate:"omitempty,oneof=EGP USD"`
	Active         *bool  `json:"active,omitempty"`
}

// ReportSessionRequest reports one taught class session.
type ReportSessionRequest struct {
	ID          string          `json:"id,omitempty"`
	TeacherID   string          `json:"teacherId" validate:"required"`
	GuardianID  string          `json:"guardianId,omitempty"`
	StudentName string          `json:"studentName,omitempty"`
	OccurredOn  string          `json:"occurredOn" validate:"required,datetime=2006-01-02"`
	Hours       decimal.Decimal `json:"hours" validate:"gt=0"`
	Status      string          `json:"status,omitempty" validate:"omitempty,oneof=completed canceled"`
}

// LoadScenarioRequest selects a demo scenario.
type LoadScenarioRequest struct {
	ScenarioID string `json:"scenarioId" validate:"required"`
}

// =============================================================================
// CONVERSION HELPERS
// =============================================================================

func toInvoiceDTO(inv *invoice.Invoice) InvoiceDTO {
	dto := InvoiceDTO{
		ID:               inv.ID,
		TeacherID:        inv.TeacherID,
		Month:            int(inv.Period.Month),
		Year:             inv.Period.Year,
		Status:           string(inv.Status),
		Currency:         string(inv.Currency),
		ExchangeRate:     inv.ExchangeRate,
		Tier:             toTierRow(inv.Tier),
		TransferFee:      settings.RowFromFee(inv.Fee),
		TotalHours:       inv.TotalHours,
		CoveredHours:     inv.CoveredHours,
		GrossAmountUSD:   inv.Totals.GrossUSD,
		GrossAmountEGP:   inv.Totals.GrossEGP,
		BonusesUSD:       inv.Totals.BonusesUSD,
		BonusesEGP:       inv.Totals.BonusesEGP,
		ExtrasUSD:        inv.Totals.ExtrasUSD,
		ExtrasEGP:        inv.Totals.ExtrasEGP,
		TotalUSD:         inv.Totals.TotalUSD,
		TotalEGP:         inv.Totals.TotalEGP,
		TransferFeeEGP:   inv.Totals.TransferFeeEGP,
		NetAmountEGP:     inv.Totals.NetEGP,
		SessionIDs:       inv.SessionIDs,
		IsAdjustment:     inv.IsAdjustment,
		AdjustsInvoiceID: inv.AdjustsInvoiceID,
		PaymentMethod:    inv.Payment.Method,
		PaymentProofURL:  inv.Payment.ProofURL,
		PaymentNotes:     inv.Payment.Notes,
		GeneratedBy:      inv.GeneratedBy,
		PublishedAt:      formatTimePtr(inv.PublishedAt),
		PaidAt:           formatTimePtr(inv.PaidAt),
		ArchivedAt:       formatTimePtr(inv.ArchivedAt),
		CreatedAt:        inv.CreatedAt.Format(time.RFC3339),
		UpdatedAt:        inv.UpdatedAt.Format(time.RFC3339),
		Version:          inv.Version,
	}
	for _, b := range inv.Bonuses {
		dto.Bonuses = append(dto.Bonuses, BonusDTO{
			ID:         b.ID,
			Source:     b.Source,
			AmountUSD:  b.AmountUSD,
			AmountEGP:  b.AmountEGP,
			GuardianID: b.GuardianID,
			Reason:     b.Reason,
			CreatedBy:  b.CreatedBy,
			CreatedAt:  b.CreatedAt.Format(time.RFC3339),
		})
	}
	for _, e := range inv.Extras {
		dto.Extras = append(dto.Extras, ExtraDTO{
			ID:          e.ID,
			AmountUSD:   e.AmountUSD,
			AmountEGP:   e.AmountEGP,
			Description: e.Description,
			CreatedBy:   e.CreatedBy,
			CreatedAt:   e.CreatedAt.Format(time.RFC3339),
		})
	}
	for _, rf := range inv.Refunds {
		dto.Refunds = append(dto.Refunds, RefundDTO{
			ID:        rf.ID,
			AmountEGP: rf.AmountEGP,
			Hours:     rf.Hours,
			Reason:    rf.Reason,
			Reference: rf.Reference,
			CreatedBy: rf.CreatedBy,
			CreatedAt: rf.CreatedAt.Format(time.RFC3339),
		})
	}
	return dto
}

func toInvoiceDTOs(invs []*invoice.Invoice) []InvoiceDTO {
	dtos := make([]InvoiceDTO, len(invs))
	for i, inv := range invs {
		dtos[i] = toInvoiceDTO(inv)
	}
	return dtos
}

func toChangeDTOs(changes []billing.ChangeEntry) []ChangeDTO {
	dtos := make([]ChangeDTO, len(changes))
	for i, c := range changes {
		dtos[i] = ChangeDTO{
			Action:    string(c.Action),
			Field:     c.Field,
			OldValue:  c.OldValue,
			NewValue:  c.NewValue,
			ChangedBy: c.ChangedBy,
			ChangedAt: c.ChangedAt.Format(time.RFC3339),
			Note:      c.Note,
		}
	}
	return dtos
}

func toBatchResultDTO(r *invoice.BatchResult) BatchResultDTO {
	return BatchResultDTO{
		Month:    int(r.Period.Month),
		Year:     r.Period.Year,
		Created:  emptyIfNil(r.Created),
		Adjusted: emptyIfNil(r.Adjusted),
		Skipped:  emptyIfNil(r.Skipped),
		Failed:   emptyIfNil(r.Failed),
		Total:    r.Total(),
	}
}

// emptyIfNil keeps the outcome buckets rendering as [] rather than
// null; the dashboard iterates them unconditionally.
func emptyIfNil(outcomes []invoice.Outcome) []invoice.Outcome {
	if outcomes == nil {
		return []invoice.Outcome{}
	}
	return outcomes
}

func toTeacherDTO(t invoice.Teacher) TeacherDTO {
	return TeacherDTO{
		ID:             t.ID,
		Name:           t.Name,
		Email:          t.Email,
		PayoutCurrency: string(t.PayoutCurrency),
		Active:         t.Active,
		CreatedAt:      t.CreatedAt.Format(time.RFC3339),
	}
}

func toSessionDTO(s invoice.ClassSession) SessionDTO {
	return SessionDTO{
		ID:          s.ID,
		TeacherID:   s.TeacherID,
		GuardianID:  s.GuardianID,
		StudentName: s.StudentName,
		OccurredOn:  s.OccurredOn.Format("2006-01-02"),
		Hours:       s.Hours,
		Status:      string(s.Status),
		InvoiceID:   s.InvoiceID,
		ReportedAt:  s.ReportedAt.Format(time.RFC3339),
	}
}

func toSessionDTOs(sessions []invoice.ClassSession) []SessionDTO {
	dtos := make([]SessionDTO, len(sessions))
	for i, s := range sessions {
		dtos[i] = toSessionDTO(s)
	}
	return dtos
}

func toRateDTO(r invoice.ExchangeRate) ExchangeRateDTO {
	return ExchangeRateDTO{
		Month:     int(r.Period.Month),
		Year:      r.Period.Year,
		Rate:      r.Rate,
		Source:    r.Source,
		Notes:     r.Notes,
		UpdatedAt: r.UpdatedAt.Format(time.RFC3339),
	}
}

func toTierRow(t billing.RateTier) settings.RatePartitionJSON {
	return settings.RatePartitionJSON{
		MinHours: t.MinHours.InexactFloat64(),
		MaxHours: t.MaxHours.InexactFloat64(),
		RateUSD:  t.RateUSD.InexactFloat64(),
	}
}

func formatTimePtr(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(time.RFC3339)
}
