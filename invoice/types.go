/*
Package invoice implements teacher salary invoice generation and lifecycle.

PURPOSE:
  This package owns the domain records (teachers, class sessions,
  invoices, exchange rates) and the two services that mutate them: the
  monthly batch Generator and the per-invoice Service (publish, pay,
  bonuses, extras, overrides, refunds, archive). All money math is
  delegated to the billing package; all persistence goes through the
  Store interface.

KEY CONCEPTS IN THIS FILE (types.go):
  - Teacher: who gets paid, and in what currency
  - ClassSession: a billable tutoring hour record reported by ops
  - Invoice: one teacher-month payout with snapshots of every input
  - ExchangeRate: the admin-saved monthly USD conversion rate

SNAPSHOT RULE:
  An invoice captures the rate tier, exchange rate, and fee config in
  effect when it was generated. Later edits to settings or rates never
  change an existing invoice; only regeneration of a draft re-reads
  them.

SEE ALSO:
  - generate.go: batch generation and outcome buckets
  - mutate.go: the lifecycle mutations
  - store.go: persistence contracts
*/
package invoice

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/meridian/salary-engine/billing"
)

// =============================================================================
// TEACHER
// =============================================================================

// Teacher is a payee. PayoutCurrency defaults to EGP; USD amounts on
// invoices convert into it at the monthly snapshot rate.
type Teacher struct {
	ID             string
	Name           string
	Email          string
	PayoutCurrency billing.Currency
	Active         bool
	CreatedAt      time.Time
}

// =============================================================================
// CLASS SESSION
// =============================================================================

// SessionStatus marks whether a reported session is billable.
type SessionStatus string

const (
	SessionCompleted SessionStatus = "completed"
	SessionCanceled  SessionStatus = "canceled"
)

// ClassSession is one reported tutoring session. A session is unbilled
// until an invoice links it (InvoiceID set); archiving the invoice
// releases it for the next generation run.
type ClassSession struct {
	ID          string
	TeacherID   string
	GuardianID  string
	StudentName string
	OccurredOn  time.Time // when the class happened; decides its billing month
	Hours       decimal.Decimal
	Status      SessionStatus
	InvoiceID   string // empty while unbilled
	ReportedAt  time.Time
	CreatedAt   time.Time
}

// Billable reports whether the session should count toward an invoice.
func (s ClassSession) Billable() bool {
	return s.Status == SessionCompleted
}

// =============================================================================
// INVOICE
// =============================================================================

// Payment records how a paid invoice was settled.
type Payment struct {
	Method   string
	ProofURL string
	Notes    string
}

// Bonus is a per-guardian or platform bonus credited to an invoice.
type Bonus struct {
	ID         string
	InvoiceID  string
	Source     string
	AmountUSD  decimal.Decimal
	AmountEGP  decimal.Decimal
	GuardianID string
	Reason     string
	CreatedBy  string
	CreatedAt  time.Time
}

// Extra is a free-form credit or (negative) correction on an invoice.
type Extra struct {
	ID          string
	InvoiceID   string
	AmountUSD   decimal.Decimal
	AmountEGP   decimal.Decimal
	Description string
	CreatedBy   string
	CreatedAt   time.Time
}

// Refund is an accepted clawback against a paid invoice.
type Refund struct {
	ID        string
	InvoiceID string
	AmountEGP decimal.Decimal
	Hours     decimal.Decimal
	Reason    string
	Reference string
	CreatedBy string
	CreatedAt time.Time
}

// Invoice is one teacher-month payout. At most one non-adjustment,
// non-archived invoice exists per teacher and period; adjustment
// invoices (late classes after payment) reference the paid one they
// correct via AdjustsInvoiceID.
type Invoice struct {
	ID        string
	TeacherID string
	Period    billing.Period
	Status    billing.Status
	Currency  billing.Currency

	// Generation-time snapshots.
	ExchangeRate decimal.Decimal
	Tier         billing.RateTier
	Fee          billing.TransferFeeConfig

	TotalHours   decimal.Decimal
	CoveredHours decimal.Decimal // hours still refundable; shrinks per refund
	Totals       billing.Totals

	// Children, loaded with the invoice.
	Bonuses    []Bonus
	Extras     []Extra
	Refunds    []Refund
	Changes    []billing.ChangeEntry
	SessionIDs []string

	IsAdjustment     bool
	AdjustsInvoiceID string

	Payment     Payment
	GeneratedBy string
	PublishedAt *time.Time
	PaidAt      *time.Time
	ArchivedAt  *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
	Version     int
}

// RefundValidator builds the billing validator from this invoice's
// snapshots and remaining coverage.
func (inv *Invoice) RefundValidator() billing.RefundValidator {
	return billing.RefundValidator{
		RateUSD:           inv.Tier.RateUSD,
		ExchangeRate:      inv.ExchangeRate,
		TotalFeeEGP:       inv.Totals.TransferFeeEGP,
		CoverageHoursCap:  inv.CoveredHours,
		TotalInvoiceHours: inv.TotalHours,
		Currency:          inv.Currency,
	}
}

// =============================================================================
// EXCHANGE RATE
// =============================================================================

// ExchangeRate is the admin-saved USD conversion rate for one billing
// month. Exactly one row exists per period; saving again overwrites.
type ExchangeRate struct {
	Period    billing.Period
	Rate      decimal.Decimal
	Source    string
	Notes     string
	CreatedAt time.Time
	UpdatedAt time.Time
}
