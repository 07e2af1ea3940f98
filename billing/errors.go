/*
errors.go - Centralized error types for the billing engine

PURPOSE:
  All billing error types in one place for consistency and
  discoverability. The API layer maps these onto HTTP statuses;
  nothing in this package knows about HTTP.

ERROR CATEGORIES:
  1. Not-found errors - missing teachers, invoices, rates
  2. Configuration errors - invalid rate partitions or fee settings
  3. Conflict errors - status machine and immutability violations
  4. Refund errors - amount/hour mismatches and coverage overruns

USAGE:
  Callers classify with the helpers rather than matching types:

    if billing.IsNotFound(err) { ... 404 ... }
    if billing.IsConflict(err) { ... 409 ... }

SEE ALSO:
  - status.go: raises InvalidTransitionError
  - refund.go: raises RefundMismatchError, CoverageExceededError
  - tiers.go: raises TierValidationError, NoTierError
*/
package billing

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrInvoiceNotFound is returned when a referenced invoice doesn't exist
	// or has been archived.
	ErrInvoiceNotFound = errors.New("invoice not found")

	// ErrTeacherNotFound is returned when a referenced teacher doesn't exist.
	ErrTeacherNotFound = errors.New("teacher not found")

	// ErrSessionNotFound is returned when a referenced class session doesn't exist.
	ErrSessionNotFound = errors.New("class session not found")

	// ErrRateNotFound is returned when no exchange rate is saved for a period.
	ErrRateNotFound = errors.New("exchange rate not found")

	// ErrEmptyTierTable is returned when no rate partitions are configured.
	ErrEmptyTierTable = errors.New("rate partition table is empty")

	// ErrInvalidPeriod is returned when a month/year pair is malformed.
	ErrInvalidPeriod = errors.New("invalid billing period")

	// ErrNegativeRefund is returned when refund hours or amount are negative.
	ErrNegativeRefund = errors.New("refund hours and amount must not be negative")

	// ErrDuplicateInvoice is returned when a second active invoice would be
	// created for the same teacher and period.
	ErrDuplicateInvoice = errors.New("an active invoice already exists for this teacher and period")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// TierValidationError reports a misconfigured rate partition.
type TierValidationError struct {
	Index  int
	Reason string
}

func (e *TierValidationError) Error() string {
	return fmt.Sprintf("rate partition %d invalid: %s", e.Index, e.Reason)
}

// NoTierError reports that no rate partition covers the given hours.
// With a contiguous table this only happens on negative input or a
// misconfigured table slipped past validation.
type NoTierError struct {
	Hours decimal.Decimal
}

func (e *NoTierError) Error() string {
	return fmt.Sprintf("no rate partition covers %s of tutoring", FormatHours(e.Hours))
}

// MissingExchangeRateError blocks invoice generation for a period with
// no saved USD exchange rate.
type MissingExchangeRateError struct {
	Period Period
}

func (e *MissingExchangeRateError) Error() string {
	return fmt.Sprintf("no exchange rate saved for %s: save one before generating invoices", e.Period)
}

func (e *MissingExchangeRateError) Unwrap() error {
	return ErrRateNotFound
}

// InvalidTransitionError reports a status machine violation.
type InvalidTransitionError struct {
	From    Status
	Trigger Trigger
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("cannot %s a %s invoice", e.Trigger.verb(), e.From)
}

// ImmutableInvoiceError reports a financial edit attempted on an
// invoice whose status no longer allows it.
type ImmutableInvoiceError struct {
	Status Status
}

func (e *ImmutableInvoiceError) Error() string {
	return fmt.Sprintf("invoice is %s: bonuses, extras and overrides are only allowed while draft or published", e.Status)
}

// RefundNotAllowedError reports a refund attempted on an unpaid invoice.
type RefundNotAllowedError struct {
	Status Status
}

func (e *RefundNotAllowedError) Error() string {
	return fmt.Sprintf("refunds apply to paid invoices only (invoice is %s)", e.Status)
}

// CoverageExceededError reports refund hours above what the invoice
// still covers.
type CoverageExceededError struct {
	RequestedHours decimal.Decimal
	CoverageHours  decimal.Decimal
}

func (e *CoverageExceededError) Error() string {
	return fmt.Sprintf("refund hours cannot exceed %s (requested %s)",
		FormatHours(e.CoverageHours), FormatHours(e.RequestedHours))
}

// RefundMismatchError reports an amount/hours pair that disagrees
// beyond tolerance. It echoes the expected amount so the caller can
// correct the input.
type RefundMismatchError struct {
	RequestedHours  decimal.Decimal
	RequestedAmount decimal.Decimal
	ExpectedAmount  decimal.Decimal
	Currency        Currency
}

func (e *RefundMismatchError) Error() string {
	return fmt.Sprintf("refund amount %s does not match %s of refunded time: expected %s",
		FormatAmount(e.RequestedAmount, e.Currency),
		FormatHours(e.RequestedHours),
		FormatAmount(e.ExpectedAmount, e.Currency))
}

// OverrideFieldError reports an override targeting a field that is not
// on the overridable whitelist.
type OverrideFieldError struct {
	Field string
}

func (e *OverrideFieldError) Error() string {
	return fmt.Sprintf("unknown override field %q", e.Field)
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsNotFound returns true if the error indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrInvoiceNotFound) ||
		errors.Is(err, ErrTeacherNotFound) ||
		errors.Is(err, ErrSessionNotFound) ||
		errors.Is(err, ErrRateNotFound)
}

// IsConflict returns true if the error indicates a state the caller
// cannot change with this request (wrong status, duplicate invoice).
func IsConflict(err error) bool {
	var transition *InvalidTransitionError
	var immutable *ImmutableInvoiceError
	var refundState *RefundNotAllowedError
	return errors.As(err, &transition) ||
		errors.As(err, &immutable) ||
		errors.As(err, &refundState) ||
		errors.Is(err, ErrDuplicateInvoice)
}

// IsRefundRejection returns true for refund requests rejected on their
// own figures rather than on invoice state.
func IsRefundRejection(err error) bool {
	var mismatch *RefundMismatchError
	var coverage *CoverageExceededError
	return errors.As(err, &mismatch) ||
		errors.As(err, &coverage) ||
		errors.Is(err, ErrNegativeRefund)
}

// IsClientError returns true if the error is due to invalid client
// input or configuration rather than a system failure.
func IsClientError(err error) bool {
	var tier *TierValidationError
	var noTier *NoTierError
	var field *OverrideFieldError
	return IsConflict(err) ||
		IsRefundRejection(err) ||
		errors.As(err, &tier) ||
		errors.As(err, &noTier) ||
		errors.As(err, &field) ||
		errors.Is(err, ErrEmptyTierTable) ||
		errors.Is(err, ErrInvalidPeriod) ||
		errors.Is(err, ErrRateNotFound)
}
