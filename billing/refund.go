/*
refund.go - Refund validation for paid invoices

PURPOSE:
  A guardian refund claws part of a paid invoice back from the teacher.
  The admin submits an amount AND an hour count; the two must describe
  the same thing. This file recomputes the amount that the requested
  hours are worth, at the invoice's snapshot rate, exchange rate, and
  prorated transfer fee, and accepts the pair only when they agree
  within tolerance.

TOLERANCE:
  Admin tools and server may round independently, so the comparison
  allows 1.5 cents of drift. The value is configurable per validator
  but callers almost always want the default.

NORMALIZATION:
  Accepted refunds are stored with the amount at 2 decimal places and
  the hours at 3, regardless of how much precision the request carried.

SEE ALSO:
  - fee.go: AmountForHours and NetPerHour used here
  - errors.go: CoverageExceededError, RefundMismatchError
*/
package billing

import "github.com/shopspring/decimal"

// DefaultToleranceCents is the permitted drift between the requested
// amount and the recomputed one, in cents of the payout currency.
const DefaultToleranceCents = 1.5

// Refund is a validated, normalized refund pair.
type Refund struct {
	AmountEGP decimal.Decimal // payout currency, 2 decimal places
	Hours     decimal.Decimal // 3 decimal places
}

// RefundValidator checks refund requests against the snapshots of the
// invoice being refunded. Zero-value ToleranceCents means the default;
// zero-value Currency means EGP (messages only).
type RefundValidator struct {
	RateUSD           decimal.Decimal
	ExchangeRate      decimal.Decimal
	TotalFeeEGP       decimal.Decimal
	CoverageHoursCap  decimal.Decimal // hours still refundable on the invoice
	TotalInvoiceHours decimal.Decimal
	ToleranceCents    decimal.Decimal
	Currency          Currency
}

// ExpectedAmount returns the payout owed back for refunding the given
// hours.
func (v RefundValidator) ExpectedAmount(hours decimal.Decimal) decimal.Decimal {
	coverage := FeeCoverageHours(v.CoverageHoursCap, v.TotalInvoiceHours)
	return AmountForHours(hours, v.RateUSD, v.ExchangeRate, v.TotalFeeEGP, coverage)
}

// ExpectedHours derives the hours a payout amount corresponds to.
// ok is false when the invoice's net per-hour value is not positive,
// in which case hours cannot be derived from an amount at all.
func (v RefundValidator) ExpectedHours(amount decimal.Decimal) (decimal.Decimal, bool) {
	coverage := FeeCoverageHours(v.CoverageHoursCap, v.TotalInvoiceHours)
	perHour := NetPerHour(v.RateUSD, v.ExchangeRate, v.TotalFeeEGP, coverage)
	return HoursForAmount(amount, perHour)
}

// Validate checks a requested hours/amount pair and returns the
// normalized refund, or an error describing exactly what disagreed.
func (v RefundValidator) Validate(requestedHours, requestedAmount decimal.Decimal) (Refund, error) {
	if requestedHours.IsNegative() || requestedAmount.IsNegative() {
		return Refund{}, ErrNegativeRefund
	}
	if requestedHours.GreaterThan(v.CoverageHoursCap) {
		return Refund{}, &CoverageExceededError{
			RequestedHours: requestedHours,
			CoverageHours:  v.CoverageHoursCap,
		}
	}
	expected := v.ExpectedAmount(requestedHours)
	if requestedAmount.Sub(expected).Abs().GreaterThan(v.tolerance()) {
		return Refund{}, &RefundMismatchError{
			RequestedHours:  requestedHours,
			RequestedAmount: requestedAmount,
			ExpectedAmount:  expected,
			Currency:        v.currency(),
		}
	}
	return Refund{
		AmountEGP: Round2(requestedAmount),
		Hours:     Round3(requestedHours),
	}, nil
}

// tolerance converts the configured cents into a payout amount.
func (v RefundValidator) tolerance() decimal.Decimal {
	cents := v.ToleranceCents
	if !cents.IsPositive() {
		cents = decimal.NewFromFloat(DefaultToleranceCents)
	}
	return cents.Div(hundred)
}

func (v RefundValidator) currency() Currency {
	if v.Currency == "" {
		return EGP
	}
	return v.Currency
}
