/*
currency.go - USD to payout-currency conversion

PURPOSE:
  Rates, bonuses, and extras are priced in USD; teachers are paid in
  their payout currency (EGP for almost everyone). Each billing month
  has exactly one admin-saved exchange rate, snapshotted onto invoices
  at generation time. This file holds the conversion arithmetic.

CONVERSION RULES:
  - Forward: payout = round2(usd * rate).
  - Gross for hours is derived in two steps, matching how the figures
    appear on an invoice: grossUSD = round2(hours * rateUSD), then
    grossEGP = round2(grossUSD * rate). Refund math reuses the same
    two steps so a full refund lands exactly on the invoice's gross.
  - Reverse (hours from a payout amount) divides by the net per-hour
    value and reports ok=false instead of dividing by zero or a
    negative.

SEE ALSO:
  - fee.go: net per-hour and fee proration
  - refund.go: uses both directions to validate refund requests
*/
package billing

import "github.com/shopspring/decimal"

// reverseScale is the intermediate precision used before final
// rounding when dividing.
const reverseScale = 8

// Convert converts a USD amount into the payout currency at the
// period's snapshot rate, rounded to the cent.
func Convert(amountUSD, rate decimal.Decimal) decimal.Decimal {
	return Round2(amountUSD.Mul(rate))
}

// GrossForHours returns the gross pay for tutoring hours in both
// currencies. The payout figure is derived from the rounded USD figure,
// not recomputed from raw hours, so the two never disagree on an
// invoice.
func GrossForHours(hours, rateUSD, rate decimal.Decimal) (grossUSD, grossPayout decimal.Decimal) {
	grossUSD = Round2(hours.Mul(rateUSD))
	grossPayout = Convert(grossUSD, rate)
	return grossUSD, grossPayout
}

// HoursForAmount derives tutoring hours from a payout amount given the
// net per-hour value. ok is false when the divisor is not positive;
// callers surface a validation message instead of a division panic.
func HoursForAmount(amount, netPerHour decimal.Decimal) (decimal.Decimal, bool) {
	if !netPerHour.IsPositive() {
		return decimal.Zero, false
	}
	return Round3(amount.DivRound(netPerHour, reverseScale)), true
}
