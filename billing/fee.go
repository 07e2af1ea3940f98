/*
fee.go - Transfer fee models and refund proration

PURPOSE:
  Paying a teacher costs money: a bank transfer fee comes out of the
  payout. Admins configure one fee model platform-wide; invoices
  snapshot it at generation time. When part of a paid invoice is
  refunded, the fee is prorated so the teacher is only charged for the
  share of the transfer that covered the refunded hours.

FEE MODELS:
  - flat: a fixed payout-currency amount per invoice
  - percentage: a percentage of the invoice subtotal
  - none: no fee

PRORATION:
  ratio = refundHours / feeCoverageHours, capped at 1.
  feeCoverageHours is the explicit coverage cap when one is set (> 0),
  otherwise the invoice's total hours. A zero coverage never divides:
  the ratio is 0 and no fee is returned with the refund.

SEE ALSO:
  - refund.go: validates refund requests using this proration
  - totals.go: applies the fee to invoice totals at generation
*/
package billing

import (
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	one     = decimal.NewFromInt(1)
	hundred = decimal.NewFromInt(100)
)

// =============================================================================
// FEE MODEL
// =============================================================================

// FeeModel selects how the transfer fee is computed.
type FeeModel string

const (
	FeeFlat       FeeModel = "flat"
	FeePercentage FeeModel = "percentage"
	FeeNone       FeeModel = "none"
)

// ParseFeeModel validates a wire/storage string.
func ParseFeeModel(s string) (FeeModel, error) {
	switch FeeModel(s) {
	case FeeFlat, FeePercentage, FeeNone:
		return FeeModel(s), nil
	default:
		return "", fmt.Errorf("unknown transfer fee model %q", s)
	}
}

// TransferFeeConfig is the admin-configured fee rule. Invoices carry a
// copy, so edits to the live config never change issued invoices.
type TransferFeeConfig struct {
	Model FeeModel
	Value decimal.Decimal
}

// Validate checks the config an admin is saving.
func (c TransferFeeConfig) Validate() error {
	if _, err := ParseFeeModel(string(c.Model)); err != nil {
		return err
	}
	if c.Value.IsNegative() {
		return fmt.Errorf("transfer fee value must not be negative")
	}
	if c.Model == FeePercentage && c.Value.GreaterThan(hundred) {
		return fmt.Errorf("transfer fee percentage must not exceed 100")
	}
	return nil
}

// ComputeFee returns the payout-currency fee for an invoice subtotal.
// Malformed values degrade to zero rather than producing negative fees.
func (c TransferFeeConfig) ComputeFee(subtotal decimal.Decimal) decimal.Decimal {
	switch c.Model {
	case FeeFlat:
		if c.Value.IsNegative() {
			return decimal.Zero
		}
		return Round2(c.Value)
	case FeePercentage:
		if c.Value.IsNegative() {
			return decimal.Zero
		}
		return Round2(subtotal.Mul(c.Value).Div(hundred))
	default:
		return decimal.Zero
	}
}

// =============================================================================
// PRORATION
// =============================================================================

// FeeCoverageHours returns the hour base the transfer fee is spread
// over: the explicit cap when one is set, otherwise the invoice's
// total hours.
func FeeCoverageHours(coverageCap, totalInvoiceHours decimal.Decimal) decimal.Decimal {
	if coverageCap.IsPositive() {
		return coverageCap
	}
	return totalInvoiceHours
}

// ProrateFee returns the share of totalFee attributable to refundHours
// out of feeCoverageHours. The ratio is clamped to [0, 1]; a
// non-positive coverage yields zero rather than a division error.
func ProrateFee(totalFee, refundHours, feeCoverageHours decimal.Decimal) decimal.Decimal {
	if !feeCoverageHours.IsPositive() {
		return decimal.Zero
	}
	ratio := refundHours.DivRound(feeCoverageHours, reverseScale)
	if ratio.GreaterThan(one) {
		ratio = one
	}
	if ratio.IsNegative() {
		ratio = decimal.Zero
	}
	return Round2(totalFee.Mul(ratio))
}

// AmountForHours returns the payout owed back for refunding the given
// hours: gross pay for those hours at the invoice's snapshot rate and
// exchange rate, minus the prorated transfer fee.
func AmountForHours(hours, rateUSD, rate, totalFee, feeCoverageHours decimal.Decimal) decimal.Decimal {
	_, gross := GrossForHours(hours, rateUSD, rate)
	fee := ProrateFee(totalFee, hours, feeCoverageHours)
	return Round2(gross.Sub(fee))
}

// NetPerHour returns the effective payout per tutoring hour net of the
// fee share each hour carries. Used to derive hours from an amount.
func NetPerHour(rateUSD, rate, totalFee, feeCoverageHours decimal.Decimal) decimal.Decimal {
	perHour := rateUSD.Mul(rate)
	if feeCoverageHours.IsPositive() {
		perHour = perHour.Sub(totalFee.DivRound(feeCoverageHours, reverseScale))
	}
	return perHour
}
