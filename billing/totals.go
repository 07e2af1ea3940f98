/*
totals.go - Invoice totals accumulator

PURPOSE:
  An invoice's money boils down to ten figures: gross, bonuses, and
  extras in both currencies, the subtotal in both currencies, the
  transfer fee, and the net payout. Totals owns those figures and the
  arithmetic that keeps them consistent as bonuses, extras, and manual
  overrides land.

DERIVATION RULES:
  - totalUSD = grossUSD + bonusesUSD + extrasUSD
  - totalEGP = grossEGP + bonusesEGP + extrasEGP
  - netEGP   = totalEGP - transferFeeEGP
  - The fee itself is computed ONCE, at generation, from the snapshot
    config. Recompute() re-derives subtotals and net but never the
    fee; later bonuses ride on the original transfer.
  - Every stored figure is rounded to 2 decimal places. Payout-currency
    parts are each converted from their rounded USD counterpart, then
    summed, matching how the figures are listed on the invoice.

OVERRIDES:
  Admin overrides write whitelisted fields directly, no cascading
  recompute. Applying the same override payload twice therefore leaves
  the invoice identical, which keeps retried requests harmless.

SEE ALSO:
  - fee.go: fee computation and proration
  - changelog.go: every mutation appends an audit entry
*/
package billing

import "github.com/shopspring/decimal"

// Totals carries the ten money figures of an invoice. EGP-suffixed
// fields hold the teacher's payout currency; the name reflects the
// dominant case.
type Totals struct {
	GrossUSD       decimal.Decimal
	GrossEGP       decimal.Decimal
	BonusesUSD     decimal.Decimal
	BonusesEGP     decimal.Decimal
	ExtrasUSD      decimal.Decimal
	ExtrasEGP      decimal.Decimal
	TotalUSD       decimal.Decimal
	TotalEGP       decimal.Decimal
	TransferFeeEGP decimal.Decimal
	NetEGP         decimal.Decimal
}

// NewTotals builds the initial figures for an invoice: gross pay for
// the month's hours, no bonuses or extras yet, no fee yet.
func NewTotals(totalHours, rateUSD, rate decimal.Decimal) Totals {
	grossUSD, grossPayout := GrossForHours(totalHours, rateUSD, rate)
	t := Totals{GrossUSD: grossUSD, GrossEGP: grossPayout}
	t.Recompute()
	return t
}

// AddBonus credits a bonus in USD and its converted payout amount.
func (t *Totals) AddBonus(amountUSD, rate decimal.Decimal) {
	t.BonusesUSD = Round2(t.BonusesUSD.Add(amountUSD))
	t.BonusesEGP = Round2(t.BonusesEGP.Add(Convert(amountUSD, rate)))
	t.Recompute()
}

// AddExtra credits (or debits, for negative corrections) an extra.
func (t *Totals) AddExtra(amountUSD, rate decimal.Decimal) {
	t.ExtrasUSD = Round2(t.ExtrasUSD.Add(amountUSD))
	t.ExtrasEGP = Round2(t.ExtrasEGP.Add(Convert(amountUSD, rate)))
	t.Recompute()
}

// Recompute re-derives the subtotals and net from the component
// figures. The transfer fee is left untouched: it was computed once at
// generation and only overrides may change it.
func (t *Totals) Recompute() {
	t.TotalUSD = Round2(t.GrossUSD.Add(t.BonusesUSD).Add(t.ExtrasUSD))
	t.TotalEGP = Round2(t.GrossEGP.Add(t.BonusesEGP).Add(t.ExtrasEGP))
	t.NetEGP = Round2(t.TotalEGP.Sub(t.TransferFeeEGP))
}

// ApplyFee computes the transfer fee from the snapshot config against
// the current subtotal and re-derives the net. Called once, at
// generation (and again if a draft is regenerated).
func (t *Totals) ApplyFee(cfg TransferFeeConfig) {
	t.Recompute()
	t.TransferFeeEGP = cfg.ComputeFee(t.TotalEGP)
	t.NetEGP = Round2(t.TotalEGP.Sub(t.TransferFeeEGP))
}

// =============================================================================
// OVERRIDABLE FIELDS
// =============================================================================

// Wire names of the fields admins may override directly.
const (
	FieldGrossUSD       = "grossAmountUSD"
	FieldGrossEGP       = "grossAmountEGP"
	FieldBonusesUSD     = "bonusesUSD"
	FieldBonusesEGP     = "bonusesEGP"
	FieldExtrasUSD      = "extrasUSD"
	FieldExtrasEGP      = "extrasEGP"
	FieldTotalUSD       = "totalUSD"
	FieldTotalEGP       = "totalEGP"
	FieldTransferFeeEGP = "transferFeeEGP"
	FieldNetEGP         = "netAmountEGP"
)

// OverridableFields lists the whitelisted field names in the order
// overrides are applied and audited. Deterministic order keeps the
// change history stable for identical payloads.
func OverridableFields() []string {
	return []string{
		FieldGrossUSD,
		FieldGrossEGP,
		FieldBonusesUSD,
		FieldBonusesEGP,
		FieldExtrasUSD,
		FieldExtrasEGP,
		FieldTotalUSD,
		FieldTotalEGP,
		FieldTransferFeeEGP,
		FieldNetEGP,
	}
}

// Get reads an overridable field by wire name.
func (t *Totals) Get(field string) (decimal.Decimal, error) {
	ptr, err := t.fieldPtr(field)
	if err != nil {
		return decimal.Zero, err
	}
	return *ptr, nil
}

// Set writes an overridable field by wire name and returns the previous
// value for the audit trail. No other field is recomputed.
func (t *Totals) Set(field string, value decimal.Decimal) (decimal.Decimal, error) {
	ptr, err := t.fieldPtr(field)
	if err != nil {
		return decimal.Zero, err
	}
	old := *ptr
	*ptr = Round2(value)
	return old, nil
}

func (t *Totals) fieldPtr(field string) (*decimal.Decimal, error) {
	switch field {
	case FieldGrossUSD:
		return &t.GrossUSD, nil
	case FieldGrossEGP:
		return &t.GrossEGP, nil
	case FieldBonusesUSD:
		return &t.BonusesUSD, nil
	case FieldBonusesEGP:
		return &t.BonusesEGP, nil
	case FieldExtrasUSD:
		return &t.ExtrasUSD, nil
	case FieldExtrasEGP:
		return &t.ExtrasEGP, nil
	case FieldTotalUSD:
		return &t.TotalUSD, nil
	case FieldTotalEGP:
		return &t.TotalEGP, nil
	case FieldTransferFeeEGP:
		return &t.TransferFeeEGP, nil
	case FieldNetEGP:
		return &t.NetEGP, nil
	default:
		return nil, &OverrideFieldError{Field: field}
	}
}
