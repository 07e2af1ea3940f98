/*
Package billing provides the core salary calculation engine.

PURPOSE:
  This package contains the pure calculation rules for teacher payouts:
  hour-tiered rate resolution, USD-to-payout-currency conversion, transfer
  fee computation and proration, invoice totals accumulation, the invoice
  status machine, and refund validation. Everything here is deterministic
  and storage-free; persistence and HTTP live elsewhere.

KEY CONCEPTS IN THIS FILE (money.go):
  - Currency: ISO-4217 payout currency codes and display symbols
  - Round2/Round3: the rounding conventions for money and hours
  - FormatAmount: human-readable amounts for error messages and logs

DESIGN PRINCIPLES:
  1. Precision: All arithmetic uses decimal.Decimal. Floats exist only
     at the JSON boundary.
  2. One rounding rule: money rounds to 2 decimal places, hours to 3.
     decimal.Round rounds half away from zero, which for the
     non-negative quantities handled here is round-half-up.
  3. Snapshots over lookups: invoices capture the rate tier, exchange
     rate, and fee config at generation time so later config edits
     never alter issued invoices.

SEE ALSO:
  - tiers.go: hour-tiered rate resolution
  - currency.go: USD -> payout conversions
  - totals.go: invoice accumulator
  - refund.go: refund amount/hour validation
*/
package billing

import (
	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// =============================================================================
// CURRENCY
// =============================================================================

// Currency is an ISO-4217 code for a payout currency.
type Currency string

const (
	USD Currency = "USD"
	EGP Currency = "EGP"
	EUR Currency = "EUR"
	GBP Currency = "GBP"
)

// Currencies lists the payout currencies teachers can settle in.
// USD is always the pricing currency; the rest are settlement targets.
var Currencies = []Currency{USD, EGP, EUR, GBP}

// Symbol returns the display symbol for the currency, or the empty
// string for unknown codes.
func (c Currency) Symbol() string {
	switch c {
	case USD:
		return "$"
	case EGP:
		return "E£"
	case EUR:
		return "€"
	case GBP:
		return "£"
	default:
		return ""
	}
}

// Supported reports whether c is a known payout currency.
func (c Currency) Supported() bool {
	for _, known := range Currencies {
		if c == known {
			return true
		}
	}
	return false
}

// =============================================================================
// ROUNDING
// =============================================================================

// Round2 rounds a money amount to 2 decimal places, half up.
func Round2(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// Round3 rounds an hour quantity to 3 decimal places, half up.
func Round3(d decimal.Decimal) decimal.Decimal {
	return d.Round(3)
}

// MustParseDecimal parses s, returning zero on malformed input.
// Intended for constants and trusted storage reads.
func MustParseDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// =============================================================================
// FORMATTING
// =============================================================================

// amountPrinter renders grouped numbers for human-readable messages.
var amountPrinter = message.NewPrinter(language.English)

// FormatAmount renders an amount with its currency symbol, grouped and
// fixed to 2 decimal places: "E£1,234.50".
func FormatAmount(amount decimal.Decimal, c Currency) string {
	return amountPrinter.Sprintf("%s%.2f", c.Symbol(), Round2(amount).InexactFloat64())
}

// FormatHours renders an hour quantity without trailing zeros: "5h",
// "2.5h". Used in validation messages.
func FormatHours(hours decimal.Decimal) string {
	return trimTrailingZeros(hours.String()) + "h"
}

func trimTrailingZeros(s string) string {
	hasDot := false
	for i := 0; i < len(s); i++ {
		if s[i] == '.' {
			hasDot = true
			break
		}
	}
	if !hasDot {
		return s
	}
	end := len(s)
	for end > 0 && s[end-1] == '0' {
		end--
	}
	if end > 0 && s[end-1] == '.' {
		end--
	}
	return s[:end]
}
