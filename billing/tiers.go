/*
tiers.go - Hour-tiered rate resolution

PURPOSE:
  A teacher's USD hourly rate depends on how many hours they tutored in
  the billing month. Admins configure a table of rate partitions; this
  file validates the table and resolves the rate for a month's hours.

KEY RULES:
  - Bounds are inclusive on both ends: a tier [11, 20] covers exactly
    11 and exactly 20 hours.
  - Tiers must be contiguous in 0.01h steps: the next tier starts at
    the previous maxHours + 0.01. Hours are compared at 2 decimal
    places, so no representable value can fall between tiers.
  - The last tier's maxHours is the sentinel 99999, which means "no
    upper bound". It is never treated as a real hour count.

SEE ALSO:
  - settings package: parses admin JSON into a RateTable
  - totals.go: uses the resolved rate to build invoice totals
*/
package billing

import "github.com/shopspring/decimal"

// UnlimitedHours is the sentinel upper bound of the last tier.
var UnlimitedHours = decimal.NewFromInt(99999)

// TierStep is the smallest gap between adjacent tiers. Hours are
// recorded at 2 decimal places, so contiguity in 0.01 steps leaves
// no coverage holes.
var TierStep = MustParseDecimal("0.01")

// =============================================================================
// RATE TIER
// =============================================================================

// RateTier is one partition of the hour range with its USD hourly rate.
type RateTier struct {
	MinHours decimal.Decimal
	MaxHours decimal.Decimal
	RateUSD  decimal.Decimal
}

// Contains reports whether hours falls inside the tier, inclusive on
// both bounds.
func (t RateTier) Contains(hours decimal.Decimal) bool {
	return hours.GreaterThanOrEqual(t.MinHours) && hours.LessThanOrEqual(t.MaxHours)
}

// Unbounded reports whether the tier ends at the sentinel.
func (t RateTier) Unbounded() bool {
	return t.MaxHours.Equal(UnlimitedHours)
}

// =============================================================================
// RATE TABLE
// =============================================================================

// RateTable is an ordered, contiguous set of rate tiers covering
// [0, unlimited].
type RateTable []RateTier

// Validate checks the structural rules admins must satisfy when saving
// a table: non-empty, starts at zero, contiguous in 0.01 steps,
// positive rates, sentinel-terminated.
func (rt RateTable) Validate() error {
	if len(rt) == 0 {
		return ErrEmptyTierTable
	}
	for i, tier := range rt {
		if tier.MinHours.IsNegative() {
			return &TierValidationError{Index: i, Reason: "minHours must not be negative"}
		}
		if tier.MaxHours.LessThan(tier.MinHours) {
			return &TierValidationError{Index: i, Reason: "maxHours must be >= minHours"}
		}
		if !tier.RateUSD.IsPositive() {
			return &TierValidationError{Index: i, Reason: "rateUSD must be positive"}
		}
		if i == 0 {
			if !tier.MinHours.IsZero() {
				return &TierValidationError{Index: i, Reason: "first partition must start at 0 hours"}
			}
			continue
		}
		want := rt[i-1].MaxHours.Add(TierStep)
		if !tier.MinHours.Equal(want) {
			return &TierValidationError{
				Index:  i,
				Reason: "minHours must equal the previous maxHours + 0.01 (no gaps or overlaps)",
			}
		}
	}
	if !rt[len(rt)-1].MaxHours.Equal(UnlimitedHours) {
		return &TierValidationError{
			Index:  len(rt) - 1,
			Reason: "last partition must end at the unlimited sentinel (99999)",
		}
	}
	return nil
}

// Find returns the tier covering the given hours. Negative hours never
// match. The returned tier is a value copy safe to snapshot onto an
// invoice.
func (rt RateTable) Find(hours decimal.Decimal) (RateTier, error) {
	if len(rt) == 0 {
		return RateTier{}, ErrEmptyTierTable
	}
	if hours.IsNegative() {
		return RateTier{}, &NoTierError{Hours: hours}
	}
	for _, tier := range rt {
		if tier.Contains(hours) {
			return tier, nil
		}
	}
	return RateTier{}, &NoTierError{Hours: hours}
}

// Resolve returns the USD hourly rate for a month's hours.
func (rt RateTable) Resolve(hours decimal.Decimal) (decimal.Decimal, error) {
	tier, err := rt.Find(hours)
	if err != nil {
		return decimal.Zero, err
	}
	return tier.RateUSD, nil
}
