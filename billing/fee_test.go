package billing_test

import (
	"testing"

	"github.com/meridian/salary-engine/billing"
)

// =============================================================================
// FEE COMPUTATION TESTS
// =============================================================================

func TestComputeFee_FlatIsIndependentOfSubtotal(t *testing.T) {
	// GIVEN: A flat $25-equivalent fee
	// WHEN: Computing against wildly different subtotals
	// THEN: The fee never moves

	cfg := billing.TransferFeeConfig{Model: billing.FeeFlat, Value: dec("25")}
	for _, subtotal := range []string{"0", "100", "2000", "98765.43"} {
		fee := cfg.ComputeFee(dec(subtotal))
		if !fee.Equal(dec("25")) {
			t.Errorf("subtotal %s: expected fee 25, got %v", subtotal, fee)
		}
	}
}

func TestComputeFee_PercentageOfSubtotal(t *testing.T) {
	cfg := billing.TransferFeeConfig{Model: billing.FeePercentage, Value: dec("2.5")}

	fee := cfg.ComputeFee(dec("1000"))
	if !fee.Equal(dec("25")) {
		t.Errorf("expected fee 25, got %v", fee)
	}

	// 2.5% of 1234.56 = 30.864 -> 30.86 after cent rounding
	fee = cfg.ComputeFee(dec("1234.56"))
	if !fee.Equal(dec("30.86")) {
		t.Errorf("expected fee 30.86, got %v", fee)
	}
}

func TestComputeFee_NoneAndUnknownModelsChargeNothing(t *testing.T) {
	none := billing.TransferFeeConfig{Model: billing.FeeNone, Value: dec("99")}
	if fee := none.ComputeFee(dec("1000")); !fee.IsZero() {
		t.Errorf("expected zero fee for model none, got %v", fee)
	}

	unknown := billing.TransferFeeConfig{Model: "camel", Value: dec("10")}
	if fee := unknown.ComputeFee(dec("1000")); !fee.IsZero() {
		t.Errorf("expected zero fee for unknown model, got %v", fee)
	}
}

func TestComputeFee_NegativeValueDegradesToZero(t *testing.T) {
	cfg := billing.TransferFeeConfig{Model: billing.FeeFlat, Value: dec("-5")}
	if fee := cfg.ComputeFee(dec("1000")); !fee.IsZero() {
		t.Errorf("expected zero fee, got %v", fee)
	}
}

func TestTransferFeeConfigValidate(t *testing.T) {
	cases := []struct {
		name    string
		cfg     billing.TransferFeeConfig
		wantErr bool
	}{
		{"flat ok", billing.TransferFeeConfig{Model: billing.FeeFlat, Value: dec("25")}, false},
		{"none ok", billing.TransferFeeConfig{Model: billing.FeeNone}, false},
		{"percentage ok", billing.TransferFeeConfig{Model: billing.FeePercentage, Value: dec("2.5")}, false},
		{"percentage over 100", billing.TransferFeeConfig{Model: billing.FeePercentage, Value: dec("101")}, true},
		{"negative value", billing.TransferFeeConfig{Model: billing.FeeFlat, Value: dec("-1")}, true},
		{"unknown model", billing.TransferFeeConfig{Model: "tip"}, true},
	}
	for _, tc := range cases {
		err := tc.cfg.Validate()
		if tc.wantErr && err == nil {
			t.Errorf("%s: expected error", tc.name)
		}
		if !tc.wantErr && err != nil {
			t.Errorf("%s: unexpected error: %v", tc.name, err)
		}
	}
}

// =============================================================================
// PRORATION TESTS
// =============================================================================

func TestFeeCoverageHours_CapWinsWhenPositive(t *testing.T) {
	// GIVEN: An explicit 20h coverage cap on a 50h invoice
	// THEN: The fee spreads over 20h, not 50h

	got := billing.FeeCoverageHours(dec("20"), dec("50"))
	if !got.Equal(dec("20")) {
		t.Errorf("expected coverage 20, got %v", got)
	}
}

func TestFeeCoverageHours_FallsBackToTotalHours(t *testing.T) {
	got := billing.FeeCoverageHours(dec("0"), dec("50"))
	if !got.Equal(dec("50")) {
		t.Errorf("expected coverage 50, got %v", got)
	}
}

func TestProrateFee_HalfTheCoverageCostsHalfTheFee(t *testing.T) {
	// GIVEN: A $25-equivalent fee spread over 20 coverage hours
	// WHEN: Refunding 10 hours
	// THEN: The refund carries 12.50 of the fee

	got := billing.ProrateFee(dec("25"), dec("10"), dec("20"))
	if !got.Equal(dec("12.50")) {
		t.Errorf("expected 12.50, got %v", got)
	}
}

func TestProrateFee_RatioClampedAtOne(t *testing.T) {
	got := billing.ProrateFee(dec("25"), dec("30"), dec("20"))
	if !got.Equal(dec("25")) {
		t.Errorf("expected full fee 25, got %v", got)
	}
}

func TestProrateFee_ZeroCoverageProratesNothing(t *testing.T) {
	got := billing.ProrateFee(dec("25"), dec("10"), dec("0"))
	if !got.IsZero() {
		t.Errorf("expected zero, got %v", got)
	}
}

func TestProrateFee_NegativeRefundHoursClampedToZero(t *testing.T) {
	got := billing.ProrateFee(dec("25"), dec("-3"), dec("20"))
	if !got.IsZero() {
		t.Errorf("expected zero, got %v", got)
	}
}

// =============================================================================
// CONVERSION TESTS
// =============================================================================

func TestGrossForHours_PayoutDerivedFromRoundedUSD(t *testing.T) {
	// GIVEN: 10.333 hours at $5/h with a 48.5 exchange rate
	// THEN: grossUSD rounds first (51.67), then converts (2506.00)

	grossUSD, grossEGP := billing.GrossForHours(dec("10.333"), dec("5"), dec("48.5"))
	if !grossUSD.Equal(dec("51.67")) {
		t.Errorf("expected grossUSD 51.67, got %v", grossUSD)
	}
	if !grossEGP.Equal(dec("2506.00")) {
		t.Errorf("expected grossEGP 2506.00, got %v", grossEGP)
	}
}

func TestConvert_RoundsHalfUpToTheCent(t *testing.T) {
	// 10.005 * 1 would sit exactly on the half cent
	got := billing.Convert(dec("10.005"), dec("1"))
	if !got.Equal(dec("10.01")) {
		t.Errorf("expected half-up rounding to 10.01, got %v", got)
	}
}

func TestAmountForHours_GrossMinusProratedFee(t *testing.T) {
	// GIVEN: 2h at $5/h, rate 48, $25-equivalent fee over 20h coverage
	// THEN: 480.00 gross - 2.50 fee share = 477.50

	got := billing.AmountForHours(dec("2"), dec("5"), dec("48"), dec("25"), dec("20"))
	if !got.Equal(dec("477.50")) {
		t.Errorf("expected 477.50, got %v", got)
	}
}

func TestNetPerHour_SubtractsFeeShare(t *testing.T) {
	// 5 * 48 = 240 per hour, minus 25/20 = 1.25 fee share
	got := billing.NetPerHour(dec("5"), dec("48"), dec("25"), dec("20"))
	if !got.Equal(dec("238.75")) {
		t.Errorf("expected 238.75, got %v", got)
	}
}

func TestHoursForAmount_RefusesNonPositiveDivisor(t *testing.T) {
	// GIVEN: A fee so large the net per-hour value goes negative
	// THEN: Hours cannot be derived; ok is false instead of a panic

	if _, ok := billing.HoursForAmount(dec("100"), dec("0")); ok {
		t.Error("expected ok=false for zero net per hour")
	}
	if _, ok := billing.HoursForAmount(dec("100"), dec("-3")); ok {
		t.Error("expected ok=false for negative net per hour")
	}
}
