package settings_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridian/salary-engine/billing"
	"github.com/meridian/salary-engine/settings"
)

func TestParseRatePartitions_ValidDocument(t *testing.T) {
	raw := []byte(`[
		{"minHours": 0, "maxHours": 10, "rateUSD": 5},
		{"minHours": 10.01, "maxHours": 20, "rateUSD": 7},
		{"minHours": 20.01, "maxHours": 99999, "rateUSD": 10}
	]`)

	table, err := settings.ParseRatePartitions(raw)
	require.NoError(t, err)
	require.Len(t, table, 3)

	rate, err := table.Resolve(billing.MustParseDecimal("15"))
	require.NoError(t, err)
	assert.Equal(t, "7", rate.String())
}

func TestParseRatePartitions_EmptyInputFallsBackToDefault(t *testing.T) {
	table, err := settings.ParseRatePartitions(nil)
	require.NoError(t, err)
	require.Len(t, table, 1)
	assert.True(t, table[0].MaxHours.Equal(billing.UnlimitedHours))
	assert.Equal(t, "5", table[0].RateUSD.String())
}

func TestParseRatePartitions_StructuralViolationsRejected(t *testing.T) {
	cases := []struct {
		name string
		raw  string
	}{
		{"gap between tiers", `[
			{"minHours": 0, "maxHours": 10, "rateUSD": 5},
			{"minHours": 11, "maxHours": 99999, "rateUSD": 7}
		]`},
		{"missing sentinel", `[
			{"minHours": 0, "maxHours": 500, "rateUSD": 5}
		]`},
		{"zero rate", `[
			{"minHours": 0, "maxHours": 99999, "rateUSD": 0}
		]`},
		{"negative minHours", `[
			{"minHours": -1, "maxHours": 99999, "rateUSD": 5}
		]`},
		{"malformed JSON", `{"not": "an array"}`},
	}
	for _, tc := range cases {
		_, err := settings.ParseRatePartitions([]byte(tc.raw))
		assert.Error(t, err, tc.name)
	}
}

func TestParseTransferFee_Models(t *testing.T) {
	cfg, err := settings.ParseTransferFee([]byte(`{"model": "flat", "value": 25}`))
	require.NoError(t, err)
	assert.Equal(t, billing.FeeFlat, cfg.Model)
	assert.Equal(t, "25", cfg.Value.String())

	cfg, err = settings.ParseTransferFee([]byte(`{"model": "percentage", "value": 2.5}`))
	require.NoError(t, err)
	assert.Equal(t, billing.FeePercentage, cfg.Model)

	cfg, err = settings.ParseTransferFee([]byte(`{"model": "none", "value": 0}`))
	require.NoError(t, err)
	assert.Equal(t, billing.FeeNone, cfg.Model)
}

func TestParseTransferFee_EmptyInputMeansNoFee(t *testing.T) {
	cfg, err := settings.ParseTransferFee(nil)
	require.NoError(t, err)
	assert.Equal(t, billing.FeeNone, cfg.Model)
}

func TestParseTransferFee_InvalidDocumentsRejected(t *testing.T) {
	cases := []string{
		`{"model": "tip", "value": 5}`,
		`{"model": "percentage", "value": 150}`,
		`{"model": "flat", "value": -1}`,
		`{"value": 5}`,
		`"flat"`,
	}
	for _, raw := range cases {
		_, err := settings.ParseTransferFee([]byte(raw))
		assert.Error(t, err, raw)
	}
}

func TestEncodeRatePartitions_RoundTrips(t *testing.T) {
	table := settings.DefaultRatePartitions()

	raw, err := settings.EncodeRatePartitions(table)
	require.NoError(t, err)

	back, err := settings.ParseRatePartitions(raw)
	require.NoError(t, err)
	require.Len(t, back, len(table))
	assert.True(t, back[0].RateUSD.Equal(table[0].RateUSD))
}
