/*
Package settings provides JSON to Go billing-config conversion.

PURPOSE:
  Converts admin-edited JSON documents into billing.RateTable and
  billing.TransferFeeConfig values. Admins tune payout rules from the
  dashboard without code changes; this package is the single gate
  between their JSON and the calculation engine.

WHY JSON?
  - Non-developers adjust rates and fees
  - Easy integration with the admin UI
  - One settings row per key in storage, trivially auditable

JSON SCHEMAS:
  rate_partitions:
    [
      {"minHours": 0,     "maxHours": 10,    "rateUSD": 5},
      {"minHours": 10.01, "maxHours": 20,    "rateUSD": 7},
      {"minHours": 20.01, "maxHours": 99999, "rateUSD": 10}
    ]

  transfer_fee:
    {"model": "flat", "value": 25}        // or "percentage" / "none"

KEY FEATURES:
  - Struct-level validation via go-playground/validator tags
  - Structural validation via billing.RateTable.Validate
  - Defaults when a key has never been saved: a single $5 tier
    covering all hours, and no transfer fee

SEE ALSO:
  - billing/tiers.go: RateTable structural rules
  - billing/fee.go: TransferFeeConfig rules
*/
package settings

import (
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/meridian/salary-engine/billing"
)

// Storage keys for the two billing settings documents.
const (
	KeyRatePartitions = "rate_partitions"
	KeyTransferFee    = "transfer_fee"
)

var validate = validator.New()

// =============================================================================
// JSON SCHEMA TYPES
// =============================================================================

// RatePartitionJSON is one row of the admin-edited rate table.
type RatePartitionJSON struct {
	MinHours float64 `json:"minHours" validate:"gte=0"`
	MaxHours float64 `json:"maxHours" validate:"gte=0"`
	RateUSD  float64 `json:"rateUSD" validate:"gt=0"`
}

// TransferFeeJSON is the admin-edited fee document.
type TransferFeeJSON struct {
	Model string  `json:"model" validate:"required,oneof=flat percentage none"`
	Value float64 `json:"value" validate:"gte=0"`
}

// =============================================================================
// RATE PARTITIONS
// =============================================================================

// ParseRatePartitions converts a stored JSON document into a validated
// RateTable. Empty input (key never saved) yields the default table.
func ParseRatePartitions(raw []byte) (billing.RateTable, error) {
	if len(raw) == 0 {
		return DefaultRatePartitions(), nil
	}
	var rows []RatePartitionJSON
	if err := json.Unmarshal(raw, &rows); err != nil {
		return nil, fmt.Errorf("failed to parse rate partitions JSON: %w", err)
	}
	return TableFromRows(rows)
}

// TableFromRows validates each row, converts to decimals, and runs the
// structural table validation (contiguity, sentinel termination).
func TableFromRows(rows []RatePartitionJSON) (billing.RateTable, error) {
	table := make(billing.RateTable, 0, len(rows))
	for i, row := range rows {
		if err := validate.Struct(row); err != nil {
			return nil, fmt.Errorf("rate partition %d: %w", i, err)
		}
		table = append(table, billing.RateTier{
			MinHours: decimal.NewFromFloat(row.MinHours),
			MaxHours: decimal.NewFromFloat(row.MaxHours),
			RateUSD:  decimal.NewFromFloat(row.RateUSD),
		})
	}
	if err := table.Validate(); err != nil {
		return nil, err
	}
	return table, nil
}

// RowsFromTable converts a RateTable back to its JSON rows.
func RowsFromTable(table billing.RateTable) []RatePartitionJSON {
	rows := make([]RatePartitionJSON, 0, len(table))
	for _, tier := range table {
		rows = append(rows, RatePartitionJSON{
			MinHours: tier.MinHours.InexactFloat64(),
			MaxHours: tier.MaxHours.InexactFloat64(),
			RateUSD:  tier.RateUSD.InexactFloat64(),
		})
	}
	return rows
}

// EncodeRatePartitions renders a table for storage.
func EncodeRatePartitions(table billing.RateTable) ([]byte, error) {
	return json.Marshal(RowsFromTable(table))
}

// DefaultRatePartitions is the table used before an admin saves one:
// a single $5/h tier covering every hour count.
func DefaultRatePartitions() billing.RateTable {
	return billing.RateTable{
		{
			MinHours: decimal.Zero,
			MaxHours: billing.UnlimitedHours,
			RateUSD:  decimal.NewFromInt(5),
		},
	}
}

// =============================================================================
// TRANSFER FEE
// =============================================================================

// ParseTransferFee converts a stored JSON document into a validated
// TransferFeeConfig. Empty input yields the default (no fee).
func ParseTransferFee(raw []byte) (billing.TransferFeeConfig, error) {
	if len(raw) == 0 {
		return DefaultTransferFee(), nil
	}
	var row TransferFeeJSON
	if err := json.Unmarshal(raw, &row); err != nil {
		return billing.TransferFeeConfig{}, fmt.Errorf("failed to parse transfer fee JSON: %w", err)
	}
	return FeeFromRow(row)
}

// FeeFromRow validates the row and converts it to the engine type.
func FeeFromRow(row TransferFeeJSON) (billing.TransferFeeConfig, error) {
	if err := validate.Struct(row); err != nil {
		return billing.TransferFeeConfig{}, fmt.Errorf("transfer fee: %w", err)
	}
	cfg := billing.TransferFeeConfig{
		Model: billing.FeeModel(row.Model),
		Value: decimal.NewFromFloat(row.Value),
	}
	if err := cfg.Validate(); err != nil {
		return billing.TransferFeeConfig{}, err
	}
	return cfg, nil
}

// RowFromFee converts a config back to its JSON row.
func RowFromFee(cfg billing.TransferFeeConfig) TransferFeeJSON {
	return TransferFeeJSON{
		Model: string(cfg.Model),
		Value: cfg.Value.InexactFloat64(),
	}
}

// EncodeTransferFee renders a config for storage.
func EncodeTransferFee(cfg billing.TransferFeeConfig) ([]byte, error) {
	return json.Marshal(RowFromFee(cfg))
}

// DefaultTransferFee is the config used before an admin saves one.
func DefaultTransferFee() billing.TransferFeeConfig {
	return billing.TransferFeeConfig{Model: billing.FeeNone, Value: decimal.Zero}
}
