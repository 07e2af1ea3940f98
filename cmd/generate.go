/*
generate.go - one-shot batch invoice generation

PURPOSE:
  Generates (or adjusts) invoices for one payout month straight from
  the command line and prints the batch summary as JSON. Meant for
  cron: an external scheduler runs it after month close and the exit
  code tells the job whether the batch ran.

BEHAVIOR:
  - --month and --year are required
  - repeated --teacher limits the run to named teachers
  - prints {month, year, created, adjusted, skipped, failed, total}
    to stdout, or to --output when set
  - exits 1 when the whole batch is blocked (no exchange rate saved,
    invalid period); per-teacher failures land in the failed bucket
    with their reasons and the command still exits 0, so one broken
    teacher record never hides everyone else's invoices

EXAMPLES:
  # Everyone, July 2025
  salaryd generate --month 7 --year 2025 --db ./data/salary.db

  # Two teachers only, summary to a file
  salaryd generate --month 7 --year 2025 \
    --teacher t-1 --teacher t-2 -o batch.json

SEE ALSO:
  - invoice/generate.go: the batch generator
  - api/scheduler.go: the in-process alternative to cron
*/
package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/meridian/salary-engine/billing"
	"github.com/meridian/salary-engine/config"
	"github.com/meridian/salary-engine/invoice"
	"github.com/meridian/salary-engine/logger"
	"github.com/meridian/salary-engine/store/sqlite"
)

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate teacher invoices for one payout month",
	RunE:  runGenerate,
}

// GenerateOutput is the JSON summary printed after a batch run.
type GenerateOutput struct {
	Month    int               `json:"month"`
	Year     int               `json:"year"`
	Created  []invoice.Outcome `json:"created"`
	Adjusted []invoice.Outcome `json:"adjusted"`
	Skipped  []invoice.Outcome `json:"skipped"`
	Failed   []invoice.Outcome `json:"failed"`
	Total    int               `json:"total"`
}

func init() {
	rootCmd.AddCommand(generateCmd)

	generateCmd.Flags().Int("month", 0, "Payout month (1-12)")
	generateCmd.Flags().Int("year", 0, "Payout year")
	generateCmd.Flags().StringSlice("teacher", nil, "Teacher ID to include (repeatable; default all active)")
	generateCmd.Flags().String("actor", "admin", "Name recorded in each invoice's change history")
	generateCmd.Flags().StringP("output", "o", "", "Summary file path (default: stdout)")
	_ = generateCmd.MarkFlagRequired("month")
	_ = generateCmd.MarkFlagRequired("year")
}

func runGenerate(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("generate")

	month, _ := cmd.Flags().GetInt("month")
	year, _ := cmd.Flags().GetInt("year")
	teachers, _ := cmd.Flags().GetStringSlice("teacher")
	actor, _ := cmd.Flags().GetString("actor")
	outputPath, _ := cmd.Flags().GetString("output")

	period, err := billing.NewPeriod(month, year)
	if err != nil {
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if db, _ := cmd.Flags().GetString("db"); db != "" {
		cfg.DBPath = db
	}

	store, err := sqlite.New(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open database %s: %w", cfg.DBPath, err)
	}
	defer store.Close()

	result, err := invoice.NewGenerator(store).Run(context.Background(), period, teachers, actor)
	if err != nil {
		log.Error().
			Err(err).
			Str("period", period.String()).
			Msg("Batch generation blocked")
		return err
	}

	if batchErr := result.Err(); batchErr != nil {
		log.Warn().
			Err(batchErr).
			Int("failed", len(result.Failed)).
			Msg("Some teachers failed, see the failed bucket")
	}

	log.Info().
		Str("period", period.String()).
		Int("created", len(result.Created)).
		Int("adjusted", len(result.Adjusted)).
		Int("skipped", len(result.Skipped)).
		Int("failed", len(result.Failed)).
		Msg("Batch generation finished")

	output := GenerateOutput{
		Month:    month,
		Year:     year,
		Created:  orEmpty(result.Created),
		Adjusted: orEmpty(result.Adjusted),
		Skipped:  orEmpty(result.Skipped),
		Failed:   orEmpty(result.Failed),
		Total:    result.Total(),
	}
	return writeJSONOutput(output, outputPath, log)
}

// orEmpty keeps empty buckets as [] instead of null in the summary.
func orEmpty(outcomes []invoice.Outcome) []invoice.Outcome {
	if outcomes == nil {
		return []invoice.Outcome{}
	}
	return outcomes
}

// writeJSONOutput pretty-prints v to stdout or to outputPath.
func writeJSONOutput(v interface{}, outputPath string, log zerolog.Logger) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal output: %w", err)
	}

	if outputPath != "" {
		if err := os.WriteFile(outputPath, data, 0644); err != nil {
			return fmt.Errorf("write output file: %w", err)
		}
		log.Info().
			Str("output_file", outputPath).
			Int("bytes", len(data)).
			Msg("Summary written to file")
		return nil
	}

	if _, err := os.Stdout.Write(data); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	fmt.Println()
	return nil
}
