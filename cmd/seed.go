/*
seed.go - demo scenario loader

PURPOSE:
  Resets a database and loads one of the built-in demo scenarios from
  the command line, so demos and local development don't have to click
  through the API first.

SCENARIOS:
  fresh-month    billing config, teachers and sessions, no invoices yet
  payment-cycle  last month invoiced: one paid, one published, one draft
  late-classes   paid invoice plus late-reported classes, ready for an
                 adjustment run

WARNING:
  Loading a scenario WIPES the target database first.

EXAMPLES:
  salaryd seed --scenario fresh-month --db ./data/salary.db
  salaryd seed --scenario payment-cycle

SEE ALSO:
  - api/scenarios.go: scenario definitions and loaders
*/
package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/meridian/salary-engine/api"
	"github.com/meridian/salary-engine/config"
	"github.com/meridian/salary-engine/logger"
	"github.com/meridian/salary-engine/store/sqlite"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Reset a database and load a demo scenario",
	RunE:  runSeed,
}

func init() {
	rootCmd.AddCommand(seedCmd)

	seedCmd.Flags().String("scenario", "", "Scenario to load: fresh-month, payment-cycle or late-classes")
	_ = seedCmd.MarkFlagRequired("scenario")
}

func runSeed(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("seed")

	scenario, _ := cmd.Flags().GetString("scenario")

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

	if err := api.LoadScenarioData(context.Background(), store, scenario); err != nil {
		return err
	}

	log.Info().
		Str("scenario", scenario).
		Str("db", cfg.DBPath).
		Msg("Scenario loaded")
	fmt.Printf("Scenario %q loaded into %s\n", scenario, cfg.DBPath)
	return nil
}
