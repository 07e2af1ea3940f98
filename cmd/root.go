/*
root.go - salaryd command tree

PURPOSE:
  Declares the salaryd root command and the Execute entry point.
  Subcommands register themselves from their own init functions.

COMMANDS:
  serve     run the HTTP API server
  generate  one-shot batch invoice generation (cron friendly)
  seed      reset a database and load a demo scenario

GLOBAL FLAGS:
  --db      SQLite database path; overrides the DB_PATH environment
            variable for every subcommand

SEE ALSO:
  - main.go: environment, config and logger bootstrap
  - config/config.go: environment variables the commands read
*/
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/meridian/salary-engine/logger"
)

var version = "1.0.0"

var rootCmd = &cobra.Command{
	Use:   "salaryd",
	Short: "Teacher salary engine for the tutoring marketplace",
	Long: `salaryd turns completed tutoring sessions into monthly teacher invoices:
tiered USD rates, USD to EGP conversion at an admin-saved monthly rate,
transfer fees, bonuses, deductions, refunds and payment tracking.

Run "salaryd serve" for the HTTP API, "salaryd generate" for one-shot
batch generation from cron, or "salaryd seed" to load a demo scenario.`,
	Version: version,
}

// Execute runs the command tree and exits non-zero on failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		log := logger.WithComponent("cmd")
		log.Error().
			Err(err).
			Msg("Command execution failed")
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().String("db", "", "SQLite database path (overrides DB_PATH)")
}
