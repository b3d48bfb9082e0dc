// Package cli defines the service's command line.
package cli

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "gamification-service",
	Short: "XP and badge engine driven by domain events",
	Long: `Consumes learning progress events from RabbitMQ, keeps the XP ledger,
grants badges whose criteria are met and serves leaderboards from Redis.
Without a subcommand it runs the service.`,
	SilenceUsage: true,
	RunE:         runServe,
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
