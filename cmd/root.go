package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "watchparty-service",
	Short: "Watch party service: shared movie sessions with chat and reactions",
	Long:  `HTTP + WebSocket + gRPC API. Commands: api, migrate, seed, command, party.`,
	RunE:  runAPI, // default: run API (same as "watchparty-service api")
}

func init() {
	rootCmd.AddCommand(apiCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(seedCmd)
	rootCmd.AddCommand(partyCmd)
}

// Execute runs the root command and returns the error (for main to log.Fatal).
func Execute() error {
	return rootCmd.Execute()
}
