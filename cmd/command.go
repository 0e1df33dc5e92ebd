package cmd

import (
	"errors"
	"fmt"

	"github.com/psds-microservice/watchparty-service/internal/database"
	"github.com/spf13/cobra"
)

var commandCmd = &cobra.Command{
	Use:   "command [name]",
	Short: "Run one-time command (migrate, migrate-create, seed)",
	RunE:  runCommand,
}

func init() {
	rootCmd.AddCommand(commandCmd)
}

func runCommand(cmd *cobra.Command, args []string) error {
	if len(args) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "available: migrate, migrate-create, seed")
		return nil
	}
	switch name := args[0]; name {
	case "migrate":
		return runMigrateUp(cmd, nil)
	case "seed":
		return runSeed(cmd, nil)
	case "migrate-create":
		migrationName := ""
		if len(args) > 1 {
			migrationName = args[1]
		} else {
			fmt.Fprint(cmd.OutOrStdout(), "Enter migration name: ")
			_, _ = fmt.Fscanln(cmd.InOrStdin(), &migrationName)
		}
		if migrationName == "" {
			return errors.New("migration name required")
		}
		return database.CreateMigration(migrationName)
	default:
		return fmt.Errorf("unknown command: %s", name)
	}
}
