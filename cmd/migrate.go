package cmd

import (
	"fmt"

	"github.com/psds-microservice/watchparty-service/internal/config"
	"github.com/psds-microservice/watchparty-service/internal/database"
	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply PostgreSQL migrations from database/migrations",
	RunE:  runMigrateUp,
}

func runMigrateUp(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if cfg.StoreDriver != config.StorePostgres {
		return fmt.Errorf("migrate: STORE_DRIVER is %q, migrations are for postgres (sqlite migrates itself on start)", cfg.StoreDriver)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return database.MigrateUp(cfg.DatabaseURL())
}
