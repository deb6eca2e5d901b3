package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/missland/tryon-service/internal/config"
	"github.com/missland/tryon-service/internal/database"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Run pending SQL migrations (database/migrations)",
	RunE:  runMigrateUp,
}

func runMigrateUp(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return database.MigrateUp(cfg.DatabaseURL())
}
