package admin

import (
	"fmt"

	"github.com/cloo-solutions/fhirchat/internal/config"
	"github.com/cloo-solutions/fhirchat/internal/database"
	"github.com/spf13/cobra"
)

func MigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		Args:  cobra.NoArgs,
		RunE:  runMigrate,
	}

	cmd.Flags().String("migrations", database.DefaultMigrationsDir, "Directory holding migration files")

	return cmd
}

func runMigrate(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if !cfg.HasDatabase() {
		return fmt.Errorf("FHIRCHAT_DATABASE_URL is required for migrate")
	}

	dir, _ := cmd.Flags().GetString("migrations")
	return database.RunMigrations(cfg.DatabaseURL, dir, newLogger(cfg).Sub("migrate"))
}
