package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/spec-kit/servicedesk/internal/config"
	"github.com/spec-kit/servicedesk/internal/observability"
	"github.com/spec-kit/servicedesk/internal/persistence"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending SQL migrations and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if dir, _ := cmd.Flags().GetString("dir"); dir != "" {
			cfg.Postgres.MigrationsDir = dir
		}
		logger, err := observability.NewLogger(cfg.Logger, cfg.App)
		if err != nil {
			return fmt.Errorf("init logger: %w", err)
		}
		defer logger.Sync() //nolint:errcheck

		pg, err := persistence.NewPostgres(cmd.Context(), cfg.Postgres, logger)
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		defer pg.Close()
		if pg.PoolHandle() == nil {
			return fmt.Errorf("POSTGRES_DSN is required to migrate")
		}
		return persistence.RunMigrations(cmd.Context(), pg.PoolHandle(), cfg.Postgres.MigrationsDir, logger)
	},
}

func init() {
	migrateCmd.Flags().String("dir", "", "migrations directory (defaults to POSTGRES_MIGRATIONS_DIR)")
}
