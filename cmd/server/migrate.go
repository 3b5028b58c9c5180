package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/rl1809/parts-stock/internal/adapter/storage"
	"github.com/rl1809/parts-stock/internal/config"
)

func newMigrateCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the MySQL and SQLite schemas for the configured backends",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig(opts)
			if err != nil {
				return err
			}
			defer logger.Sync()
			ctx := cmd.Context()

			migrated := false
			if cfg.UsesMySQL() {
				db, err := openMySQL(ctx, cfg.MySQL)
				if err != nil {
					return err
				}
				defer db.Close()
				if err := storage.MigrateMySQL(ctx, db); err != nil {
					return err
				}
				logger.Info("mysql schema applied")
				migrated = true
			}

			if cfg.Audit.Backend == config.BackendSQLite {
				audit, err := storage.OpenSQLiteAdjustmentLog(ctx, cfg.Audit.SQLitePath)
				if err != nil {
					return err
				}
				audit.Close()
				logger.Info("sqlite schema applied", zap.String("path", cfg.Audit.SQLitePath))
				migrated = true
			}

			if !migrated {
				logger.Info("no persistent backend configured, nothing to migrate")
			}
			return nil
		},
	}
}
