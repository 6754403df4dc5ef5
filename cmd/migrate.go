package cmd

import (
	"context"
	"fmt"

	"github.com/jmehdipour/notify-gateway/internal/app"
	"github.com/jmehdipour/notify-gateway/internal/config"
	"github.com/jmehdipour/notify-gateway/internal/logger"
	"github.com/jmehdipour/notify-gateway/migrations"
	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the MySQL subscribers table and the ClickHouse delivery log (idempotent)",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		logger.Init(cfg.Log.Level, cfg.Log.Encoding)

		ran := 0
		if cfg.MySQL.DSN != "" {
			sqlDB, err := app.OpenMySQL(cfg.MySQL)
			if err != nil {
				return err
			}
			defer sqlDB.Close()
			if err := apply(cmd.Context(), sqlDB, migrations.MySQL); err != nil {
				return fmt.Errorf("mysql: %w", err)
			}
			ran++
		}

		if cfg.ClickHouse.DSN != "" {
			chDB, err := app.OpenClickHouse(cfg.ClickHouse)
			if err != nil {
				return err
			}
			defer chDB.Close()
			if err := apply(cmd.Context(), chDB, migrations.ClickHouse); err != nil {
				return fmt.Errorf("clickhouse: %w", err)
			}
			ran++
		}

		if ran == 0 {
			return fmt.Errorf("nothing to migrate: set mysql.dsn and/or clickhouse.dsn")
		}
		fmt.Fprintln(cmd.OutOrStdout(), ">> Migration complete")
		return nil
	},
}

func apply(ctx context.Context, dbx *sqlx.DB, dir string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	stmts, err := migrations.Statements(dir)
	if err != nil {
		return err
	}
	for i, q := range stmts {
		if _, err := dbx.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("statement %d: %w", i+1, err)
		}
	}
	logger.Log.Info("migrations applied", zap.String("dir", dir), zap.Int("statements", len(stmts)))
	return nil
}
