package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kapu/phantom-panel/internal/service/database"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the panel tables if they do not exist",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadConfig()
		if err != nil {
			return err
		}
		defer logger.Sync()

		postgres, err := database.NewPostgresService(cfg.Postgres, logger)
		if err != nil {
			return err
		}
		defer postgres.Close()

		if err := postgres.Migrate(cmd.Context()); err != nil {
			logger.Error("Migration failed", zap.Error(err))
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Schema is up to date")
		return nil
	},
}
