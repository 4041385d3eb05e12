package main

import (
	"log/slog"

	"github.com/pressly/goose/v3"
	"github.com/spf13/cobra"

	"github.com/dukerupert/maycafe/internal/database"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending database migrations and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		// Open applies migrations.
		db, err := database.Open(cfg.DBPath)
		if err != nil {
			return err
		}
		defer db.Close()

		version, err := goose.GetDBVersion(db)
		if err != nil {
			return err
		}
		slog.Info("database is up to date", "path", cfg.DBPath, "version", version)
		return nil
	},
}
