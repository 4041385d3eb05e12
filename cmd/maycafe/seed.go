package main

import (
	"context"
	"database/sql"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/dukerupert/maycafe/internal/catalog"
	"github.com/dukerupert/maycafe/internal/database"
	"github.com/dukerupert/maycafe/internal/store"
)

var (
	seedFile    string
	seedReplace bool
)

var seedItemsCmd = &cobra.Command{
	Use:   "seed-items",
	Short: "Sync the redemption catalog from a YAML file",
	Long: `Sync the redemption catalog from a YAML file. Items are matched by name:
existing ones are updated, new ones created. Without --file the built-in
catalog is used.

Examples:
  maycafe seed-items --file items.yaml
  maycafe seed-items --file items.yaml --replace   # deactivate items not in the file`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		items, err := catalog.Load(seedFile)
		if err != nil {
			return err
		}

		db, err := database.Open(cfg.DBPath)
		if err != nil {
			return err
		}
		defer db.Close()

		ctx := context.Background()
		var res catalog.Result
		err = store.InTx(ctx, db, func(tx *sql.Tx) error {
			var err error
			res, err = catalog.Seed(ctx, store.NewRedemptionStore(tx), items, seedReplace)
			return err
		})
		if err != nil {
			return err
		}

		slog.Info("catalog synced",
			"created", res.Created,
			"updated", res.Updated,
			"deactivated", res.Deactivated,
		)
		return nil
	},
}

func init() {
	seedItemsCmd.Flags().StringVar(&seedFile, "file", "", "catalog YAML file (default: built-in catalog)")
	seedItemsCmd.Flags().BoolVar(&seedReplace, "replace", false, "deactivate items missing from the file")
}
