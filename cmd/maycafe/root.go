package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/dukerupert/maycafe/internal/config"
	"github.com/dukerupert/maycafe/internal/logging"
)

var envFile string

var rootCmd = &cobra.Command{
	Use:   "maycafe",
	Short: "May Cafe message board and member loyalty server",
	Long: `maycafe serves the May Cafe message board and the member loyalty program:
points, daily check-ins, invitations and redemptions.

Settings come from MAYCAFE_* environment variables, optionally loaded
from a .env file.`,
	SilenceUsage: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file to load before reading the environment")

	rootCmd.AddCommand(serveCmd, migrateCmd, seedItemsCmd, adminHashCmd)
}

// loadConfig reads configuration and sets up the default logger.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(envFile)
	if err != nil {
		return nil, err
	}
	logging.Setup(cfg.LogLevel, cfg.LogFormat)
	return cfg, nil
}
