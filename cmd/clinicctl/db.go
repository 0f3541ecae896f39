package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/doodlesbykumbi/clinicguard/pkg/config"
	"github.com/doodlesbykumbi/clinicguard/pkg/db"
)

// dbCmd groups the schema commands. They only apply to the postgres store.
var dbCmd = &cobra.Command{
	Use:   "db",
	Short: "Manage the database schema",
	Long: `Manage the PostgreSQL schema used by the postgres store.

The database URL is taken from --database-url, or else from database_url in
the configuration (CLINICGUARD_DATABASE_URL).`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		names := make([]string, 0, len(cmd.Commands()))
		for _, c := range cmd.Commands() {
			names = append(names, c.Name())
		}
		return fmt.Errorf("db requires a subcommand (%s)", strings.Join(names, ", "))
	},
}

// dbFilesCmd lists the migrations embedded in the binary
var dbFilesCmd = &cobra.Command{
	Use:   "files",
	Short: "List the embedded migrations",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		files, err := db.MigrationFiles()
		if err != nil {
			return err
		}
		for _, f := range files {
			fmt.Fprintln(cmd.OutOrStdout(), strings.TrimSuffix(f, ".up.sql"))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(dbCmd)
	dbCmd.AddCommand(dbFilesCmd)
	dbCmd.PersistentFlags().String("database-url", "", "PostgreSQL URL (overrides database_url)")
}

// databaseURL resolves the URL for the db subcommands.
func databaseURL(cmd *cobra.Command) (string, error) {
	if url, _ := cmd.Flags().GetString("database-url"); url != "" {
		return url, nil
	}
	cfg, err := config.Load()
	if err != nil {
		return "", fmt.Errorf("failed to load configuration: %w", err)
	}
	if cfg.DatabaseURL == "" {
		return "", fmt.Errorf("database_url is required (set --database-url or CLINICGUARD_DATABASE_URL)")
	}
	return cfg.DatabaseURL, nil
}
