package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/doodlesbykumbi/clinicguard/pkg/catalog"
	"github.com/doodlesbykumbi/clinicguard/pkg/logging"
)

// catalogCmd represents the catalog command
var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Inspect the role catalog",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("error: Command 'catalog' requires a subcommand (validate, default, watch)")
		fmt.Println()
		_ = cmd.Help()
		os.Exit(1)
	},
}

var catalogValidateCmd = &cobra.Command{
	Use:   "validate <file>",
	Short: "Check a role catalog file",
	Long: `Check that a role catalog file parses, that every role matrix only uses
known permissions and that manages lists only name defined roles.

Example:
  clinicctl catalog validate /etc/clinicguard/catalog.yml`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		def, err := catalog.Load(args[0])
		if err != nil {
			return err
		}
		if _, err := catalog.New(def); err != nil {
			return err
		}
		fmt.Printf("%s: %d categories, %d roles\n", args[0], len(def.Categories), len(def.Roles))
		return nil
	},
}

var catalogDefaultCmd = &cobra.Command{
	Use:   "default",
	Short: "Print the built-in role catalog",
	Long: `Print the built-in role catalog, as a starting point for catalog_path.

Example:
  clinicctl catalog default > /etc/clinicguard/catalog.yml`,
	Run: func(cmd *cobra.Command, args []string) {
		_, _ = os.Stdout.Write(catalog.DefaultYAML())
	},
}

var catalogWatchCmd = &cobra.Command{
	Use:   "watch <file>",
	Short: "Watch a role catalog file and report whether each change is valid",
	Long: `Watch a role catalog file and reload it whenever it changes, logging
whether each revision would be accepted by a running server.

Example:
  clinicctl catalog watch /etc/clinicguard/catalog.yml`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		def, err := catalog.Load(args[0])
		if err != nil {
			return err
		}
		c, err := catalog.New(def)
		if err != nil {
			return err
		}

		logger, err := logging.New("info", os.Stderr)
		if err != nil {
			return err
		}
		defer func() { _ = logger.Sync() }()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return catalog.Watch(ctx, args[0], c, logger)
	},
}

func init() {
	rootCmd.AddCommand(catalogCmd)
	catalogCmd.AddCommand(catalogValidateCmd)
	catalogCmd.AddCommand(catalogDefaultCmd)
	catalogCmd.AddCommand(catalogWatchCmd)
}
