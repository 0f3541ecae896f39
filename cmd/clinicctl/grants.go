package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/doodlesbykumbi/clinicguard/pkg/engine"
	"github.com/doodlesbykumbi/clinicguard/pkg/model"
)

// grantsCmd represents the grants command
var grantsCmd = &cobra.Command{
	Use:   "grants",
	Short: "Manage permission grants",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("error: Command 'grants' requires a subcommand (sweep, list)")
		fmt.Println()
		_ = cmd.Help()
		os.Exit(1)
	},
}

var grantsSweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Deactivate grants whose expiry has passed",
	Long: `Deactivate grants whose expiry has passed.

Expired grants never take effect whether or not they were swept; the sweep
only flips the active flag so listings and reports stay accurate. The
server runs it every sweep_interval seconds.

Example:
  clinicctl grants sweep`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEngine(func(ctx context.Context, e *engine.Engine) error {
			n, err := e.Grants.SweepExpired(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("Marked %d grant(s) expired\n", n)
			return nil
		})
	},
}

var grantsListCmd = &cobra.Command{
	Use:   "list <subject>",
	Short: "List the grants of a user",
	Long: `List the grants of a user. By default only grants in effect now are
shown; --history shows every grant ever issued to the user.

Example:
  clinicctl grants list u1 --history`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		history, _ := cmd.Flags().GetBool("history")
		return withEngine(func(ctx context.Context, e *engine.Engine) error {
			var (
				list []model.PermissionGrant
				err  error
			)
			if history {
				list, err = e.Grants.ListHistory(ctx, args[0])
			} else {
				list, err = e.Grants.ListActive(ctx, args[0], e.Clock.Now())
			}
			if err != nil {
				return err
			}
			return printJSON(list)
		})
	},
}

func init() {
	rootCmd.AddCommand(grantsCmd)
	grantsCmd.AddCommand(grantsSweepCmd)
	grantsCmd.AddCommand(grantsListCmd)
	grantsListCmd.Flags().Bool("history", false, "include revoked and expired grants")
}
