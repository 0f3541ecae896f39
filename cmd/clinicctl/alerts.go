package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/doodlesbykumbi/clinicguard/pkg/engine"
	"github.com/doodlesbykumbi/clinicguard/pkg/model"
	"github.com/doodlesbykumbi/clinicguard/pkg/store"
)

// alertsCmd represents the alerts command
var alertsCmd = &cobra.Command{
	Use:   "alerts",
	Short: "Detect and triage security alerts",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("error: Command 'alerts' requires a subcommand (scan, list, transition)")
		fmt.Println()
		_ = cmd.Help()
		os.Exit(1)
	},
}

var alertsScanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Scan recent audit events for suspicious activity",
	Long: `Scan recent audit events for suspicious activity and print the alerts
created. Detections matching an open alert for the same user are folded into
it instead.

Example:
  clinicctl alerts scan --window 1h`,
	RunE: func(cmd *cobra.Command, args []string) error {
		window, _ := cmd.Flags().GetDuration("window")
		return withEngine(func(ctx context.Context, e *engine.Engine) error {
			if window == 0 {
				window = e.Config.ScanWindowDuration()
			}
			created, err := e.Detector.Scan(ctx, window)
			if err != nil {
				return err
			}
			return printJSON(created)
		})
	},
}

var alertsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List security alerts, newest first",
	Long: `List security alerts, newest first.

Example:
  clinicctl alerts list --status open --actor u1`,
	RunE: func(cmd *cobra.Command, args []string) error {
		var filter store.AlertFilter
		if v, _ := cmd.Flags().GetString("status"); v != "" {
			status, ok := model.ParseAlertStatus(v)
			if !ok {
				return fmt.Errorf("unknown alert status %q", v)
			}
			filter.Status = status
		}
		filter.ActorID, _ = cmd.Flags().GetString("actor")
		filter.Limit, _ = cmd.Flags().GetInt("limit")

		return withEngine(func(ctx context.Context, e *engine.Engine) error {
			list, err := e.Alerts.List(ctx, filter)
			if err != nil {
				return err
			}
			return printJSON(list)
		})
	},
}

var alertsTransitionCmd = &cobra.Command{
	Use:   "transition <id> <status>",
	Short: "Move an alert through its lifecycle",
	Long: `Move an alert through its lifecycle. RESOLVED and FALSE_POSITIVE
require --notes.

Example:
  clinicctl alerts transition 01J... resolved --operator owner --notes "month end batch"`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		status, ok := model.ParseAlertStatus(args[1])
		if !ok {
			return fmt.Errorf("unknown alert status %q", args[1])
		}
		operator, _ := cmd.Flags().GetString("operator")
		notes, _ := cmd.Flags().GetString("notes")

		return withEngine(func(ctx context.Context, e *engine.Engine) error {
			alert, err := e.Alerts.Transition(ctx, args[0], status, operator, notes)
			if err != nil {
				return err
			}
			return printJSON(alert)
		})
	},
}

func init() {
	rootCmd.AddCommand(alertsCmd)
	alertsCmd.AddCommand(alertsScanCmd)
	alertsCmd.AddCommand(alertsListCmd)
	alertsCmd.AddCommand(alertsTransitionCmd)

	alertsScanCmd.Flags().Duration("window", 0, "how far back to scan (default scan_window)")
	alertsListCmd.Flags().String("status", "", "only alerts in this status")
	alertsListCmd.Flags().String("actor", "", "only alerts about this user")
	alertsListCmd.Flags().Int("limit", 50, "maximum number of alerts")
	alertsTransitionCmd.Flags().String("operator", os.Getenv("USER"), "user id recorded on the alert")
	alertsTransitionCmd.Flags().String("notes", "", "resolution notes")
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

