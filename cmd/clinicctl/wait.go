package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/doodlesbykumbi/clinicguard/pkg/server/endpoints"
)

// waitCmd represents the wait command
var waitCmd = &cobra.Command{
	Use:   "wait",
	Short: "Wait for the clinicguard server to be ready",
	Long: `Wait for the clinicguard server to be ready by polling the status endpoint.

The server is ready once /status reports "ok", which includes a reachable
database. A degraded server keeps the command waiting.

Example:
  clinicctl wait
  clinicctl wait --url http://clinicguard:8080/status --retries 60 --interval 500ms`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		url, _ := cmd.Flags().GetString("url")
		retries, _ := cmd.Flags().GetInt("retries")
		interval, _ := cmd.Flags().GetDuration("interval")

		status, err := waitForServer(cmd.Context(), cmd.OutOrStdout(), url, retries, interval)
		if err != nil {
			return fmt.Errorf("server did not become ready: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "clinicguard %s is ready (database %s, %d audit events pending)\n",
			status.Version, status.Database, status.PendingEvents)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(waitCmd)
	waitCmd.Flags().StringP("url", "u", "http://localhost:8080/status", "Status URL to check")
	waitCmd.Flags().IntP("retries", "r", 90, "Number of attempts")
	waitCmd.Flags().Duration("interval", time.Second, "Delay between attempts")
}

func waitForServer(ctx context.Context, out io.Writer, url string, retries int, interval time.Duration) (*endpoints.StatusResponse, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	client := &http.Client{Timeout: 2 * time.Second}

	fmt.Fprintln(out, "Waiting for clinicguard to be ready...")

	var last string
	for i := 0; i < retries; i++ {
		status, err := checkStatus(ctx, client, url)
		if err == nil && status.Status == "ok" {
			return status, nil
		}
		if err != nil {
			last = err.Error()
		} else {
			last = fmt.Sprintf("status %q, database %s", status.Status, status.Database)
		}

		fmt.Fprint(out, ".")
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(interval):
		}
	}

	fmt.Fprintln(out)
	return nil, fmt.Errorf("not ready after %d attempts, last: %s", retries, last)
}

func checkStatus(ctx context.Context, client *http.Client, url string) (*endpoints.StatusResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	// A degraded server answers 503 with a status body.
	var status endpoints.StatusResponse
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return nil, fmt.Errorf("%s: unreadable status body: %w", resp.Status, err)
	}
	return &status, nil
}
