package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/doodlesbykumbi/clinicguard/pkg/config"
	"github.com/doodlesbykumbi/clinicguard/pkg/logging"
)

var rootCmd = &cobra.Command{
	Use:   "clinicctl",
	Short: "Run and administer the clinicguard access control service",
	Long: `clinicctl runs the clinicguard server and its maintenance tasks:
database migrations, grant expiry sweeps, suspicious activity scans and
role catalog checks.

Settings come from $CLINICGUARD_CONFIG_PATH/clinicguard.yml and
CLINICGUARD_* environment variables. Run "clinicctl configuration show"
to see the effective values.`,
	SilenceUsage: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func main() {
	Execute()
}

// loadConfig reads and validates the configuration and builds the process
// logger from it.
func loadConfig() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid configuration: %w", err)
	}
	logger, err := logging.New(cfg.LogLevel, os.Stderr)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}
