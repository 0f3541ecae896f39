package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/doodlesbykumbi/clinicguard/pkg/config"
	"github.com/doodlesbykumbi/clinicguard/pkg/db"
	"github.com/doodlesbykumbi/clinicguard/pkg/engine"
	"github.com/doodlesbykumbi/clinicguard/pkg/server"
	"github.com/doodlesbykumbi/clinicguard/pkg/server/endpoints"
)

const shutdownTimeout = 15 * time.Second

// serverCmd represents the server command
var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Run the clinicguard application server",
	Long: `Run the clinicguard application server.

The server requires jwt_secret, and database_url unless store is "memory".

By default, database migrations are run on startup. Use --no-migrate to skip.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadConfig()
		if err != nil {
			return err
		}
		defer func() { _ = logger.Sync() }()

		if listen, _ := cmd.Flags().GetString("listen"); listen != "" {
			cfg.ListenAddress = listen
		}
		if cfg.JWTSecret == "" {
			return fmt.Errorf("jwt_secret is required")
		}

		noMigrate, _ := cmd.Flags().GetBool("no-migrate")
		if cfg.Store == config.StorePostgres && !noMigrate {
			logger.Info("running database migrations")
			version, err := db.Migrate(cfg.DatabaseURL)
			if err != nil {
				return err
			}
			logger.Info("database schema ready", zap.Uint("version", version))
		}

		return runServer(cfg, logger)
	},
}

func init() {
	rootCmd.AddCommand(serverCmd)

	serverCmd.Flags().StringP("listen", "l", "", "listen address, overrides listen_address")
	serverCmd.Flags().Bool("no-migrate", false, "skip running database migrations on start")
}

func runServer(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	e, err := engine.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	workers, cancelWorkers := context.WithCancel(ctx)
	e.Start(workers)

	s := server.NewServer(e)
	endpoints.RegisterAll(s)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("running server", zap.String("address", cfg.ListenAddress))
		if err := s.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	var serveErr error
	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case serveErr = <-errCh:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown incomplete", zap.Error(err))
	}
	cancelWorkers()
	return errors.Join(serveErr, e.Close(shutdownCtx))
}
