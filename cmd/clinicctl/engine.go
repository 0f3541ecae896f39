package main

import (
	"context"

	"go.uber.org/zap"

	"github.com/doodlesbykumbi/clinicguard/pkg/engine"
)

// withEngine builds an engine from the configuration, runs fn and closes
// the engine, flushing buffered audit events.
func withEngine(fn func(ctx context.Context, e *engine.Engine) error) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx := context.Background()
	e, err := engine.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	runErr := fn(ctx, e)
	if err := e.Close(ctx); err != nil {
		logger.Error("engine close failed", zap.Error(err))
		if runErr == nil {
			runErr = err
		}
	}
	return runErr
}
