// Package engine wires the stores, services and background workers from a
// Config. It is the composition root shared by the server and the CLI.
package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/doodlesbykumbi/clinicguard/pkg/alerts"
	"github.com/doodlesbykumbi/clinicguard/pkg/audit"
	"github.com/doodlesbykumbi/clinicguard/pkg/authz"
	"github.com/doodlesbykumbi/clinicguard/pkg/catalog"
	"github.com/doodlesbykumbi/clinicguard/pkg/clock"
	"github.com/doodlesbykumbi/clinicguard/pkg/config"
	"github.com/doodlesbykumbi/clinicguard/pkg/db"
	"github.com/doodlesbykumbi/clinicguard/pkg/detect"
	"github.com/doodlesbykumbi/clinicguard/pkg/grants"
	"github.com/doodlesbykumbi/clinicguard/pkg/logging"
	"github.com/doodlesbykumbi/clinicguard/pkg/store"
	gormstore "github.com/doodlesbykumbi/clinicguard/pkg/store/gorm"
	"github.com/doodlesbykumbi/clinicguard/pkg/store/memory"
)

// Stores bundles one backend's implementations.
type Stores struct {
	Grants store.GrantStore
	Events store.EventStore
	Alerts store.AlertStore
	Roles  store.RoleStore
	Health store.HealthStore
}

// Engine holds every wired component.
type Engine struct {
	Config  *config.Config
	Logger  *zap.Logger
	Clock   clock.Clock
	Stores  Stores
	Catalog *catalog.Catalog

	Roles    *catalog.Admin
	Resolver *authz.Resolver
	Recorder *audit.Recorder
	Grants   *grants.Service
	Alerts   *alerts.Manager
	Detector *detect.Detector

	dispatcher *alerts.Dispatcher
	closers    []io.Closer
	wg         sync.WaitGroup
}

// Option customizes New.
type Option func(*Engine)

// WithClock replaces the wall clock.
func WithClock(clk clock.Clock) Option {
	return func(e *Engine) { e.Clock = clk }
}

// WithStores replaces the backend selected by the config.
func WithStores(s Stores) Option {
	return func(e *Engine) { e.Stores = s }
}

// New builds an Engine from cfg.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger, opts ...Option) (*Engine, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Engine{Config: cfg, Logger: logger, Clock: clock.Real()}
	for _, opt := range opts {
		opt(e)
	}

	if e.Stores.Grants == nil {
		stores, closers, err := OpenStores(cfg)
		if err != nil {
			return nil, err
		}
		e.Stores = stores
		e.closers = append(e.closers, closers...)
	}

	var err error
	e.Catalog, err = loadCatalog(cfg)
	if err != nil {
		e.closeAll()
		return nil, err
	}

	weights, err := Weights(cfg)
	if err != nil {
		e.closeAll()
		return nil, err
	}

	fallback := logging.Fallback(logging.FallbackConfig{
		Path:      cfg.AuditFallbackPath,
		MaxSizeMB: cfg.AuditFallbackMaxMB,
		Compress:  true,
	})
	e.closers = append(e.closers, fallback)

	e.Recorder = audit.NewRecorder(e.Stores.Events, e.Catalog, audit.Options{
		Clock:      e.Clock,
		Weights:    &weights,
		Fallback:   fallback,
		Logger:     logger.Named("audit"),
		MaxPending: cfg.AuditMaxPending,
	})
	e.Resolver = authz.NewResolver(e.Stores.Grants, e.Catalog, logger.Named("authz"))
	e.Grants = grants.NewService(e.Stores.Grants, e.Catalog, e.Recorder, e.Clock, nil, logger.Named("grants"))
	e.Roles = catalog.NewAdmin(e.Catalog, e.Stores.Roles, e.Recorder, e.Clock, logger.Named("catalog"))

	var notifier alerts.Notifier = alerts.NopNotifier{}
	if cfg.NotifyWebhookURL != "" {
		e.dispatcher = alerts.NewDispatcher(
			alerts.NewWebhookNotifier(cfg.NotifyWebhookURL),
			cfg.NotifyRate, cfg.NotifyBurst, 0, logger.Named("notify"))
		notifier = e.dispatcher
	}
	e.Alerts = alerts.NewManager(e.Stores.Alerts, alerts.Options{
		Clock:    e.Clock,
		Notifier: notifier,
		Cooldown: cfg.AlertCooldownDuration(),
		Logger:   logger.Named("alerts"),
	})
	e.Detector = detect.NewDetector(e.Stores.Events, e.Alerts, e.Catalog, Thresholds(cfg), e.Clock, logger.Named("detect"))

	if err := e.Roles.Sync(ctx); err != nil {
		e.closeAll()
		return nil, fmt.Errorf("failed to load persisted roles: %w", err)
	}
	return e, nil
}

// OpenStores opens the backend named by cfg.Store.
func OpenStores(cfg *config.Config) (Stores, []io.Closer, error) {
	switch cfg.Store {
	case config.StoreMemory:
		return MemoryStores(memory.New()), nil, nil
	case config.StorePostgres:
		conn, err := db.Connect(db.Config{URL: cfg.DatabaseURL, Debug: cfg.LogLevel == "debug"})
		if err != nil {
			return Stores{}, nil, err
		}
		events, err := audit.OpenSQLStore(cfg.DatabaseURL)
		if err != nil {
			closeGorm(conn)
			return Stores{}, nil, fmt.Errorf("failed to open audit store: %w", err)
		}
		stores := PostgresStores(conn, events)
		return stores, []io.Closer{events, gormCloser{conn}}, nil
	}
	return Stores{}, nil, fmt.Errorf("unknown store %q", cfg.Store)
}

// MemoryStores uses m for every store.
func MemoryStores(m *memory.Store) Stores {
	return Stores{Grants: m, Events: m, Alerts: m, Roles: m, Health: nopHealth{}}
}

// PostgresStores uses GORM for grants, alerts and roles and events for the
// audit table.
func PostgresStores(conn *gorm.DB, events *audit.SQLStore) Stores {
	return Stores{
		Grants: gormstore.NewGrantStore(conn),
		Events: events,
		Alerts: gormstore.NewAlertStore(conn),
		Roles:  gormstore.NewRoleStore(conn),
		Health: healthChecks{gormstore.NewHealthStore(conn), events},
	}
}

func loadCatalog(cfg *config.Config) (*catalog.Catalog, error) {
	if cfg.CatalogPath == "" {
		return catalog.NewDefault(), nil
	}
	def, err := catalog.Load(cfg.CatalogPath)
	if err != nil {
		return nil, err
	}
	return catalog.New(def)
}

// Weights converts cfg into risk weights.
func Weights(cfg *config.Config) (audit.Weights, error) {
	loc, err := cfg.Location()
	if err != nil {
		return audit.Weights{}, fmt.Errorf("invalid timezone %q: %w", cfg.Timezone, err)
	}
	return audit.Weights{
		Normal:         cfg.RiskWeightNormal,
		Sensitive:      cfg.RiskWeightSensitive,
		Critical:       cfg.RiskWeightCritical,
		Read:           cfg.RiskWeightRead,
		Write:          cfg.RiskWeightWrite,
		Delete:         cfg.RiskWeightDelete,
		Admin:          cfg.RiskWeightAdmin,
		Error:          cfg.RiskWeightError,
		Burst:          cfg.RiskWeightBurst,
		OffHours:       cfg.RiskWeightOffHours,
		BurstThreshold: cfg.BurstThreshold,
		BurstWindow:    cfg.BurstWindowDuration(),
		BusinessStart:  cfg.BusinessHoursStart,
		BusinessEnd:    cfg.BusinessHoursEnd,
		Location:       loc,
	}, nil
}

// Thresholds converts cfg into detection thresholds.
func Thresholds(cfg *config.Config) detect.Thresholds {
	th := detect.DefaultThresholds()
	th.SensitiveErrors = cfg.SensitiveErrorAlerts
	th.HighRisk = cfg.HighRiskScore
	th.Burst = cfg.BurstAlertEvents
	th.RapidBurst = cfg.RapidBurstEvents
	th.RapidWindow = cfg.BurstWindowDuration()
	return th
}

// Start launches the background workers. They stop when ctx is done;
// call Close afterwards.
func (e *Engine) Start(ctx context.Context) {
	e.spawn(func() {
		grants.NewSweeper(e.Grants, e.Config.SweepIntervalDuration(), e.Logger.Named("sweeper")).Run(ctx)
	})
	e.spawn(func() {
		detect.NewRunner(e.Detector, e.Config.ScanWindowDuration(), e.Config.ScanIntervalDuration(), e.Logger.Named("detect")).Run(ctx)
	})
	e.spawn(func() {
		e.Recorder.Run(ctx, e.Config.AuditFlushIntervalDuration())
	})
	if e.dispatcher != nil {
		e.spawn(func() { e.dispatcher.Start(ctx) })
	}
	if e.Config.CatalogWatch && e.Config.CatalogPath != "" {
		e.spawn(func() {
			if err := catalog.Watch(ctx, e.Config.CatalogPath, e.Catalog, e.Logger.Named("catalog")); err != nil {
				e.Logger.Error("role catalog watch stopped", zap.Error(err))
			}
		})
	}
}

func (e *Engine) spawn(fn func()) {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		fn()
	}()
}

// Close waits for the workers, flushes buffered audit events and releases
// the stores.
func (e *Engine) Close(ctx context.Context) error {
	e.wg.Wait()
	if e.dispatcher != nil {
		e.dispatcher.Close(ctx)
	}

	var errs []error
	if _, err := e.Recorder.Flush(ctx); err != nil {
		e.Logger.Error("audit events lost in buffer at shutdown",
			zap.Int("pending", e.Recorder.Pending()), zap.Error(err))
		errs = append(errs, err)
	}
	errs = append(errs, e.closeAll())
	return errors.Join(errs...)
}

func (e *Engine) closeAll() error {
	var errs []error
	for i := len(e.closers) - 1; i >= 0; i-- {
		if err := e.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	e.closers = nil
	return errors.Join(errs...)
}

type nopHealth struct{}

func (nopHealth) CheckConnectivity(context.Context) error { return nil }

type healthChecks []store.HealthStore

func (h healthChecks) CheckConnectivity(ctx context.Context) error {
	for _, check := range h {
		if err := check.CheckConnectivity(ctx); err != nil {
			return err
		}
	}
	return nil
}

type gormCloser struct{ db *gorm.DB }

func (g gormCloser) Close() error {
	sqlDB, err := g.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func closeGorm(conn *gorm.DB) {
	_ = gormCloser{conn}.Close()
}
