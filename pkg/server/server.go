package server

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/doodlesbykumbi/clinicguard/pkg/alerts"
	"github.com/doodlesbykumbi/clinicguard/pkg/audit"
	"github.com/doodlesbykumbi/clinicguard/pkg/authz"
	"github.com/doodlesbykumbi/clinicguard/pkg/catalog"
	"github.com/doodlesbykumbi/clinicguard/pkg/clock"
	"github.com/doodlesbykumbi/clinicguard/pkg/config"
	"github.com/doodlesbykumbi/clinicguard/pkg/detect"
	"github.com/doodlesbykumbi/clinicguard/pkg/engine"
	"github.com/doodlesbykumbi/clinicguard/pkg/grants"
	"github.com/doodlesbykumbi/clinicguard/pkg/metrics"
	"github.com/doodlesbykumbi/clinicguard/pkg/server/middleware"
	"github.com/doodlesbykumbi/clinicguard/pkg/store"
)

type Server struct {
	Config  *config.Config
	Logger  *zap.Logger
	Clock   clock.Clock
	Router  *mux.Router
	Catalog *catalog.Catalog

	Resolver    *authz.Resolver
	Grants      *grants.Service
	Recorder    *audit.Recorder
	Alerts      *alerts.Manager
	Detector    *detect.Detector
	Roles       *catalog.Admin
	HealthStore store.HealthStore

	JWTMiddleware *middleware.JWTAuthenticator

	srv *http.Server
}

// NewServer exposes e over HTTP at cfg.ListenAddress.
func NewServer(e *engine.Engine) *Server {
	router := mux.NewRouter()
	router.Use(metrics.Instrument)

	srv := &http.Server{
		Handler: handlers.RecoveryHandler()(handlers.CombinedLoggingHandler(os.Stdout, router)),
		Addr:    e.Config.ListenAddress,
		// Good practice: enforce timeouts for servers you create!
		WriteTimeout: 15 * time.Second,
		ReadTimeout:  15 * time.Second,
	}

	return &Server{
		Config:        e.Config,
		Logger:        e.Logger.Named("http"),
		Clock:         e.Clock,
		Router:        router,
		Catalog:       e.Catalog,
		Resolver:      e.Resolver,
		Grants:        e.Grants,
		Recorder:      e.Recorder,
		Alerts:        e.Alerts,
		Detector:      e.Detector,
		Roles:         e.Roles,
		HealthStore:   e.Stores.Health,
		JWTMiddleware: middleware.NewJWTAuthenticator([]byte(e.Config.JWTSecret), e.Config),
		srv:           srv,
	}
}

// Handler returns the root handler, for tests.
func (s *Server) Handler() http.Handler {
	return s.srv.Handler
}

func (s *Server) Start() error {
	return s.srv.ListenAndServe()
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
