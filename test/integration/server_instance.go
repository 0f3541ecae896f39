package integration

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/doodlesbykumbi/clinicguard/pkg/clock"
	"github.com/doodlesbykumbi/clinicguard/pkg/config"
	"github.com/doodlesbykumbi/clinicguard/pkg/engine"
	"github.com/doodlesbykumbi/clinicguard/pkg/server"
	"github.com/doodlesbykumbi/clinicguard/pkg/server/endpoints"
	"github.com/doodlesbykumbi/clinicguard/pkg/server/middleware"
)

// scenarioStart is the store clock at the start of every scenario: a
// Monday morning inside business hours.
var scenarioStart = time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)

// ServerInstance is a clinicguard server for a single scenario, listening
// on a loopback port and driven by a fake clock.
type ServerInstance struct {
	Engine    *engine.Engine
	Server    *server.Server
	Clock     *clock.Fake
	ServerURL string

	http   *httptest.Server
	cancel context.CancelFunc
	tmp    string
}

// StartServer builds an engine over the memory store, or over PostgreSQL
// when databaseURL is set, and serves it.
func StartServer(databaseURL string) (*ServerInstance, error) {
	tmp, err := os.MkdirTemp("", "clinicguard-it-")
	if err != nil {
		return nil, err
	}

	cfg := config.Default()
	cfg.Store = config.StoreMemory
	if databaseURL != "" {
		cfg.Store = config.StorePostgres
		cfg.DatabaseURL = databaseURL
	}
	cfg.Timezone = "UTC"
	cfg.JWTSecret = "integration-secret"
	cfg.AuditFallbackPath = filepath.Join(tmp, "audit.log")

	clk := clock.NewFake(scenarioStart)
	e, err := engine.New(context.Background(), cfg, nil, engine.WithClock(clk))
	if err != nil {
		_ = os.RemoveAll(tmp)
		return nil, fmt.Errorf("failed to build engine: %w", err)
	}

	s := server.NewServer(e)
	endpoints.RegisterAll(s)

	ctx, cancel := context.WithCancel(context.Background())
	e.Start(ctx)

	ts := httptest.NewServer(s.Handler())
	instance := &ServerInstance{
		Engine:    e,
		Server:    s,
		Clock:     clk,
		ServerURL: ts.URL,
		http:      ts,
		cancel:    cancel,
		tmp:       tmp,
	}

	if err := waitForServer(instance.ServerURL, 10*time.Second); err != nil {
		instance.Stop()
		return nil, fmt.Errorf("server failed to become ready: %w", err)
	}
	return instance, nil
}

// Token issues an identity token for userID acting as role that expires
// after ttl of wall clock time. A negative ttl yields an expired token.
func (si *ServerInstance) Token(userID, role string, ttl time.Duration) (string, error) {
	now := time.Now()
	issued := now
	if ttl < 0 {
		issued = now.Add(2 * ttl)
	}
	return si.Server.JWTMiddleware.Sign(middleware.Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(issued),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	})
}

// Stop shuts down the server and flushes the engine.
func (si *ServerInstance) Stop() {
	si.http.Close()
	si.cancel()
	_ = si.Engine.Close(context.Background())
	_ = os.RemoveAll(si.tmp)
}

// waitForServer polls the status endpoint until it responds or times out
func waitForServer(serverURL string, timeout time.Duration) error {
	client := &http.Client{Timeout: 2 * time.Second}
	deadline := time.Now().Add(timeout)

	for time.Now().Before(deadline) {
		resp, err := client.Get(serverURL + "/status")
		if err == nil {
			_ = resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return nil
			}
		}
		time.Sleep(100 * time.Millisecond)
	}

	return fmt.Errorf("server did not become ready within %v", timeout)
}
