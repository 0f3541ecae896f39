package endpoints

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"github.com/doodlesbykumbi/clinicguard/pkg/clock"
	"github.com/doodlesbykumbi/clinicguard/pkg/config"
	"github.com/doodlesbykumbi/clinicguard/pkg/engine"
	"github.com/doodlesbykumbi/clinicguard/pkg/server"
	"github.com/doodlesbykumbi/clinicguard/pkg/server/middleware"
)

type testServer struct {
	*server.Server
	engine *engine.Engine
	clock  *clock.Fake
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	cfg := config.Default()
	cfg.Store = config.StoreMemory
	cfg.Timezone = "UTC"
	cfg.JWTSecret = "endpoint-test-secret"
	cfg.AuditFallbackPath = filepath.Join(t.TempDir(), "audit.log")

	clk := clock.NewFake(time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC))
	e, err := engine.New(context.Background(), cfg, nil, engine.WithClock(clk))
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close(context.Background()) })

	s := server.NewServer(e)
	RegisterAll(s)
	return &testServer{Server: s, engine: e, clock: clk}
}

func (ts *testServer) token(t *testing.T, userID, role string) string {
	t.Helper()
	now := time.Now()
	tok, err := ts.JWTMiddleware.Sign(middleware.Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		},
	})
	require.NoError(t, err)
	return tok
}

// do sends body as JSON with a token for userID/role; an empty userID
// sends no Authorization header.
func (ts *testServer) do(t *testing.T, method, path, userID, role string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if userID != "" {
		req.Header.Set("Authorization", "Bearer "+ts.token(t, userID, role))
	}
	w := httptest.NewRecorder()
	ts.Handler().ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.Equal(t, "application/json", w.Header().Get("Content-Type"))
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), v))
}

func requireStatus(t *testing.T, w *httptest.ResponseRecorder, code int) {
	t.Helper()
	require.Equal(t, code, w.Code, "body: %s", w.Body.String())
}

