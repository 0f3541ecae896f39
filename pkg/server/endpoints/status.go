package endpoints

import (
	"net/http"
	"os"

	"go.uber.org/zap"

	"github.com/doodlesbykumbi/clinicguard/pkg/metrics"
	"github.com/doodlesbykumbi/clinicguard/pkg/server"
)

// StatusResponse is the body of GET /status.
type StatusResponse struct {
	Status        string `json:"status"`
	Version       string `json:"version"`
	Database      string `json:"database"`
	PendingEvents int    `json:"pending_audit_events"`
}

// RegisterStatusEndpoints registers the status and metrics endpoints
func RegisterStatusEndpoints(s *server.Server) {
	// GET /status - Liveness and store connectivity (no auth required)
	s.Router.HandleFunc("/status", handleStatus(s)).Methods("GET")

	// GET /metrics - Prometheus exposition (no auth required)
	s.Router.Handle("/metrics", metrics.Handler()).Methods("GET")
}

func handleStatus(s *server.Server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		version := os.Getenv("CLINICGUARD_VERSION_DISPLAY")
		if version == "" {
			version = "0.1.0"
		}

		resp := StatusResponse{
			Status:        "ok",
			Version:       version,
			Database:      "ok",
			PendingEvents: s.Recorder.Pending(),
		}
		if err := s.HealthStore.CheckConnectivity(r.Context()); err != nil {
			s.Logger.Warn("health check failed", zap.Error(err))
			resp.Status = "degraded"
			resp.Database = "unreachable"
			respondWithJSON(w, http.StatusServiceUnavailable, resp)
			return
		}
		respondWithJSON(w, http.StatusOK, resp)
	}
}
