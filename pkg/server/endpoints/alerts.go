package endpoints

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/doodlesbykumbi/clinicguard/pkg/apperr"
	"github.com/doodlesbykumbi/clinicguard/pkg/model"
	"github.com/doodlesbykumbi/clinicguard/pkg/server"
	"github.com/doodlesbykumbi/clinicguard/pkg/store"
)

const categorySettings = "settings"

// TransitionRequest is the body of POST /alerts/{id}/transition.
type TransitionRequest struct {
	Status string `json:"status"`
	Notes  string `json:"notes,omitempty"`
}

// ScanRequest is the optional body of POST /alerts/scan.
type ScanRequest struct {
	WindowSeconds int `json:"window_seconds,omitempty"`
}

// RegisterAlertsEndpoints registers the security alert endpoints
func RegisterAlertsEndpoints(s *server.Server) {
	alertsRouter := s.Router.PathPrefix("/alerts").Subrouter()
	alertsRouter.Use(s.JWTMiddleware.Middleware)

	// POST /alerts/scan - Run the detector now
	alertsRouter.HandleFunc("/scan", handleScan(s)).Methods("POST")
	// GET /alerts?status=&actor=&limit= - List alerts
	alertsRouter.HandleFunc("", handleListAlerts(s)).Methods("GET")
	// GET /alerts/{id} - Fetch one alert
	alertsRouter.HandleFunc("/{id}", handleGetAlert(s)).Methods("GET")
	// POST /alerts/{id}/transition - Move an alert through its lifecycle
	alertsRouter.HandleFunc("/{id}/transition", handleTransitionAlert(s)).Methods("POST")
}

func handleScan(s *server.Server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, ok := requirePermission(s, w, r, categorySettings, "update", model.OpAdmin); !ok {
			return
		}

		var body ScanRequest
		if r.ContentLength != 0 {
			if err := decodeJSON(r, &body); err != nil {
				respondWithAppError(w, err)
				return
			}
		}
		window := s.Config.ScanWindowDuration()
		if body.WindowSeconds != 0 {
			window = time.Duration(body.WindowSeconds) * time.Second
		}

		created, err := s.Detector.Scan(r.Context(), window)
		if err != nil {
			respondWithAppError(w, err)
			return
		}
		if created == nil {
			created = []model.SecurityAlert{}
		}
		respondWithJSON(w, http.StatusOK, created)
	}
}

func handleListAlerts(s *server.Server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, ok := requirePermission(s, w, r, categorySettings, "view", model.OpRead); !ok {
			return
		}

		q := r.URL.Query()
		var filter store.AlertFilter
		if v := q.Get("status"); v != "" {
			status, ok := model.ParseAlertStatus(v)
			if !ok {
				respondWithAppError(w, apperr.Validation("unknown alert status %q", v))
				return
			}
			filter.Status = status
		}
		filter.ActorID = q.Get("actor")
		if v := q.Get("limit"); v != "" {
			limit, err := strconv.Atoi(v)
			if err != nil || limit < 0 {
				respondWithAppError(w, apperr.Validation("invalid limit %q", v))
				return
			}
			filter.Limit = limit
		}

		list, err := s.Alerts.List(r.Context(), filter)
		if err != nil {
			respondWithAppError(w, err)
			return
		}
		if list == nil {
			list = []model.SecurityAlert{}
		}
		respondWithJSON(w, http.StatusOK, list)
	}
}

func handleGetAlert(s *server.Server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, ok := requirePermission(s, w, r, categorySettings, "view", model.OpRead); !ok {
			return
		}

		alert, err := s.Alerts.Get(r.Context(), mux.Vars(r)["id"])
		if err != nil {
			respondWithAppError(w, err)
			return
		}
		respondWithJSON(w, http.StatusOK, alert)
	}
}

func handleTransitionAlert(s *server.Server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := requirePermission(s, w, r, categorySettings, "update", model.OpAdmin)
		if !ok {
			return
		}

		var body TransitionRequest
		if err := decodeJSON(r, &body); err != nil {
			respondWithAppError(w, err)
			return
		}
		status, valid := model.ParseAlertStatus(body.Status)
		if !valid {
			respondWithAppError(w, apperr.Validation("unknown alert status %q", body.Status))
			return
		}

		alert, err := s.Alerts.Transition(r.Context(), mux.Vars(r)["id"], status, id.UserID, body.Notes)
		if err != nil {
			respondWithAppError(w, err)
			return
		}
		respondWithJSON(w, http.StatusOK, alert)
	}
}
