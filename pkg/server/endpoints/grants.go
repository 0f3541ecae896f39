package endpoints

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/doodlesbykumbi/clinicguard/pkg/apperr"
	"github.com/doodlesbykumbi/clinicguard/pkg/grants"
	"github.com/doodlesbykumbi/clinicguard/pkg/identity"
	"github.com/doodlesbykumbi/clinicguard/pkg/model"
	"github.com/doodlesbykumbi/clinicguard/pkg/server"
)

// GrantRequest is the body of POST /grants.
type GrantRequest struct {
	SubjectUserID string   `json:"subject_user_id"`
	Category      string   `json:"category"`
	Action        string   `json:"action"`
	Decision      string   `json:"decision"`
	TTLHours      *float64 `json:"ttl_hours,omitempty"`
	Reason        string   `json:"reason"`
	Supersedes    string   `json:"supersedes,omitempty"`
}

// RevokeRequest is the body of POST /grants/{id}/revoke.
type RevokeRequest struct {
	Notes string `json:"notes"`
}

// RevokeResponse reports a revocation. AlreadyInactive is set when the
// grant had been revoked or had expired before the call.
type RevokeResponse struct {
	Grant           *model.PermissionGrant `json:"grant,omitempty"`
	AlreadyInactive bool                   `json:"already_inactive,omitempty"`
}

// RegisterGrantsEndpoints registers the permission grant endpoints
func RegisterGrantsEndpoints(s *server.Server) {
	grantsRouter := s.Router.PathPrefix("/grants").Subrouter()
	grantsRouter.Use(s.JWTMiddleware.Middleware)

	// POST /grants - Issue a grant
	grantsRouter.HandleFunc("", handleCreateGrant(s)).Methods("POST")
	// GET /grants?subject=<user>[&history=true] - List a subject's grants
	grantsRouter.HandleFunc("", handleListGrants(s)).Methods("GET")
	// POST /grants/{id}/revoke - Revoke a grant
	grantsRouter.HandleFunc("/{id}/revoke", handleRevokeGrant(s)).Methods("POST")
}

func handleCreateGrant(s *server.Server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := requirePermission(s, w, r, model.CategoryPermissionChange, "grant", model.OpAdmin)
		if !ok {
			return
		}

		var body GrantRequest
		if err := decodeJSON(r, &body); err != nil {
			respondWithAppError(w, err)
			return
		}
		decision, valid := model.ParseDecision(body.Decision)
		if !valid {
			respondWithAppError(w, apperr.Validation("decision must be ALLOW or DENY"))
			return
		}

		g, err := s.Grants.Grant(r.Context(), grants.Request{
			Actor:         id.Actor(),
			SubjectUserID: body.SubjectUserID,
			Category:      body.Category,
			Action:        body.Action,
			Decision:      decision,
			TTLHours:      body.TTLHours,
			Reason:        body.Reason,
			Supersedes:    body.Supersedes,
		})
		if err != nil {
			respondWithAppError(w, err)
			return
		}
		respondWithJSON(w, http.StatusCreated, g)
	}
}

func handleListGrants(s *server.Server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		subject := r.URL.Query().Get("subject")
		if subject == "" {
			respondWithAppError(w, apperr.Validation("subject is required"))
			return
		}
		// Anyone may list their own grants; listing another user's needs
		// the right to grant.
		if id, _ := identity.Get(r.Context()); id == nil || id.UserID != subject {
			if _, ok := requirePermission(s, w, r, model.CategoryPermissionChange, "grant", model.OpRead); !ok {
				return
			}
		}

		history, _ := strconv.ParseBool(r.URL.Query().Get("history"))
		var (
			list []model.PermissionGrant
			err  error
		)
		if history {
			list, err = s.Grants.ListHistory(r.Context(), subject)
		} else {
			list, err = s.Grants.ListActive(r.Context(), subject, s.Clock.Now())
		}
		if err != nil {
			respondWithAppError(w, err)
			return
		}
		if list == nil {
			list = []model.PermissionGrant{}
		}
		respondWithJSON(w, http.StatusOK, list)
	}
}

func handleRevokeGrant(s *server.Server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := requirePermission(s, w, r, model.CategoryPermissionChange, "revoke", model.OpAdmin)
		if !ok {
			return
		}

		var body RevokeRequest
		if r.ContentLength != 0 {
			if err := decodeJSON(r, &body); err != nil {
				respondWithAppError(w, err)
				return
			}
		}

		g, err := s.Grants.Revoke(r.Context(), id.Actor(), mux.Vars(r)["id"], body.Notes)
		if errors.Is(err, grants.ErrAlreadyInactive) {
			respondWithJSON(w, http.StatusOK, RevokeResponse{AlreadyInactive: true})
			return
		}
		if err != nil {
			respondWithAppError(w, err)
			return
		}
		respondWithJSON(w, http.StatusOK, RevokeResponse{Grant: g})
	}
}
