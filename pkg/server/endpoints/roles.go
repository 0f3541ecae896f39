package endpoints

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/doodlesbykumbi/clinicguard/pkg/apperr"
	"github.com/doodlesbykumbi/clinicguard/pkg/model"
	"github.com/doodlesbykumbi/clinicguard/pkg/server"
)

// RoleRequest is the body of PUT /roles/{name}.
type RoleRequest struct {
	HierarchyLevel int         `json:"hierarchy_level"`
	Manages        []string    `json:"manages,omitempty"`
	Matrix         model.Matrix `json:"matrix"`
}

// RegisterRolesEndpoints registers the role catalog endpoints
func RegisterRolesEndpoints(s *server.Server) {
	rolesRouter := s.Router.PathPrefix("/roles").Subrouter()
	rolesRouter.Use(s.JWTMiddleware.Middleware)

	// GET /roles - List roles with their matrices; requires settings.view
	rolesRouter.HandleFunc("", handleListRoles(s)).Methods("GET")
	// PUT /roles/{name} - Create or replace a role
	rolesRouter.HandleFunc("/{name}", handlePutRole(s)).Methods("PUT")
	// POST /roles/{name}/disable, /roles/{name}/enable - Toggle a role
	rolesRouter.HandleFunc("/{name}/disable", handleSetRoleDisabled(s, true)).Methods("POST")
	rolesRouter.HandleFunc("/{name}/enable", handleSetRoleDisabled(s, false)).Methods("POST")
}

func handleListRoles(s *server.Server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, ok := requirePermission(s, w, r, categorySettings, "view", model.OpRead); !ok {
			return
		}
		respondWithJSON(w, http.StatusOK, map[string]interface{}{
			"categories": s.Catalog.Categories(),
			"roles":      s.Catalog.Roles(),
		})
	}
}

func handlePutRole(s *server.Server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := requirePermission(s, w, r, model.CategoryPermissionChange, "manage_roles", model.OpAdmin)
		if !ok {
			return
		}

		var body RoleRequest
		if err := decodeJSON(r, &body); err != nil {
			respondWithAppError(w, err)
			return
		}
		name := mux.Vars(r)["name"]
		if name == "" {
			respondWithAppError(w, apperr.Validation("role name is required"))
			return
		}

		role, err := s.Roles.UpsertRole(r.Context(), id.Actor(), model.Role{
			Name:           name,
			HierarchyLevel: body.HierarchyLevel,
			Manages:        body.Manages,
			Matrix:         body.Matrix,
		})
		if err != nil {
			respondWithAppError(w, err)
			return
		}
		respondWithJSON(w, http.StatusOK, role)
	}
}

func handleSetRoleDisabled(s *server.Server, disabled bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := requirePermission(s, w, r, model.CategoryPermissionChange, "manage_roles", model.OpAdmin)
		if !ok {
			return
		}

		role, err := s.Roles.SetDisabled(r.Context(), id.Actor(), mux.Vars(r)["name"], disabled)
		if err != nil {
			respondWithAppError(w, err)
			return
		}
		respondWithJSON(w, http.StatusOK, role)
	}
}
