package endpoints

import (
	"net/http"

	"github.com/doodlesbykumbi/clinicguard/pkg/apperr"
	"github.com/doodlesbykumbi/clinicguard/pkg/authz"
	"github.com/doodlesbykumbi/clinicguard/pkg/identity"
	"github.com/doodlesbykumbi/clinicguard/pkg/model"
	"github.com/doodlesbykumbi/clinicguard/pkg/server"
)

// RegisterAuthzEndpoints registers the resolution endpoint
func RegisterAuthzEndpoints(s *server.Server) {
	authzRouter := s.Router.PathPrefix("/authz").Subrouter()
	authzRouter.Use(s.JWTMiddleware.Middleware)

	// POST /authz/resolve - Resolve a permission for a subject. Callers may
	// resolve their own permissions; any other subject or role requires
	// permission_change.grant.
	authzRouter.HandleFunc("/resolve", handleResolve(s)).Methods("POST")
}

func handleResolve(s *server.Server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req authz.Request
		if err := decodeJSON(r, &req); err != nil {
			respondWithAppError(w, err)
			return
		}
		if req.SubjectUserID == "" || req.Category == "" || req.Action == "" {
			respondWithAppError(w, apperr.Validation("subject_user_id, category and action are required"))
			return
		}

		id, ok := identity.Get(r.Context())
		if !ok {
			respondWithError(w, http.StatusUnauthorized, "Unable to determine identity")
			return
		}
		if req.SubjectRole == "" && req.SubjectUserID == id.UserID {
			req.SubjectRole = id.Role
		}
		if req.SubjectUserID != id.UserID || req.SubjectRole != id.Role {
			if _, ok := requirePermission(s, w, r, model.CategoryPermissionChange, "grant", model.OpRead); !ok {
				return
			}
		}

		if req.AsOf.IsZero() {
			req.AsOf = s.Clock.Now()
		}

		res, err := s.Resolver.Resolve(r.Context(), req)
		if err != nil {
			// The resolution is still DENY; callers reading only the
			// status code fail closed too.
			respondWithJSON(w, statusFor(err), map[string]interface{}{
				"error":      err.Error(),
				"resolution": res,
			})
			return
		}
		respondWithJSON(w, http.StatusOK, res)
	}
}
