package endpoints

import (
	"net/http"

	"github.com/doodlesbykumbi/clinicguard/pkg/identity"
	"github.com/doodlesbykumbi/clinicguard/pkg/server"
)

// WhoamiResponse represents the response from the /whoami endpoint
type WhoamiResponse struct {
	UserID   string `json:"user_id"`
	Role     string `json:"role"`
	ClientIP string `json:"client_ip,omitempty"`
	TokenIAT int64  `json:"token_iat,omitempty"`
}

// RegisterWhoamiEndpoint registers the /whoami endpoint
func RegisterWhoamiEndpoint(s *server.Server) {
	whoamiRouter := s.Router.PathPrefix("/whoami").Subrouter()
	whoamiRouter.Use(s.JWTMiddleware.Middleware)

	whoamiRouter.HandleFunc("", handleWhoami()).Methods("GET")
}

func handleWhoami() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := identity.Get(r.Context())
		if !ok {
			respondWithError(w, http.StatusUnauthorized, "Unable to determine identity")
			return
		}

		resp := WhoamiResponse{UserID: id.UserID, Role: id.Role}
		if id.RemoteIP != nil {
			resp.ClientIP = id.RemoteIP.String()
		}
		if !id.IssuedAt.IsZero() {
			resp.TokenIAT = id.IssuedAt.Unix()
		}
		respondWithJSON(w, http.StatusOK, resp)
	}
}
