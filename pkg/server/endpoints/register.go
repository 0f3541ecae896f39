package endpoints

import (
	"github.com/doodlesbykumbi/clinicguard/pkg/server"
)

// RegisterAll registers all API endpoints on the server
func RegisterAll(srv *server.Server) {
	RegisterStatusEndpoints(srv)
	RegisterWhoamiEndpoint(srv)
	RegisterAuthzEndpoints(srv)
	RegisterGrantsEndpoints(srv)
	RegisterAuditEndpoints(srv)
	RegisterAlertsEndpoints(srv)
	RegisterRolesEndpoints(srv)
}
