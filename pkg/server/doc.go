// Package server provides the HTTP surface of clinicguard.
//
// The server maps one route to each engine operation. It uses gorilla/mux
// for routing, gorilla/handlers for access logging and panic recovery, and
// validates HS256 identity tokens carrying the caller's user id (sub) and
// clinic role (role).
//
// # Server Setup
//
//	e, err := engine.New(ctx, cfg, logger)
//	srv := server.NewServer(e)
//	endpoints.RegisterAll(srv)
//	if err := srv.Start(); err != nil {
//	    log.Fatal(err)
//	}
//
// # Endpoints
//
//   - POST /authz/resolve
//   - POST /grants, GET /grants?subject=, POST /grants/{id}/revoke
//   - POST /audit/events
//   - POST /alerts/scan, GET /alerts, GET /alerts/{id}, POST /alerts/{id}/transition
//   - GET /roles, PUT /roles/{name}, POST /roles/{name}/disable, POST /roles/{name}/enable
//   - GET /status, GET /metrics
package server
