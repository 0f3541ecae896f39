// Package model defines the records shared by the authorization and audit
// packages.
//
// The structs double as GORM models and map onto the schema in
// db/migrations.
//
// # Core Models
//
//   - Role: a clinic role with its hierarchy level and permission matrix
//   - PermissionGrant: a time-boxed per-user override (ALLOW or DENY)
//   - AuditEvent: an append-only record of a sensitive operation
//   - SecurityAlert: a detector-raised alert tracked through its lifecycle
//
// # Database Schema
//
//   - roles: role catalog rows, matrix stored as JSON
//   - permission_grants: every grant ever issued, never deleted
//   - audit_events: append-only, indexed by (actor_id, timestamp)
//   - security_alerts: alerts with a version column for compare-and-set
package model
