// Package store defines the storage contracts of the authorization and
// audit engine.
//
// The engine packages depend only on these interfaces, so the backend can
// be swapped without touching resolution or detection logic.
//
// # Available Stores
//
//   - GrantStore: permission grants with per-tuple serialized writes
//   - EventStore: append-only audit events
//   - AlertStore: security alerts with version compare-and-set
//   - RoleStore: role catalog persistence
//
// # Implementations
//
//   - store/memory: in-process, used by tests and `clinicctl server --memory`
//   - store/gorm: PostgreSQL via GORM
//   - audit.SQLStore: PostgreSQL EventStore over database/sql
//
// # Usage
//
//	grants := gormstore.NewGrantStore(db)
//	active, err := grants.ListActive(ctx, "u1", time.Now())
//	if errors.Is(err, apperr.ErrStorage) {
//	    // backend unavailable
//	}
package store
