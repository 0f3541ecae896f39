package store

import (
	"context"

	"github.com/doodlesbykumbi/clinicguard/pkg/model"
)

// RoleStore persists the role catalog.
type RoleStore interface {
	// ListRoles returns every role, including disabled ones.
	ListRoles(ctx context.Context) ([]model.Role, error)

	// SaveRole inserts or replaces r.
	SaveRole(ctx context.Context, r *model.Role) error
}
