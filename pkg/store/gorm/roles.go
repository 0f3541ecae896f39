package gorm

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/doodlesbykumbi/clinicguard/pkg/apperr"
	"github.com/doodlesbykumbi/clinicguard/pkg/model"
	"github.com/doodlesbykumbi/clinicguard/pkg/store"
)

// Ensure RoleStore implements store.RoleStore
var _ store.RoleStore = (*RoleStore)(nil)

// RoleStore implements store.RoleStore using GORM
type RoleStore struct {
	db *gorm.DB
}

// NewRoleStore creates a new RoleStore
func NewRoleStore(db *gorm.DB) *RoleStore {
	return &RoleStore{db: db}
}

// ListRoles returns all roles ordered by name
func (s *RoleStore) ListRoles(ctx context.Context) ([]model.Role, error) {
	var rows []model.Role
	if err := s.db.WithContext(ctx).Order("name").Find(&rows).Error; err != nil {
		return nil, apperr.Storage("list roles", err)
	}
	return rows, nil
}

// SaveRole upserts a role by name
func (s *RoleStore) SaveRole(ctx context.Context, r *model.Role) error {
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "name"}},
			UpdateAll: true,
		}).
		Create(r).Error
	return apperr.Storage("save role", err)
}
