package gorm

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/doodlesbykumbi/clinicguard/pkg/apperr"
	"github.com/doodlesbykumbi/clinicguard/pkg/model"
	"github.com/doodlesbykumbi/clinicguard/pkg/store"
)

// Ensure GrantStore implements store.GrantStore
var _ store.GrantStore = (*GrantStore)(nil)

// effectivePredicate must stay equivalent to model.PermissionGrant.EffectiveAt.
const effectivePredicate = `active = true AND (expires_at IS NULL OR expires_at > ?)`

// GrantStore implements store.GrantStore using GORM
type GrantStore struct {
	db *gorm.DB
}

// NewGrantStore creates a new GrantStore
func NewGrantStore(db *gorm.DB) *GrantStore {
	return &GrantStore{db: db}
}

// InsertGrant claims the next sequence number for the grant's tuple and
// inserts it, deactivating the superseded grant in the same transaction.
func (s *GrantStore) InsertGrant(ctx context.Context, g *model.PermissionGrant, supersedes string) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var seq int64
		err := tx.Raw(`
			SELECT COALESCE(MAX(seq), 0) FROM permission_grants
			WHERE subject_user_id = ? AND category = ? AND action = ?
		`, g.SubjectUserID, g.Category, g.Action).Scan(&seq).Error
		if err != nil {
			return err
		}
		g.Seq = seq + 1

		if supersedes != "" {
			res := tx.Model(&model.PermissionGrant{}).
				Where("id = ? AND subject_user_id = ? AND category = ? AND action = ?",
					supersedes, g.SubjectUserID, g.Category, g.Action).
				Update("active", false)
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				return apperr.NotFound("superseded grant %s for this permission", supersedes)
			}
		}

		return tx.Create(g).Error
	})
	if isUniqueViolation(err) {
		return apperr.Conflict("concurrent grant on %s/%s for %s", g.Category, g.Action, g.SubjectUserID)
	}
	return apperr.Storage("insert grant", err)
}

// FetchGrant retrieves a grant by id
func (s *GrantStore) FetchGrant(ctx context.Context, id string) (*model.PermissionGrant, error) {
	var g model.PermissionGrant
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&g).Error
	if isNotFound(err) {
		return nil, apperr.NotFound("grant %s", id)
	}
	if err != nil {
		return nil, apperr.Storage("fetch grant", err)
	}
	return &g, nil
}

// DeactivateGrant is a conditional update on active = true, so two revokes
// racing on one grant cannot both succeed.
func (s *GrantStore) DeactivateGrant(ctx context.Context, id string, revokedBy string, revokedAt time.Time, notes string) (*model.PermissionGrant, error) {
	updates := map[string]interface{}{
		"active":     false,
		"revoked_by": revokedBy,
		"revoked_at": revokedAt,
	}
	if notes != "" {
		updates["revoke_notes"] = notes
	}

	res := s.db.WithContext(ctx).Model(&model.PermissionGrant{}).
		Where("id = ? AND active = ?", id, true).
		Updates(updates)
	if res.Error != nil {
		return nil, apperr.Storage("deactivate grant", res.Error)
	}

	g, err := s.FetchGrant(ctx, id)
	if err != nil {
		return nil, err
	}
	if res.RowsAffected == 0 {
		return nil, store.ErrInactive
	}
	return g, nil
}

// ListActive returns the subject's grants effective at asOf
func (s *GrantStore) ListActive(ctx context.Context, subjectUserID string, asOf time.Time) ([]model.PermissionGrant, error) {
	var rows []model.PermissionGrant
	err := s.db.WithContext(ctx).
		Where("subject_user_id = ? AND "+effectivePredicate, subjectUserID, asOf).
		Order("granted_at, seq").
		Find(&rows).Error
	if err != nil {
		return nil, apperr.Storage("list active grants", err)
	}
	return effectiveOnly(rows, asOf), nil
}

// ListEffective returns the grants effective at asOf for one tuple
func (s *GrantStore) ListEffective(ctx context.Context, tuple model.Tuple, asOf time.Time) ([]model.PermissionGrant, error) {
	var rows []model.PermissionGrant
	err := s.db.WithContext(ctx).
		Where("subject_user_id = ? AND category = ? AND action = ? AND "+effectivePredicate,
			tuple.SubjectUserID, tuple.Category, tuple.Action, asOf).
		Order("granted_at, seq").
		Find(&rows).Error
	if err != nil {
		return nil, apperr.Storage("list effective grants", err)
	}
	return effectiveOnly(rows, asOf), nil
}

// ListHistory returns every grant of a subject, oldest first
func (s *GrantStore) ListHistory(ctx context.Context, subjectUserID string) ([]model.PermissionGrant, error) {
	var rows []model.PermissionGrant
	err := s.db.WithContext(ctx).
		Where("subject_user_id = ?", subjectUserID).
		Order("granted_at, seq").
		Find(&rows).Error
	if err != nil {
		return nil, apperr.Storage("list grant history", err)
	}
	return rows, nil
}

// ListExpired returns active grants whose expiry has passed
func (s *GrantStore) ListExpired(ctx context.Context, asOf time.Time, limit int) ([]model.PermissionGrant, error) {
	q := s.db.WithContext(ctx).
		Where("active = ? AND expires_at IS NOT NULL AND expires_at <= ?", true, asOf).
		Order("expires_at")
	if limit > 0 {
		q = q.Limit(limit)
	}

	var rows []model.PermissionGrant
	if err := q.Find(&rows).Error; err != nil {
		return nil, apperr.Storage("list expired grants", err)
	}
	return rows, nil
}

// MarkExpired flags a grant inactive
func (s *GrantStore) MarkExpired(ctx context.Context, id string) error {
	err := s.db.WithContext(ctx).Model(&model.PermissionGrant{}).
		Where("id = ?", id).
		Update("active", false).Error
	return apperr.Storage("mark grant expired", err)
}

func effectiveOnly(rows []model.PermissionGrant, asOf time.Time) []model.PermissionGrant {
	out := rows[:0]
	for _, g := range rows {
		if g.EffectiveAt(asOf) {
			out = append(out, g)
		}
	}
	return out
}
