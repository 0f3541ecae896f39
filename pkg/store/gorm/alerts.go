package gorm

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/doodlesbykumbi/clinicguard/pkg/apperr"
	"github.com/doodlesbykumbi/clinicguard/pkg/model"
	"github.com/doodlesbykumbi/clinicguard/pkg/store"
)

// Ensure AlertStore implements store.AlertStore
var _ store.AlertStore = (*AlertStore)(nil)

// AlertStore implements store.AlertStore using GORM
type AlertStore struct {
	db *gorm.DB
}

// NewAlertStore creates a new AlertStore
func NewAlertStore(db *gorm.DB) *AlertStore {
	return &AlertStore{db: db}
}

// CreateAlert inserts a new alert
func (s *AlertStore) CreateAlert(ctx context.Context, a *model.SecurityAlert) error {
	a.Version = 1
	err := s.db.WithContext(ctx).Create(a).Error
	if isUniqueViolation(err) {
		return apperr.Conflict("alert %s already exists", a.ID)
	}
	return apperr.Storage("create alert", err)
}

// FetchAlert retrieves an alert by id
func (s *AlertStore) FetchAlert(ctx context.Context, id string) (*model.SecurityAlert, error) {
	var a model.SecurityAlert
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&a).Error
	if isNotFound(err) {
		return nil, apperr.NotFound("alert %s", id)
	}
	if err != nil {
		return nil, apperr.Storage("fetch alert", err)
	}
	return &a, nil
}

// UpdateAlert writes every mutable column when the version still matches
func (s *AlertStore) UpdateAlert(ctx context.Context, a *model.SecurityAlert, expectedVersion int) error {
	res := s.db.WithContext(ctx).Model(&model.SecurityAlert{}).
		Where("id = ? AND version = ?", a.ID, expectedVersion).
		Updates(map[string]interface{}{
			"updated_at":           a.UpdatedAt,
			"severity":             a.Severity,
			"title":                a.Title,
			"description":          a.Description,
			"status":               a.Status,
			"triggering_event_ids": a.TriggeringEventIDs,
			"rules":                a.Rules,
			"resolved_at":          a.ResolvedAt,
			"resolution_notes":     a.ResolutionNotes,
			"updated_by":           a.UpdatedBy,
			"version":              expectedVersion + 1,
		})
	if res.Error != nil {
		return apperr.Storage("update alert", res.Error)
	}
	if res.RowsAffected == 0 {
		if _, err := s.FetchAlert(ctx, a.ID); err != nil {
			return err
		}
		return apperr.Conflict("alert %s changed concurrently", a.ID)
	}
	a.Version = expectedVersion + 1
	return nil
}

// FindOpenAlerts returns non-terminal alerts for an actor since a point in time
func (s *AlertStore) FindOpenAlerts(ctx context.Context, actorID string, since time.Time) ([]model.SecurityAlert, error) {
	var rows []model.SecurityAlert
	err := s.db.WithContext(ctx).
		Where("actor_id = ? AND status IN ? AND created_at >= ?",
			actorID, []string{string(model.StatusOpen), string(model.StatusInvestigating)}, since).
		Order("created_at desc").
		Find(&rows).Error
	if err != nil {
		return nil, apperr.Storage("find open alerts", err)
	}
	return rows, nil
}

// ListAlerts returns alerts newest first
func (s *AlertStore) ListAlerts(ctx context.Context, filter store.AlertFilter) ([]model.SecurityAlert, error) {
	q := s.db.WithContext(ctx).Order("created_at desc")
	if filter.Status != "" {
		q = q.Where("status = ?", string(filter.Status))
	}
	if filter.ActorID != "" {
		q = q.Where("actor_id = ?", filter.ActorID)
	}
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}

	var rows []model.SecurityAlert
	if err := q.Find(&rows).Error; err != nil {
		return nil, apperr.Storage("list alerts", err)
	}
	return rows, nil
}
