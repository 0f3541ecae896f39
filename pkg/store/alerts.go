package store

import (
	"context"
	"time"

	"github.com/doodlesbykumbi/clinicguard/pkg/model"
)

// AlertFilter narrows ListAlerts. Zero values match everything.
type AlertFilter struct {
	Status  model.AlertStatus
	ActorID string
	Limit   int
}

// AlertStore persists security alerts.
type AlertStore interface {
	// CreateAlert inserts a new alert with Version 1.
	CreateAlert(ctx context.Context, a *model.SecurityAlert) error

	// FetchAlert returns the alert with id or apperr.ErrNotFound.
	FetchAlert(ctx context.Context, id string) (*model.SecurityAlert, error)

	// UpdateAlert writes a if the stored row still has expectedVersion, and
	// bumps a.Version. A stale version yields apperr.ErrConflict.
	UpdateAlert(ctx context.Context, a *model.SecurityAlert, expectedVersion int) error

	// FindOpenAlerts returns non-terminal alerts for actor created at or
	// after since, newest first.
	FindOpenAlerts(ctx context.Context, actorID string, since time.Time) ([]model.SecurityAlert, error)

	// ListAlerts returns alerts newest first.
	ListAlerts(ctx context.Context, filter AlertFilter) ([]model.SecurityAlert, error)
}
