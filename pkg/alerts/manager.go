// Package alerts manages security alerts: raising them with dedupe against
// recent open alerts, and moving them through the lifecycle
//
//	OPEN → INVESTIGATING → {RESOLVED, FALSE_POSITIVE}
//	OPEN → {RESOLVED, FALSE_POSITIVE}
//
// Writes use a version compare-and-set, so concurrent scans and operators
// never overwrite each other.
package alerts

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/doodlesbykumbi/clinicguard/pkg/apperr"
	"github.com/doodlesbykumbi/clinicguard/pkg/clock"
	"github.com/doodlesbykumbi/clinicguard/pkg/ids"
	"github.com/doodlesbykumbi/clinicguard/pkg/metrics"
	"github.com/doodlesbykumbi/clinicguard/pkg/model"
	"github.com/doodlesbykumbi/clinicguard/pkg/store"
)

// DefaultCooldown is how long an open alert absorbs new detections of the
// same pattern for the same actor.
const DefaultCooldown = time.Hour

const maxAttempts = 5

// Draft is a detection to raise as an alert.
type Draft struct {
	ActorID     string
	Severity    model.Severity
	Title       string
	Description string
	EventIDs    []string
	Rules       []string
}

// Manager owns every write to alert rows.
type Manager struct {
	alerts   store.AlertStore
	clock    clock.Clock
	ids      ids.Generator
	notifier Notifier
	cooldown time.Duration
	logger   *zap.Logger
}

// Options configures a Manager. Zero fields take defaults.
type Options struct {
	Clock    clock.Clock
	IDs      ids.Generator
	Notifier Notifier
	Cooldown time.Duration
	Logger   *zap.Logger
}

// NewManager returns a Manager over alerts.
func NewManager(alerts store.AlertStore, opts Options) *Manager {
	m := &Manager{
		alerts:   alerts,
		clock:    opts.Clock,
		ids:      opts.IDs,
		notifier: opts.Notifier,
		cooldown: opts.Cooldown,
		logger:   opts.Logger,
	}
	if m.clock == nil {
		m.clock = clock.Real()
	}
	if m.ids == nil {
		m.ids = ids.ULID{}
	}
	if m.notifier == nil {
		m.notifier = NopNotifier{}
	}
	if m.cooldown <= 0 {
		m.cooldown = DefaultCooldown
	}
	if m.logger == nil {
		m.logger = zap.NewNop()
	}
	return m
}

// Raise creates an alert for d, or folds d into a non-terminal alert for
// the same actor created within the cooldown whose rules overlap d's. A
// folded alert gains the new event ids, in order and without duplicates,
// and takes the higher severity. created reports whether a new alert was
// made.
func (m *Manager) Raise(ctx context.Context, d Draft) (alert model.SecurityAlert, created bool, err error) {
	for attempt := 0; attempt < maxAttempts; attempt++ {
		alert, created, err = m.raise(ctx, d)
		if !errors.Is(err, apperr.ErrConflict) {
			return alert, created, err
		}
	}
	return alert, created, err
}

func (m *Manager) raise(ctx context.Context, d Draft) (model.SecurityAlert, bool, error) {
	now := m.clock.Now()

	open, err := m.alerts.FindOpenAlerts(ctx, d.ActorID, now.Add(-m.cooldown))
	if err != nil {
		return model.SecurityAlert{}, false, apperr.Storage("find open alerts", err)
	}
	for _, existing := range open {
		if !overlaps(existing.Rules, d.Rules) {
			continue
		}
		return m.fold(ctx, existing, d, now)
	}

	alert := model.SecurityAlert{
		ID:                 m.ids.NewID(now),
		CreatedAt:          now,
		UpdatedAt:          now,
		ActorID:            d.ActorID,
		Severity:           d.Severity,
		Title:              d.Title,
		Description:        d.Description,
		Status:             model.StatusOpen,
		TriggeringEventIDs: union(nil, d.EventIDs),
		Rules:              union(nil, d.Rules),
	}
	if err := m.alerts.CreateAlert(ctx, &alert); err != nil {
		return model.SecurityAlert{}, false, apperr.Storage("create alert", err)
	}

	metrics.AlertsCreated.WithLabelValues(string(alert.Severity)).Inc()
	m.logger.Warn("security alert raised",
		zap.String("alert_id", alert.ID),
		zap.String("actor_id", alert.ActorID),
		zap.String("severity", string(alert.Severity)),
		zap.Strings("rules", alert.Rules))
	m.notify(ctx, Notification{Kind: KindCreated, Alert: alert})
	return alert, true, nil
}

func (m *Manager) fold(ctx context.Context, existing model.SecurityAlert, d Draft, now time.Time) (model.SecurityAlert, bool, error) {
	eventIDs := union(existing.TriggeringEventIDs, d.EventIDs)
	rules := union(existing.Rules, d.Rules)
	severity := model.MaxSeverity(existing.Severity, d.Severity)
	if len(eventIDs) == len(existing.TriggeringEventIDs) && len(rules) == len(existing.Rules) && severity == existing.Severity {
		return existing, false, nil
	}

	escalated := severity != existing.Severity
	updated := existing.Clone()
	updated.TriggeringEventIDs = eventIDs
	updated.Rules = rules
	updated.Severity = severity
	updated.UpdatedAt = now
	if escalated || len(rules) != len(existing.Rules) {
		updated.Title = d.Title
		updated.Description = d.Description
	}
	if err := m.alerts.UpdateAlert(ctx, &updated, existing.Version); err != nil {
		return model.SecurityAlert{}, false, apperr.Storage("update alert", err)
	}

	m.logger.Info("security alert updated",
		zap.String("alert_id", updated.ID),
		zap.Int("events", len(updated.TriggeringEventIDs)),
		zap.String("severity", string(updated.Severity)))
	if escalated {
		m.notify(ctx, Notification{Kind: KindEscalated, Alert: updated})
	}
	return updated, false, nil
}

// Transition moves alert id to status on behalf of operator. Terminal
// states require notes, and set resolvedAt and resolutionNotes once.
func (m *Manager) Transition(ctx context.Context, id string, to model.AlertStatus, operator, notes string) (model.SecurityAlert, error) {
	operator = strings.TrimSpace(operator)
	notes = strings.TrimSpace(notes)
	if operator == "" {
		return model.SecurityAlert{}, ErrOperatorRequired
	}
	if !to.Valid() {
		return model.SecurityAlert{}, apperr.Validation("unknown alert status %q", to)
	}
	if to.Terminal() && notes == "" {
		return model.SecurityAlert{}, ErrNotesRequired
	}

	var err error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		var alert model.SecurityAlert
		alert, err = m.transition(ctx, id, to, operator, notes)
		if err == nil {
			metrics.AlertTransitions.WithLabelValues(string(to)).Inc()
			m.logger.Info("security alert transitioned",
				zap.String("alert_id", id),
				zap.String("status", string(to)),
				zap.String("operator", operator))
			return alert, nil
		}
		if !errors.Is(err, apperr.ErrConflict) {
			break
		}
	}
	return model.SecurityAlert{}, err
}

func (m *Manager) transition(ctx context.Context, id string, to model.AlertStatus, operator, notes string) (model.SecurityAlert, error) {
	current, err := m.alerts.FetchAlert(ctx, id)
	if err != nil {
		return model.SecurityAlert{}, apperr.Storage("fetch alert", err)
	}
	if !CanTransition(current.Status, to) {
		return model.SecurityAlert{}, fmt.Errorf("%w: %s to %s", ErrInvalidTransition, current.Status, to)
	}

	now := m.clock.Now()
	updated := current.Clone()
	updated.Status = to
	updated.UpdatedAt = now
	updated.UpdatedBy = &operator
	if to.Terminal() {
		updated.ResolvedAt = &now
		updated.ResolutionNotes = &notes
	}
	if err := m.alerts.UpdateAlert(ctx, &updated, current.Version); err != nil {
		return model.SecurityAlert{}, apperr.Storage("update alert", err)
	}
	return updated, nil
}

// Get returns alert id.
func (m *Manager) Get(ctx context.Context, id string) (model.SecurityAlert, error) {
	a, err := m.alerts.FetchAlert(ctx, id)
	if err != nil {
		return model.SecurityAlert{}, apperr.Storage("fetch alert", err)
	}
	return *a, nil
}

// List returns alerts matching filter, newest first.
func (m *Manager) List(ctx context.Context, filter store.AlertFilter) ([]model.SecurityAlert, error) {
	out, err := m.alerts.ListAlerts(ctx, filter)
	if err != nil {
		return nil, apperr.Storage("list alerts", err)
	}
	return out, nil
}

func (m *Manager) notify(ctx context.Context, n Notification) {
	if err := m.notifier.Notify(ctx, n); err != nil {
		m.logger.Warn("alert notification failed", zap.String("alert_id", n.Alert.ID), zap.Error(err))
	}
}

func overlaps(a, b []string) bool {
	for _, x := range a {
		for _, y := range b {
			if x == y {
				return true
			}
		}
	}
	return false
}

// union appends the elements of add missing from base, keeping order.
func union(base, add []string) model.StringList {
	out := make(model.StringList, 0, len(base)+len(add))
	seen := make(map[string]bool, len(base)+len(add))
	for _, list := range [][]string{base, add} {
		for _, v := range list {
			if !seen[v] {
				seen[v] = true
				out = append(out, v)
			}
		}
	}
	return out
}
