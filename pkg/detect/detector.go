// Package detect scans recent audit events for suspicious activity and
// raises security alerts.
//
// Rules are evaluated per actor over the scan window. When several rules
// fire for one actor the alert takes the highest severity and the union of
// their events. Repeated detections within the cooldown update the open
// alert instead of creating another. The detector never resolves alerts.
package detect

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/doodlesbykumbi/clinicguard/pkg/alerts"
	"github.com/doodlesbykumbi/clinicguard/pkg/apperr"
	"github.com/doodlesbykumbi/clinicguard/pkg/clock"
	"github.com/doodlesbykumbi/clinicguard/pkg/model"
	"github.com/doodlesbykumbi/clinicguard/pkg/store"
)

// Raiser creates or updates alerts.
type Raiser interface {
	Raise(ctx context.Context, d alerts.Draft) (model.SecurityAlert, bool, error)
}

// Detector runs the detection rules.
type Detector struct {
	events     store.EventStore
	raiser     Raiser
	roles      RoleMatrix
	thresholds Thresholds
	clock      clock.Clock
	logger     *zap.Logger
}

// NewDetector returns a Detector.
func NewDetector(events store.EventStore, raiser Raiser, roles RoleMatrix, th Thresholds, clk clock.Clock, logger *zap.Logger) *Detector {
	if clk == nil {
		clk = clock.Real()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Detector{events: events, raiser: raiser, roles: roles, thresholds: th, clock: clk, logger: logger}
}

// Scan evaluates the events of the last window and returns the alerts it
// newly created. A failure for one actor is logged and the scan continues.
func (d *Detector) Scan(ctx context.Context, window time.Duration) ([]model.SecurityAlert, error) {
	if window <= 0 {
		return nil, apperr.Validation("scan window must be positive")
	}

	events, err := d.events.ListEventsSince(ctx, d.clock.Now().Add(-window))
	if err != nil {
		return nil, apperr.Storage("list audit events", err)
	}

	byActor := map[string][]model.AuditEvent{}
	for _, e := range events {
		byActor[e.ActorID] = append(byActor[e.ActorID], e)
	}
	actors := make([]string, 0, len(byActor))
	for actor := range byActor {
		actors = append(actors, actor)
	}
	sort.Strings(actors)

	var created []model.SecurityAlert
	for _, actor := range actors {
		if err := ctx.Err(); err != nil {
			return created, err
		}
		findings := Evaluate(byActor[actor], d.thresholds, d.roles)
		if len(findings) == 0 {
			continue
		}

		alert, isNew, err := d.raiser.Raise(ctx, draft(actor, byActor[actor], findings))
		if err != nil {
			d.logger.Error("failed to raise alert", zap.String("actor_id", actor), zap.Error(err))
			continue
		}
		if isNew {
			created = append(created, alert)
		}
	}
	return created, nil
}

// draft merges findings into one alert draft. Event ids keep the order of
// the actor's events.
func draft(actor string, events []model.AuditEvent, findings []Finding) alerts.Draft {
	severity := model.SeverityLow
	rules := make([]string, 0, len(findings))
	details := make([]string, 0, len(findings))
	hit := map[string]bool{}
	for _, f := range findings {
		severity = model.MaxSeverity(severity, f.Severity)
		rules = append(rules, f.Rule)
		details = append(details, fmt.Sprintf("%s: %s", f.Rule, f.Detail))
		for _, id := range f.EventIDs {
			hit[id] = true
		}
	}

	var ids []string
	for _, e := range events {
		if hit[e.ID] {
			ids = append(ids, e.ID)
		}
	}

	return alerts.Draft{
		ActorID:     actor,
		Severity:    severity,
		Title:       fmt.Sprintf("Suspicious activity by %s (%s)", actor, strings.Join(rules, ", ")),
		Description: strings.Join(details, "; "),
		EventIDs:    ids,
		Rules:       rules,
	}
}
