// Package grants issues and revokes time-boxed per-user permission
// overrides.
//
// Every successful Grant and Revoke emits exactly one permission_change
// audit event. Expiry is evaluated live by every read; the sweep only
// flips the active flag for reporting.
package grants

import (
	"context"
	"errors"
	"math"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/doodlesbykumbi/clinicguard/pkg/apperr"
	"github.com/doodlesbykumbi/clinicguard/pkg/audit"
	"github.com/doodlesbykumbi/clinicguard/pkg/clock"
	"github.com/doodlesbykumbi/clinicguard/pkg/ids"
	"github.com/doodlesbykumbi/clinicguard/pkg/metrics"
	"github.com/doodlesbykumbi/clinicguard/pkg/model"
	"github.com/doodlesbykumbi/clinicguard/pkg/store"
)

// MaxTTLHours bounds ttlHours so the expiry stays representable.
const MaxTTLHours = 100 * 365 * 24

// DefaultSweepBatch is the number of expired grants handled per store
// round trip.
const DefaultSweepBatch = 500

// Registry reports whether a permission key exists.
type Registry interface {
	Known(category, action string) bool
}

// Auditor records audit events.
type Auditor interface {
	Record(ctx context.Context, s audit.Submission) model.AuditEvent
}

// Request describes a grant to issue.
type Request struct {
	Actor         audit.Actor
	SubjectUserID string
	Category      string
	Action        string
	Decision      model.Decision
	// TTLHours is nil for a grant that never expires.
	TTLHours *float64
	Reason   string
	// Supersedes optionally names an older grant of the same tuple to
	// deactivate in the same write.
	Supersedes string
}

// Service manages permission grants.
type Service struct {
	grants   store.GrantStore
	registry Registry
	audit    Auditor
	clock    clock.Clock
	ids      ids.Generator
	logger   *zap.Logger
}

// NewService returns a Service. clk is the store clock used for grant and
// expiry timestamps.
func NewService(grants store.GrantStore, registry Registry, auditor Auditor, clk clock.Clock, gen ids.Generator, logger *zap.Logger) *Service {
	if clk == nil {
		clk = clock.Real()
	}
	if gen == nil {
		gen = ids.ULID{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{grants: grants, registry: registry, audit: auditor, clock: clk, ids: gen, logger: logger}
}

func (r Request) validate(registry Registry) error {
	if strings.TrimSpace(r.Reason) == "" {
		return ErrInvalidReason
	}
	if r.TTLHours != nil {
		ttl := *r.TTLHours
		if math.IsNaN(ttl) || math.IsInf(ttl, 0) || ttl <= 0 || ttl > MaxTTLHours {
			return ErrInvalidDuration
		}
		if ttlDuration(ttl) < time.Microsecond {
			return ErrInvalidDuration
		}
	}
	if r.SubjectUserID == "" {
		return apperr.Validation("subject user id is required")
	}
	if r.Actor.ID == "" {
		return apperr.Validation("granting actor is required")
	}
	if !r.Decision.Valid() {
		return apperr.Validation("decision must be ALLOW or DENY, got %q", r.Decision)
	}
	if !registry.Known(r.Category, r.Action) {
		return apperr.Validation("unknown permission %s.%s", r.Category, r.Action)
	}
	return nil
}

func ttlDuration(hours float64) time.Duration {
	return time.Duration(hours * float64(time.Hour))
}

// Grant issues a grant. The expiry is computed from the store clock.
func (s *Service) Grant(ctx context.Context, req Request) (*model.PermissionGrant, error) {
	if err := req.validate(s.registry); err != nil {
		return nil, err
	}

	// Grant timestamps are kept at the precision every backend stores.
	now := s.clock.Now().Truncate(time.Microsecond)
	g := &model.PermissionGrant{
		ID:            s.ids.NewID(now),
		SubjectUserID: req.SubjectUserID,
		Category:      req.Category,
		Action:        req.Action,
		Decision:      req.Decision,
		GrantedBy:     req.Actor.ID,
		GrantedAt:     now,
		Reason:        strings.TrimSpace(req.Reason),
		Active:        true,
	}
	if req.TTLHours != nil {
		expires := now.Add(ttlDuration(*req.TTLHours)).Truncate(time.Microsecond)
		g.ExpiresAt = &expires
	}
	if req.Supersedes != "" {
		supersedes := req.Supersedes
		g.Supersedes = &supersedes
	}

	if err := s.grants.InsertGrant(ctx, g, req.Supersedes); err != nil {
		return nil, apperr.Storage("insert grant", err)
	}

	meta := map[string]string{
		model.MetaChange:        model.ChangeGrant,
		model.MetaGrantID:       g.ID,
		model.MetaSubjectUserID: g.SubjectUserID,
		model.MetaGrantCategory: g.Category,
		model.MetaGrantAction:   g.Action,
		model.MetaDecision:      string(g.Decision),
	}
	if req.Supersedes != "" {
		meta[model.MetaSupersedes] = req.Supersedes
	}
	s.record(ctx, req.Actor, g.ID, meta)
	metrics.GrantChanges.WithLabelValues(model.ChangeGrant, string(g.Decision)).Inc()

	s.logger.Info("grant issued",
		zap.String("grant_id", g.ID),
		zap.String("subject_user_id", g.SubjectUserID),
		zap.String("category", g.Category),
		zap.String("action", g.Action),
		zap.String("decision", string(g.Decision)),
		zap.String("granted_by", g.GrantedBy))
	return g, nil
}

// Revoke deactivates a grant. It returns apperr.ErrNotFound for an unknown
// id and ErrAlreadyInactive when the grant was already inactive; the
// latter emits no audit event.
func (s *Service) Revoke(ctx context.Context, actor audit.Actor, grantID, notes string) (*model.PermissionGrant, error) {
	if actor.ID == "" {
		return nil, apperr.Validation("revoking actor is required")
	}

	g, err := s.grants.DeactivateGrant(ctx, grantID, actor.ID, s.clock.Now(), strings.TrimSpace(notes))
	if errors.Is(err, store.ErrInactive) {
		return nil, ErrAlreadyInactive
	}
	if err != nil {
		return nil, apperr.Storage("revoke grant", err)
	}

	s.record(ctx, actor, g.ID, map[string]string{
		model.MetaChange:        model.ChangeRevoke,
		model.MetaGrantID:       g.ID,
		model.MetaSubjectUserID: g.SubjectUserID,
		model.MetaGrantCategory: g.Category,
		model.MetaGrantAction:   g.Action,
		model.MetaDecision:      string(g.Decision),
		model.MetaNotes:         strings.TrimSpace(notes),
	})
	metrics.GrantChanges.WithLabelValues(model.ChangeRevoke, string(g.Decision)).Inc()

	s.logger.Info("grant revoked", zap.String("grant_id", g.ID), zap.String("revoked_by", actor.ID))
	return g, nil
}

func (s *Service) record(ctx context.Context, actor audit.Actor, grantID string, meta map[string]string) {
	s.audit.Record(ctx, actor.Submit(audit.Submission{
		Category:      model.CategoryPermissionChange,
		Operation:     model.OpAdmin,
		ResourceTable: "permission_grants",
		ResourceID:    grantID,
		Outcome:       model.Success(),
		Metadata:      meta,
	}))
}

// ListActive returns the grants of subject effective at asOf.
func (s *Service) ListActive(ctx context.Context, subjectUserID string, asOf time.Time) ([]model.PermissionGrant, error) {
	grants, err := s.grants.ListActive(ctx, subjectUserID, asOf)
	if err != nil {
		return nil, apperr.Storage("list active grants", err)
	}
	return grants, nil
}

// ListHistory returns every grant issued to subject.
func (s *Service) ListHistory(ctx context.Context, subjectUserID string) ([]model.PermissionGrant, error) {
	grants, err := s.grants.ListHistory(ctx, subjectUserID)
	if err != nil {
		return nil, apperr.Storage("list grant history", err)
	}
	return grants, nil
}

// SweepExpired marks grants whose expiry has passed inactive. Failures on
// individual grants are logged and skipped. It returns how many grants
// were marked.
func (s *Service) SweepExpired(ctx context.Context) (int, error) {
	now := s.clock.Now()
	swept := 0
	for {
		batch, err := s.grants.ListExpired(ctx, now, DefaultSweepBatch)
		if err != nil {
			return swept, apperr.Storage("list expired grants", err)
		}

		progress := 0
		for _, g := range batch {
			if err := ctx.Err(); err != nil {
				return swept, err
			}
			if err := s.grants.MarkExpired(ctx, g.ID); err != nil {
				s.logger.Warn("failed to mark grant expired", zap.String("grant_id", g.ID), zap.Error(err))
				continue
			}
			progress++
		}
		swept += progress
		metrics.GrantsSwept.Add(float64(progress))

		if len(batch) < DefaultSweepBatch || progress == 0 {
			break
		}
	}
	if swept > 0 {
		s.logger.Info("expired grants swept", zap.Int("count", swept))
	}
	return swept, nil
}
