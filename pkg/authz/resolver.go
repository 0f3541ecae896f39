// Package authz resolves whether a user may perform an action on a
// permission category.
//
// Resolution checks, most specific first: effective per-user grants (an
// explicit DENY always wins, otherwise the latest ALLOW), then the role
// matrix, then default-deny. Unknown categories and actions are always
// denied.
package authz

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/doodlesbykumbi/clinicguard/pkg/metrics"
	"github.com/doodlesbykumbi/clinicguard/pkg/model"
	"github.com/doodlesbykumbi/clinicguard/pkg/store"
)

// RoleMatrix answers catalog questions for the resolver.
type RoleMatrix interface {
	Known(category, action string) bool
	Lookup(role, category, action string) (allowed bool, present bool)
}

// Request identifies one resolution.
type Request struct {
	SubjectUserID string    `json:"subject_user_id"`
	SubjectRole   string    `json:"subject_role"`
	Category      string    `json:"category"`
	Action        string    `json:"action"`
	AsOf          time.Time `json:"as_of"`
}

// Resolution is the outcome of Resolve.
type Resolution struct {
	Decision model.Decision `json:"decision"`
	Source   model.Source   `json:"source"`
	// GrantID is the grant the decision is attributed to when Source is
	// GRANT.
	GrantID string `json:"grant_id,omitempty"`
}

// Allowed reports whether the decision is ALLOW.
func (r Resolution) Allowed() bool {
	return r.Decision == model.Allow
}

var defaultDeny = Resolution{Decision: model.Deny, Source: model.SourceDefault}

// Resolver evaluates requests against grants and the role catalog.
type Resolver struct {
	grants  store.GrantStore
	catalog RoleMatrix
	logger  *zap.Logger
}

// NewResolver returns a Resolver.
func NewResolver(grants store.GrantStore, catalog RoleMatrix, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{grants: grants, catalog: catalog, logger: logger}
}

// Resolve evaluates req. It is a pure read. A storage failure fails closed:
// the resolution is DENY/DEFAULT and the error is returned for the caller
// to log or surface.
func (r *Resolver) Resolve(ctx context.Context, req Request) (Resolution, error) {
	res, err := r.resolve(ctx, req)
	metrics.Resolutions.WithLabelValues(string(res.Decision), string(res.Source)).Inc()
	return res, err
}

func (r *Resolver) resolve(ctx context.Context, req Request) (Resolution, error) {
	if !r.catalog.Known(req.Category, req.Action) {
		return defaultDeny, nil
	}

	tuple := model.Tuple{SubjectUserID: req.SubjectUserID, Category: req.Category, Action: req.Action}
	grants, err := r.grants.ListEffective(ctx, tuple, req.AsOf)
	if err != nil {
		r.logger.Warn("grant lookup failed, denying",
			zap.String("subject_user_id", req.SubjectUserID),
			zap.String("category", req.Category),
			zap.String("action", req.Action),
			zap.Error(err))
		return defaultDeny, err
	}

	if res, ok := FromGrants(grants, req.AsOf); ok {
		return res, nil
	}

	if allowed, present := r.catalog.Lookup(req.SubjectRole, req.Category, req.Action); present {
		decision := model.Deny
		if allowed {
			decision = model.Allow
		}
		return Resolution{Decision: decision, Source: model.SourceRole}, nil
	}
	return defaultDeny, nil
}

// FromGrants applies the grant layer to grants: any effective DENY wins,
// else the latest effective ALLOW. ok is false when no grant is effective
// at asOf.
func FromGrants(grants []model.PermissionGrant, asOf time.Time) (res Resolution, ok bool) {
	var deny, allow *model.PermissionGrant
	for i := range grants {
		g := &grants[i]
		if !g.EffectiveAt(asOf) {
			continue
		}
		switch g.Decision {
		case model.Deny:
			if deny == nil || g.Later(*deny) {
				deny = g
			}
		case model.Allow:
			if allow == nil || g.Later(*allow) {
				allow = g
			}
		}
	}
	switch {
	case deny != nil:
		return Resolution{Decision: model.Deny, Source: model.SourceGrant, GrantID: deny.ID}, true
	case allow != nil:
		return Resolution{Decision: model.Allow, Source: model.SourceGrant, GrantID: allow.ID}, true
	}
	return Resolution{}, false
}
