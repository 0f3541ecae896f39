// Package memory is an in-process implementation of every store
// interface. A single mutex guards all tables, which gives Resolve a
// consistent snapshot and serializes grant writes per tuple trivially.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/doodlesbykumbi/clinicguard/pkg/apperr"
	"github.com/doodlesbykumbi/clinicguard/pkg/model"
	"github.com/doodlesbykumbi/clinicguard/pkg/store"
)

var (
	_ store.GrantStore = (*Store)(nil)
	_ store.EventStore = (*Store)(nil)
	_ store.AlertStore = (*Store)(nil)
	_ store.RoleStore  = (*Store)(nil)
)

// Store holds grants, events, alerts and roles in memory.
type Store struct {
	mu       sync.RWMutex
	grants   map[string]*model.PermissionGrant
	grantSeq map[model.Tuple]int64
	events   []model.AuditEvent
	alerts   map[string]*model.SecurityAlert
	roles    map[string]model.Role

	// FailAppends makes AppendEvent fail, for exercising audit fallbacks.
	FailAppends error
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		grants:   map[string]*model.PermissionGrant{},
		grantSeq: map[model.Tuple]int64{},
		alerts:   map[string]*model.SecurityAlert{},
		roles:    map[string]model.Role{},
	}
}

// InsertGrant implements store.GrantStore.
func (s *Store) InsertGrant(_ context.Context, g *model.PermissionGrant, supersedes string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.grants[g.ID]; exists {
		return apperr.Conflict("grant %s already exists", g.ID)
	}

	var prior *model.PermissionGrant
	if supersedes != "" {
		prior = s.grants[supersedes]
		if prior == nil {
			return apperr.NotFound("superseded grant %s", supersedes)
		}
		if prior.Tuple() != g.Tuple() {
			return apperr.Validation("grant %s covers a different permission", supersedes)
		}
	}

	tuple := g.Tuple()
	s.grantSeq[tuple]++
	g.Seq = s.grantSeq[tuple]

	stored := *g
	s.grants[g.ID] = &stored
	if prior != nil {
		prior.Active = false
	}
	return nil
}

// FetchGrant implements store.GrantStore.
func (s *Store) FetchGrant(_ context.Context, id string) (*model.PermissionGrant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	g, ok := s.grants[id]
	if !ok {
		return nil, apperr.NotFound("grant %s", id)
	}
	out := *g
	return &out, nil
}

// DeactivateGrant implements store.GrantStore.
func (s *Store) DeactivateGrant(_ context.Context, id string, revokedBy string, revokedAt time.Time, notes string) (*model.PermissionGrant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	g, ok := s.grants[id]
	if !ok {
		return nil, apperr.NotFound("grant %s", id)
	}
	if !g.Active {
		return nil, store.ErrInactive
	}
	g.Active = false
	g.RevokedBy = &revokedBy
	g.RevokedAt = &revokedAt
	if notes != "" {
		g.RevokeNotes = &notes
	}
	out := *g
	return &out, nil
}

// ListActive implements store.GrantStore.
func (s *Store) ListActive(_ context.Context, subjectUserID string, asOf time.Time) ([]model.PermissionGrant, error) {
	return s.selectGrants(func(g *model.PermissionGrant) bool {
		return g.SubjectUserID == subjectUserID && g.EffectiveAt(asOf)
	}), nil
}

// ListEffective implements store.GrantStore.
func (s *Store) ListEffective(_ context.Context, tuple model.Tuple, asOf time.Time) ([]model.PermissionGrant, error) {
	return s.selectGrants(func(g *model.PermissionGrant) bool {
		return g.Tuple() == tuple && g.EffectiveAt(asOf)
	}), nil
}

// ListHistory implements store.GrantStore.
func (s *Store) ListHistory(_ context.Context, subjectUserID string) ([]model.PermissionGrant, error) {
	return s.selectGrants(func(g *model.PermissionGrant) bool {
		return g.SubjectUserID == subjectUserID
	}), nil
}

// ListExpired implements store.GrantStore.
func (s *Store) ListExpired(_ context.Context, asOf time.Time, limit int) ([]model.PermissionGrant, error) {
	out := s.selectGrants(func(g *model.PermissionGrant) bool {
		return g.ExpiredAt(asOf)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// MarkExpired implements store.GrantStore.
func (s *Store) MarkExpired(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	g, ok := s.grants[id]
	if !ok {
		return apperr.NotFound("grant %s", id)
	}
	g.Active = false
	return nil
}

func (s *Store) selectGrants(match func(*model.PermissionGrant) bool) []model.PermissionGrant {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.PermissionGrant
	for _, g := range s.grants {
		if match(g) {
			out = append(out, *g)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[j].Later(out[i])
	})
	return out
}

// AppendEvent implements store.EventStore.
func (s *Store) AppendEvent(_ context.Context, e *model.AuditEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.FailAppends != nil {
		return s.FailAppends
	}
	stored := *e
	if e.Metadata != nil {
		stored.Metadata = make(model.StringMap, len(e.Metadata))
		for k, v := range e.Metadata {
			stored.Metadata[k] = v
		}
	}
	s.events = append(s.events, stored)
	return nil
}

// ListEventsSince implements store.EventStore.
func (s *Store) ListEventsSince(_ context.Context, since time.Time) ([]model.AuditEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.AuditEvent
	for _, e := range s.events {
		if !e.Timestamp.Before(since) {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out, nil
}

// FetchEvents implements store.EventStore.
func (s *Store) FetchEvents(_ context.Context, ids []string) ([]model.AuditEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	var out []model.AuditEvent
	for _, e := range s.events {
		if want[e.ID] {
			out = append(out, e)
		}
	}
	return out, nil
}

// Events returns a copy of every recorded event in insertion order.
func (s *Store) Events() []model.AuditEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]model.AuditEvent(nil), s.events...)
}

// CreateAlert implements store.AlertStore.
func (s *Store) CreateAlert(_ context.Context, a *model.SecurityAlert) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.alerts[a.ID]; exists {
		return apperr.Conflict("alert %s already exists", a.ID)
	}
	a.Version = 1
	stored := a.Clone()
	s.alerts[a.ID] = &stored
	return nil
}

// FetchAlert implements store.AlertStore.
func (s *Store) FetchAlert(_ context.Context, id string) (*model.SecurityAlert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.alerts[id]
	if !ok {
		return nil, apperr.NotFound("alert %s", id)
	}
	out := a.Clone()
	return &out, nil
}

// UpdateAlert implements store.AlertStore.
func (s *Store) UpdateAlert(_ context.Context, a *model.SecurityAlert, expectedVersion int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.alerts[a.ID]
	if !ok {
		return apperr.NotFound("alert %s", a.ID)
	}
	if current.Version != expectedVersion {
		return apperr.Conflict("alert %s changed concurrently", a.ID)
	}
	a.Version = expectedVersion + 1
	stored := a.Clone()
	s.alerts[a.ID] = &stored
	return nil
}

// FindOpenAlerts implements store.AlertStore.
func (s *Store) FindOpenAlerts(_ context.Context, actorID string, since time.Time) ([]model.SecurityAlert, error) {
	return s.selectAlerts(func(a *model.SecurityAlert) bool {
		return a.ActorID == actorID && !a.Status.Terminal() && !a.CreatedAt.Before(since)
	}, 0), nil
}

// ListAlerts implements store.AlertStore.
func (s *Store) ListAlerts(_ context.Context, filter store.AlertFilter) ([]model.SecurityAlert, error) {
	return s.selectAlerts(func(a *model.SecurityAlert) bool {
		if filter.Status != "" && a.Status != filter.Status {
			return false
		}
		return filter.ActorID == "" || a.ActorID == filter.ActorID
	}, filter.Limit), nil
}

func (s *Store) selectAlerts(match func(*model.SecurityAlert) bool, limit int) []model.SecurityAlert {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.SecurityAlert
	for _, a := range s.alerts {
		if match(a) {
			out = append(out, a.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// ListRoles implements store.RoleStore.
func (s *Store) ListRoles(_ context.Context) ([]model.Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.Role, 0, len(s.roles))
	for _, r := range s.roles {
		out = append(out, r.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Name < out[j].Name
	})
	return out, nil
}

// SaveRole implements store.RoleStore.
func (s *Store) SaveRole(_ context.Context, r *model.Role) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.roles[r.Name] = r.Clone()
	return nil
}
