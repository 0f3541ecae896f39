package authz

import (
	"context"
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/doodlesbykumbi/clinicguard/pkg/apperr"
	"github.com/doodlesbykumbi/clinicguard/pkg/catalog"
	"github.com/doodlesbykumbi/clinicguard/pkg/model"
	"github.com/doodlesbykumbi/clinicguard/pkg/store"
	"github.com/doodlesbykumbi/clinicguard/pkg/store/memory"
)

var t0 = time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)

func insert(t *testing.T, s *memory.Store, id string, d model.Decision, at time.Time, expires *time.Time) {
	t.Helper()
	require.NoError(t, s.InsertGrant(context.Background(), &model.PermissionGrant{
		ID:            id,
		SubjectUserID: "u1",
		Category:      "financial",
		Action:        "view_reports",
		Decision:      d,
		GrantedBy:     "owner",
		GrantedAt:     at,
		ExpiresAt:     expires,
		Reason:        "test",
		Active:        true,
	}, ""))
}

func req(role string, asOf time.Time) Request {
	return Request{SubjectUserID: "u1", SubjectRole: role, Category: "financial", Action: "view_reports", AsOf: asOf}
}

func TestResolveDenyOverrides(t *testing.T) {
	s := memory.New()
	insert(t, s, "allow", model.Allow, t0.Add(time.Minute), nil)
	insert(t, s, "deny", model.Deny, t0, nil)

	res, err := NewResolver(s, catalog.NewDefault(), nil).Resolve(context.Background(), req("accountant", t0.Add(time.Hour)))
	require.NoError(t, err)
	assert.Equal(t, Resolution{Decision: model.Deny, Source: model.SourceGrant, GrantID: "deny"}, res)
}

func TestResolveDenyOverridesProperty(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 50; i++ {
		grants := []model.PermissionGrant{
			{ID: "a", Decision: model.Allow, Active: true, GrantedAt: t0.Add(time.Duration(rng.Intn(100)) * time.Minute)},
			{ID: "d", Decision: model.Deny, Active: true, GrantedAt: t0.Add(time.Duration(rng.Intn(100)) * time.Minute)},
		}
		rng.Shuffle(len(grants), func(i, j int) { grants[i], grants[j] = grants[j], grants[i] })
		res, ok := FromGrants(grants, t0.Add(200*time.Minute))
		require.True(t, ok)
		assert.Equal(t, model.Deny, res.Decision)
	}
}

func TestResolveLatestAllow(t *testing.T) {
	s := memory.New()
	insert(t, s, "older", model.Allow, t0, nil)
	insert(t, s, "newer", model.Allow, t0.Add(time.Minute), nil)

	res, err := NewResolver(s, catalog.NewDefault(), nil).Resolve(context.Background(), req("receptionist", t0.Add(time.Hour)))
	require.NoError(t, err)
	assert.Equal(t, "newer", res.GrantID)
	assert.Equal(t, model.SourceGrant, res.Source)
}

func TestResolveLatestAllowTieBreaksOnSequence(t *testing.T) {
	s := memory.New()
	insert(t, s, "first", model.Allow, t0, nil)
	insert(t, s, "second", model.Allow, t0, nil)

	res, err := NewResolver(s, catalog.NewDefault(), nil).Resolve(context.Background(), req("receptionist", t0))
	require.NoError(t, err)
	assert.Equal(t, "second", res.GrantID)
}

func TestResolveExpiryMonotonic(t *testing.T) {
	s := memory.New()
	expires := t0.Add(time.Hour)
	insert(t, s, "g", model.Allow, t0, &expires)
	r := NewResolver(s, catalog.NewDefault(), nil)
	ctx := context.Background()

	before, err := r.Resolve(ctx, req("receptionist", expires.Add(-time.Nanosecond)))
	require.NoError(t, err)
	assert.Equal(t, model.Allow, before.Decision)

	at, err := r.Resolve(ctx, req("receptionist", expires))
	require.NoError(t, err)
	assert.Equal(t, defaultDeny, at)
}

func TestResolveGrantFallsThroughToRoleAfterExpiry(t *testing.T) {
	s := memory.New()
	expires := t0.Add(time.Hour)
	insert(t, s, "g", model.Deny, t0, &expires)
	r := NewResolver(s, catalog.NewDefault(), nil)
	ctx := context.Background()

	during, err := r.Resolve(ctx, req("accountant", t0.Add(30*time.Minute)))
	require.NoError(t, err)
	assert.Equal(t, model.SourceGrant, during.Source)
	assert.False(t, during.Allowed())

	after, err := r.Resolve(ctx, req("accountant", t0.Add(61*time.Minute)))
	require.NoError(t, err)
	assert.Equal(t, Resolution{Decision: model.Allow, Source: model.SourceRole}, after)
}

func TestResolveRevokedGrantIgnored(t *testing.T) {
	s := memory.New()
	insert(t, s, "g", model.Allow, t0, nil)
	_, err := s.DeactivateGrant(context.Background(), "g", "owner", t0, "")
	require.NoError(t, err)

	res, err := NewResolver(s, catalog.NewDefault(), nil).Resolve(context.Background(), req("receptionist", t0.Add(time.Minute)))
	require.NoError(t, err)
	assert.Equal(t, defaultDeny, res)
}

func TestResolveRoleMatrix(t *testing.T) {
	r := NewResolver(memory.New(), catalog.NewDefault(), nil)
	ctx := context.Background()

	res, err := r.Resolve(ctx, Request{SubjectUserID: "u1", SubjectRole: "clinic_admin", Category: "patients", Action: "delete", AsOf: t0})
	require.NoError(t, err)
	assert.Equal(t, Resolution{Decision: model.Deny, Source: model.SourceRole}, res)

	res, err = r.Resolve(ctx, Request{SubjectUserID: "u1", SubjectRole: "dentist", Category: "dental_charts", Action: "update", AsOf: t0})
	require.NoError(t, err)
	assert.Equal(t, Resolution{Decision: model.Allow, Source: model.SourceRole}, res)
}

func TestResolveDefaultDeny(t *testing.T) {
	r := NewResolver(memory.New(), catalog.NewDefault(), nil)

	res, err := r.Resolve(context.Background(), req("receptionist", t0))
	require.NoError(t, err)
	assert.Equal(t, defaultDeny, res)

	res, err = r.Resolve(context.Background(), req("no_such_role", t0))
	require.NoError(t, err)
	assert.Equal(t, defaultDeny, res)
}

func TestResolveUnknownKeyNeverFailsOpen(t *testing.T) {
	s := memory.New()
	require.NoError(t, s.InsertGrant(context.Background(), &model.PermissionGrant{
		ID: "g", SubjectUserID: "u1", Category: "financial", Action: "launder",
		Decision: model.Allow, GrantedAt: t0, Active: true, Reason: "x",
	}, ""))

	res, err := NewResolver(s, catalog.NewDefault(), nil).Resolve(context.Background(), Request{
		SubjectUserID: "u1", SubjectRole: "super_admin", Category: "financial", Action: "launder", AsOf: t0,
	})
	require.NoError(t, err)
	assert.Equal(t, defaultDeny, res)
}

func TestResolveDisabledRole(t *testing.T) {
	cat := catalog.NewDefault()
	role, ok := cat.Role("dentist")
	require.True(t, ok)
	role.Disabled = true
	require.NoError(t, cat.PutRole(role))

	res, err := NewResolver(memory.New(), cat, nil).Resolve(context.Background(), Request{
		SubjectUserID: "u1", SubjectRole: "dentist", Category: "treatments", Action: "view", AsOf: t0,
	})
	require.NoError(t, err)
	assert.Equal(t, defaultDeny, res)
}

type failingGrants struct {
	store.GrantStore
}

func (failingGrants) ListEffective(context.Context, model.Tuple, time.Time) ([]model.PermissionGrant, error) {
	return nil, apperr.Storage("list grants", errors.New("connection refused"))
}

func TestResolveFailsClosed(t *testing.T) {
	res, err := NewResolver(failingGrants{}, catalog.NewDefault(), nil).Resolve(context.Background(), req("super_admin", t0))
	assert.ErrorIs(t, err, apperr.ErrStorage)
	assert.Equal(t, defaultDeny, res)
}
