package grants

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/doodlesbykumbi/clinicguard/pkg/apperr"
	"github.com/doodlesbykumbi/clinicguard/pkg/audit"
	"github.com/doodlesbykumbi/clinicguard/pkg/authz"
	"github.com/doodlesbykumbi/clinicguard/pkg/catalog"
	"github.com/doodlesbykumbi/clinicguard/pkg/clock"
	"github.com/doodlesbykumbi/clinicguard/pkg/model"
	"github.com/doodlesbykumbi/clinicguard/pkg/store"
	"github.com/doodlesbykumbi/clinicguard/pkg/store/memory"
)

var t0 = time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)

type fixture struct {
	svc   *Service
	store *memory.Store
	clock *clock.Fake
	cat   *catalog.Catalog
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	st := memory.New()
	clk := clock.NewFake(t0)
	cat := catalog.NewDefault()
	rec := audit.NewRecorder(st, cat, audit.Options{Clock: clk})
	return fixture{svc: NewService(st, cat, rec, clk, nil, nil), store: st, clock: clk, cat: cat}
}

func (f fixture) permissionChanges() []model.AuditEvent {
	var out []model.AuditEvent
	for _, e := range f.store.Events() {
		if e.Category == model.CategoryPermissionChange {
			out = append(out, e)
		}
	}
	return out
}

var admin = audit.Actor{ID: "a1", Role: "clinic_admin"}

func hours(h float64) *float64 { return &h }

func viewReports(ttl *float64) Request {
	return Request{
		Actor:         admin,
		SubjectUserID: "u1",
		Category:      "financial",
		Action:        "view_reports",
		Decision:      model.Allow,
		TTLHours:      ttl,
		Reason:        "quarter close",
	}
}

func TestGrantValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	noReason := viewReports(nil)
	noReason.Reason = "   "
	_, err := f.svc.Grant(ctx, noReason)
	assert.ErrorIs(t, err, ErrInvalidReason)
	assert.ErrorIs(t, err, apperr.ErrValidation)

	for _, ttl := range []float64{0, -1, math.NaN(), math.Inf(1), 1e-15, MaxTTLHours + 1, 1e7, math.MaxFloat64} {
		_, err = f.svc.Grant(ctx, viewReports(hours(ttl)))
		assert.ErrorIs(t, err, ErrInvalidDuration, "ttl %v", ttl)
	}

	unknown := viewReports(nil)
	unknown.Action = "launder"
	_, err = f.svc.Grant(ctx, unknown)
	assert.ErrorIs(t, err, apperr.ErrValidation)

	badDecision := viewReports(nil)
	badDecision.Decision = "MAYBE"
	_, err = f.svc.Grant(ctx, badDecision)
	assert.ErrorIs(t, err, apperr.ErrValidation)

	assert.Empty(t, f.store.Events())
}

func TestGrantLongestTTL(t *testing.T) {
	f := newFixture(t)

	g, err := f.svc.Grant(context.Background(), viewReports(hours(MaxTTLHours)))
	require.NoError(t, err)
	require.NotNil(t, g.ExpiresAt)
	assert.True(t, g.ExpiresAt.After(g.GrantedAt))
	assert.Equal(t, t0.Add(MaxTTLHours*time.Hour), *g.ExpiresAt)
}

func TestGrantUsesStoreClock(t *testing.T) {
	f := newFixture(t)

	g, err := f.svc.Grant(context.Background(), viewReports(hours(1.5)))
	require.NoError(t, err)
	assert.Equal(t, t0, g.GrantedAt)
	require.NotNil(t, g.ExpiresAt)
	assert.Equal(t, t0.Add(90*time.Minute), *g.ExpiresAt)
	assert.Equal(t, "a1", g.GrantedBy)
	assert.True(t, g.Active)
	assert.Equal(t, int64(1), g.Seq)
}

func TestAuditCompleteness(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	g, err := f.svc.Grant(ctx, viewReports(hours(1)))
	require.NoError(t, err)
	require.Len(t, f.permissionChanges(), 1)

	_, err = f.svc.Revoke(ctx, admin, g.ID, "no longer needed")
	require.NoError(t, err)

	events := f.permissionChanges()
	require.Len(t, events, 2)
	for _, e := range events {
		assert.Equal(t, model.Critical, e.Sensitivity)
		assert.Equal(t, model.OpAdmin, e.Operation)
		assert.Equal(t, "a1", e.ActorID)
		assert.Equal(t, "clinic_admin", e.ActorRole)
		assert.Equal(t, g.ID, e.Metadata[model.MetaGrantID])
	}
	assert.Equal(t, model.ChangeGrant, events[0].Metadata[model.MetaChange])
	assert.Equal(t, "ALLOW", events[0].Metadata[model.MetaDecision])
	assert.Equal(t, model.ChangeRevoke, events[1].Metadata[model.MetaChange])
	assert.Equal(t, "no longer needed", events[1].Metadata[model.MetaNotes])
}

func TestRevokeIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	g, err := f.svc.Grant(ctx, viewReports(nil))
	require.NoError(t, err)
	_, err = f.svc.Revoke(ctx, admin, g.ID, "")
	require.NoError(t, err)

	_, err = f.svc.Revoke(ctx, admin, g.ID, "")
	assert.ErrorIs(t, err, ErrAlreadyInactive)
	assert.ErrorIs(t, err, apperr.ErrConflict)
	assert.False(t, errors.Is(err, apperr.ErrNotFound))
	assert.Len(t, f.permissionChanges(), 2)

	_, err = f.svc.Revoke(ctx, admin, "missing", "")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestGrantSupersedes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.svc.Grant(ctx, viewReports(hours(1)))
	require.NoError(t, err)

	f.clock.Advance(time.Minute)
	amend := viewReports(hours(8))
	amend.Supersedes = first.ID
	second, err := f.svc.Grant(ctx, amend)
	require.NoError(t, err)
	require.NotNil(t, second.Supersedes)
	assert.Equal(t, first.ID, *second.Supersedes)

	active, err := f.svc.ListActive(ctx, "u1", f.clock.Now())
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, second.ID, active[0].ID)

	history, err := f.svc.ListHistory(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, history, 2)
	assert.Equal(t, first.ID, f.permissionChanges()[1].Metadata[model.MetaSupersedes])
}

func TestExpiryScenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	resolver := authz.NewResolver(f.store, f.cat, nil)

	_, err := f.svc.Grant(ctx, viewReports(hours(1)))
	require.NoError(t, err)

	during, err := resolver.Resolve(ctx, authz.Request{
		SubjectUserID: "u1", SubjectRole: "receptionist", Category: "financial", Action: "view_reports",
		AsOf: t0.Add(30 * time.Minute),
	})
	require.NoError(t, err)
	assert.Equal(t, model.Allow, during.Decision)
	assert.Equal(t, model.SourceGrant, during.Source)

	after, err := resolver.Resolve(ctx, authz.Request{
		SubjectUserID: "u1", SubjectRole: "receptionist", Category: "financial", Action: "view_reports",
		AsOf: t0.Add(61 * time.Minute),
	})
	require.NoError(t, err)
	assert.Equal(t, authz.Resolution{Decision: model.Deny, Source: model.SourceDefault}, after)

	// The sweep has not run; the grant is still flagged active.
	history, err := f.svc.ListHistory(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, history[0].Active)
}

func TestSweepExpired(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Grant(ctx, viewReports(hours(1)))
	require.NoError(t, err)
	permanent := viewReports(nil)
	permanent.Action = "export"
	_, err = f.svc.Grant(ctx, permanent)
	require.NoError(t, err)

	n, err := f.svc.SweepExpired(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	f.clock.Advance(time.Hour)
	n, err = f.svc.SweepExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = f.svc.SweepExpired(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	// Sweeping is bookkeeping only; it emits no audit events.
	assert.Len(t, f.permissionChanges(), 2)
}

type brokenMarks struct {
	*memory.Store
}

func (brokenMarks) MarkExpired(context.Context, string) error {
	return apperr.Storage("mark expired", errors.New("deadlock"))
}

var _ store.GrantStore = brokenMarks{}

func TestSweepContinuesPastFailures(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.Grant(ctx, viewReports(hours(1)))
	require.NoError(t, err)
	f.clock.Advance(2 * time.Hour)

	svc := NewService(brokenMarks{f.store}, f.cat, audit.NewRecorder(f.store, f.cat, audit.Options{}), f.clock, nil, nil)
	n, err := svc.SweepExpired(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestSweeperRunsUntilCancelled(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Grant(context.Background(), viewReports(hours(1)))
	require.NoError(t, err)
	f.clock.Advance(2 * time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		NewSweeper(f.svc, time.Hour, nil).Run(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool {
		expired, _ := f.store.ListExpired(context.Background(), f.clock.Now(), 0)
		return len(expired) == 0
	}, time.Second, 10*time.Millisecond)
	cancel()
	<-done
}
