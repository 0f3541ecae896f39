package catalog

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/doodlesbykumbi/clinicguard/pkg/apperr"
	"github.com/doodlesbykumbi/clinicguard/pkg/audit"
	"github.com/doodlesbykumbi/clinicguard/pkg/clock"
	"github.com/doodlesbykumbi/clinicguard/pkg/model"
	"github.com/doodlesbykumbi/clinicguard/pkg/store/memory"
)

func newAdmin(t *testing.T) (*Admin, *Catalog, *memory.Store) {
	t.Helper()
	c := NewDefault()
	st := memory.New()
	clk := clock.NewFake(time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC))
	rec := audit.NewRecorder(st, c, audit.Options{Clock: clk})
	return NewAdmin(c, st, rec, clk, nil), c, st
}

var owner = audit.Actor{ID: "o1", Role: "clinic_owner"}

func TestUpsertRole(t *testing.T) {
	admin, c, st := newAdmin(t)
	ctx := context.Background()

	role, _ := c.Role("receptionist")
	role.Matrix["reports"] = map[string]bool{"view": true}

	saved, err := admin.UpsertRole(ctx, owner, role)
	require.NoError(t, err)
	assert.False(t, saved.UpdatedAt.IsZero())
	assert.True(t, c.Allows("receptionist", "reports", "view"))

	persisted, err := st.ListRoles(ctx)
	require.NoError(t, err)
	require.Len(t, persisted, 1)
	assert.Equal(t, "receptionist", persisted[0].Name)

	events := st.Events()
	require.Len(t, events, 1)
	assert.Equal(t, model.CategoryPermissionChange, events[0].Category)
	assert.Equal(t, model.OpAdmin, events[0].Operation)
	assert.Equal(t, model.Critical, events[0].Sensitivity)
	assert.Equal(t, model.ChangeRoleMatrix, events[0].Metadata[model.MetaChange])
}

func TestUpsertRoleRejections(t *testing.T) {
	admin, c, st := newAdmin(t)
	ctx := context.Background()

	ownerRole, _ := c.Role("clinic_owner")
	_, err := admin.UpsertRole(ctx, audit.Actor{ID: "a1", Role: "clinic_admin"}, ownerRole)
	assert.ErrorIs(t, err, apperr.ErrForbidden)
	require.Len(t, st.Events(), 1)
	assert.True(t, st.Events()[0].Failed())

	dentist, _ := c.Role("dentist")
	dentist.HierarchyLevel = 9
	_, err = admin.UpsertRole(ctx, owner, dentist)
	assert.ErrorIs(t, err, apperr.ErrValidation)

	typo, _ := c.Role("dentist")
	typo.Matrix["patients"]["veiw"] = true
	_, err = admin.UpsertRole(ctx, owner, typo)
	assert.ErrorIs(t, err, apperr.ErrValidation)

	clinicAdmin := audit.Actor{ID: "a1", Role: "clinic_admin"}

	escalating, _ := c.Role("dentist")
	escalating.Manages = append(escalating.Manages, "super_admin")
	_, err = admin.UpsertRole(ctx, clinicAdmin, escalating)
	assert.ErrorIs(t, err, apperr.ErrForbidden)
	assert.False(t, c.CanManage("dentist", model.Role{Name: "super_admin"}))

	beyond, _ := c.Role("dentist")
	beyond.Matrix["financial"] = map[string]bool{"export": true}
	_, err = admin.UpsertRole(ctx, clinicAdmin, beyond)
	assert.ErrorIs(t, err, apperr.ErrForbidden)
	assert.False(t, c.Allows("dentist", "financial", "export"))

	newRole := model.Role{Name: "lab_tech", HierarchyLevel: 6, Matrix: model.Matrix{"settings": {"update": true}}}
	_, err = admin.UpsertRole(ctx, clinicAdmin, newRole)
	assert.ErrorIs(t, err, apperr.ErrForbidden)

	last := st.Events()[len(st.Events())-1]
	assert.True(t, last.Failed())
	assert.Equal(t, "lab_tech", last.ResourceID)

	persisted, err := st.ListRoles(ctx)
	require.NoError(t, err)
	assert.Empty(t, persisted)
}

func TestUpsertRoleKeepsExistingEntries(t *testing.T) {
	admin, c, _ := newAdmin(t)
	ctx := context.Background()
	clinicAdmin := audit.Actor{ID: "a1", Role: "clinic_admin"}

	// clinic_admin lacks treatments.delete but may still edit a dentist
	// role that already has it.
	dentist, _ := c.Role("dentist")
	require.True(t, dentist.Matrix.Allows("treatments", "delete"))
	dentist.Matrix["inventory"]["update"] = true
	dentist.Manages = []string{"hygienist"}

	_, err := admin.UpsertRole(ctx, clinicAdmin, dentist)
	require.NoError(t, err)
	assert.True(t, c.Allows("dentist", "inventory", "update"))
	assert.True(t, c.Allows("dentist", "treatments", "delete"))
	assert.True(t, c.CanManage("dentist", model.Role{Name: "hygienist", HierarchyLevel: 4}))
}

func TestSetDisabled(t *testing.T) {
	admin, c, st := newAdmin(t)
	ctx := context.Background()

	role, err := admin.SetDisabled(ctx, owner, "hygienist", true)
	require.NoError(t, err)
	assert.True(t, role.Disabled)
	assert.False(t, c.Allows("hygienist", "patients", "view"))

	// No change, no event.
	_, err = admin.SetDisabled(ctx, owner, "hygienist", true)
	require.NoError(t, err)
	assert.Len(t, st.Events(), 1)
	assert.Equal(t, "true", st.Events()[0].Metadata["disabled"])

	_, err = admin.SetDisabled(ctx, owner, "ghost", true)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestSyncInstallsPersistedRoles(t *testing.T) {
	admin, c, st := newAdmin(t)
	ctx := context.Background()

	role, _ := c.Role("dentist")
	role.Matrix["financial"] = map[string]bool{"view_reports": true}
	require.NoError(t, st.SaveRole(ctx, &role))

	stale := model.Role{Name: "receptionist", HierarchyLevel: 0}
	require.NoError(t, st.SaveRole(ctx, &stale))

	require.NoError(t, admin.Sync(ctx))
	assert.True(t, c.Allows("dentist", "financial", "view_reports"))
	assert.True(t, c.Allows("receptionist", "appointments", "view"))
}
