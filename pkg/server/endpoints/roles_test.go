package endpoints

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/doodlesbykumbi/clinicguard/pkg/authz"
	"github.com/doodlesbykumbi/clinicguard/pkg/model"
)

func TestRoleEndpoints(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, "GET", "/roles", "u1", "receptionist", nil)
	requireStatus(t, w, http.StatusForbidden)
	assert.NotContains(t, w.Body.String(), "matrix")

	w = ts.do(t, "GET", "/roles", "admin", "clinic_admin", nil)
	requireStatus(t, w, http.StatusOK)
	var listing struct {
		Categories []map[string]interface{} `json:"categories"`
		Roles      []model.Role             `json:"roles"`
	}
	decode(t, w, &listing)
	assert.NotEmpty(t, listing.Categories)
	assert.NotEmpty(t, listing.Roles)

	lab := RoleRequest{
		HierarchyLevel: 6,
		Matrix:         model.Matrix{"inventory": {"view": true, "update": true}},
	}

	t.Run("receptionist cannot manage roles", func(t *testing.T) {
		w := ts.do(t, "PUT", "/roles/lab_tech", "u1", "receptionist", lab)
		requireStatus(t, w, http.StatusForbidden)
	})

	w = ts.do(t, "PUT", "/roles/lab_tech", "owner", "clinic_owner", lab)
	requireStatus(t, w, http.StatusOK)
	var role model.Role
	decode(t, w, &role)
	assert.Equal(t, "lab_tech", role.Name)
	assert.True(t, role.Matrix.Allows("inventory", "update"))

	resolve := func() authz.Resolution {
		w := ts.do(t, "POST", "/authz/resolve", "lab-1", "lab_tech", map[string]string{
			"subject_user_id": "lab-1",
			"subject_role":    "lab_tech",
			"category":        "inventory",
			"action":          "update",
		})
		requireStatus(t, w, http.StatusOK)
		var res authz.Resolution
		decode(t, w, &res)
		return res
	}
	assert.Equal(t, model.Allow, resolve().Decision)

	w = ts.do(t, "POST", "/roles/lab_tech/disable", "owner", "clinic_owner", nil)
	requireStatus(t, w, http.StatusOK)
	assert.Equal(t, model.Deny, resolve().Decision)

	w = ts.do(t, "POST", "/roles/lab_tech/enable", "owner", "clinic_owner", nil)
	requireStatus(t, w, http.StatusOK)
	assert.Equal(t, model.Allow, resolve().Decision)

	t.Run("unknown permission in matrix", func(t *testing.T) {
		w := ts.do(t, "PUT", "/roles/lab_tech", "owner", "clinic_owner", RoleRequest{
			HierarchyLevel: 6,
			Matrix:         model.Matrix{"inventory": {"launch": true}},
		})
		requireStatus(t, w, http.StatusBadRequest)
	})

	t.Run("unknown role", func(t *testing.T) {
		w := ts.do(t, "POST", "/roles/ghost/disable", "owner", "clinic_owner", nil)
		requireStatus(t, w, http.StatusNotFound)
	})

	require.NotNil(t, ts.Catalog)
}
