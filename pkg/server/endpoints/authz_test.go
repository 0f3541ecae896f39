package endpoints

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/doodlesbykumbi/clinicguard/pkg/authz"
	"github.com/doodlesbykumbi/clinicguard/pkg/model"
)

func TestResolveEndpoint(t *testing.T) {
	ts := newTestServer(t)

	t.Run("requires a token", func(t *testing.T) {
		w := ts.do(t, "POST", "/authz/resolve", "", "", map[string]string{"subject_user_id": "u1"})
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Equal(t, "Authorization missing", w.Body.String())
	})

	t.Run("no matrix entry is default deny", func(t *testing.T) {
		w := ts.do(t, "POST", "/authz/resolve", "u1", "receptionist", map[string]string{
			"subject_user_id": "u1",
			"subject_role":    "receptionist",
			"category":        "financial",
			"action":          "view_reports",
		})
		requireStatus(t, w, http.StatusOK)

		var res authz.Resolution
		decode(t, w, &res)
		assert.Equal(t, authz.Resolution{Decision: model.Deny, Source: model.SourceDefault}, res)
	})

	t.Run("role matrix entry decides", func(t *testing.T) {
		w := ts.do(t, "POST", "/authz/resolve", "u1", "receptionist", map[string]string{
			"subject_user_id": "u1",
			"subject_role":    "receptionist",
			"category":        "appointments",
			"action":          "cancel",
		})
		requireStatus(t, w, http.StatusOK)

		var res authz.Resolution
		decode(t, w, &res)
		assert.Equal(t, authz.Resolution{Decision: model.Allow, Source: model.SourceRole}, res)
	})

	t.Run("unknown permission is default deny", func(t *testing.T) {
		w := ts.do(t, "POST", "/authz/resolve", "owner", "clinic_owner", map[string]string{
			"subject_user_id": "u1",
			"subject_role":    "super_admin",
			"category":        "rocket_launch",
			"action":          "fire",
		})
		requireStatus(t, w, http.StatusOK)

		var res authz.Resolution
		decode(t, w, &res)
		assert.Equal(t, model.SourceDefault, res.Source)
		assert.False(t, res.Allowed())
	})

	t.Run("own role is filled from the token", func(t *testing.T) {
		w := ts.do(t, "POST", "/authz/resolve", "u1", "receptionist", map[string]string{
			"subject_user_id": "u1",
			"category":        "appointments",
			"action":          "cancel",
		})
		requireStatus(t, w, http.StatusOK)
		var res authz.Resolution
		decode(t, w, &res)
		assert.Equal(t, model.SourceRole, res.Source)
	})

	t.Run("other subjects need the grant permission", func(t *testing.T) {
		for _, body := range []map[string]string{
			{"subject_user_id": "u2", "subject_role": "receptionist", "category": "patients", "action": "view"},
			{"subject_user_id": "u1", "subject_role": "super_admin", "category": "patients", "action": "view"},
		} {
			w := ts.do(t, "POST", "/authz/resolve", "u1", "receptionist", body)
			requireStatus(t, w, http.StatusForbidden)
			assert.NotContains(t, w.Body.String(), "source")
		}
	})

	t.Run("missing fields", func(t *testing.T) {
		w := ts.do(t, "POST", "/authz/resolve", "u1", "receptionist", map[string]string{"category": "patients"})
		requireStatus(t, w, http.StatusBadRequest)
	})

	t.Run("unknown body field", func(t *testing.T) {
		w := ts.do(t, "POST", "/authz/resolve", "u1", "receptionist", map[string]string{"subject": "u1"})
		requireStatus(t, w, http.StatusBadRequest)
		var body map[string]string
		decode(t, w, &body)
		require.Contains(t, body["error"], "invalid request body")
	})
}

func TestResolveExpiryBoundary(t *testing.T) {
	ts := newTestServer(t)
	// Leave sub-microsecond residue on the store clock.
	ts.clock.Advance(700 * time.Nanosecond)

	ttl := 1.0
	w := ts.do(t, "POST", "/grants", "owner", "clinic_owner", GrantRequest{
		SubjectUserID: "u1",
		Category:      "financial",
		Action:        "view_reports",
		Decision:      "ALLOW",
		TTLHours:      &ttl,
		Reason:        "month end",
	})
	requireStatus(t, w, http.StatusCreated)
	var g model.PermissionGrant
	decode(t, w, &g)
	require.NotNil(t, g.ExpiresAt)

	resolveAt := func(at time.Time) authz.Resolution {
		w := ts.do(t, "POST", "/authz/resolve", "owner", "clinic_owner", map[string]interface{}{
			"subject_user_id": "u1",
			"subject_role":    "receptionist",
			"category":        "financial",
			"action":          "view_reports",
			"as_of":           at,
		})
		requireStatus(t, w, http.StatusOK)
		var res authz.Resolution
		decode(t, w, &res)
		return res
	}

	assert.Equal(t, model.SourceGrant, resolveAt(g.ExpiresAt.Add(-time.Nanosecond)).Source)
	assert.Equal(t, model.SourceDefault, resolveAt(*g.ExpiresAt).Source)
	assert.Equal(t, model.SourceDefault, resolveAt(g.ExpiresAt.Add(300*time.Nanosecond)).Source)
}

func TestWhoamiEndpoint(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, "GET", "/whoami", "dr-lee", "dentist", nil)
	requireStatus(t, w, http.StatusOK)

	var resp WhoamiResponse
	decode(t, w, &resp)
	assert.Equal(t, "dr-lee", resp.UserID)
	assert.Equal(t, "dentist", resp.Role)
	assert.NotZero(t, resp.TokenIAT)
}
