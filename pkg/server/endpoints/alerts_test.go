package endpoints

import (
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/doodlesbykumbi/clinicguard/pkg/model"
)

func recordWrites(t *testing.T, ts *testServer, actor string, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		w := ts.do(t, "POST", "/audit/events", actor, "accountant", EventRequest{
			Category:      "financial",
			Operation:     "WRITE",
			ResourceTable: "ledger",
			ResourceID:    fmt.Sprintf("entry-%d", i),
		})
		requireStatus(t, w, http.StatusCreated)
		ts.clock.Advance(2 * time.Second)
	}
}

func TestAlertEndpoints(t *testing.T) {
	ts := newTestServer(t)
	recordWrites(t, ts, "acct-1", 6)

	w := ts.do(t, "POST", "/alerts/scan", "owner", "clinic_owner", nil)
	requireStatus(t, w, http.StatusOK)
	var created []model.SecurityAlert
	decode(t, w, &created)
	require.Len(t, created, 1)
	alert := created[0]
	assert.Equal(t, "acct-1", alert.ActorID)
	assert.Equal(t, model.StatusOpen, alert.Status)
	assert.GreaterOrEqual(t, alert.Severity.Rank(), model.SeverityMedium.Rank())
	assert.Len(t, alert.TriggeringEventIDs, 6)

	// A second scan folds into the open alert.
	w = ts.do(t, "POST", "/alerts/scan", "owner", "clinic_owner", ScanRequest{WindowSeconds: 600})
	requireStatus(t, w, http.StatusOK)
	created = nil
	decode(t, w, &created)
	assert.Empty(t, created)

	w = ts.do(t, "GET", "/alerts?status=open", "admin", "clinic_admin", nil)
	requireStatus(t, w, http.StatusOK)
	var list []model.SecurityAlert
	decode(t, w, &list)
	require.Len(t, list, 1)
	assert.Equal(t, alert.ID, list[0].ID)

	w = ts.do(t, "GET", "/alerts/"+alert.ID, "owner", "clinic_owner", nil)
	requireStatus(t, w, http.StatusOK)

	t.Run("clinic admin cannot transition", func(t *testing.T) {
		w := ts.do(t, "POST", "/alerts/"+alert.ID+"/transition", "admin", "clinic_admin", TransitionRequest{Status: "INVESTIGATING"})
		requireStatus(t, w, http.StatusForbidden)
	})

	w = ts.do(t, "POST", "/alerts/"+alert.ID+"/transition", "owner", "clinic_owner", TransitionRequest{Status: "investigating"})
	requireStatus(t, w, http.StatusOK)

	w = ts.do(t, "POST", "/alerts/"+alert.ID+"/transition", "owner", "clinic_owner", TransitionRequest{Status: "RESOLVED"})
	requireStatus(t, w, http.StatusBadRequest)

	w = ts.do(t, "POST", "/alerts/"+alert.ID+"/transition", "owner", "clinic_owner", TransitionRequest{Status: "RESOLVED", Notes: "month end batch"})
	requireStatus(t, w, http.StatusOK)
	var resolved model.SecurityAlert
	decode(t, w, &resolved)
	assert.Equal(t, model.StatusResolved, resolved.Status)
	require.NotNil(t, resolved.ResolvedAt)
	require.NotNil(t, resolved.UpdatedBy)
	assert.Equal(t, "owner", *resolved.UpdatedBy)
	assert.Equal(t, "month end batch", *resolved.ResolutionNotes)

	w = ts.do(t, "POST", "/alerts/"+alert.ID+"/transition", "owner", "clinic_owner", TransitionRequest{Status: "OPEN", Notes: "again"})
	requireStatus(t, w, http.StatusConflict)
}

func TestAlertEndpointErrors(t *testing.T) {
	ts := newTestServer(t)

	tests := []struct {
		name   string
		method string
		path   string
		role   string
		body   interface{}
		code   int
	}{
		{"receptionist cannot list", "GET", "/alerts", "receptionist", nil, http.StatusForbidden},
		{"receptionist cannot scan", "POST", "/alerts/scan", "receptionist", nil, http.StatusForbidden},
		{"bad status filter", "GET", "/alerts?status=closed", "clinic_owner", nil, http.StatusBadRequest},
		{"bad limit", "GET", "/alerts?limit=-1", "clinic_owner", nil, http.StatusBadRequest},
		{"unknown alert", "GET", "/alerts/missing", "clinic_owner", nil, http.StatusNotFound},
		{"bad scan window", "POST", "/alerts/scan", "clinic_owner", ScanRequest{WindowSeconds: -5}, http.StatusBadRequest},
		{"unknown target status", "POST", "/alerts/missing/transition", "clinic_owner", TransitionRequest{Status: "DONE"}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := ts.do(t, tt.method, tt.path, "caller", tt.role, tt.body)
			requireStatus(t, w, tt.code)
		})
	}
}
