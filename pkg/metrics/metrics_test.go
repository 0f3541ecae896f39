package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterIsIdempotent(t *testing.T) {
	reg := prometheus.NewRegistry()
	Register(reg)
	Register(reg)

	Resolutions.WithLabelValues("DENY", "DEFAULT").Inc()
	families, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}

func TestInstrumentRecordsRouteTemplate(t *testing.T) {
	router := mux.NewRouter()
	router.Use(Instrument)
	router.HandleFunc("/alerts/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/alerts/a1", nil))
	assert.Equal(t, http.StatusTeapot, rec.Code)

	reg := prometheus.NewPedanticRegistry()
	require.NoError(t, reg.Register(httpRequestDuration))
	families, err := reg.Gather()
	require.NoError(t, err)
	require.Len(t, families, 1)

	var found bool
	for _, m := range families[0].GetMetric() {
		for _, l := range m.GetLabel() {
			if l.GetName() == "route" && l.GetValue() == "/alerts/{id}" {
				found = true
			}
		}
	}
	assert.True(t, found)
}
