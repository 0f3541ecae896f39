package audit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/doodlesbykumbi/clinicguard/pkg/apperr"
	"github.com/doodlesbykumbi/clinicguard/pkg/model"
)

var eventRowColumns = []string{
	"id", "timestamp", "actor_id", "actor_role", "category", "sensitivity", "operation",
	"resource_table", "resource_id", "outcome", "outcome_message", "ip_address", "risk_score", "source", "metadata",
}

func TestSQLStoreAppendEvent(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	s := NewSQLStore(db)
	e := &model.AuditEvent{
		ID:          "e1",
		Timestamp:   time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC),
		ActorID:     "u1",
		ActorRole:   "dentist",
		Category:    "patients",
		Sensitivity: model.Sensitive,
		Operation:   model.OpRead,
		Outcome:     model.OutcomeSuccess,
		RiskScore:   25,
	}

	mock.ExpectExec(`INSERT INTO audit_events`).
		WithArgs(
			"e1",
			sqlmock.AnyArg(), // timestamp
			"u1",
			"dentist",
			"patients",
			"SENSITIVE",
			"READ",
			"",
			"",
			"SUCCESS",
			"",
			nil, // ip_address
			25,
			"",
			"{}",
		).
		WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, s.AppendEvent(context.Background(), e))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStoreAppendEventErrors(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	s := NewSQLStore(db)
	e := &model.AuditEvent{ID: "e1", Timestamp: time.Now()}

	mock.ExpectExec(`INSERT INTO audit_events`).WillReturnError(&pq.Error{Code: "23505"})
	mock.ExpectExec(`INSERT INTO audit_events`).WillReturnError(errors.New("connection reset"))

	assert.ErrorIs(t, s.AppendEvent(context.Background(), e), apperr.ErrConflict)
	assert.ErrorIs(t, s.AppendEvent(context.Background(), e), apperr.ErrStorage)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStoreListEventsSince(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	since := time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`SELECT .* FROM audit_events\s+WHERE timestamp >= \$1\s+ORDER BY timestamp, id`).
		WithArgs(since).
		WillReturnRows(sqlmock.NewRows(eventRowColumns).
			AddRow("e1", since, "u1", "dentist", "patients", "SENSITIVE", "WRITE", "patients", "p1", "ERROR", "boom", "10.0.0.1", 50, "ROLE", `{"k":"v"}`).
			AddRow("e2", since.Add(time.Second), "u2", "receptionist", "appointments", "NORMAL", "READ", "appointments", "a1", "SUCCESS", "", nil, 5, "", `{}`))

	events, err := NewSQLStore(db).ListEventsSince(context.Background(), since)
	require.NoError(t, err)
	require.Len(t, events, 2)

	assert.Equal(t, model.OpWrite, events[0].Operation)
	assert.True(t, events[0].Failed())
	require.NotNil(t, events[0].IPAddress)
	assert.Equal(t, "10.0.0.1", *events[0].IPAddress)
	assert.Equal(t, "v", events[0].Metadata["k"])
	assert.Equal(t, model.SourceRole, events[0].Source)
	assert.Nil(t, events[1].IPAddress)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStoreFetchEvents(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	s := NewSQLStore(db)

	events, err := s.FetchEvents(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, events)

	mock.ExpectQuery(`WHERE id = ANY\(\$1\)`).
		WithArgs(sqlmock.AnyArg()).
		WillReturnError(errors.New("timeout"))

	_, err = s.FetchEvents(context.Background(), []string{"e1"})
	assert.ErrorIs(t, err, apperr.ErrStorage)
	assert.NoError(t, mock.ExpectationsWereMet())
}
