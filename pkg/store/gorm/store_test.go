package gorm

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/doodlesbykumbi/clinicguard/pkg/apperr"
	"github.com/doodlesbykumbi/clinicguard/pkg/model"
	"github.com/doodlesbykumbi/clinicguard/pkg/store"
)

type Suite struct {
	suite.Suite
	DB   *gorm.DB
	mock sqlmock.Sqlmock
}

func (s *Suite) SetupTest() {
	var (
		db  *sql.DB
		err error
	)

	db, s.mock, err = sqlmock.New()
	require.NoError(s.T(), err)

	s.DB, err = gorm.Open(postgres.New(postgres.Config{Conn: db}), &gorm.Config{})
	require.NoError(s.T(), err)
}

func (s *Suite) AfterTest(_, _ string) {
	require.NoError(s.T(), s.mock.ExpectationsWereMet())
}

func TestGormStores(t *testing.T) {
	suite.Run(t, new(Suite))
}

var grantColumns = []string{
	"id", "subject_user_id", "category", "action", "decision", "granted_by",
	"granted_at", "expires_at", "reason", "active", "supersedes", "seq",
}

func (s *Suite) TestFetchGrant() {
	grantedAt := time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)
	s.mock.ExpectQuery(`SELECT \* FROM "permission_grants" WHERE id = \$1`).
		WithArgs("g1").
		WillReturnRows(sqlmock.NewRows(grantColumns).
			AddRow("g1", "u1", "financial", "view_reports", "ALLOW", "admin", grantedAt, nil, "audit season", true, nil, 1))

	g, err := NewGrantStore(s.DB).FetchGrant(context.Background(), "g1")
	s.Require().NoError(err)
	s.Equal("u1", g.SubjectUserID)
	s.Equal(model.Allow, g.Decision)
	s.Nil(g.ExpiresAt)
	s.True(g.Active)
}

func (s *Suite) TestFetchGrantNotFound() {
	s.mock.ExpectQuery(`SELECT \* FROM "permission_grants" WHERE id = \$1`).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows(grantColumns))

	_, err := NewGrantStore(s.DB).FetchGrant(context.Background(), "missing")
	s.ErrorIs(err, apperr.ErrNotFound)
}

func (s *Suite) TestListActiveAppliesExpiryPredicate() {
	asOf := time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)
	past := asOf.Add(-time.Minute)
	future := asOf.Add(time.Hour)

	s.mock.ExpectQuery(`SELECT \* FROM "permission_grants" WHERE subject_user_id = \$1 AND active = true AND \(expires_at IS NULL OR expires_at > \$2\)`).
		WithArgs("u1", asOf).
		WillReturnRows(sqlmock.NewRows(grantColumns).
			AddRow("g1", "u1", "financial", "view_reports", "ALLOW", "admin", past, future, "r", true, nil, 1).
			// A row the database should not have returned is still filtered out.
			AddRow("g2", "u1", "financial", "export", "ALLOW", "admin", past, past, "r", true, nil, 1))

	active, err := NewGrantStore(s.DB).ListActive(context.Background(), "u1", asOf)
	s.Require().NoError(err)
	s.Require().Len(active, 1)
	s.Equal("g1", active[0].ID)
}

func (s *Suite) TestListActiveStorageError() {
	s.mock.ExpectQuery(`SELECT \* FROM "permission_grants"`).
		WillReturnError(errors.New("connection reset"))

	_, err := NewGrantStore(s.DB).ListActive(context.Background(), "u1", time.Now())
	s.ErrorIs(err, apperr.ErrStorage)
}

func (s *Suite) TestDeactivateGrantAlreadyInactive() {
	grantedAt := time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)

	s.mock.ExpectBegin()
	s.mock.ExpectExec(`UPDATE "permission_grants" SET .* WHERE id = \$\d+ AND active = \$\d+`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	s.mock.ExpectCommit()
	s.mock.ExpectQuery(`SELECT \* FROM "permission_grants" WHERE id = \$1`).
		WithArgs("g1").
		WillReturnRows(sqlmock.NewRows(grantColumns).
			AddRow("g1", "u1", "financial", "view_reports", "ALLOW", "admin", grantedAt, nil, "r", false, nil, 1))

	_, err := NewGrantStore(s.DB).DeactivateGrant(context.Background(), "g1", "admin", grantedAt.Add(time.Hour), "")
	s.ErrorIs(err, store.ErrInactive)
	s.False(errors.Is(err, apperr.ErrNotFound))
}

func (s *Suite) TestDeactivateGrantUnknown() {
	s.mock.ExpectBegin()
	s.mock.ExpectExec(`UPDATE "permission_grants" SET`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	s.mock.ExpectCommit()
	s.mock.ExpectQuery(`SELECT \* FROM "permission_grants" WHERE id = \$1`).
		WithArgs("nope").
		WillReturnRows(sqlmock.NewRows(grantColumns))

	_, err := NewGrantStore(s.DB).DeactivateGrant(context.Background(), "nope", "admin", time.Now(), "")
	s.ErrorIs(err, apperr.ErrNotFound)
}

var alertColumns = []string{
	"id", "created_at", "updated_at", "actor_id", "severity", "title", "description",
	"status", "triggering_event_ids", "rules", "resolved_at", "resolution_notes", "updated_by", "version",
}

func (s *Suite) TestUpdateAlertStaleVersion() {
	now := time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)

	s.mock.ExpectBegin()
	s.mock.ExpectExec(`UPDATE "security_alerts" SET .* WHERE id = \$\d+ AND version = \$\d+`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	s.mock.ExpectCommit()
	s.mock.ExpectQuery(`SELECT \* FROM "security_alerts" WHERE id = \$1`).
		WithArgs("a1").
		WillReturnRows(sqlmock.NewRows(alertColumns).
			AddRow("a1", now, now, "u1", "HIGH", "t", "d", "INVESTIGATING", `["e1"]`, `["error_burst"]`, nil, nil, nil, 3))

	alert := &model.SecurityAlert{ID: "a1", Status: model.StatusResolved, UpdatedAt: now}
	err := NewAlertStore(s.DB).UpdateAlert(context.Background(), alert, 2)
	s.ErrorIs(err, apperr.ErrConflict)
}

func (s *Suite) TestUpdateAlertBumpsVersion() {
	now := time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)

	s.mock.ExpectBegin()
	s.mock.ExpectExec(`UPDATE "security_alerts" SET .* WHERE id = \$\d+ AND version = \$\d+`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	s.mock.ExpectCommit()

	alert := &model.SecurityAlert{ID: "a1", Status: model.StatusInvestigating, UpdatedAt: now}
	err := NewAlertStore(s.DB).UpdateAlert(context.Background(), alert, 2)
	s.Require().NoError(err)
	s.Equal(3, alert.Version)
}

func (s *Suite) TestFetchAlertDecodesJSONColumns() {
	now := time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)

	s.mock.ExpectQuery(`SELECT \* FROM "security_alerts" WHERE id = \$1`).
		WithArgs("a1").
		WillReturnRows(sqlmock.NewRows(alertColumns).
			AddRow("a1", now, now, "u1", "CRITICAL", "t", "d", "OPEN", `["e1","e2"]`, `["high_risk_event"]`, nil, nil, nil, 1))

	a, err := NewAlertStore(s.DB).FetchAlert(context.Background(), "a1")
	s.Require().NoError(err)
	s.Equal(model.StringList{"e1", "e2"}, a.TriggeringEventIDs)
	s.Equal(model.SeverityCritical, a.Severity)
}

func (s *Suite) TestListRoles() {
	s.mock.ExpectQuery(`SELECT \* FROM "roles" ORDER BY name`).
		WillReturnRows(sqlmock.NewRows([]string{"name", "hierarchy_level", "manages", "matrix", "disabled", "updated_at"}).
			AddRow("receptionist", 5, `[]`, `{"appointments":{"view":true}}`, false, time.Now()))

	roles, err := NewRoleStore(s.DB).ListRoles(context.Background())
	s.Require().NoError(err)
	s.Require().Len(roles, 1)
	s.True(roles[0].Matrix.Allows("appointments", "view"))
}

func (s *Suite) TestCheckConnectivity() {
	s.mock.ExpectExec(`SELECT 1`).WillReturnResult(sqlmock.NewResult(0, 0))
	s.NoError(NewHealthStore(s.DB).CheckConnectivity(context.Background()))
}
