package audit

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/lib/pq"

	"github.com/doodlesbykumbi/clinicguard/pkg/apperr"
	"github.com/doodlesbykumbi/clinicguard/pkg/model"
	"github.com/doodlesbykumbi/clinicguard/pkg/store"
)

var _ store.EventStore = (*SQLStore)(nil)

// SQLStore is the append-only audit_events table over database/sql.
type SQLStore struct {
	db *sql.DB
}

// OpenSQLStore connects to the PostgreSQL database at url.
func OpenSQLStore(url string) (*SQLStore, error) {
	db, err := sql.Open("postgres", url)
	if err != nil {
		return nil, err
	}
	return &SQLStore{db: db}, nil
}

// NewSQLStore wraps an existing connection. Useful for testing with sqlmock.
func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db}
}

// Close closes the database connection.
func (s *SQLStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

const eventColumns = `id, timestamp, actor_id, actor_role, category, sensitivity, operation,
	resource_table, resource_id, outcome, outcome_message, ip_address, risk_score, source, metadata`

// AppendEvent implements store.EventStore.
func (s *SQLStore) AppendEvent(ctx context.Context, e *model.AuditEvent) error {
	metadata, err := e.Metadata.Value()
	if err != nil {
		return apperr.Storage("encode audit metadata", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO audit_events (`+eventColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`,
		e.ID,
		e.Timestamp.UTC(),
		e.ActorID,
		e.ActorRole,
		e.Category,
		string(e.Sensitivity),
		string(e.Operation),
		e.ResourceTable,
		e.ResourceID,
		string(e.Outcome),
		e.OutcomeMessage,
		nullString(e.IPAddress),
		e.RiskScore,
		string(e.Source),
		metadata,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return apperr.Conflict("audit event %s already recorded", e.ID)
		}
		return apperr.Storage("insert audit event", err)
	}
	return nil
}

// ListEventsSince implements store.EventStore.
func (s *SQLStore) ListEventsSince(ctx context.Context, since time.Time) ([]model.AuditEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+eventColumns+`
		FROM audit_events
		WHERE timestamp >= $1
		ORDER BY timestamp, id
	`, since.UTC())
	if err != nil {
		return nil, apperr.Storage("list audit events", err)
	}
	return scanEvents(rows)
}

// FetchEvents implements store.EventStore.
func (s *SQLStore) FetchEvents(ctx context.Context, ids []string) ([]model.AuditEvent, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+eventColumns+`
		FROM audit_events
		WHERE id = ANY($1)
		ORDER BY timestamp, id
	`, pq.Array(ids))
	if err != nil {
		return nil, apperr.Storage("fetch audit events", err)
	}
	return scanEvents(rows)
}

// CheckConnectivity verifies database connectivity.
func (s *SQLStore) CheckConnectivity(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func scanEvents(rows *sql.Rows) ([]model.AuditEvent, error) {
	defer func() { _ = rows.Close() }()

	var out []model.AuditEvent
	for rows.Next() {
		var (
			e           model.AuditEvent
			sensitivity string
			operation   string
			outcome     string
			source      string
			ip          sql.NullString
		)
		if err := rows.Scan(
			&e.ID,
			&e.Timestamp,
			&e.ActorID,
			&e.ActorRole,
			&e.Category,
			&sensitivity,
			&operation,
			&e.ResourceTable,
			&e.ResourceID,
			&outcome,
			&e.OutcomeMessage,
			&ip,
			&e.RiskScore,
			&source,
			&e.Metadata,
		); err != nil {
			return nil, apperr.Storage("scan audit event", err)
		}
		e.Sensitivity = model.Sensitivity(sensitivity)
		e.Operation = model.Operation(operation)
		e.Outcome = model.OutcomeStatus(outcome)
		e.Source = model.Source(source)
		if ip.Valid {
			e.IPAddress = &ip.String
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Storage("iterate audit events", err)
	}
	return out, nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}
