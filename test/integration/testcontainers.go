package integration

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/doodlesbykumbi/clinicguard/pkg/db"
)

// Postgres is a migrated PostgreSQL testcontainer shared by a test run.
type Postgres struct {
	Container testcontainers.Container
	URL       string
	Version   uint
	raw       *sql.DB
}

// StartPostgres starts a PostgreSQL container and applies the embedded
// migrations.
func StartPostgres(ctx context.Context) (*Postgres, error) {
	pgContainer, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("clinicguard_test"),
		tcpostgres.WithUsername("clinicguard"),
		tcpostgres.WithPassword("clinicguard"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to start postgres container: %w", err)
	}

	// Get connection string for the host (not container network)
	host, err := pgContainer.Host(ctx)
	if err != nil {
		_ = pgContainer.Terminate(ctx)
		return nil, fmt.Errorf("failed to get container host: %w", err)
	}
	port, err := pgContainer.MappedPort(ctx, "5432")
	if err != nil {
		_ = pgContainer.Terminate(ctx)
		return nil, fmt.Errorf("failed to get container port: %w", err)
	}
	connStr := fmt.Sprintf("postgres://clinicguard:clinicguard@%s:%s/clinicguard_test?sslmode=disable", host, port.Port())

	version, err := db.Migrate(connStr)
	if err != nil {
		_ = pgContainer.Terminate(ctx)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	raw, err := sql.Open("postgres", connStr)
	if err != nil {
		_ = pgContainer.Terminate(ctx)
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	return &Postgres{Container: pgContainer, URL: connStr, Version: version, raw: raw}, nil
}

// Reset empties every table so each scenario starts clean. TRUNCATE is not
// a row operation, so the append-only trigger on audit_events allows it.
func (p *Postgres) Reset(ctx context.Context) error {
	_, err := p.raw.ExecContext(ctx, `TRUNCATE audit_events, permission_grants, security_alerts, roles`)
	return err
}

// Close releases the connection and terminates the container.
func (p *Postgres) Close(ctx context.Context) {
	if p.raw != nil {
		_ = p.raw.Close()
	}
	if p.Container != nil {
		_ = p.Container.Terminate(ctx)
	}
}
