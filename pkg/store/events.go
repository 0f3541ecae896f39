package store

import (
	"context"
	"time"

	"github.com/doodlesbykumbi/clinicguard/pkg/model"
)

// EventStore is the append-only audit log.
type EventStore interface {
	// AppendEvent inserts e. Events are never updated or deleted.
	AppendEvent(ctx context.Context, e *model.AuditEvent) error

	// ListEventsSince returns events with timestamp >= since, oldest first.
	ListEventsSince(ctx context.Context, since time.Time) ([]model.AuditEvent, error)

	// FetchEvents returns the events with the given ids, in timestamp order.
	FetchEvents(ctx context.Context, ids []string) ([]model.AuditEvent, error)
}
