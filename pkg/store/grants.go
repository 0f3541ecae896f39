package store

import (
	"context"
	"time"

	"github.com/doodlesbykumbi/clinicguard/pkg/model"
)

// GrantStore persists permission grants.
//
// Writes to one (subject, category, action) tuple are serialized: InsertGrant
// assigns the next tuple sequence number atomically and fails with
// apperr.ErrConflict if another writer claimed it first.
type GrantStore interface {
	// InsertGrant stores g, assigning g.Seq. When supersedes is non-empty the
	// referenced grant of the same tuple is deactivated in the same write.
	InsertGrant(ctx context.Context, g *model.PermissionGrant, supersedes string) error

	// FetchGrant returns the grant with id or apperr.ErrNotFound.
	FetchGrant(ctx context.Context, id string) (*model.PermissionGrant, error)

	// DeactivateGrant flips an active grant to inactive and records who did
	// it. It returns apperr.ErrNotFound for an unknown id and ErrInactive when
	// the grant was already inactive.
	DeactivateGrant(ctx context.Context, id string, revokedBy string, revokedAt time.Time, notes string) (*model.PermissionGrant, error)

	// ListActive returns the grants of subject effective at asOf, as one
	// consistent read.
	ListActive(ctx context.Context, subjectUserID string, asOf time.Time) ([]model.PermissionGrant, error)

	// ListEffective returns the grants effective at asOf for one tuple.
	ListEffective(ctx context.Context, tuple model.Tuple, asOf time.Time) ([]model.PermissionGrant, error)

	// ListHistory returns every grant ever issued to subject, oldest first.
	ListHistory(ctx context.Context, subjectUserID string) ([]model.PermissionGrant, error)

	// ListExpired returns grants still flagged active whose expiry is at or
	// before asOf.
	ListExpired(ctx context.Context, asOf time.Time, limit int) ([]model.PermissionGrant, error)

	// MarkExpired flags an expired grant inactive. It is a no-op for a grant
	// that is already inactive.
	MarkExpired(ctx context.Context, id string) error
}
