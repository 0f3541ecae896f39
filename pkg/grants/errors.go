package grants

import (
	"fmt"

	"github.com/doodlesbykumbi/clinicguard/pkg/apperr"
	"github.com/doodlesbykumbi/clinicguard/pkg/store"
)

var (
	// ErrInvalidReason is returned when a grant has no reason.
	ErrInvalidReason = fmt.Errorf("%w: reason is required", apperr.ErrValidation)

	// ErrInvalidDuration is returned when ttlHours is not a positive number
	// of at most MaxTTLHours.
	ErrInvalidDuration = fmt.Errorf("%w: ttl must be a positive number of hours up to %d", apperr.ErrValidation, MaxTTLHours)

	// ErrAlreadyInactive is returned by Revoke for a grant that is already
	// revoked or expired. Retrying callers should treat it as success.
	ErrAlreadyInactive = fmt.Errorf("%w", store.ErrInactive)
)
