package store

import (
	"fmt"

	"github.com/doodlesbykumbi/clinicguard/pkg/apperr"
)

// ErrInactive is returned by DeactivateGrant when the grant is already
// inactive.
var ErrInactive = fmt.Errorf("%w: grant already inactive", apperr.ErrConflict)
