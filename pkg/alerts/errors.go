package alerts

import (
	"fmt"

	"github.com/doodlesbykumbi/clinicguard/pkg/apperr"
)

var (
	// ErrInvalidTransition is returned for a state change the lifecycle
	// does not allow.
	ErrInvalidTransition = fmt.Errorf("%w", apperr.ErrInvalidTransition)

	// ErrOperatorRequired is returned when a transition has no operator.
	ErrOperatorRequired = fmt.Errorf("%w: operator is required", apperr.ErrValidation)

	// ErrNotesRequired is returned when a terminal transition has no
	// resolution notes.
	ErrNotesRequired = fmt.Errorf("%w: resolution notes are required", apperr.ErrValidation)
)
