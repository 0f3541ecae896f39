package apperr

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStorageWrapsCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := Storage("insert grant", cause)

	assert.ErrorIs(t, err, ErrStorage)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "insert grant")
}

func TestStorageKeepsClassifiedErrors(t *testing.T) {
	err := NotFound("grant %s", "g1")
	wrapped := Storage("fetch grant", err)

	assert.Equal(t, err, wrapped)
	assert.False(t, errors.Is(wrapped, ErrStorage))
}

func TestStorageNil(t *testing.T) {
	assert.NoError(t, Storage("noop", nil))
}

func TestKind(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"validation", Validation("reason is required"), ErrValidation},
		{"not found", NotFound("alert a1"), ErrNotFound},
		{"conflict", Conflict("tuple changed"), ErrConflict},
		{"storage", Storage("op", errors.New("boom")), ErrStorage},
		{"forbidden", Forbidden("role %s", "dentist"), ErrForbidden},
		{"unclassified", errors.New("plain"), nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Kind(tt.err))
		})
	}
}
