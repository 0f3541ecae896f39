// Package ids generates identifiers for grants, audit events and alerts.
package ids

import (
	mathrand "math/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(mathrand.New(mathrand.NewSource(time.Now().UnixNano())), 0)
)

// New returns a lexicographically sortable identifier for the given
// creation time. Identifiers created within the same millisecond are still
// strictly increasing.
func New(at time.Time) string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(at), entropy).String()
}

// Generator produces identifiers. The engine packages take a Generator so
// tests can supply predictable ids.
type Generator interface {
	NewID(at time.Time) string
}

// ULID is the default Generator.
type ULID struct{}

// NewID implements Generator.
func (ULID) NewID(at time.Time) string { return New(at) }
