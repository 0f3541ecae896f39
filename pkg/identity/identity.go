package identity

import (
	"context"
	"net"
	"time"

	"github.com/doodlesbykumbi/clinicguard/pkg/audit"
)

// ContextKey is a type for context keys to avoid collisions.
type ContextKey string

const (
	// Key is the context key for Identity.
	Key ContextKey = "identity"
)

// Identity represents the authenticated caller of a request.
type Identity struct {
	// Token claims
	UserID    string
	Role      string
	IssuedAt  time.Time
	ExpiresAt time.Time

	// Request context
	RemoteIP net.IP
}

// New returns an Identity for userID acting as role.
func New(userID, role string) *Identity {
	return &Identity{UserID: userID, Role: role}
}

// WithRemoteIP sets the remote IP address.
func (i *Identity) WithRemoteIP(ip net.IP) *Identity {
	i.RemoteIP = ip
	return i
}

// Actor returns the audit actor for the identity.
func (i *Identity) Actor() audit.Actor {
	actor := audit.Actor{ID: i.UserID, Role: i.Role}
	if i.RemoteIP != nil {
		ip := i.RemoteIP.String()
		actor.IP = &ip
	}
	return actor
}

// Get retrieves Identity from context.
func Get(ctx context.Context) (*Identity, bool) {
	id, ok := ctx.Value(Key).(*Identity)
	return id, ok
}

// Set stores Identity in context.
func Set(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, Key, id)
}
