// Package identity carries the authenticated caller of a request.
//
// An Identity combines the token claims (user id and clinic role) with the
// client address, and converts to the audit.Actor recorded on audit events.
//
//	id := identity.New("u1", "clinic_admin").WithRemoteIP(ip)
//	ctx = identity.Set(ctx, id)
//
//	if id, ok := identity.Get(ctx); ok {
//	    recorder.Record(ctx, id.Actor().Submit(submission))
//	}
package identity
