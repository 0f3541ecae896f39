package audit

// Actor is the authenticated caller of an administrative operation, as
// supplied by the identity layer.
type Actor struct {
	ID   string  `json:"id"`
	Role string  `json:"role"`
	IP   *string `json:"ip,omitempty"`
}

// Submit builds a Submission attributed to a.
func (a Actor) Submit(s Submission) Submission {
	s.ActorID = a.ID
	s.ActorRole = a.Role
	s.IPAddress = a.IP
	return s
}
