package endpoints

import (
	"net/http"

	"github.com/doodlesbykumbi/clinicguard/pkg/audit"
	"github.com/doodlesbykumbi/clinicguard/pkg/authz"
	"github.com/doodlesbykumbi/clinicguard/pkg/identity"
	"github.com/doodlesbykumbi/clinicguard/pkg/model"
	"github.com/doodlesbykumbi/clinicguard/pkg/server"
)

// requirePermission resolves the caller's own permission and writes the
// error response when it is missing. A refusal is audited as a failed
// operation on category.
func requirePermission(s *server.Server, w http.ResponseWriter, r *http.Request, category, action string, op model.Operation) (*identity.Identity, bool) {
	id, ok := identity.Get(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "Unable to determine identity")
		return nil, false
	}

	res, err := s.Resolver.Resolve(r.Context(), authz.Request{
		SubjectUserID: id.UserID,
		SubjectRole:   id.Role,
		Category:      category,
		Action:        action,
		AsOf:          s.Clock.Now(),
	})
	if err != nil {
		respondWithAppError(w, err)
		return nil, false
	}
	if !res.Allowed() {
		s.Recorder.Record(r.Context(), id.Actor().Submit(audit.Submission{
			Category:      category,
			Operation:     op,
			ResourceTable: category,
			ResourceID:    action,
			Outcome:       model.Failure("not authorized to " + action + " " + category),
			Source:        res.Source,
		}))
		respondWithError(w, http.StatusForbidden, "not authorized to "+action+" "+category)
		return nil, false
	}
	return id, true
}
