package endpoints

import (
	"net/http"

	"github.com/doodlesbykumbi/clinicguard/pkg/apperr"
	"github.com/doodlesbykumbi/clinicguard/pkg/audit"
	"github.com/doodlesbykumbi/clinicguard/pkg/identity"
	"github.com/doodlesbykumbi/clinicguard/pkg/model"
	"github.com/doodlesbykumbi/clinicguard/pkg/server"
)

// EventRequest is the body of POST /audit/events. The actor is always the
// authenticated caller.
type EventRequest struct {
	Category       string            `json:"category"`
	Operation      string            `json:"operation"`
	ResourceTable  string            `json:"resource_table"`
	ResourceID     string            `json:"resource_id"`
	Outcome        string            `json:"outcome"`
	OutcomeMessage string            `json:"outcome_message,omitempty"`
	Source         model.Source      `json:"source,omitempty"`
	Metadata       map[string]string `json:"metadata,omitempty"`
}

// RegisterAuditEndpoints registers the audit event endpoints
func RegisterAuditEndpoints(s *server.Server) {
	auditRouter := s.Router.PathPrefix("/audit").Subrouter()
	auditRouter.Use(s.JWTMiddleware.Middleware)

	// POST /audit/events - Record an audited operation
	auditRouter.HandleFunc("/events", handleRecordEvent(s)).Methods("POST")
}

func (e EventRequest) submission() (audit.Submission, error) {
	op, ok := model.ParseOperation(e.Operation)
	if !ok {
		return audit.Submission{}, apperr.Validation("unknown operation %q", e.Operation)
	}
	var outcome model.Outcome
	switch model.OutcomeStatus(e.Outcome) {
	case model.OutcomeSuccess, "":
		outcome = model.Success()
	case model.OutcomeError:
		outcome = model.Failure(e.OutcomeMessage)
	default:
		return audit.Submission{}, apperr.Validation("unknown outcome %q", e.Outcome)
	}
	if e.Category == "" {
		return audit.Submission{}, apperr.Validation("category is required")
	}
	return audit.Submission{
		Category:      e.Category,
		Operation:     op,
		ResourceTable: e.ResourceTable,
		ResourceID:    e.ResourceID,
		Outcome:       outcome,
		Source:        e.Source,
		Metadata:      e.Metadata,
	}, nil
}

func handleRecordEvent(s *server.Server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := identity.Get(r.Context())
		if !ok {
			respondWithError(w, http.StatusUnauthorized, "Unable to determine identity")
			return
		}

		var body EventRequest
		if err := decodeJSON(r, &body); err != nil {
			respondWithAppError(w, err)
			return
		}
		sub, err := body.submission()
		if err != nil {
			respondWithAppError(w, err)
			return
		}

		event := s.Recorder.Record(r.Context(), id.Actor().Submit(sub))
		respondWithJSON(w, http.StatusCreated, event)
	}
}
