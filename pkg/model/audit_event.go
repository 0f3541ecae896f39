package model

import "time"

// CategoryPermissionChange is the category of every grant, revoke and role
// matrix mutation.
const CategoryPermissionChange = "permission_change"

// Metadata keys attached to permission_change events.
const (
	MetaChange        = "change"
	MetaGrantID       = "grant_id"
	MetaSubjectUserID = "subject_user_id"
	MetaGrantCategory = "grant_category"
	MetaGrantAction   = "grant_action"
	MetaDecision      = "decision"
	MetaRole          = "role"
	MetaNotes         = "notes"
	MetaSupersedes    = "supersedes"
)

// Values of MetaChange.
const (
	ChangeGrant      = "grant"
	ChangeRevoke     = "revoke"
	ChangeRoleMatrix = "role_matrix"
	ChangeRoleStatus = "role_status"
)

// AuditEvent is an append-only record of a sensitive operation. RiskScore
// is computed once when the event is recorded.
type AuditEvent struct {
	ID             string        `gorm:"column:id;primaryKey" json:"id"`
	Timestamp      time.Time     `gorm:"column:timestamp" json:"timestamp"`
	ActorID        string        `gorm:"column:actor_id" json:"actor_id"`
	ActorRole      string        `gorm:"column:actor_role" json:"actor_role"`
	Category       string        `gorm:"column:category" json:"category"`
	Sensitivity    Sensitivity   `gorm:"column:sensitivity" json:"sensitivity"`
	Operation      Operation     `gorm:"column:operation" json:"operation"`
	ResourceTable  string        `gorm:"column:resource_table" json:"resource_table"`
	ResourceID     string        `gorm:"column:resource_id" json:"resource_id"`
	Outcome        OutcomeStatus `gorm:"column:outcome" json:"outcome"`
	OutcomeMessage string        `gorm:"column:outcome_message" json:"outcome_message,omitempty"`
	IPAddress      *string       `gorm:"column:ip_address" json:"ip_address,omitempty"`
	RiskScore      int           `gorm:"column:risk_score" json:"risk_score"`
	// Source is the resolution source that authorized the operation, when
	// the caller supplied it.
	Source   Source    `gorm:"column:source" json:"source,omitempty"`
	Metadata StringMap `gorm:"column:metadata;type:jsonb" json:"metadata,omitempty"`
}

func (AuditEvent) TableName() string {
	return "audit_events"
}

// Failed reports whether the audited operation ended in an error.
func (e AuditEvent) Failed() bool {
	return e.Outcome == OutcomeError
}
