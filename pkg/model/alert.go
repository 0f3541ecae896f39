package model

import "time"

// SecurityAlert aggregates audit events suspected of representing misuse.
type SecurityAlert struct {
	ID                 string      `gorm:"column:id;primaryKey" json:"id"`
	CreatedAt          time.Time   `gorm:"column:created_at" json:"created_at"`
	UpdatedAt          time.Time   `gorm:"column:updated_at" json:"updated_at"`
	ActorID            string      `gorm:"column:actor_id" json:"actor_id"`
	Severity           Severity    `gorm:"column:severity" json:"severity"`
	Title              string      `gorm:"column:title" json:"title"`
	Description        string      `gorm:"column:description" json:"description"`
	Status             AlertStatus `gorm:"column:status" json:"status"`
	TriggeringEventIDs StringList  `gorm:"column:triggering_event_ids;type:jsonb" json:"triggering_event_ids"`
	// Rules names the detection rules that contributed to the alert.
	Rules           StringList `gorm:"column:rules;type:jsonb" json:"rules"`
	ResolvedAt      *time.Time `gorm:"column:resolved_at" json:"resolved_at,omitempty"`
	ResolutionNotes *string    `gorm:"column:resolution_notes" json:"resolution_notes,omitempty"`
	UpdatedBy       *string    `gorm:"column:updated_by" json:"updated_by,omitempty"`
	// Version is bumped on every write and used for compare-and-set.
	Version int `gorm:"column:version" json:"version"`
}

func (SecurityAlert) TableName() string {
	return "security_alerts"
}

// Clone returns a copy that shares no slices with a.
func (a SecurityAlert) Clone() SecurityAlert {
	out := a
	out.TriggeringEventIDs = append(StringList(nil), a.TriggeringEventIDs...)
	out.Rules = append(StringList(nil), a.Rules...)
	return out
}
