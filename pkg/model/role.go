package model

import (
	"database/sql/driver"
	"encoding/json"
	"time"
)

// Matrix maps category → action → allowed. A missing entry means the role
// matrix says nothing, which resolution treats as default-deny.
type Matrix map[string]map[string]bool

// Lookup returns the matrix value and whether an entry exists.
func (m Matrix) Lookup(category, action string) (allowed bool, present bool) {
	actions, ok := m[category]
	if !ok {
		return false, false
	}
	allowed, present = actions[action]
	return allowed, present
}

// Allows reports whether the matrix explicitly allows category/action.
func (m Matrix) Allows(category, action string) bool {
	allowed, present := m.Lookup(category, action)
	return present && allowed
}

// Clone returns a deep copy.
func (m Matrix) Clone() Matrix {
	out := make(Matrix, len(m))
	for category, actions := range m {
		inner := make(map[string]bool, len(actions))
		for action, v := range actions {
			inner[action] = v
		}
		out[category] = inner
	}
	return out
}

// Value implements driver.Valuer.
func (m Matrix) Value() (driver.Value, error) {
	if m == nil {
		return "{}", nil
	}
	data, err := json.Marshal(map[string]map[string]bool(m))
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

// Scan implements sql.Scanner.
func (m *Matrix) Scan(src any) error {
	return scanJSON(src, m)
}

// Role is a clinic role. HierarchyLevel is lower for more senior roles.
type Role struct {
	Name           string     `gorm:"column:name;primaryKey" json:"name" yaml:"name"`
	HierarchyLevel int        `gorm:"column:hierarchy_level" json:"hierarchy_level" yaml:"hierarchy_level"`
	Manages        StringList `gorm:"column:manages;type:jsonb" json:"manages,omitempty" yaml:"manages,omitempty"`
	Matrix         Matrix     `gorm:"column:matrix;type:jsonb" json:"matrix" yaml:"matrix"`
	Disabled       bool       `gorm:"column:disabled" json:"disabled,omitempty" yaml:"disabled,omitempty"`
	UpdatedAt      time.Time  `gorm:"column:updated_at" json:"updated_at" yaml:"-"`
}

func (Role) TableName() string {
	return "roles"
}

// Clone returns a deep copy of r.
func (r Role) Clone() Role {
	out := r
	out.Manages = append(StringList(nil), r.Manages...)
	out.Matrix = r.Matrix.Clone()
	return out
}
