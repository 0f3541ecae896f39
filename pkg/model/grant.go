package model

import "time"

// PermissionGrant is a per-user override of the role matrix for one
// category/action. Grants are never deleted; revocation and expiry only
// make them ineffective.
type PermissionGrant struct {
	ID            string     `gorm:"column:id;primaryKey" json:"id"`
	SubjectUserID string     `gorm:"column:subject_user_id" json:"subject_user_id"`
	Category      string     `gorm:"column:category" json:"category"`
	Action        string     `gorm:"column:action" json:"action"`
	Decision      Decision   `gorm:"column:decision" json:"decision"`
	GrantedBy     string     `gorm:"column:granted_by" json:"granted_by"`
	GrantedAt     time.Time  `gorm:"column:granted_at" json:"granted_at"`
	ExpiresAt     *time.Time `gorm:"column:expires_at" json:"expires_at,omitempty"`
	Reason        string     `gorm:"column:reason" json:"reason"`
	Active        bool       `gorm:"column:active" json:"active"`
	Supersedes    *string    `gorm:"column:supersedes" json:"supersedes,omitempty"`
	// Seq orders writes to the same (subject, category, action) tuple.
	Seq         int64      `gorm:"column:seq" json:"seq"`
	RevokedBy   *string    `gorm:"column:revoked_by" json:"revoked_by,omitempty"`
	RevokedAt   *time.Time `gorm:"column:revoked_at" json:"revoked_at,omitempty"`
	RevokeNotes *string    `gorm:"column:revoke_notes" json:"revoke_notes,omitempty"`
}

func (PermissionGrant) TableName() string {
	return "permission_grants"
}

// EffectiveAt is the single activity/expiry predicate used by resolution,
// listing and the sweep: active, and either no expiry or an expiry strictly
// after asOf.
func (g PermissionGrant) EffectiveAt(asOf time.Time) bool {
	if !g.Active {
		return false
	}
	return g.ExpiresAt == nil || g.ExpiresAt.After(asOf)
}

// ExpiredAt reports whether g is still flagged active but its expiry has
// passed at asOf.
func (g PermissionGrant) ExpiredAt(asOf time.Time) bool {
	return g.Active && g.ExpiresAt != nil && !g.ExpiresAt.After(asOf)
}

// Tuple identifies the (subject, category, action) a grant applies to.
type Tuple struct {
	SubjectUserID string
	Category      string
	Action        string
}

// Tuple returns the grant's tuple.
func (g PermissionGrant) Tuple() Tuple {
	return Tuple{SubjectUserID: g.SubjectUserID, Category: g.Category, Action: g.Action}
}

// Later reports whether g is more recent than other: later GrantedAt, then
// higher Seq.
func (g PermissionGrant) Later(other PermissionGrant) bool {
	if !g.GrantedAt.Equal(other.GrantedAt) {
		return g.GrantedAt.After(other.GrantedAt)
	}
	return g.Seq > other.Seq
}
