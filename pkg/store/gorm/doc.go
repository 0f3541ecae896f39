// Package gorm provides GORM-based implementations of the store interfaces
// defined in the parent store package.
//
// Grant writes run in a transaction that claims the next per-tuple sequence
// number; the unique index on (subject_user_id, category, action, seq) turns
// a lost race into apperr.ErrConflict. Alert writes are compare-and-set on
// the version column.
package gorm
