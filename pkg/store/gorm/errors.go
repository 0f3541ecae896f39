package gorm

import (
	"errors"
	"strings"

	"gorm.io/gorm"
)

// isUniqueViolation matches PostgreSQL SQLSTATE 23505 as reported through
// the pgx driver.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLSTATE 23505") || strings.Contains(msg, "duplicate key value")
}

func isNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}
