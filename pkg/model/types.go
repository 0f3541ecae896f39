package model

import "strings"

// Decision is the outcome of a permission resolution or the effect of a grant.
type Decision string

const (
	Allow Decision = "ALLOW"
	Deny  Decision = "DENY"
)

// Valid reports whether d is ALLOW or DENY.
func (d Decision) Valid() bool {
	return d == Allow || d == Deny
}

// ParseDecision accepts either case.
func ParseDecision(s string) (Decision, bool) {
	d := Decision(strings.ToUpper(strings.TrimSpace(s)))
	return d, d.Valid()
}

// Source records which layer produced a Decision.
type Source string

const (
	SourceGrant   Source = "GRANT"
	SourceRole    Source = "ROLE"
	SourceDefault Source = "DEFAULT"
)

// Sensitivity classifies a category for risk scoring.
type Sensitivity string

const (
	Normal    Sensitivity = "NORMAL"
	Sensitive Sensitivity = "SENSITIVE"
	Critical  Sensitivity = "CRITICAL"
)

// Valid reports whether s is a known sensitivity.
func (s Sensitivity) Valid() bool {
	switch s {
	case Normal, Sensitive, Critical:
		return true
	}
	return false
}

// ParseSensitivity defaults unrecognized values to CRITICAL so that a typo
// in the catalog never lowers a risk score.
func ParseSensitivity(s string) Sensitivity {
	v := Sensitivity(strings.ToUpper(strings.TrimSpace(s)))
	if v.Valid() {
		return v
	}
	return Critical
}

// Operation is the kind of access an audited operation performed.
type Operation string

const (
	OpRead   Operation = "READ"
	OpWrite  Operation = "WRITE"
	OpDelete Operation = "DELETE"
	OpAdmin  Operation = "ADMIN"
)

// Valid reports whether o is a known operation.
func (o Operation) Valid() bool {
	switch o {
	case OpRead, OpWrite, OpDelete, OpAdmin:
		return true
	}
	return false
}

// ParseOperation accepts either case.
func ParseOperation(s string) (Operation, bool) {
	o := Operation(strings.ToUpper(strings.TrimSpace(s)))
	return o, o.Valid()
}

// OutcomeStatus is SUCCESS or ERROR.
type OutcomeStatus string

const (
	OutcomeSuccess OutcomeStatus = "SUCCESS"
	OutcomeError   OutcomeStatus = "ERROR"
)

// Outcome is the result of the audited operation.
type Outcome struct {
	Status  OutcomeStatus
	Message string
}

// Success is the outcome of an operation that completed.
func Success() Outcome { return Outcome{Status: OutcomeSuccess} }

// Failure is the outcome of an operation that failed with msg.
func Failure(msg string) Outcome { return Outcome{Status: OutcomeError, Message: msg} }

// Severity grades a security alert.
type Severity string

const (
	SeverityLow      Severity = "LOW"
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

// Rank orders severities; unknown values rank lowest.
func (s Severity) Rank() int {
	switch s {
	case SeverityLow:
		return 1
	case SeverityMedium:
		return 2
	case SeverityHigh:
		return 3
	case SeverityCritical:
		return 4
	}
	return 0
}

// MaxSeverity returns the more severe of a and b.
func MaxSeverity(a, b Severity) Severity {
	if b.Rank() > a.Rank() {
		return b
	}
	return a
}

// AlertStatus is the lifecycle state of a SecurityAlert.
type AlertStatus string

const (
	StatusOpen          AlertStatus = "OPEN"
	StatusInvestigating AlertStatus = "INVESTIGATING"
	StatusResolved      AlertStatus = "RESOLVED"
	StatusFalsePositive AlertStatus = "FALSE_POSITIVE"
)

// Valid reports whether s is a known status.
func (s AlertStatus) Valid() bool {
	switch s {
	case StatusOpen, StatusInvestigating, StatusResolved, StatusFalsePositive:
		return true
	}
	return false
}

// Terminal reports whether s ends the lifecycle.
func (s AlertStatus) Terminal() bool {
	return s == StatusResolved || s == StatusFalsePositive
}

// ParseAlertStatus accepts either case and dashes or underscores.
func ParseAlertStatus(s string) (AlertStatus, bool) {
	v := AlertStatus(strings.ReplaceAll(strings.ToUpper(strings.TrimSpace(s)), "-", "_"))
	return v, v.Valid()
}
