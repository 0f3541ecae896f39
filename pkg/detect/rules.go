package detect

import (
	"fmt"
	"time"

	"github.com/doodlesbykumbi/clinicguard/pkg/model"
)

// Rule names. They are stored on alerts and drive dedupe.
const (
	RuleSensitiveErrors = "sensitive_errors"
	RuleHighRisk        = "high_risk_event"
	RuleBurst           = "event_burst"
	RuleRapidBurst      = "rapid_burst"
	RuleSelfEscalation  = "self_escalation"
)

// Thresholds configures the rules.
type Thresholds struct {
	// SensitiveErrors is the number of failed SENSITIVE or CRITICAL
	// events that raises a HIGH alert.
	SensitiveErrors int
	// HighRisk is the risk score at or above which a single event raises
	// a CRITICAL alert.
	HighRisk int
	// Burst is the number of events in the scan window that raises a
	// MEDIUM alert.
	Burst int
	// RapidBurst events inside RapidWindow raise a MEDIUM alert. With the
	// recorder's burst threshold of 5 in 60s, 6 in 60s means at least one
	// event carried the burst weight.
	RapidBurst  int
	RapidWindow time.Duration
}

// DefaultThresholds returns the stock thresholds.
func DefaultThresholds() Thresholds {
	return Thresholds{
		SensitiveErrors: 3,
		HighRisk:        80,
		Burst:           10,
		RapidBurst:      6,
		RapidWindow:     60 * time.Second,
	}
}

// RoleMatrix answers whether a role's matrix allows a permission.
type RoleMatrix interface {
	Allows(role, category, action string) bool
}

// Finding is one rule firing for one actor.
type Finding struct {
	Rule     string
	Severity model.Severity
	EventIDs []string
	Detail   string
}

// Evaluate applies every rule to events, which must all belong to one
// actor and be ordered oldest first.
func Evaluate(events []model.AuditEvent, th Thresholds, roles RoleMatrix) []Finding {
	var findings []Finding

	var errs []string
	for _, e := range events {
		if e.Failed() && (e.Sensitivity == model.Sensitive || e.Sensitivity == model.Critical) {
			errs = append(errs, e.ID)
		}
	}
	if th.SensitiveErrors > 0 && len(errs) >= th.SensitiveErrors {
		findings = append(findings, Finding{
			Rule:     RuleSensitiveErrors,
			Severity: model.SeverityHigh,
			EventIDs: errs,
			Detail:   fmt.Sprintf("%d failed operations on sensitive data", len(errs)),
		})
	}

	var risky []string
	maxRisk := 0
	for _, e := range events {
		if th.HighRisk > 0 && e.RiskScore >= th.HighRisk {
			risky = append(risky, e.ID)
			if e.RiskScore > maxRisk {
				maxRisk = e.RiskScore
			}
		}
	}
	if len(risky) > 0 {
		findings = append(findings, Finding{
			Rule:     RuleHighRisk,
			Severity: model.SeverityCritical,
			EventIDs: risky,
			Detail:   fmt.Sprintf("%d events with risk score >= %d (max %d)", len(risky), th.HighRisk, maxRisk),
		})
	}

	if th.Burst > 0 && len(events) >= th.Burst {
		findings = append(findings, Finding{
			Rule:     RuleBurst,
			Severity: model.SeverityMedium,
			EventIDs: eventIDs(events),
			Detail:   fmt.Sprintf("%d events in the scan window", len(events)),
		})
	} else if f, ok := rapidBurst(events, th); ok {
		findings = append(findings, f)
	}

	if roles != nil {
		var escalations []string
		for _, e := range events {
			if selfEscalation(e, roles) {
				escalations = append(escalations, e.ID)
			}
		}
		if len(escalations) > 0 {
			findings = append(findings, Finding{
				Rule:     RuleSelfEscalation,
				Severity: model.SeverityCritical,
				EventIDs: escalations,
				Detail:   fmt.Sprintf("%d grants of permissions the actor's own role lacks", len(escalations)),
			})
		}
	}
	return findings
}

// rapidBurst finds the densest run of events inside RapidWindow and fires
// when it reaches RapidBurst.
func rapidBurst(events []model.AuditEvent, th Thresholds) (Finding, bool) {
	if th.RapidBurst <= 0 || len(events) < th.RapidBurst {
		return Finding{}, false
	}
	bestStart, bestLen := 0, 0
	start := 0
	for end := range events {
		for events[end].Timestamp.Sub(events[start].Timestamp) > th.RapidWindow {
			start++
		}
		if n := end - start + 1; n > bestLen {
			bestStart, bestLen = start, n
		}
	}
	if bestLen < th.RapidBurst {
		return Finding{}, false
	}
	run := events[bestStart : bestStart+bestLen]
	return Finding{
		Rule:     RuleRapidBurst,
		Severity: model.SeverityMedium,
		EventIDs: eventIDs(run),
		Detail:   fmt.Sprintf("%d events within %s", bestLen, th.RapidWindow),
	}, true
}

// selfEscalation reports whether e is a successful ALLOW grant of a
// permission the actor's own role does not have.
func selfEscalation(e model.AuditEvent, roles RoleMatrix) bool {
	if e.Category != model.CategoryPermissionChange || e.Failed() {
		return false
	}
	if e.Metadata[model.MetaChange] != model.ChangeGrant || e.Metadata[model.MetaDecision] != string(model.Allow) {
		return false
	}
	return !roles.Allows(e.ActorRole, e.Metadata[model.MetaGrantCategory], e.Metadata[model.MetaGrantAction])
}

func eventIDs(events []model.AuditEvent) []string {
	out := make([]string, len(events))
	for i, e := range events {
		out[i] = e.ID
	}
	return out
}
