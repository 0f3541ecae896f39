package detect

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/doodlesbykumbi/clinicguard/pkg/model"
)

var base = time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)

func events(n int, step time.Duration) []model.AuditEvent {
	out := make([]model.AuditEvent, n)
	for i := range out {
		out[i] = model.AuditEvent{
			ID:          string(rune('a' + i)),
			Timestamp:   base.Add(time.Duration(i) * step),
			ActorID:     "u1",
			Sensitivity: model.Normal,
			Operation:   model.OpRead,
			Outcome:     model.OutcomeSuccess,
		}
	}
	return out
}

func rules(findings []Finding) []string {
	var out []string
	for _, f := range findings {
		out = append(out, f.Rule)
	}
	return out
}

func TestEvaluateRapidBurst(t *testing.T) {
	th := DefaultThresholds()

	assert.Equal(t, []string{RuleRapidBurst}, rules(Evaluate(events(6, 10*time.Second), th, nil)))
	assert.Empty(t, Evaluate(events(6, 20*time.Second), th, nil))
	assert.Empty(t, Evaluate(events(5, time.Second), th, nil))
}

func TestEvaluateBurstSupersedesRapidBurst(t *testing.T) {
	findings := Evaluate(events(10, time.Second), DefaultThresholds(), nil)
	assert.Equal(t, []string{RuleBurst}, rules(findings))
	assert.Equal(t, model.SeverityMedium, findings[0].Severity)
}

func TestEvaluateSensitiveErrors(t *testing.T) {
	evs := events(3, time.Minute)
	for i := range evs {
		evs[i].Sensitivity = model.Sensitive
		evs[i].Outcome = model.OutcomeError
	}
	findings := Evaluate(evs, DefaultThresholds(), nil)
	assert.Equal(t, []string{RuleSensitiveErrors}, rules(findings))
	assert.Equal(t, model.SeverityHigh, findings[0].Severity)

	evs[0].Sensitivity = model.Normal
	assert.Empty(t, Evaluate(evs, DefaultThresholds(), nil))
}

func TestEvaluateHighRisk(t *testing.T) {
	evs := events(2, time.Minute)
	evs[1].RiskScore = 80
	findings := Evaluate(evs, DefaultThresholds(), nil)
	assert.Equal(t, []string{RuleHighRisk}, rules(findings))
	assert.Equal(t, []string{"b"}, findings[0].EventIDs)
}

type matrix map[string]bool

func (m matrix) Allows(role, category, action string) bool {
	return m[role+"/"+category+"/"+action]
}

func TestEvaluateSelfEscalation(t *testing.T) {
	grant := model.AuditEvent{
		ID:        "g",
		Timestamp: base,
		ActorRole: "receptionist",
		Category:  model.CategoryPermissionChange,
		Outcome:   model.OutcomeSuccess,
		Metadata: model.StringMap{
			model.MetaChange:        model.ChangeGrant,
			model.MetaDecision:      "ALLOW",
			model.MetaGrantCategory: "financial",
			model.MetaGrantAction:   "export",
		},
	}
	roles := matrix{"clinic_owner/financial/export": true}

	assert.Equal(t, []string{RuleSelfEscalation}, rules(Evaluate([]model.AuditEvent{grant}, DefaultThresholds(), roles)))

	owner := grant
	owner.ActorRole = "clinic_owner"
	assert.Empty(t, Evaluate([]model.AuditEvent{owner}, DefaultThresholds(), roles))

	deny := grant
	deny.Metadata = model.StringMap{
		model.MetaChange:        model.ChangeGrant,
		model.MetaDecision:      "DENY",
		model.MetaGrantCategory: "financial",
		model.MetaGrantAction:   "export",
	}
	assert.Empty(t, Evaluate([]model.AuditEvent{deny}, DefaultThresholds(), roles))

	failed := grant
	failed.Outcome = model.OutcomeError
	assert.Empty(t, Evaluate([]model.AuditEvent{failed}, DefaultThresholds(), roles))
}
