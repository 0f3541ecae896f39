package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cucumber/godog"

	"github.com/doodlesbykumbi/clinicguard/pkg/authz"
	"github.com/doodlesbykumbi/clinicguard/pkg/model"
)

// The identity used for scans and alert triage.
const (
	operatorID   = "security-officer"
	operatorRole = "super_admin"
)

// StepsContext holds state shared between step definitions
type StepsContext struct {
	databaseURL string
	reset       func(context.Context) error

	si           *ServerInstance
	client       *http.Client
	response     *http.Response
	responseBody []byte
	authToken    string

	lastGrant   *model.PermissionGrant
	lastEvent   *model.AuditEvent
	lastAlert   *model.SecurityAlert
	lastCreated []model.SecurityAlert
}

// NewStepsContext creates a new steps context. An empty databaseURL runs
// scenarios on the memory store; otherwise reset empties the database
// before each scenario.
func NewStepsContext(databaseURL string, reset func(context.Context) error) *StepsContext {
	return &StepsContext{
		databaseURL: databaseURL,
		reset:       reset,
		client:      &http.Client{Timeout: 10 * time.Second},
	}
}

// RegisterSteps registers all step definitions
func (s *StepsContext) RegisterSteps(sc *godog.ScenarioContext) {
	sc.After(func(ctx context.Context, _ *godog.Scenario, err error) (context.Context, error) {
		if s.si != nil {
			s.si.Stop()
			s.si = nil
		}
		return ctx, err
	})

	// Background steps
	sc.Step(`^a clinicguard server is running$`, s.aServerIsRunning)
	sc.Step(`^I am authenticated as "([^"]*)" with role "([^"]*)"$`, s.iAmAuthenticatedAs)
	sc.Step(`^I have an expired token for "([^"]*)" with role "([^"]*)"$`, s.iHaveAnExpiredToken)
	sc.Step(`^(\d+) (seconds|minutes|hours) pass$`, s.timePasses)

	// Resolution steps
	sc.Step(`^I resolve "([^"]*)" for "([^"]*)" with role "([^"]*)"$`, s.iResolve)
	sc.Step(`^the decision should be "([^"]*)" from "([^"]*)"$`, s.theDecisionShouldBe)

	// Grant steps
	sc.Step(`^I grant "([^"]*)" on "([^"]*)" to "([^"]*)" for "([^"]*)"$`, s.iGrant)
	sc.Step(`^I grant "([^"]*)" on "([^"]*)" to "([^"]*)" for (\d+) hours because "([^"]*)"$`, s.iGrantFor)
	sc.Step(`^I revoke the last grant$`, s.iRevokeTheLastGrant)
	sc.Step(`^the response should report the grant already inactive$`, s.theGrantIsAlreadyInactive)
	sc.Step(`^the expiry sweep runs$`, s.theExpirySweepRuns)
	sc.Step(`^"([^"]*)" should have (\d+) active grants$`, s.shouldHaveActiveGrants)
	sc.Step(`^the last grant should be marked inactive$`, s.theLastGrantShouldBeMarkedInactive)

	// Audit steps
	sc.Step(`^"([^"]*)" with role "([^"]*)" performs (\d+) "([^"]*)" operations on "([^"]*)" within (\d+) seconds$`, s.performsOperations)
	sc.Step(`^the last audit event should have a risk score of (\d+)$`, s.theLastEventShouldScore)
	sc.Step(`^there should be (\d+) "([^"]*)" audit events$`, s.thereShouldBeAuditEvents)

	// Alert steps
	sc.Step(`^I run a scan$`, s.iRunAScan)
	sc.Step(`^(\d+) alerts? should be created for "([^"]*)" with severity at least "([^"]*)"$`, s.alertsShouldBeCreated)
	sc.Step(`^I move the alert to "([^"]*)"$`, s.iMoveTheAlertTo)
	sc.Step(`^I move the alert to "([^"]*)" with notes "([^"]*)"$`, s.iMoveTheAlertToWithNotes)
	sc.Step(`^the alert should be "([^"]*)"$`, s.theAlertShouldBe)

	// Response steps
	sc.Step(`^I GET "([^"]*)"$`, s.iGET)
	sc.Step(`^the response status should be (\d+)$`, s.theResponseStatusShouldBe)
	sc.Step(`^the response body should be "([^"]*)"$`, s.theResponseBodyShouldBe)
}

// Background steps

func (s *StepsContext) aServerIsRunning() error {
	if s.reset != nil {
		if err := s.reset(context.Background()); err != nil {
			return fmt.Errorf("failed to reset database: %w", err)
		}
	}
	si, err := StartServer(s.databaseURL)
	if err != nil {
		return err
	}
	s.si = si
	return nil
}

func (s *StepsContext) iAmAuthenticatedAs(userID, role string) error {
	token, err := s.si.Token(userID, role, time.Hour)
	if err != nil {
		return err
	}
	s.authToken = token
	return nil
}

func (s *StepsContext) iHaveAnExpiredToken(userID, role string) error {
	token, err := s.si.Token(userID, role, -time.Minute)
	if err != nil {
		return err
	}
	s.authToken = token
	return nil
}

func (s *StepsContext) timePasses(n int, unit string) error {
	d := map[string]time.Duration{"seconds": time.Second, "minutes": time.Minute, "hours": time.Hour}[unit]
	s.si.Clock.Advance(time.Duration(n) * d)
	return nil
}

// HTTP helpers

func (s *StepsContext) request(method, path, token string, body interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, s.si.ServerURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	s.response, err = s.client.Do(req)
	if err != nil {
		return err
	}
	s.responseBody, err = io.ReadAll(s.response.Body)
	_ = s.response.Body.Close()
	return err
}

func (s *StepsContext) operatorRequest(method, path string, body interface{}) error {
	token, err := s.si.Token(operatorID, operatorRole, time.Hour)
	if err != nil {
		return err
	}
	return s.request(method, path, token, body)
}

func (s *StepsContext) expectStatus(code int) error {
	if s.response.StatusCode != code {
		return fmt.Errorf("expected status %d, got %d: %s", code, s.response.StatusCode, string(s.responseBody))
	}
	return nil
}

func (s *StepsContext) decode(v interface{}) error {
	if err := json.Unmarshal(s.responseBody, v); err != nil {
		return fmt.Errorf("failed to decode %q: %w", string(s.responseBody), err)
	}
	return nil
}

func splitKey(key string) (category, action string, err error) {
	category, action, ok := strings.Cut(key, ".")
	if !ok {
		return "", "", fmt.Errorf("permission %q is not category.action", key)
	}
	return category, action, nil
}

// Resolution steps

func (s *StepsContext) iResolve(key, userID, role string) error {
	category, action, err := splitKey(key)
	if err != nil {
		return err
	}
	return s.request("POST", "/authz/resolve", s.authToken, map[string]string{
		"subject_user_id": userID,
		"subject_role":    role,
		"category":        category,
		"action":          action,
	})
}

func (s *StepsContext) theDecisionShouldBe(decision, source string) error {
	if err := s.expectStatus(http.StatusOK); err != nil {
		return err
	}
	var res authz.Resolution
	if err := s.decode(&res); err != nil {
		return err
	}
	if string(res.Decision) != decision || string(res.Source) != source {
		return fmt.Errorf("expected %s/%s, got %s/%s", decision, source, res.Decision, res.Source)
	}
	if res.Source == model.SourceGrant && res.GrantID == "" {
		return fmt.Errorf("GRANT decision without a grant id")
	}
	return nil
}

// Grant steps

func (s *StepsContext) grant(decision, key, userID, reason string, ttlHours *float64) error {
	category, action, err := splitKey(key)
	if err != nil {
		return err
	}
	body := map[string]interface{}{
		"subject_user_id": userID,
		"category":        category,
		"action":          action,
		"decision":        decision,
		"reason":          reason,
	}
	if ttlHours != nil {
		body["ttl_hours"] = *ttlHours
	}
	if err := s.request("POST", "/grants", s.authToken, body); err != nil {
		return err
	}
	if s.response.StatusCode == http.StatusCreated {
		var g model.PermissionGrant
		if err := s.decode(&g); err != nil {
			return err
		}
		s.lastGrant = &g
	}
	return nil
}

func (s *StepsContext) iGrant(decision, key, userID, reason string) error {
	return s.grant(decision, key, userID, reason, nil)
}

func (s *StepsContext) iGrantFor(decision, key, userID string, hours int, reason string) error {
	ttl := float64(hours)
	if err := s.grant(decision, key, userID, reason, &ttl); err != nil {
		return err
	}
	return s.expectStatus(http.StatusCreated)
}

func (s *StepsContext) iRevokeTheLastGrant() error {
	if s.lastGrant == nil {
		return fmt.Errorf("no grant has been issued")
	}
	return s.request("POST", "/grants/"+s.lastGrant.ID+"/revoke", s.authToken, map[string]string{"notes": "no longer needed"})
}

func (s *StepsContext) theGrantIsAlreadyInactive() error {
	var resp struct {
		AlreadyInactive bool `json:"already_inactive"`
	}
	if err := s.decode(&resp); err != nil {
		return err
	}
	if !resp.AlreadyInactive {
		return fmt.Errorf("expected already_inactive, got %s", string(s.responseBody))
	}
	return nil
}

func (s *StepsContext) theExpirySweepRuns() error {
	_, err := s.si.Engine.Grants.SweepExpired(context.Background())
	return err
}

func (s *StepsContext) shouldHaveActiveGrants(userID string, n int) error {
	if err := s.request("GET", "/grants?subject="+userID, s.authToken, nil); err != nil {
		return err
	}
	if err := s.expectStatus(http.StatusOK); err != nil {
		return err
	}
	var grants []model.PermissionGrant
	if err := s.decode(&grants); err != nil {
		return err
	}
	if len(grants) != n {
		return fmt.Errorf("expected %d active grants, got %d", n, len(grants))
	}
	return nil
}

func (s *StepsContext) theLastGrantShouldBeMarkedInactive() error {
	if s.lastGrant == nil {
		return fmt.Errorf("no grant has been issued")
	}
	if err := s.request("GET", "/grants?history=true&subject="+s.lastGrant.SubjectUserID, s.authToken, nil); err != nil {
		return err
	}
	var grants []model.PermissionGrant
	if err := s.decode(&grants); err != nil {
		return err
	}
	for _, g := range grants {
		if g.ID == s.lastGrant.ID {
			if g.Active {
				return fmt.Errorf("grant %s is still flagged active", g.ID)
			}
			return nil
		}
	}
	return fmt.Errorf("grant %s not in history", s.lastGrant.ID)
}

// Audit steps

func (s *StepsContext) performsOperations(userID, role string, n int, op, category string, seconds int) error {
	token, err := s.si.Token(userID, role, time.Hour)
	if err != nil {
		return err
	}
	step := time.Duration(seconds) * time.Second / time.Duration(n)
	for i := 0; i < n; i++ {
		if i > 0 {
			s.si.Clock.Advance(step)
		}
		err := s.request("POST", "/audit/events", token, map[string]string{
			"category":       category,
			"operation":      op,
			"resource_table": category,
			"resource_id":    fmt.Sprintf("r-%d", i),
		})
		if err != nil {
			return err
		}
		if err := s.expectStatus(http.StatusCreated); err != nil {
			return err
		}
	}
	var event model.AuditEvent
	if err := s.decode(&event); err != nil {
		return err
	}
	s.lastEvent = &event
	return nil
}

func (s *StepsContext) theLastEventShouldScore(score int) error {
	if s.lastEvent == nil {
		return fmt.Errorf("no audit event has been recorded")
	}
	if s.lastEvent.RiskScore != score {
		return fmt.Errorf("expected risk score %d, got %d", score, s.lastEvent.RiskScore)
	}
	return nil
}

func (s *StepsContext) thereShouldBeAuditEvents(n int, category string) error {
	events, err := s.si.Engine.Stores.Events.ListEventsSince(context.Background(), scenarioStart)
	if err != nil {
		return err
	}
	count := 0
	for _, e := range events {
		if e.Category == category {
			count++
		}
	}
	if count != n {
		return fmt.Errorf("expected %d %s audit events, got %d", n, category, count)
	}
	return nil
}

// Alert steps

func (s *StepsContext) iRunAScan() error {
	if err := s.operatorRequest("POST", "/alerts/scan", nil); err != nil {
		return err
	}
	if err := s.expectStatus(http.StatusOK); err != nil {
		return err
	}
	s.lastCreated = nil
	if err := s.decode(&s.lastCreated); err != nil {
		return err
	}
	if len(s.lastCreated) > 0 {
		s.lastAlert = &s.lastCreated[0]
	}
	return nil
}

func (s *StepsContext) alertsShouldBeCreated(n int, actorID, severity string) error {
	if len(s.lastCreated) != n {
		return fmt.Errorf("expected %d alerts, got %d", n, len(s.lastCreated))
	}
	min := model.Severity(severity)
	for _, a := range s.lastCreated {
		if a.ActorID != actorID {
			return fmt.Errorf("alert %s is for %s, not %s", a.ID, a.ActorID, actorID)
		}
		if a.Severity.Rank() < min.Rank() {
			return fmt.Errorf("alert %s has severity %s, below %s", a.ID, a.Severity, severity)
		}
		if len(a.TriggeringEventIDs) == 0 {
			return fmt.Errorf("alert %s has no triggering events", a.ID)
		}
	}
	return nil
}

func (s *StepsContext) iMoveTheAlertTo(status string) error {
	return s.iMoveTheAlertToWithNotes(status, "")
}

func (s *StepsContext) iMoveTheAlertToWithNotes(status, notes string) error {
	if s.lastAlert == nil {
		return fmt.Errorf("no alert has been raised")
	}
	return s.operatorRequest("POST", "/alerts/"+s.lastAlert.ID+"/transition", map[string]string{
		"status": status,
		"notes":  notes,
	})
}

func (s *StepsContext) theAlertShouldBe(status string) error {
	if err := s.operatorRequest("GET", "/alerts/"+s.lastAlert.ID, nil); err != nil {
		return err
	}
	var alert model.SecurityAlert
	if err := s.decode(&alert); err != nil {
		return err
	}
	if string(alert.Status) != status {
		return fmt.Errorf("expected alert %s, got %s", status, alert.Status)
	}
	if alert.Status.Terminal() && (alert.ResolvedAt == nil || alert.ResolutionNotes == nil) {
		return fmt.Errorf("terminal alert without resolvedAt or notes")
	}
	return nil
}

// Response steps

func (s *StepsContext) iGET(path string) error {
	return s.request("GET", path, s.authToken, nil)
}

func (s *StepsContext) theResponseStatusShouldBe(expectedStatus int) error {
	return s.expectStatus(expectedStatus)
}

func (s *StepsContext) theResponseBodyShouldBe(expected string) error {
	if string(s.responseBody) != expected {
		return fmt.Errorf("expected body %q, got %q", expected, string(s.responseBody))
	}
	return nil
}
