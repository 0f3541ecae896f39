package audit

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/doodlesbykumbi/clinicguard/pkg/model"
)

// SDID used for audit event structured data (RFC5424 section 6.3.2).
const (
	SDIDEvent   = "event@32473"
	SDIDSubject = "subject@32473"
	SDIDMeta    = "meta@32473"
)

// FacilityAuthPriv is LOG_AUTHPRIV, for security/authorization messages.
const FacilityAuthPriv = 10

// Syslog severities (RFC5424).
const (
	syslogCritical = 2
	syslogWarning  = 4
	syslogNotice   = 5
	syslogInfo     = 6
)

// SyslogWriter writes audit events as RFC5424 lines. It is the local
// fallback for events the store could not persist.
type SyslogWriter struct {
	mu       sync.Mutex
	writer   io.Writer
	hostname string
	appName  string
	pid      int
}

// NewSyslogWriter returns a writer that emits to w.
func NewSyslogWriter(w io.Writer) *SyslogWriter {
	hostname, _ := os.Hostname()
	return &SyslogWriter{
		writer:   w,
		hostname: hostname,
		appName:  "clinicguard",
		pid:      os.Getpid(),
	}
}

// Write emits e.
// Format: <PRI>VERSION TIMESTAMP HOSTNAME APP-NAME PROCID MSGID SD MSG
func (s *SyslogWriter) Write(e model.AuditEvent) error {
	pri := FacilityAuthPriv*8 + syslogSeverity(e)

	hostname := s.hostname
	if hostname == "" {
		hostname = "-"
	}
	sd := formatStructuredData(structuredData(e))
	if sd == "" {
		sd = "-"
	}

	line := fmt.Sprintf("<%d>1 %s %s %s %d %s %s %s\n",
		pri,
		e.Timestamp.UTC().Format("2006-01-02T15:04:05.000Z"),
		hostname,
		s.appName,
		s.pid,
		messageID(e),
		sd,
		message(e),
	)

	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := io.WriteString(s.writer, line)
	return err
}

func syslogSeverity(e model.AuditEvent) int {
	switch {
	case e.RiskScore >= 80:
		return syslogCritical
	case e.Failed():
		return syslogWarning
	case e.Sensitivity == model.Critical:
		return syslogNotice
	}
	return syslogInfo
}

func messageID(e model.AuditEvent) string {
	if e.Category == "" {
		return "-"
	}
	return e.Category
}

func message(e model.AuditEvent) string {
	msg := fmt.Sprintf("%s %s %s %s/%s", e.ActorID, strings.ToLower(string(e.Operation)), e.Category, e.ResourceTable, e.ResourceID)
	if e.Failed() {
		msg += " failed"
		if e.OutcomeMessage != "" {
			msg += ": " + e.OutcomeMessage
		}
	}
	return msg
}

func structuredData(e model.AuditEvent) map[string]map[string]string {
	sd := map[string]map[string]string{
		SDIDEvent: {
			"id":          e.ID,
			"sensitivity": string(e.Sensitivity),
			"operation":   string(e.Operation),
			"outcome":     string(e.Outcome),
			"risk":        strconv.Itoa(e.RiskScore),
		},
		SDIDSubject: {
			"actor": e.ActorID,
			"role":  e.ActorRole,
		},
	}
	if e.IPAddress != nil {
		sd[SDIDSubject]["ip"] = *e.IPAddress
	}
	if e.Source != "" {
		sd[SDIDEvent]["source"] = string(e.Source)
	}
	if len(e.Metadata) > 0 {
		meta := make(map[string]string, len(e.Metadata))
		for k, v := range e.Metadata {
			meta[k] = v
		}
		sd[SDIDMeta] = meta
	}
	return sd
}

// formatStructuredData formats the structured data according to RFC5424:
// [sdid param1="value1" param2="value2"][sdid2 ...]. Elements and params
// are sorted so lines are stable.
func formatStructuredData(sd map[string]map[string]string) string {
	if len(sd) == 0 {
		return ""
	}

	ids := make([]string, 0, len(sd))
	for id := range sd {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var b strings.Builder
	for _, id := range ids {
		params := sd[id]
		keys := make([]string, 0, len(params))
		for k := range params {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		b.WriteString("[")
		b.WriteString(id)
		for _, k := range keys {
			fmt.Fprintf(&b, " %s=%s", k, escapeSDValue(params[k]))
		}
		b.WriteString("]")
	}
	return b.String()
}

// escapeSDValue escapes special characters in structured data values per RFC5424 section 6.3.3
func escapeSDValue(value string) string {
	value = strings.ReplaceAll(value, "\\", "\\\\")
	value = strings.ReplaceAll(value, "\"", "\\\"")
	value = strings.ReplaceAll(value, "]", "\\]")
	return "\"" + value + "\""
}
