package monitor

import (
	"time"

	"github.com/inkpress/inkpress-backend/internal/notify"
)

// Alert types raised by the health monitor and the trigger surfaces.
const (
	AlertSchedulerBacklog  = "SYSTEM_SCHEDULER_BACKLOG"
	AlertEmailFailures     = "SYSTEM_EMAIL_FAILURES"
	AlertAuthAnomalies     = "SYSTEM_AUTH_ANOMALIES"
	AlertRiskyAuditActions = "SYSTEM_RISKY_AUDIT_ACTIONS"
	AlertManualRunFailed   = "SYSTEM_SCHEDULER_MANUAL_RUN_FAILED"
)

// dedupe windows per alert type. Noisier or more persistent conditions get
// longer windows so a standing breach raises one alert per window, not one
// per monitor tick.
var dedupeWindows = map[string]time.Duration{
	AlertSchedulerBacklog:  45 * time.Minute,
	AlertEmailFailures:     60 * time.Minute,
	AlertAuthAnomalies:     20 * time.Minute,
	AlertRiskyAuditActions: 180 * time.Minute,
	AlertManualRunFailed:   20 * time.Minute,
}

var severities = map[string]string{
	AlertSchedulerBacklog:  notify.SeverityWarning,
	AlertEmailFailures:     notify.SeverityWarning,
	AlertAuthAnomalies:     notify.SeverityCritical,
	AlertRiskyAuditActions: notify.SeverityWarning,
	AlertManualRunFailed:   notify.SeverityCritical,
}

// NewAlert builds an alert of a known type with its configured severity and
// dedupe window.
func NewAlert(alertType, title, message, href string, payload map[string]any) notify.Alert {
	return notify.Alert{
		Type:         alertType,
		Title:        title,
		Message:      message,
		Href:         href,
		Severity:     severities[alertType],
		DedupeWindow: dedupeWindows[alertType],
		Payload:      payload,
	}
}
