package monitor

import (
	"context"
	"fmt"
	"time"

	"github.com/inkpress/inkpress-backend/internal/content"
	"github.com/inkpress/inkpress-backend/internal/notify"
	"github.com/inkpress/inkpress-backend/internal/scheduler"
	"go.uber.org/zap"
)

// Signal thresholds. A crossing raises the corresponding alert.
const (
	failedEmailThreshold      = 3
	failedLoginThreshold      = 10
	rateLimitedLoginThreshold = 4
)

// Lookback windows for signal evaluation.
const (
	emailLookback = time.Hour
	loginLookback = time.Hour
	auditLookback = 24 * time.Hour
)

// SignalSource is the slice of the repository the monitor reads.
type SignalSource interface {
	CountOverdue(ctx context.Context, kind content.Kind, threshold time.Time) (int, error)
	CountFailedEmails(ctx context.Context, since time.Time) (int, error)
	CountLoginFailures(ctx context.Context, since time.Time) (failed, rateLimited int, err error)
	CountLockedAdmins(ctx context.Context) (int, error)
	CountRiskyAuditActions(ctx context.Context, since time.Time) (int, error)
}

// AlertSink fans raised alerts out to admin users.
type AlertSink interface {
	NotifyAdminUsers(ctx context.Context, alert notify.Alert) (bool, error)
}

// Metrics is the subset of metric recording the monitor uses.
type Metrics interface {
	RecordMonitorAlert(ctx context.Context, alertType string)
}

// Summary aggregates one monitor run.
type Summary struct {
	OverdueScheduledPosts   int       `json:"overdue_scheduled_posts"`
	OverdueScheduledReviews int       `json:"overdue_scheduled_reviews"`
	FailedEmailsLastHour    int       `json:"failed_emails_last_hour"`
	FailedLoginsLastHour    int       `json:"failed_logins_last_hour"`
	RateLimitedLastHour     int       `json:"rate_limited_last_hour"`
	LockedAdminAccounts     int       `json:"locked_admin_accounts"`
	RiskyAuditActions24h    int       `json:"risky_audit_actions_24h"`
	AlertsTriggered         int       `json:"alerts_triggered"`
	SignalErrors            []string  `json:"signal_errors,omitempty"`
	RanAt                   time.Time `json:"ran_at"`
}

// Outcome is the result of a throttled monitor invocation.
type Outcome struct {
	Skipped bool     `json:"skipped"`
	Reason  string   `json:"reason,omitempty"`
	Summary *Summary `json:"summary,omitempty"`
}

// Monitor periodically evaluates operational signals and escalates
// threshold crossings as deduplicated admin alerts.
type Monitor struct {
	source     SignalSource
	sink       AlertSink
	guard      *scheduler.RunGuard
	logger     *zap.SugaredLogger
	metrics    Metrics
	overdueLag time.Duration
	now        func() time.Time
}

type Config struct {
	Cooldown   time.Duration
	OverdueLag time.Duration // how stale a due item must be to count as backlog
}

func New(source SignalSource, sink AlertSink, logger *zap.SugaredLogger, metrics Metrics, cfg Config) *Monitor {
	if cfg.OverdueLag <= 0 {
		cfg.OverdueLag = 15 * time.Minute
	}
	return &Monitor{
		source:     source,
		sink:       sink,
		guard:      scheduler.NewRunGuard(cfg.Cooldown),
		logger:     logger,
		metrics:    metrics,
		overdueLag: cfg.OverdueLag,
		now:        time.Now,
	}
}

// Run evaluates every signal and raises alerts for crossings. A failure
// evaluating one signal is recorded in the summary and the remaining
// signals still run; the monitor never takes down the request that invoked
// it.
func (m *Monitor) Run(ctx context.Context) (*Summary, error) {
	now := m.now().UTC()
	s := &Summary{RanAt: now}

	m.evalBacklog(ctx, s, now)
	m.evalEmailFailures(ctx, s, now)
	m.evalAuthAnomalies(ctx, s, now)
	m.evalRiskyActions(ctx, s, now)

	m.logger.Infow("Health monitor run complete",
		"overdue_posts", s.OverdueScheduledPosts,
		"overdue_reviews", s.OverdueScheduledReviews,
		"failed_emails", s.FailedEmailsLastHour,
		"failed_logins", s.FailedLoginsLastHour,
		"rate_limited", s.RateLimitedLastHour,
		"locked_admins", s.LockedAdminAccounts,
		"risky_actions", s.RiskyAuditActions24h,
		"alerts", s.AlertsTriggered,
		"signal_errors", len(s.SignalErrors),
	)

	return s, nil
}

// MaybeRun applies the same in-process guard pattern as the scheduler's
// passive trigger.
func (m *Monitor) MaybeRun(ctx context.Context) (*Outcome, error) {
	ok, reason := m.guard.TryAcquire(m.now())
	if !ok {
		return &Outcome{Skipped: true, Reason: reason}, nil
	}
	defer func() {
		m.guard.Release(m.now())
	}()

	summary, err := m.Run(ctx)
	if err != nil {
		return nil, err
	}
	return &Outcome{Summary: summary}, nil
}

func (m *Monitor) evalBacklog(ctx context.Context, s *Summary, now time.Time) {
	threshold := now.Add(-m.overdueLag)

	posts, err := m.source.CountOverdue(ctx, content.KindPost, threshold)
	if err != nil {
		m.signalError(s, "overdue_posts", err)
		return
	}
	reviews, err := m.source.CountOverdue(ctx, content.KindReview, threshold)
	if err != nil {
		m.signalError(s, "overdue_reviews", err)
		return
	}

	s.OverdueScheduledPosts = posts
	s.OverdueScheduledReviews = reviews

	if posts+reviews > 0 {
		m.raise(ctx, s, NewAlert(
			AlertSchedulerBacklog,
			"Scheduled publishing backlog",
			fmt.Sprintf("%d scheduled items are overdue by more than %s and have not been published.", posts+reviews, m.overdueLag),
			"/admin/scheduler",
			map[string]any{
				"overdueScheduledPosts":   posts,
				"overdueScheduledReviews": reviews,
			},
		))
	}
}

func (m *Monitor) evalEmailFailures(ctx context.Context, s *Summary, now time.Time) {
	failed, err := m.source.CountFailedEmails(ctx, now.Add(-emailLookback))
	if err != nil {
		m.signalError(s, "failed_emails", err)
		return
	}
	s.FailedEmailsLastHour = failed

	if failed >= failedEmailThreshold {
		m.raise(ctx, s, NewAlert(
			AlertEmailFailures,
			"Outbound email failures",
			fmt.Sprintf("%d email deliveries failed in the last hour.", failed),
			"/admin/notifications",
			map[string]any{"failedEmailsLastHour": failed},
		))
	}
}

func (m *Monitor) evalAuthAnomalies(ctx context.Context, s *Summary, now time.Time) {
	failed, rateLimited, err := m.source.CountLoginFailures(ctx, now.Add(-loginLookback))
	if err != nil {
		m.signalError(s, "login_failures", err)
		return
	}
	locked, err := m.source.CountLockedAdmins(ctx)
	if err != nil {
		m.signalError(s, "locked_admins", err)
		return
	}

	s.FailedLoginsLastHour = failed
	s.RateLimitedLastHour = rateLimited
	s.LockedAdminAccounts = locked

	if failed >= failedLoginThreshold || rateLimited >= rateLimitedLoginThreshold || locked > 0 {
		m.raise(ctx, s, NewAlert(
			AlertAuthAnomalies,
			"Admin authentication anomalies",
			fmt.Sprintf("%d failed logins, %d rate-limited attempts, %d locked admin accounts.", failed, rateLimited, locked),
			"/admin/security",
			map[string]any{
				"failedLoginsLastHour": failed,
				"rateLimitedLastHour":  rateLimited,
				"lockedAdminAccounts":  locked,
			},
		))
	}
}

func (m *Monitor) evalRiskyActions(ctx context.Context, s *Summary, now time.Time) {
	risky, err := m.source.CountRiskyAuditActions(ctx, now.Add(-auditLookback))
	if err != nil {
		m.signalError(s, "risky_actions", err)
		return
	}
	s.RiskyAuditActions24h = risky

	if risky > 0 {
		m.raise(ctx, s, NewAlert(
			AlertRiskyAuditActions,
			"Risky administrative actions",
			fmt.Sprintf("%d risky audit actions (deletions, bans, timeouts) in the last 24 hours.", risky),
			"/admin/audit",
			map[string]any{"riskyAuditActions24h": risky},
		))
	}
}

func (m *Monitor) raise(ctx context.Context, s *Summary, alert notify.Alert) {
	raised, err := m.sink.NotifyAdminUsers(ctx, alert)
	if err != nil {
		m.logger.Errorw("Failed to raise alert", "type", alert.Type, "error", err)
		s.SignalErrors = append(s.SignalErrors, fmt.Sprintf("%s: %v", alert.Type, err))
		return
	}
	if raised {
		s.AlertsTriggered++
		if m.metrics != nil {
			m.metrics.RecordMonitorAlert(ctx, alert.Type)
		}
	}
}

func (m *Monitor) signalError(s *Summary, signal string, err error) {
	m.logger.Errorw("Signal evaluation failed", "signal", signal, "error", err)
	s.SignalErrors = append(s.SignalErrors, fmt.Sprintf("%s: %v", signal, err))
}

// SetClock overrides the monitor's time source in tests.
func (m *Monitor) SetClock(now func() time.Time) {
	m.now = now
}
