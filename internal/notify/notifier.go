package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/inkpress/inkpress-backend/internal/repository"
	"go.uber.org/zap"
)

// Alert severities.
const (
	SeverityWarning  = "warning"
	SeverityCritical = "critical"
)

// Alert is one administrative alert to fan out to all admin users.
type Alert struct {
	Type         string         `json:"type"`
	Title        string         `json:"title"`
	Message      string         `json:"message"`
	Href         string         `json:"href,omitempty"`
	Severity     string         `json:"severity"`
	DedupeWindow time.Duration  `json:"dedupe_window"`
	Payload      map[string]any `json:"payload,omitempty"`
}

// Store is the persistence the notifier needs: recipient resolution, the
// dedupe lookback, notification rows, and the delivery ledger the health
// monitor watches.
type Store interface {
	AdminRecipients(ctx context.Context) ([]repository.AdminUser, error)
	LastAlertOfType(ctx context.Context, alertType string) (*time.Time, error)
	InsertNotification(ctx context.Context, n *repository.Notification) error
	RecordEmailDelivery(ctx context.Context, recipient, subject, outcome, deliveryErr string) error
}

// Broadcaster pushes a raised alert to live admin connections. Optional.
type Broadcaster interface {
	BroadcastAlert(alert Alert)
}

// Notifier is the admin notification sink: one in-app row and one email
// attempt per admin recipient, with per-alert-type dedupe windows.
type Notifier struct {
	store       Store
	mailer      Mailer
	broadcaster Broadcaster
	logger      *zap.SugaredLogger
	now         func() time.Time
}

func NewNotifier(store Store, mailer Mailer, broadcaster Broadcaster, logger *zap.SugaredLogger) *Notifier {
	return &Notifier{
		store:       store,
		mailer:      mailer,
		broadcaster: broadcaster,
		logger:      logger,
		now:         time.Now,
	}
}

// NotifyAdminUsers raises the alert unless one of the same type was already
// delivered within its dedupe window. Returns whether the alert was
// actually raised. Individual email failures are tolerated and recorded;
// they never fail the call.
func (n *Notifier) NotifyAdminUsers(ctx context.Context, alert Alert) (bool, error) {
	if alert.DedupeWindow > 0 {
		last, err := n.store.LastAlertOfType(ctx, alert.Type)
		if err != nil {
			return false, fmt.Errorf("dedupe lookup failed: %w", err)
		}
		if last != nil && n.now().Sub(*last) < alert.DedupeWindow {
			n.logger.Debugw("Alert suppressed by dedupe window",
				"type", alert.Type,
				"last_raised", last,
				"window", alert.DedupeWindow,
			)
			return false, nil
		}
	}

	recipients, err := n.store.AdminRecipients(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to resolve admin recipients: %w", err)
	}
	if len(recipients) == 0 {
		n.logger.Warnw("No admin recipients for alert", "type", alert.Type)
		return false, nil
	}

	var payloadJSON []byte
	if alert.Payload != nil {
		payloadJSON, err = json.Marshal(alert.Payload)
		if err != nil {
			return false, fmt.Errorf("failed to marshal alert payload: %w", err)
		}
	}

	subject := fmt.Sprintf("[%s] %s", alert.Severity, alert.Title)
	for _, admin := range recipients {
		row := &repository.Notification{
			UserID:   admin.ID,
			Type:     alert.Type,
			Title:    alert.Title,
			Message:  alert.Message,
			Href:     alert.Href,
			Severity: alert.Severity,
			Payload:  payloadJSON,
		}
		if err := n.store.InsertNotification(ctx, row); err != nil {
			// The row is the durable half of the alert; surface this one.
			return false, fmt.Errorf("failed to persist notification for %s: %w", admin.ID, err)
		}

		if err := n.mailer.Send(ctx, admin.Email, subject, alert.Message); err != nil {
			n.logger.Warnw("Alert email delivery failed",
				"type", alert.Type,
				"recipient", admin.Email,
				"error", err,
			)
			if recErr := n.store.RecordEmailDelivery(ctx, admin.Email, subject, repository.DeliveryFailed, err.Error()); recErr != nil {
				n.logger.Errorw("Failed to record email delivery failure", "error", recErr)
			}
			continue
		}
		if recErr := n.store.RecordEmailDelivery(ctx, admin.Email, subject, repository.DeliverySent, ""); recErr != nil {
			n.logger.Errorw("Failed to record email delivery", "error", recErr)
		}
	}

	if n.broadcaster != nil {
		n.broadcaster.BroadcastAlert(alert)
	}

	n.logger.Infow("Admin alert raised",
		"type", alert.Type,
		"severity", alert.Severity,
		"recipients", len(recipients),
	)
	return true, nil
}

// SetClock overrides the notifier's time source in tests.
func (n *Notifier) SetClock(now func() time.Time) {
	n.now = now
}
