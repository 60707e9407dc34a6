package notify

import (
	"context"
	"fmt"

	"github.com/inkpress/inkpress-backend/internal/config"
	mail "github.com/wneessen/go-mail"
	"go.uber.org/zap"
)

// Mailer sends one alert email to one recipient.
type Mailer interface {
	Send(ctx context.Context, to, subject, body string) error
}

// SMTPMailer delivers via an SMTP relay using go-mail.
type SMTPMailer struct {
	client *mail.Client
	from   string
	logger *zap.SugaredLogger
}

func NewSMTPMailer(cfg config.MailConfig, logger *zap.SugaredLogger) (*SMTPMailer, error) {
	opts := []mail.Option{
		mail.WithPort(cfg.Port),
		mail.WithTLSPolicy(mail.TLSOpportunistic),
	}
	if cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(cfg.Username),
			mail.WithPassword(cfg.Password),
		)
	}

	client, err := mail.NewClient(cfg.Host, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create mail client: %w", err)
	}

	return &SMTPMailer{client: client, from: cfg.From, logger: logger}, nil
}

func (m *SMTPMailer) Send(ctx context.Context, to, subject, body string) error {
	msg := mail.NewMsg()
	if err := msg.From(m.from); err != nil {
		return fmt.Errorf("invalid from address: %w", err)
	}
	if err := msg.To(to); err != nil {
		return fmt.Errorf("invalid recipient address: %w", err)
	}
	msg.Subject(subject)
	msg.SetBodyString(mail.TypeTextPlain, body)

	if err := m.client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("smtp send failed: %w", err)
	}
	return nil
}

// NoopMailer is used when SMTP is disabled; alerts still land as in-app
// notification rows.
type NoopMailer struct {
	logger *zap.SugaredLogger
}

func NewNoopMailer(logger *zap.SugaredLogger) *NoopMailer {
	return &NoopMailer{logger: logger}
}

func (m *NoopMailer) Send(_ context.Context, to, subject, _ string) error {
	if m.logger != nil {
		m.logger.Debugw("Mail delivery disabled, dropping message", "to", to, "subject", subject)
	}
	return nil
}
