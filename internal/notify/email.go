package notify

import (
	"context"
	"fmt"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"

	"github.com/hackgods/clinic-queue/pkg/logging"
)

// SendGridNotifier sends email via the SendGrid API.
type SendGridNotifier struct {
	client    *sendgrid.Client
	fromEmail string
	fromName  string
	logger    *logging.Logger
}

type SendGridConfig struct {
	APIKey    string
	FromEmail string
	FromName  string
}

// NewSendGridNotifier returns nil when no API key is configured.
func NewSendGridNotifier(cfg SendGridConfig, logger *logging.Logger) *SendGridNotifier {
	if cfg.APIKey == "" {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	if cfg.FromName == "" {
		cfg.FromName = "Clinic Queue"
	}
	return &SendGridNotifier{
		client:    sendgrid.NewSendClient(cfg.APIKey),
		fromEmail: cfg.FromEmail,
		fromName:  cfg.FromName,
		logger:    logger,
	}
}

func (s *SendGridNotifier) Notify(ctx context.Context, to Recipient, msg Message) error {
	if s == nil || s.client == nil {
		return fmt.Errorf("notify: sendgrid client not configured")
	}
	if to.Email == "" {
		return ErrNoChannel
	}

	from := mail.NewEmail(s.fromName, s.fromEmail)
	message := mail.NewSingleEmail(from, msg.Subject, mail.NewEmail(to.Name, to.Email), msg.Body, msg.Body)

	response, err := s.client.SendWithContext(ctx, message)
	if err != nil {
		return fmt.Errorf("notify: sendgrid send failed: %w", err)
	}
	if response.StatusCode >= 400 {
		s.logger.Error("sendgrid returned error status", "status", response.StatusCode, "body", response.Body, "to", to.Email)
		return fmt.Errorf("notify: sendgrid returned status %d", response.StatusCode)
	}

	s.logger.Debug("email sent via sendgrid", "to", to.Email, "subject", msg.Subject, "status", response.StatusCode)
	return nil
}
