package notify

import (
	"github.com/hackgods/clinic-queue/internal/config"
	"github.com/hackgods/clinic-queue/pkg/logging"
)

// FromConfig builds the notifier the commands use: SendGrid email and the SMS
// webhook when configured, or a LogNotifier when neither is.
func FromConfig(cfg config.Config, logger *logging.Logger) Notifier {
	var m Multi
	if email := NewSendGridNotifier(SendGridConfig{
		APIKey:    cfg.SendGridAPIKey,
		FromEmail: cfg.SendGridFromEmail,
		FromName:  cfg.SendGridFromName,
	}, logger); email != nil {
		m.Email = email
	}
	if sms := NewWebhookSMSNotifier(cfg.SMSWebhookURL, cfg.SMSWebhookToken, nil); sms != nil {
		m.SMS = sms
	}

	if m.Email == nil && m.SMS == nil {
		return NewLogNotifier(logger)
	}
	return m
}
