package notify

import (
	"context"
	"errors"

	"github.com/hackgods/clinic-queue/pkg/logging"
)

// ErrNoChannel is returned when a recipient has no address any configured channel can use.
var ErrNoChannel = errors.New("notify: recipient has no reachable channel")

// Recipient is who a message goes to. Empty fields mean the channel is unavailable.
type Recipient struct {
	Name  string
	Email string
	Phone string
}

type Message struct {
	Subject string
	Body    string
}

// Notifier delivers a message to a recipient. Implementations can be swapped
// (SendGrid, SMS webhook, log) without changing callers.
type Notifier interface {
	Notify(ctx context.Context, to Recipient, msg Message) error
}

// Multi sends email and SMS, each when the recipient has the address for it.
// Either channel may be nil.
type Multi struct {
	Email Notifier
	SMS   Notifier
}

func (m Multi) Notify(ctx context.Context, to Recipient, msg Message) error {
	var errs []error
	sent := false

	if m.Email != nil && to.Email != "" {
		sent = true
		if err := m.Email.Notify(ctx, to, msg); err != nil {
			errs = append(errs, err)
		}
	}
	if m.SMS != nil && to.Phone != "" {
		sent = true
		if err := m.SMS.Notify(ctx, to, msg); err != nil {
			errs = append(errs, err)
		}
	}

	if !sent {
		return ErrNoChannel
	}
	return errors.Join(errs...)
}

// LogNotifier logs messages instead of sending them. Used when no vendor is configured.
type LogNotifier struct {
	logger *logging.Logger
}

func NewLogNotifier(logger *logging.Logger) *LogNotifier {
	if logger == nil {
		logger = logging.Default()
	}
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Notify(_ context.Context, to Recipient, msg Message) error {
	n.logger.Info("notification (not sent)", "to_email", to.Email, "to_phone", to.Phone, "subject", msg.Subject)
	return nil
}
