package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// WebhookSMSNotifier posts SMS requests to a gateway webhook as JSON.
type WebhookSMSNotifier struct {
	url    string
	token  string
	client *http.Client
}

// NewWebhookSMSNotifier returns nil when url is empty.
func NewWebhookSMSNotifier(url, token string, client *http.Client) *WebhookSMSNotifier {
	if url == "" {
		return nil
	}
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	return &WebhookSMSNotifier{url: url, token: token, client: client}
}

type smsPayload struct {
	Channel   string `json:"channel"`
	Recipient string `json:"recipient"`
	Message   string `json:"message"`
}

func (w *WebhookSMSNotifier) Notify(ctx context.Context, to Recipient, msg Message) error {
	if to.Phone == "" {
		return ErrNoChannel
	}

	body, err := json.Marshal(smsPayload{Channel: "sms", Recipient: to.Phone, Message: msg.Body})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if w.token != "" {
		req.Header.Set("Authorization", "Bearer "+w.token)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("notify: sms webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("notify: sms webhook returned status %d", resp.StatusCode)
	}
	return nil
}
