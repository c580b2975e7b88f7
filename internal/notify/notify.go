// Package notify dispatches confirmation notifications to an external
// webhook. Delivery is best-effort: failures are reported to the caller
// for logging, never retried.
package notify

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/onixgrid/bapbridge/internal/idgen"
	"github.com/onixgrid/bapbridge/internal/protocol"
)

// EventType identifies a notification event.
type EventType string

const EventTradeConfirmed EventType = "trade.confirmed"

// Event is the payload POSTed to the webhook.
type Event struct {
	ID            string          `json:"id"`
	Type          EventType       `json:"type"`
	TransactionID string          `json:"transactionId"`
	Timestamp     time.Time       `json:"timestamp"`
	Order         *protocol.Order `json:"order,omitempty"`
}

// Notifier dispatches confirmation notifications.
type Notifier interface {
	SendConfirmation(ctx context.Context, transactionID string, order *protocol.Order) error
}

// WebhookNotifier POSTs events to a configured URL, HMAC-signing the
// payload when a secret is set.
type WebhookNotifier struct {
	url    string
	secret string
	client *http.Client
}

func NewWebhookNotifier(url, secret string) *WebhookNotifier {
	return &WebhookNotifier{
		url:    url,
		secret: secret,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

func (w *WebhookNotifier) SendConfirmation(ctx context.Context, transactionID string, order *protocol.Order) error {
	event := &Event{
		ID:            idgen.WithPrefix("evt_"),
		Type:          EventTradeConfirmed,
		TransactionID: transactionID,
		Timestamp:     time.Now().UTC(),
		Order:         order,
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Bapbridge-Event", string(EventTradeConfirmed))
	req.Header.Set("X-Bapbridge-Timestamp", fmt.Sprintf("%d", event.Timestamp.Unix()))
	if w.secret != "" {
		req.Header.Set("X-Bapbridge-Signature", sign(payload, w.secret))
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}

func sign(payload []byte, secret string) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write(payload)
	return hex.EncodeToString(h.Sum(nil))
}

var _ Notifier = (*WebhookNotifier)(nil)

// NoopNotifier is used when no webhook URL is configured.
type NoopNotifier struct{}

func (NoopNotifier) SendConfirmation(context.Context, string, *protocol.Order) error {
	return nil
}

var _ Notifier = NoopNotifier{}
