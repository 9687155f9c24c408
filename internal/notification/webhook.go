package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"
)

// webhookPayload is the JSON body POSTed for each alert.
type webhookPayload struct {
	Alert
	Service string `json:"service"`
	TS      string `json:"ts"`
}

// WebhookNotifier POSTs alerts as JSON to an HTTP endpoint. A 5xx response
// or transport error is retried once after RetryDelay.
type WebhookNotifier struct {
	url    string
	client *http.Client

	// MinLevel drops alerts below this severity. Empty sends everything.
	MinLevel   AlertLevel
	RetryDelay time.Duration
}

// NewWebhookNotifier creates a webhook notifier for url.
func NewWebhookNotifier(url string) *WebhookNotifier {
	return &WebhookNotifier{
		url:        url,
		client:     &http.Client{Timeout: 10 * time.Second},
		RetryDelay: 500 * time.Millisecond,
	}
}

func (w *WebhookNotifier) Send(ctx context.Context, alert Alert) error {
	if severity(alert.Level) < severity(w.MinLevel) {
		return nil
	}
	body, err := json.Marshal(webhookPayload{
		Alert:   alert,
		Service: "tradebot",
		TS:      time.Now().UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return fmt.Errorf("webhook: marshal: %w", err)
	}

	retry, err := w.post(ctx, body)
	if err != nil && retry {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(w.RetryDelay):
		}
		_, err = w.post(ctx, body)
	}
	if err != nil {
		return err
	}
	log.Printf("[webhook] sent %s alert: %s", alert.Level, alert.Title)
	return nil
}

// post sends one request and reports whether a failure is worth retrying.
func (w *WebhookNotifier) post(ctx context.Context, body []byte) (retry bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return false, fmt.Errorf("webhook: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return ctx.Err() == nil, fmt.Errorf("webhook: send: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 500:
		return true, fmt.Errorf("webhook: unexpected status %d", resp.StatusCode)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return false, fmt.Errorf("webhook: unexpected status %d", resp.StatusCode)
	}
	return false, nil
}

func severity(l AlertLevel) int {
	switch l {
	case AlertInfo:
		return 1
	case AlertWarning:
		return 2
	case AlertCritical:
		return 3
	}
	return 0
}
