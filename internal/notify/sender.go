package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/earguard/earguard/internal/exposure"
)

// Sender delivers a fired event to the outside world.
type Sender interface {
	Send(ctx context.Context, event exposure.ThresholdEvent) error
}

// WebhookSender POSTs events as JSON to a configured URL.
// Nil-safe: when not configured, Send is a no-op.
type WebhookSender struct {
	url    string
	client *http.Client
	logger *slog.Logger
}

// NewWebhookSender creates a webhook sender. Returns nil if url is empty
// (delivery disabled).
func NewWebhookSender(url string, logger *slog.Logger) *WebhookSender {
	if url == "" {
		return nil
	}
	return &WebhookSender{
		url:    url,
		client: &http.Client{Timeout: 10 * time.Second},
		logger: logger,
	}
}

func (s *WebhookSender) Send(ctx context.Context, event exposure.ThresholdEvent) error {
	if s == nil {
		return nil // no-op when not configured
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event %s: %w", event.ID, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("post webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("webhook returned %d: %s", resp.StatusCode, truncate(body, 200))
	}

	s.logger.Debug("Webhook delivered", "event_id", event.ID, "class", event.Class)
	return nil
}

func truncate(b []byte, maxLen int) string {
	if len(b) <= maxLen {
		return string(b)
	}
	return string(b[:maxLen]) + "..."
}
