// Package enrich provides the client for the optional phrasing service
// that rewrites insight messages (localization, gentler tone). When not
// configured, messages pass through unchanged.
package enrich

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/earguard/earguard/internal/exposure"
)

const (
	enrichTimeout = 5 * time.Second
	maxMessageLen = 280
)

// Client talks to the phrasing service.
// Nil-safe: when not configured, Decorate returns its input unchanged.
type Client struct {
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

// New creates an enrichment client. Returns nil if baseURL is empty
// (enrichment disabled).
func New(baseURL string, logger *slog.Logger) *Client {
	if baseURL == "" {
		return nil
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: enrichTimeout},
		logger:  logger,
	}
}

// Enabled reports whether a phrasing service is configured.
func (c *Client) Enabled() bool { return c != nil }

type enrichRequest struct {
	Kind            string  `json:"kind"`
	Message         string  `json:"message"`
	DosePercent     float64 `json:"dose_percent"`
	BurnRatePerHour float64 `json:"burn_rate_per_hour"`
	Active          bool    `json:"active"`
}

type enrichResponse struct {
	Message string `json:"message"`
}

// Decorate asks the phrasing service to rewrite the insight message. Any
// failure returns the insight unchanged; enrichment is never worth an
// error, let alone a missed insight.
func (c *Client) Decorate(ctx context.Context, in exposure.Insight) exposure.Insight {
	if c == nil {
		return in
	}

	payload, err := json.Marshal(enrichRequest{
		Kind:            string(in.Kind),
		Message:         in.Message,
		DosePercent:     in.DosePercent,
		BurnRatePerHour: in.BurnRatePerHour,
		Active:          in.IsActivelyListening,
	})
	if err != nil {
		c.logger.Warn("Enrich request marshal failed", "error", err)
		return in
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/message", bytes.NewReader(payload))
	if err != nil {
		c.logger.Warn("Enrich request build failed", "error", err)
		return in
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Warn("Enrich request failed", "error", err)
		return in
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		c.logger.Warn("Enrich service error",
			"status", resp.StatusCode, "body", strings.TrimSpace(string(body)))
		return in
	}

	var out enrichResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		c.logger.Warn("Enrich response decode failed", "error", err)
		return in
	}

	msg := strings.TrimSpace(out.Message)
	if msg == "" {
		return in
	}
	if len(msg) > maxMessageLen {
		msg = msg[:maxMessageLen]
	}

	decorated := in
	decorated.Message = msg
	return decorated
}
