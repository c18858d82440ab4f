// Package source pulls loudness samples from the phone bridge REST API.
//
// The bridge uses cursor-based pagination and Authorization header auth.
// Rate limiting is handled via a token bucket limiter.
package source

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"github.com/earguard/earguard/internal/exposure"
)

const samplesPath = "/v1/samples"

// perPage is the page size requested from the bridge.
const perPage = 500

// Client fetches canonical samples from a bridge endpoint. It satisfies
// the syncer's Source interface.
type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
	limiter    *rate.Limiter
	logger     *slog.Logger
}

// NewClient creates a bridge client with rate limiting.
func NewClient(baseURL, token string, requestsPerMinute int, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	rps := float64(requestsPerMinute) / 60.0
	return &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    baseURL,
		token:      token,
		limiter:    rate.NewLimiter(rate.Limit(rps), 1),
		logger:     logger,
	}
}

// FetchRange returns every sample the bridge holds with start in [from, to).
func (c *Client) FetchRange(ctx context.Context, from, to time.Time) ([]exposure.Sample, error) {
	params := url.Values{}
	params.Set("start", from.UTC().Format(time.RFC3339))
	params.Set("end", to.UTC().Format(time.RFC3339))
	return c.fetchAll(ctx, params)
}

// FetchSince returns every sample ending after since.
func (c *Client) FetchSince(ctx context.Context, since time.Time) ([]exposure.Sample, error) {
	params := url.Values{}
	params.Set("since", since.UTC().Format(time.RFC3339))
	return c.fetchAll(ctx, params)
}

// fetchAll walks the cursor until the bridge reports no more pages.
// Records that cannot be normalized are skipped, not fatal: one device
// emitting garbage must not block the rest of the sync.
func (c *Client) fetchAll(ctx context.Context, params url.Values) ([]exposure.Sample, error) {
	var out []exposure.Sample
	skipped := 0
	cursor := ""

	for {
		p, err := c.getPage(ctx, params, cursor)
		if err != nil {
			return nil, err
		}
		for _, rec := range p.Data {
			s, ok := c.normalize(rec)
			if !ok {
				skipped++
				continue
			}
			out = append(out, s)
		}
		if p.Meta.NextCursor == nil || *p.Meta.NextCursor == "" {
			break
		}
		cursor = *p.Meta.NextCursor
	}

	if skipped > 0 {
		c.logger.Warn("Skipped malformed bridge records", "skipped", skipped)
	}
	return out, nil
}

// page is the common bridge response wrapper.
type page struct {
	Data []sampleRecord `json:"data"`
	Meta struct {
		NextCursor *string `json:"next_cursor"`
	} `json:"meta"`
}

// sampleRecord is one bridge sample. The level field is kept loose:
// firmware revisions have shipped it as a number, a string, and a nested
// object.
type sampleRecord struct {
	ID           string      `json:"id"`
	Start        time.Time   `json:"start"`
	End          time.Time   `json:"end"`
	LevelDB      interface{} `json:"level_db"`
	SourceDevice string      `json:"source_device"`
}

// getPage performs one rate-limited GET against the samples endpoint.
func (c *Client) getPage(ctx context.Context, params url.Values, cursor string) (*page, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	q := url.Values{}
	for k, vs := range params {
		q[k] = vs
	}
	q.Set("per_page", strconv.Itoa(perPage))
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	u := c.baseURL + samplesPath + "?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request %s: %w", samplesPath, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("bridge %s returned %d: %s", samplesPath, resp.StatusCode, truncate(body, 200))
	}

	var result page
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	return &result, nil
}

// normalize converts a bridge record into a canonical sample. Full
// validation happens at ingest; this only requires the fields that cannot
// be defaulted.
func (c *Client) normalize(rec sampleRecord) (exposure.Sample, bool) {
	if rec.ID == "" {
		c.logger.Debug("Bridge record without id skipped", "start", rec.Start)
		return exposure.Sample{}, false
	}
	level, ok := extractLevel(rec.LevelDB)
	if !ok {
		c.logger.Debug("Bridge record with unreadable level skipped", "id", rec.ID)
		return exposure.Sample{}, false
	}
	return exposure.Sample{
		ExternalID:   rec.ID,
		Start:        rec.Start,
		End:          rec.End,
		LevelDB:      level,
		SourceDevice: rec.SourceDevice,
	}, true
}

// extractLevel normalizes the level field from the formats bridges have
// shipped: flat numbers, numeric strings, and nested objects.
//
// Returns the scalar float64 value, and ok=false if not extractable.
func extractLevel(val interface{}) (float64, bool) {
	if val == nil {
		return 0, false
	}

	switch v := val.(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case string:
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f, true
		}
		return 0, false
	case map[string]interface{}:
		for _, key := range []string{"db", "value", "level"} {
			if inner, exists := v[key]; exists && inner != nil {
				return extractLevel(inner)
			}
		}
		return 0, false
	default:
		return 0, false
	}
}

// truncate returns a truncated string representation for error messages.
func truncate(b []byte, maxLen int) string {
	if len(b) <= maxLen {
		return string(b)
	}
	return string(b[:maxLen]) + "..."
}
