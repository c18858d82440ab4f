package source

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	// Generous rate so the limiter never stalls the test.
	return NewClient(srv.URL, "bridge-token", 60000, discardLogger())
}

func TestFetchSincePaginatesAndNormalizes(t *testing.T) {
	var auth, since string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		since = r.URL.Query().Get("since")

		switch r.URL.Query().Get("cursor") {
		case "":
			fmt.Fprint(w, `{
				"data": [
					{"id": "a", "start": "2026-08-26T10:00:00Z", "end": "2026-08-26T10:05:00Z", "level_db": 72.5, "source_device": "buds"},
					{"id": "b", "start": "2026-08-26T10:05:00Z", "end": "2026-08-26T10:10:00Z", "level_db": "81.5"}
				],
				"meta": {"next_cursor": "p2"}
			}`)
		case "p2":
			fmt.Fprint(w, `{
				"data": [
					{"id": "c", "start": "2026-08-26T10:10:00Z", "end": "2026-08-26T10:15:00Z", "level_db": {"db": 65}}
				],
				"meta": {"next_cursor": null}
			}`)
		default:
			http.Error(w, "unknown cursor", http.StatusBadRequest)
		}
	})

	samples, err := client.FetchSince(context.Background(), time.Date(2026, 8, 26, 10, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("FetchSince: %v", err)
	}

	if auth != "Bearer bridge-token" {
		t.Errorf("Authorization = %q, want bearer token", auth)
	}
	if since != "2026-08-26T10:00:00Z" {
		t.Errorf("since = %q", since)
	}

	if len(samples) != 3 {
		t.Fatalf("samples = %d, want 3 across two pages", len(samples))
	}
	wantLevels := map[string]float64{"a": 72.5, "b": 81.5, "c": 65}
	for _, s := range samples {
		if want, ok := wantLevels[s.ExternalID]; !ok || s.LevelDB != want {
			t.Errorf("sample %s level = %v, want %v", s.ExternalID, s.LevelDB, want)
		}
	}
	if samples[0].SourceDevice != "buds" {
		t.Errorf("source device = %q, want buds", samples[0].SourceDevice)
	}
}

func TestFetchRangeSkipsMalformedRecords(t *testing.T) {
	var start, end string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		start = r.URL.Query().Get("start")
		end = r.URL.Query().Get("end")
		fmt.Fprint(w, `{
			"data": [
				{"id": "", "start": "2026-08-26T10:00:00Z", "end": "2026-08-26T10:05:00Z", "level_db": 70},
				{"id": "bad-level", "start": "2026-08-26T10:00:00Z", "end": "2026-08-26T10:05:00Z", "level_db": "loud"},
				{"id": "ok", "start": "2026-08-26T10:00:00Z", "end": "2026-08-26T10:05:00Z", "level_db": 70}
			],
			"meta": {"next_cursor": null}
		}`)
	})

	from := time.Date(2026, 8, 25, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 8, 26, 0, 0, 0, 0, time.UTC)
	samples, err := client.FetchRange(context.Background(), from, to)
	if err != nil {
		t.Fatalf("FetchRange: %v", err)
	}

	if start != "2026-08-25T00:00:00Z" || end != "2026-08-26T00:00:00Z" {
		t.Errorf("range params = %q..%q", start, end)
	}
	if len(samples) != 1 || samples[0].ExternalID != "ok" {
		t.Errorf("samples = %+v, want only the well-formed record", samples)
	}
}

func TestFetchErrorIncludesStatusAndBody(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bridge rebooting", http.StatusServiceUnavailable)
	})

	_, err := client.FetchSince(context.Background(), time.Now())
	if err == nil {
		t.Fatal("want error for 503 response")
	}
	if !strings.Contains(err.Error(), "503") || !strings.Contains(err.Error(), "bridge rebooting") {
		t.Errorf("error = %v, want status and body excerpt", err)
	}
}

func TestExtractLevelFormats(t *testing.T) {
	cases := []struct {
		name string
		in   interface{}
		want float64
		ok   bool
	}{
		{"float", 72.5, 72.5, true},
		{"int", 70, 70, true},
		{"string", "81.5", 81.5, true},
		{"nested db", map[string]interface{}{"db": 65.0}, 65, true},
		{"nested value", map[string]interface{}{"value": "60"}, 60, true},
		{"nil", nil, 0, false},
		{"garbage string", "loud", 0, false},
		{"empty object", map[string]interface{}{}, 0, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := extractLevel(tc.in)
			if ok != tc.ok || got != tc.want {
				t.Errorf("extractLevel(%v) = %v, %v; want %v, %v", tc.in, got, ok, tc.want, tc.ok)
			}
		})
	}
}
