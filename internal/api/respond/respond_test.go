package respond

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestErrorCodesMapToStatuses(t *testing.T) {
	cases := []struct {
		code Code
		want int
	}{
		{CodeInvalidBody, http.StatusBadRequest},
		{CodeInvalidSetting, http.StatusBadRequest},
		{CodeEmptyUpdate, http.StatusBadRequest},
		{CodeBatchTooLarge, http.StatusBadRequest},
		{CodeRateLimited, http.StatusTooManyRequests},
		{CodeSyncNotConfigured, http.StatusNotImplemented},
		{CodeSyncFailed, http.StatusBadGateway},
		{CodeStoreError, http.StatusInternalServerError},
		{CodeEncodingError, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		w := httptest.NewRecorder()
		WriteError(w, tc.code, "boom")
		if w.Code != tc.want {
			t.Errorf("WriteError(%s) status = %d, want %d", tc.code, w.Code, tc.want)
		}

		var resp ErrorResponse
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			t.Fatalf("decode %s body: %v", tc.code, err)
		}
		if resp.Error.Code != string(tc.code) {
			t.Errorf("body code = %q, want %q", resp.Error.Code, tc.code)
		}
	}
}

func TestWriteErrorDetailCarriesDetail(t *testing.T) {
	w := httptest.NewRecorder()
	WriteErrorDetail(w, CodeStoreError, "History could not be loaded", "connection refused")

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", w.Code)
	}
	var resp ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if resp.Error.Detail != "connection refused" {
		t.Errorf("detail = %q, want the underlying error text", resp.Error.Detail)
	}
	if cc := w.Header().Get("Cache-Control"); cc != "no-cache, no-store, must-revalidate" {
		t.Errorf("Cache-Control = %q, errors must not be cached", cc)
	}
}
