// Package respond owns the wire shapes every API handler shares: cached
// JSON payloads with ETag headers, and the error taxonomy that pairs each
// error code with its HTTP status.
package respond

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Code classifies an API error. The string is part of the wire contract;
// the HTTP status is derived from the code here so handlers cannot
// disagree on the pairing.
type Code string

const (
	// Input errors, 400.
	CodeInvalidBody    Code = "INVALID_BODY"
	CodeInvalidSetting Code = "INVALID_SETTING"
	CodeEmptyUpdate    Code = "EMPTY_UPDATE"
	CodeBatchTooLarge  Code = "BATCH_TOO_LARGE"

	// Store and serialization failures, 500.
	CodeStoreError    Code = "STORE_ERROR"
	CodeEncodingError Code = "ENCODING_ERROR"

	// Bridge sync: not configured vs. upstream failure.
	CodeSyncNotConfigured Code = "SYNC_NOT_CONFIGURED"
	CodeSyncFailed        Code = "SYNC_FAILED"

	CodeRateLimited Code = "RATE_LIMITED"
)

func (c Code) status() int {
	switch c {
	case CodeInvalidBody, CodeInvalidSetting, CodeEmptyUpdate, CodeBatchTooLarge:
		return http.StatusBadRequest
	case CodeRateLimited:
		return http.StatusTooManyRequests
	case CodeSyncNotConfigured:
		return http.StatusNotImplemented
	case CodeSyncFailed:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// ErrorResponse is the standard error shape for all API errors.
type ErrorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
		Detail  string `json:"detail,omitempty"`
	} `json:"error"`
}

// WriteJSON writes raw JSON bytes to the response with cache and ETag headers.
func WriteJSON(w http.ResponseWriter, data []byte, etag string, ttl time.Duration, cacheHit bool) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("ETag", etag)
	w.Header().Set("Vary", "Accept-Encoding")
	setCacheHeaders(w, ttl, cacheHit)
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

// WriteNotModified sends a 304 with the matching ETag.
func WriteNotModified(w http.ResponseWriter, etag string) {
	w.Header().Set("ETag", etag)
	w.WriteHeader(http.StatusNotModified)
}

// WriteError sends a structured JSON error with the status the code maps to.
func WriteError(w http.ResponseWriter, code Code, message string) {
	writeError(w, code, message, "")
}

// WriteErrorDetail sends a structured error with additional detail,
// typically the underlying error text.
func WriteErrorDetail(w http.ResponseWriter, code Code, message, detail string) {
	writeError(w, code, message, detail)
}

func writeError(w http.ResponseWriter, code Code, message, detail string) {
	resp := ErrorResponse{}
	resp.Error.Code = string(code)
	resp.Error.Message = message
	resp.Error.Detail = detail
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	w.WriteHeader(code.status())
	json.NewEncoder(w).Encode(resp)
}

// WriteJSONObject marshals a Go value to JSON and writes it.
// Used for live responses that never pass through the cache (health,
// session, settings, ingest results).
func WriteJSONObject(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func setCacheHeaders(w http.ResponseWriter, ttl time.Duration, cacheHit bool) {
	maxAge := int(ttl.Seconds())
	swr := maxAge / 2
	if cacheHit {
		w.Header().Set("X-Cache", "HIT")
	} else {
		w.Header().Set("X-Cache", "MISS")
	}
	w.Header().Set("Cache-Control",
		fmt.Sprintf("public, max-age=%d, stale-while-revalidate=%d", maxAge, swr))
}
