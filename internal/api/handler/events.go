package handler

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/earguard/earguard/internal/api/respond"
	"github.com/earguard/earguard/internal/cache"
	"github.com/earguard/earguard/internal/exposure"
)

const (
	defaultEventLimit = 50
	maxEventLimit     = 500
)

type eventsResponse struct {
	Events []exposure.ThresholdEvent `json:"events"`
}

// GetEvents serves the recent threshold-event audit rows.
// @Summary Recent notification events
// @Description Returns the most recent threshold, actionable, and volume-advice events, newest first.
// @Tags events
// @Produce json
// @Param limit query int false "Maximum rows (default 50, max 500)"
// @Success 200 {object} eventsResponse
// @Failure 500 {object} respond.ErrorResponse
// @Router /events [get]
func (h *Handler) GetEvents(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", defaultEventLimit)
	if limit < 1 {
		limit = 1
	}
	if limit > maxEventLimit {
		limit = maxEventLimit
	}

	cacheKey := fmt.Sprintf("events:%d", limit)
	ttl := cache.TTLEvents

	if data, etag, ok := h.cache.Get(cacheKey); ok {
		if cache.CheckETagMatch(r.Header.Get("If-None-Match"), etag) {
			respond.WriteNotModified(w, etag)
			return
		}
		respond.WriteJSON(w, data, etag, ttl, true)
		return
	}

	events, err := h.st.RecentEvents(r.Context(), limit)
	if err != nil {
		respond.WriteErrorDetail(w, respond.CodeStoreError, "Events could not be loaded", err.Error())
		return
	}
	if events == nil {
		events = []exposure.ThresholdEvent{}
	}

	data, err := json.Marshal(eventsResponse{Events: events})
	if err != nil {
		respond.WriteError(w, respond.CodeEncodingError, "Events could not be encoded")
		return
	}

	etag := h.cache.Set(cacheKey, data, ttl)
	respond.WriteJSON(w, data, etag, ttl, false)
}
