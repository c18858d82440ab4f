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
	defaultHistoryDays = 7
	maxHistoryDays     = 90
)

type todayResponse struct {
	Record  exposure.DayRecord `json:"record"`
	Insight exposure.Insight   `json:"insight"`
}

type historyResponse struct {
	From    string               `json:"from"`
	To      string               `json:"to"`
	Records []exposure.DayRecord `json:"records"`
}

// DoseToday returns today's aggregate and a fresh insight.
// @Summary Today's dose
// @Description Returns today's day record together with a freshly generated predictive insight. Never cached: the numbers move with every sample.
// @Tags dose
// @Produce json
// @Success 200 {object} todayResponse
// @Failure 500 {object} respond.ErrorResponse
// @Router /dose/today [get]
func (h *Handler) DoseToday(w http.ResponseWriter, r *http.Request) {
	rec, ins, err := h.eng.TodayOverview(r.Context())
	if err != nil {
		respond.WriteErrorDetail(w, respond.CodeStoreError, "Today's record could not be loaded", err.Error())
		return
	}
	respond.WriteJSONObject(w, http.StatusOK, todayResponse{Record: rec, Insight: ins})
}

// DoseHistory returns the trailing day records.
// @Summary Dose history
// @Description Returns day records for the trailing N days ending today. Days without listening have no record and are absent from the list.
// @Tags dose
// @Produce json
// @Param days query int false "Trailing window in days (default 7, max 90)"
// @Success 200 {object} historyResponse
// @Failure 500 {object} respond.ErrorResponse
// @Router /dose/history [get]
func (h *Handler) DoseHistory(w http.ResponseWriter, r *http.Request) {
	days := queryInt(r, "days", defaultHistoryDays)
	if days < 1 {
		days = 1
	}
	if days > maxHistoryDays {
		days = maxHistoryDays
	}

	today := exposure.DayOf(h.eng.Now(), h.cfg.Location)
	from := today.AddDays(-(days - 1))

	cacheKey := fmt.Sprintf("history:%s:%d", today, days)
	ttl := cache.TTLHistory

	if data, etag, ok := h.cache.Get(cacheKey); ok {
		if cache.CheckETagMatch(r.Header.Get("If-None-Match"), etag) {
			respond.WriteNotModified(w, etag)
			return
		}
		respond.WriteJSON(w, data, etag, ttl, true)
		return
	}

	records, err := h.st.DayRecordsBetween(r.Context(), from, today)
	if err != nil {
		respond.WriteErrorDetail(w, respond.CodeStoreError, "History could not be loaded", err.Error())
		return
	}
	if records == nil {
		records = []exposure.DayRecord{}
	}

	data, err := json.Marshal(historyResponse{
		From:    from.String(),
		To:      today.String(),
		Records: records,
	})
	if err != nil {
		respond.WriteError(w, respond.CodeEncodingError, "History could not be encoded")
		return
	}

	etag := h.cache.Set(cacheKey, data, ttl)
	respond.WriteJSON(w, data, etag, ttl, false)
}
