package handler

import (
	"errors"
	"net/http"

	"github.com/earguard/earguard/internal/api/respond"
	"github.com/earguard/earguard/internal/exposure"
	"github.com/earguard/earguard/internal/store"
)

type bootstrapResponse struct {
	Today    exposure.DayRecord       `json:"today"`
	Insight  exposure.Insight         `json:"insight"`
	Session  exposure.SessionSnapshot `json:"session"`
	Settings settingsPayload          `json:"settings"`
}

// Bootstrap returns everything a client needs to render its first screen.
// @Summary Client bootstrap
// @Description One-call cold start: today's record and insight, the live session snapshot, and the applied settings.
// @Tags bootstrap
// @Produce json
// @Success 200 {object} bootstrapResponse
// @Failure 500 {object} respond.ErrorResponse
// @Router /bootstrap [get]
func (h *Handler) Bootstrap(w http.ResponseWriter, r *http.Request) {
	rec, ins, err := h.eng.TodayOverview(r.Context())
	if err != nil {
		respond.WriteErrorDetail(w, respond.CodeStoreError, "Today's record could not be loaded", err.Error())
		return
	}

	snap, err := h.st.Snapshot(r.Context(), exposure.SnapshotKeyLiveSession)
	if errors.Is(err, store.ErrNotFound) {
		snap = exposure.SessionSnapshot{
			Status:    exposure.SessionEnded,
			UpdatedAt: h.eng.Now(),
		}
	} else if err != nil {
		respond.WriteErrorDetail(w, respond.CodeStoreError, "Session snapshot could not be loaded", err.Error())
		return
	}

	respond.WriteJSONObject(w, http.StatusOK, bootstrapResponse{
		Today:    rec,
		Insight:  ins,
		Session:  snap,
		Settings: toSettingsPayload(h.eng.Settings()),
	})
}
