package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/earguard/earguard/internal/api/respond"
	"github.com/earguard/earguard/internal/exposure"
	"github.com/earguard/earguard/internal/store"
)

type connectionRequest struct {
	Connected bool `json:"connected"`
}

// SetDeviceConnection records a device connect or disconnect edge.
// @Summary Device connection change
// @Description Records a headphone connect/disconnect. Disconnecting ends an active session immediately.
// @Tags session
// @Accept json
// @Produce json
// @Param edge body connectionRequest true "Connection state"
// @Success 200 {object} connectionRequest
// @Failure 400 {object} respond.ErrorResponse
// @Router /device/connection [post]
func (h *Handler) SetDeviceConnection(w http.ResponseWriter, r *http.Request) {
	var req connectionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.WriteErrorDetail(w, respond.CodeInvalidBody, "Request body is not a connection edge", err.Error())
		return
	}
	h.eng.SetDeviceConnected(r.Context(), req.Connected)
	respond.WriteJSONObject(w, http.StatusOK, req)
}

// SessionStart begins a listening session manually.
// @Summary Start session
// @Description Starts a listening session regardless of connection state. A no-op if one is already running.
// @Tags session
// @Produce json
// @Success 200 {object} exposure.SessionSnapshot
// @Router /session/start [post]
func (h *Handler) SessionStart(w http.ResponseWriter, r *http.Request) {
	snap := h.eng.StartSession(r.Context())
	respond.WriteJSONObject(w, http.StatusOK, snap)
}

// SessionEnd stops the listening session manually.
// @Summary End session
// @Description Ends the running listening session and returns the final snapshot.
// @Tags session
// @Produce json
// @Success 200 {object} exposure.SessionSnapshot
// @Router /session/end [post]
func (h *Handler) SessionEnd(w http.ResponseWriter, r *http.Request) {
	snap := h.eng.EndSession(r.Context())
	respond.WriteJSONObject(w, http.StatusOK, snap)
}

// GetSession serves the live session snapshot.
// @Summary Live session
// @Description Returns the persisted live-session snapshot. Before any session has existed the response is an ended, zero-dose snapshot.
// @Tags session
// @Produce json
// @Success 200 {object} exposure.SessionSnapshot
// @Failure 500 {object} respond.ErrorResponse
// @Router /session [get]
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
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
	respond.WriteJSONObject(w, http.StatusOK, snap)
}
