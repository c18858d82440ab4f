package handler

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/earguard/earguard/internal/api/respond"
	"github.com/earguard/earguard/internal/config"
)

type settingsPayload struct {
	ExchangeModel     string  `json:"exchange_model"`
	Thresholds        []int   `json:"thresholds"`
	Cooldown          string  `json:"cooldown"`
	InactivityTimeout string  `json:"inactivity_timeout"`
	DailyLimitPercent float64 `json:"daily_limit_percent"`
}

func toSettingsPayload(s config.Settings) settingsPayload {
	return settingsPayload{
		ExchangeModel:     string(s.Model),
		Thresholds:        s.Thresholds,
		Cooldown:          s.Cooldown.String(),
		InactivityTimeout: s.InactivityTimeout.String(),
		DailyLimitPercent: s.DailyLimitPercent,
	}
}

// settingsUpdate carries a partial settings change: absent fields keep
// their stored values.
type settingsUpdate struct {
	ExchangeModel     *string  `json:"exchange_model"`
	Thresholds        []int    `json:"thresholds"`
	Cooldown          *string  `json:"cooldown"`
	InactivityTimeout *string  `json:"inactivity_timeout"`
	DailyLimitPercent *float64 `json:"daily_limit_percent"`
}

// stringForm renders the provided fields in their stored string form,
// keyed by setting name.
func (u settingsUpdate) stringForm() map[string]string {
	out := make(map[string]string)
	if u.ExchangeModel != nil {
		out[config.SettingExchangeModel] = *u.ExchangeModel
	}
	if u.Thresholds != nil {
		parts := make([]string, len(u.Thresholds))
		for i, t := range u.Thresholds {
			parts[i] = strconv.Itoa(t)
		}
		out[config.SettingThresholds] = strings.Join(parts, ",")
	}
	if u.Cooldown != nil {
		out[config.SettingCooldown] = *u.Cooldown
	}
	if u.InactivityTimeout != nil {
		out[config.SettingInactivityTimeout] = *u.InactivityTimeout
	}
	if u.DailyLimitPercent != nil {
		out[config.SettingDailyLimitPercent] = strconv.FormatFloat(*u.DailyLimitPercent, 'f', -1, 64)
	}
	return out
}

// GetSettings returns the settings currently applied by the engine.
// @Summary Get settings
// @Description Returns the currently applied engine settings.
// @Tags settings
// @Produce json
// @Success 200 {object} settingsPayload
// @Router /settings [get]
func (h *Handler) GetSettings(w http.ResponseWriter, r *http.Request) {
	respond.WriteJSONObject(w, http.StatusOK, toSettingsPayload(h.eng.Settings()))
}

// PutSettings applies a partial settings update.
// @Summary Update settings
// @Description Validates and persists the provided settings, then reloads the engine so the gate and session coordinator pick them up. Absent fields keep their stored values.
// @Tags settings
// @Accept json
// @Produce json
// @Param settings body settingsUpdate true "Partial settings"
// @Success 200 {object} settingsPayload
// @Failure 400 {object} respond.ErrorResponse
// @Failure 500 {object} respond.ErrorResponse
// @Router /settings [put]
func (h *Handler) PutSettings(w http.ResponseWriter, r *http.Request) {
	var update settingsUpdate
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		respond.WriteErrorDetail(w, respond.CodeInvalidBody, "Request body is not a settings update", err.Error())
		return
	}

	values := update.stringForm()
	if len(values) == 0 {
		respond.WriteError(w, respond.CodeEmptyUpdate, "No settings provided")
		return
	}

	for key, value := range values {
		if err := config.ValidateSetting(key, value); err != nil {
			respond.WriteErrorDetail(w, respond.CodeInvalidSetting, err.Error(), key)
			return
		}
	}
	for key, value := range values {
		if err := h.st.PutSetting(r.Context(), key, value); err != nil {
			respond.WriteErrorDetail(w, respond.CodeStoreError, "Settings could not be persisted", err.Error())
			return
		}
	}

	sets := h.eng.ReloadSettings(r.Context())
	h.cache.Flush()
	respond.WriteJSONObject(w, http.StatusOK, toSettingsPayload(sets))
}
