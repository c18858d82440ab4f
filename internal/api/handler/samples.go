package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/earguard/earguard/internal/api/respond"
	"github.com/earguard/earguard/internal/exposure"
	"github.com/earguard/earguard/internal/ingest"
)

// maxBatchSamples caps one ingest request. Collaborators chunk larger
// backfills; the sync path is unlimited because it pages upstream.
const maxBatchSamples = 10000

type samplePayload struct {
	ExternalID   string    `json:"external_id"`
	Start        time.Time `json:"start"`
	End          time.Time `json:"end"`
	LevelDB      float64   `json:"level_db"`
	SourceDevice string    `json:"source_device"`
}

type ingestRequest struct {
	Samples []samplePayload `json:"samples"`
}

type ingestResponse struct {
	Inserted     int      `json:"inserted"`
	Duplicates   int      `json:"duplicates"`
	Rejected     int      `json:"rejected"`
	AffectedDays []string `json:"affected_days"`
	Errors       []string `json:"errors,omitempty"`
}

func toIngestResponse(result ingest.Result) ingestResponse {
	days := make([]string, len(result.AffectedDays))
	for i, d := range result.AffectedDays {
		days[i] = d.String()
	}
	return ingestResponse{
		Inserted:     result.Inserted,
		Duplicates:   result.Duplicates,
		Rejected:     result.Rejected,
		AffectedDays: days,
		Errors:       result.Errors,
	}
}

// IngestSamples accepts a canonical sample batch.
// @Summary Ingest samples
// @Description Accepts a batch of loudness samples, deduplicates by external ID, recomputes affected days, and fans today's dose out to notifications and the live session. Invalid samples are rejected individually; the rest of the batch proceeds.
// @Tags samples
// @Accept json
// @Produce json
// @Param batch body ingestRequest true "Sample batch"
// @Success 200 {object} ingestResponse
// @Failure 400 {object} respond.ErrorResponse
// @Failure 500 {object} respond.ErrorResponse
// @Router /samples [post]
func (h *Handler) IngestSamples(w http.ResponseWriter, r *http.Request) {
	var req ingestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.WriteErrorDetail(w, respond.CodeInvalidBody, "Request body is not a valid sample batch", err.Error())
		return
	}
	if len(req.Samples) > maxBatchSamples {
		respond.WriteError(w, respond.CodeBatchTooLarge, "Batch exceeds the per-request sample limit")
		return
	}

	batch := make([]exposure.Sample, len(req.Samples))
	for i, p := range req.Samples {
		batch[i] = exposure.Sample{
			ExternalID:   p.ExternalID,
			Start:        p.Start,
			End:          p.End,
			LevelDB:      p.LevelDB,
			SourceDevice: p.SourceDevice,
		}
	}

	result, err := h.eng.Ingest(r.Context(), batch)
	if err != nil {
		respond.WriteErrorDetail(w, respond.CodeStoreError, "Batch could not be fully persisted, retry it", err.Error())
		return
	}
	respond.WriteJSONObject(w, http.StatusOK, toIngestResponse(result))
}

// SyncFull triggers a full-window pull from the configured source.
// @Summary Full sync
// @Description Fetches the entire sync window from the bridge and ingests it. Dedup makes re-running cheap.
// @Tags sync
// @Produce json
// @Param days query int false "Window override in days"
// @Success 200 {object} ingestResponse
// @Failure 501 {object} respond.ErrorResponse
// @Failure 502 {object} respond.ErrorResponse
// @Router /sync/full [post]
func (h *Handler) SyncFull(w http.ResponseWriter, r *http.Request) {
	if h.syncer == nil {
		respond.WriteError(w, respond.CodeSyncNotConfigured, "No sample source configured")
		return
	}
	result, err := h.syncer.FullSync(r.Context(), queryInt(r, "days", 0))
	if err != nil {
		respond.WriteErrorDetail(w, respond.CodeSyncFailed, "Full sync did not complete", err.Error())
		return
	}
	respond.WriteJSONObject(w, http.StatusOK, toIngestResponse(result))
}

// SyncIncremental triggers an incremental pull past the watermark.
// @Summary Incremental sync
// @Description Fetches samples past the stored watermark (minus a small overlap) and ingests them. Falls back to a full sync when no watermark exists yet.
// @Tags sync
// @Produce json
// @Success 200 {object} ingestResponse
// @Failure 501 {object} respond.ErrorResponse
// @Failure 502 {object} respond.ErrorResponse
// @Router /sync/incremental [post]
func (h *Handler) SyncIncremental(w http.ResponseWriter, r *http.Request) {
	if h.syncer == nil {
		respond.WriteError(w, respond.CodeSyncNotConfigured, "No sample source configured")
		return
	}
	result, err := h.syncer.IncrementalSync(r.Context())
	if err != nil {
		respond.WriteErrorDetail(w, respond.CodeSyncFailed, "Incremental sync did not complete", err.Error())
		return
	}
	respond.WriteJSONObject(w, http.StatusOK, toIngestResponse(result))
}
