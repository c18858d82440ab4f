// Package handler provides HTTP handlers for all API endpoints.
// Mutations flow through the engine so every write path shares one
// fan-out; reads go straight to the store.
package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/earguard/earguard/internal/api/respond"
	"github.com/earguard/earguard/internal/cache"
	"github.com/earguard/earguard/internal/config"
	"github.com/earguard/earguard/internal/engine"
	"github.com/earguard/earguard/internal/ingest"
	"github.com/earguard/earguard/internal/store"
)

// Handler holds shared dependencies for all endpoint handlers.
type Handler struct {
	eng    *engine.Engine
	st     store.Store
	cache  *cache.Cache
	syncer *ingest.Syncer // nil when no sample source is configured
	cfg    *config.Config
}

// New creates a Handler with shared dependencies.
func New(eng *engine.Engine, st store.Store, c *cache.Cache, syncer *ingest.Syncer, cfg *config.Config) *Handler {
	return &Handler{
		eng:    eng,
		st:     st,
		cache:  c,
		syncer: syncer,
		cfg:    cfg,
	}
}

// Root serves API info at /.
// @Summary API root info
// @Description Returns API name, version, status, and available optimizations.
// @Tags meta
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router / [get]
func (h *Handler) Root(w http.ResponseWriter, r *http.Request) {
	respond.WriteJSONObject(w, http.StatusOK, map[string]interface{}{
		"name":    "EarGuard Engine API",
		"version": "1.0.0",
		"status":  "running",
		"docs":    "/docs",
		"optimizations": []string{
			"pgxpool_connection_pooling",
			"prepared_statements",
			"gzip_compression",
			"in_memory_cache",
			"etag_support",
		},
	})
}

// HealthCheck returns basic health status.
// @Summary Health check
// @Description Returns basic health status and timestamp.
// @Tags health
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /health [get]
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	respond.WriteJSONObject(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// HealthCheckStore verifies the backing store is reachable.
// @Summary Store health check
// @Description Verifies connectivity to the persistence backend.
// @Tags health
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Failure 503 {object} map[string]interface{}
// @Router /health/store [get]
func (h *Handler) HealthCheckStore(w http.ResponseWriter, r *http.Request) {
	if err := h.st.HealthCheck(r.Context()); err != nil {
		respond.WriteJSONObject(w, http.StatusServiceUnavailable, map[string]interface{}{
			"status":    "unhealthy",
			"store":     "unreachable",
			"error":     "Store connectivity check failed",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
		return
	}
	respond.WriteJSONObject(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"store":     "reachable",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// HealthCheckCache returns cache statistics.
// @Summary Cache health check
// @Description Returns in-memory cache statistics (active keys, hits, misses).
// @Tags health
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /health/cache [get]
func (h *Handler) HealthCheckCache(w http.ResponseWriter, r *http.Request) {
	respond.WriteJSONObject(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"cache":     h.cache.Stats(),
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// Ready reports readiness: the process is up and the store answers.
// @Summary Readiness check
// @Description Returns 200 once the service can reach its store.
// @Tags health
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Failure 503 {object} map[string]interface{}
// @Router /ready [get]
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	if err := h.st.HealthCheck(r.Context()); err != nil {
		respond.WriteJSONObject(w, http.StatusServiceUnavailable, map[string]interface{}{"ready": false})
		return
	}
	respond.WriteJSONObject(w, http.StatusOK, map[string]interface{}{"ready": true})
}

// queryInt parses an integer query parameter, returning def when absent
// or malformed.
func queryInt(r *http.Request, name string, def int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}
