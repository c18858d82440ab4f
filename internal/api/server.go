package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	corslib "github.com/rs/cors"
	httpSwagger "github.com/swaggo/http-swagger/v2"

	"github.com/earguard/earguard/internal/api/handler"
	"github.com/earguard/earguard/internal/cache"
	"github.com/earguard/earguard/internal/config"
	"github.com/earguard/earguard/internal/engine"
	"github.com/earguard/earguard/internal/ingest"
	"github.com/earguard/earguard/internal/store"
)

// NewRouter creates and configures the Chi router with all middleware and
// routes. syncer may be nil when no sample source is configured; the sync
// endpoints then answer 501.
func NewRouter(eng *engine.Engine, st store.Store, appCache *cache.Cache, syncer *ingest.Syncer, cfg *config.Config) *chi.Mux {
	r := chi.NewRouter()

	// --- Middleware stack ---
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(TimingMiddleware)
	r.Use(middleware.Compress(5)) // gzip

	// CORS
	c := corslib.New(corslib.Options{
		AllowedOrigins:   cfg.CORSAllowOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "HEAD", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Accept-Encoding", "Content-Type", "If-None-Match", "Cache-Control"},
		ExposedHeaders:   []string{"X-Process-Time", "X-Cache", "ETag"},
		AllowCredentials: false,
	})
	r.Use(c.Handler)

	// Rate limiting
	if cfg.RateLimitEnabled {
		r.Use(RateLimitMiddleware(cfg.RateLimitRequests, cfg.RateLimitWindow))
	}

	// --- Handler dependencies ---
	h := handler.New(eng, st, appCache, syncer, cfg)

	// --- Routes ---

	// Root
	r.Get("/", h.Root)

	// Health checks
	r.Route("/health", func(r chi.Router) {
		r.Get("/", h.HealthCheck)
		r.Get("/store", h.HealthCheckStore)
		r.Get("/cache", h.HealthCheckCache)
	})
	r.Get("/ready", h.Ready)

	// Swagger UI
	r.Get("/docs/*", httpSwagger.Handler(
		httpSwagger.URL("/docs/doc.json"),
	))

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		// Ingest and sync
		r.Post("/samples", h.IngestSamples)
		r.Post("/sync/full", h.SyncFull)
		r.Post("/sync/incremental", h.SyncIncremental)

		// Dose
		r.Get("/dose/today", h.DoseToday)
		r.Get("/dose/history", h.DoseHistory)

		// Session
		r.Get("/session", h.GetSession)
		r.Post("/session/start", h.SessionStart)
		r.Post("/session/end", h.SessionEnd)
		r.Post("/device/connection", h.SetDeviceConnection)

		// Settings
		r.Get("/settings", h.GetSettings)
		r.Put("/settings", h.PutSettings)

		// Notification audit
		r.Get("/events", h.GetEvents)

		// Client cold start
		r.Get("/bootstrap", h.Bootstrap)
	})

	return r
}
