package api

import (
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/jouyai/dashboard-kel/internal/api/middleware"
	"github.com/jouyai/dashboard-kel/internal/broker"
	"github.com/jouyai/dashboard-kel/internal/handlers"
	"github.com/jouyai/dashboard-kel/internal/realtime"
	"github.com/jouyai/dashboard-kel/internal/store"
)

// NewRouter creates and configures the HTTP router.
func NewRouter(logger zerolog.Logger, st store.DataStore, b *broker.Broker, hub *realtime.Hub, redisBus *realtime.RedisBus) *chi.Mux {
	r := chi.NewRouter()

	// Metrics middleware (first to capture all requests)
	r.Use(middleware.Metrics)

	// Security middleware
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.MaxBodySize(16 * 1024)) // 16KB max body
	r.Use(middleware.RequireJSON)

	// Standard middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.Logger(logger))
	r.Use(chimw.Recoverer)

	// Rate limiting for the public endpoints (needs Redis)
	if redisBus != nil {
		limiter := middleware.NewRateLimiter(redisBus.Client(), logger)
		r.Use(limiter.Middleware)
	}

	// CORS - the admin console and the public site are separate frontends
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset", "Retry-After"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// Create handler and auth middleware
	h := handlers.NewHandler(st, b, hub, redisBus, logger)
	auth := middleware.NewAuthMiddleware(st)

	// Metrics endpoint (for Prometheus scraping)
	r.Handle("/metrics", promhttp.Handler())

	// Public routes (no auth required)
	r.Get("/health", h.Health)
	r.Post("/api/login", h.Login)

	// Citizen chat widget
	r.Post("/widget/sessions", h.StartChat)
	r.Post("/widget/sessions/{id}/messages", h.PostCitizenMessage)

	// Public CMS reads
	r.Get("/api/news", h.ListNews)
	r.Get("/api/services", h.ListServices)
	r.Get("/api/pages", h.ListPages)
	r.Get("/api/pages/{slug}", h.GetPage)

	// Operator routes (require token)
	r.Group(func(r chi.Router) {
		r.Use(auth.RequireOperator)

		r.Get("/api/sessions", h.ListSessions)
		r.Get("/api/sessions/{id}/messages", h.GetSessionMessages)
		r.Post("/api/sessions/{id}/claim", h.ClaimSession)
		r.Post("/api/sessions/{id}/reply", h.ReplySession)
		r.Post("/api/sessions/{id}/resolve", h.ResolveSession)

		r.Get("/api/stream", h.StreamSessions)
		r.Get("/api/sessions/{id}/stream", h.StreamSessionMessages)

		r.Get("/api/stats", h.Stats)

		r.Get("/api/operators", h.ListOperators)
		r.Post("/api/operators", h.CreateOperator)

		r.Post("/api/news", h.CreateNews)
		r.Delete("/api/news/{id}", h.DeleteNews)
		r.Post("/api/services", h.CreateService)
		r.Delete("/api/services/{id}", h.DeleteService)
		r.Put("/api/pages/{slug}", h.UpsertPage)
	})

	return r
}
