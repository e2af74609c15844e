package api

import (
	"log/slog"
	"net/http"

	"github.com/akonev/newsletter-delivery/internal/store"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
)

// RouterConfig carries everything the router needs wired in.
type RouterConfig struct {
	Store         *store.PostgresStore
	Metrics       *store.MetricsStore
	Publisher     publisher
	Sender        confirmationSender
	BaseURL       string
	AdminUsername string
	AdminPassword string
	AdminUserID   uuid.UUID
	Logger        *slog.Logger
}

// NewRouter creates and configures the HTTP router.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	// Middleware stack
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Heartbeat("/ping"))

	subHandler := NewSubscriptionHandler(cfg.Store, cfg.Sender, cfg.BaseURL, cfg.Logger)
	newsHandler := NewNewsletterHandler(cfg.Store, cfg.Publisher, cfg.AdminUserID, cfg.Logger)
	metricsHandler := NewMetricsHandler(cfg.Store, cfg.Metrics, cfg.Logger)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", HealthHandler())

		r.Route("/subscriptions", func(r chi.Router) {
			r.Post("/", subHandler.Subscribe)
			r.Get("/confirm", subHandler.Confirm)
		})

		// Publishing is an admin-only surface.
		r.Route("/newsletters", func(r chi.Router) {
			r.Use(middleware.BasicAuth("publish", map[string]string{
				cfg.AdminUsername: cfg.AdminPassword,
			}))
			r.Post("/", newsHandler.Publish)
			r.Get("/{id}", newsHandler.Get)
		})

		r.Get("/metrics", metricsHandler.Metrics)
	})

	return r
}
