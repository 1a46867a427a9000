package handler

import (
	"net/http"

	"github.com/Shivanand-hulikatti/eventreg/internal/auth"
	"github.com/Shivanand-hulikatti/eventreg/internal/metrics"
	"github.com/Shivanand-hulikatti/eventreg/internal/service"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

// RouterConfig carries everything NewRouter wires together.
type RouterConfig struct {
	Logger             zerolog.Logger
	Authenticator      auth.Authenticator
	Events             *service.EventService
	Registrations      *service.RegistrationService
	RateLimitPerMinute int
}

// NewRouter builds the HTTP API.
func NewRouter(cfg RouterConfig) http.Handler {
	events := NewEventHandler(cfg.Events)
	registrations := NewRegistrationHandler(cfg.Registrations)

	r := chi.NewRouter()

	r.Use(chimiddleware.RealIP)
	r.Use(CorrelationID(cfg.Logger))
	r.Use(RequestLogging)
	r.Use(chimiddleware.Recoverer)
	r.Use(metrics.HTTPMiddleware)

	r.Get("/health", HealthCheck)
	r.Handle("/metrics", metrics.Handler())

	r.Group(func(r chi.Router) {
		r.Use(RateLimit(cfg.RateLimitPerMinute))

		r.Get("/events", events.ListEvents)
		r.Get("/events/{id}", events.GetEvent)

		r.Group(func(r chi.Router) {
			r.Use(RequireIdentity(cfg.Authenticator))

			r.Post("/events", events.CreateEvent)

			r.Route("/registrations", func(r chi.Router) {
				r.Post("/", registrations.Register)
				r.Get("/", registrations.List)
				r.Get("/user/{userId}", registrations.ListForUser)
				r.Delete("/{eventId}", registrations.Unregister)
			})
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeProblem(w, Problem{
			Type:      "about:blank",
			Title:     http.StatusText(http.StatusNotFound),
			Status:    http.StatusNotFound,
			Code:      "not_found",
			Instance:  r.URL.Path,
			RequestID: RequestID(r.Context()),
		})
	})

	return r
}
