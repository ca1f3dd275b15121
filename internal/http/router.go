package http

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robertarktes/turf-booking-assistant/internal/idempotency"
	"github.com/robertarktes/turf-booking-assistant/internal/observability"
	"github.com/robertarktes/turf-booking-assistant/internal/rateLimit"
)

func SetupRouter(h *Handlers, logger observability.Logger, rl rateLimit.Limiter, idemp *idempotency.Idempotency) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(RequestIDMiddleware)
	r.Use(LoggerMiddleware(logger))
	r.Use(TracingMiddleware)
	r.Use(MetricsMiddleware)

	r.Group(func(r chi.Router) {
		r.Use(RateLimitMiddleware(rl))
		r.Post("/chat", h.Chat)
		r.Delete("/chat/{sessionID}", h.EndChat)
	})

	r.Route("/api", func(r chi.Router) {
		r.Get("/turfs", h.ListTurfs)
		r.Get("/turfs/{turfID}", h.GetTurf)
		r.Get("/bookings", h.ListBookings)
		r.Get("/bookings/{bookingID}", h.GetBooking)
		r.With(IdempotencyMiddleware(idemp, logger)).Post("/book", h.Book)
		r.Post("/cancel/{bookingID}", h.Cancel)
		r.Get("/availability/{turfID}/{date}", h.Availability)
	})

	r.Get("/healthz", h.Healthz)
	r.Get("/readyz", h.Readyz)
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	return r
}
