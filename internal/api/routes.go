package api

import (
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/inkpress/inkpress-backend/internal/repository"
)

func (h *Handler) Routes(m *Middleware, corsOrigins []string, rateLimitRPM int) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware
	r.Use(m.RequestID)
	r.Use(m.RequestLogger)
	r.Use(m.Recoverer)
	r.Use(m.SecurityHeaders)
	r.Use(m.Timeout(15 * time.Second))
	r.Use(middleware.Heartbeat("/ping"))

	// CORS and rate limiting - configured from main
	r.Use(m.CORS(corsOrigins))
	r.Use(m.RateLimit(rateLimitRPM))

	// Health endpoints
	r.Get("/healthz", h.Healthz)
	r.Get("/readyz", h.Readyz)

	// v1 API routes
	r.Route("/v1", func(r chi.Router) {
		// Public content listings carry the passive scheduler/monitor tick.
		r.Group(func(r chi.Router) {
			r.Use(m.PassiveTriggers(h.engine, h.mon))
			r.Get("/posts", h.ListPosts)
			r.Get("/reviews", h.ListReviews)
		})

		// External cron trigger; token-gated inside the handler, not by
		// admin auth.
		r.Get("/scheduler/cron", h.CronTrigger)

		// Admin panel surface
		r.Route("/admin", func(r chi.Router) {
			r.Use(m.AdminAuth(repository.RoleAdmin, repository.RoleEditor))
			r.Use(m.PassiveTriggers(h.engine, h.mon))

			r.Post("/scheduler/run", h.ManualRun)

			r.Route("/{kind}/{id}", func(r chi.Router) {
				r.Post("/schedule", h.SetSchedule)
				r.Delete("/schedule", h.ClearSchedule)
			})

			r.Post("/monitor/run", h.RunMonitor)
			r.Get("/monitor/summary", h.MonitorSummary)

			r.Get("/notifications", h.ListNotifications)
			r.Get("/notifications/ws", h.NotificationsFeed)
		})
	})

	return r
}
