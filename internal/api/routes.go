package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func (h *Handler) Routes(m *Middleware, metricsHandler http.Handler, corsOrigins []string, rateLimitRPM int) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware
	r.Use(m.RequestID)
	r.Use(m.RequestLogger)
	r.Use(m.Recoverer)
	r.Use(m.SecurityHeaders)
	r.Use(m.Compress)
	r.Use(middleware.Heartbeat("/ping"))

	// CORS and rate limiting - configured from main
	r.Use(m.CORS(corsOrigins))
	r.Use(m.RateLimit(rateLimitRPM))

	// Health endpoints
	r.Get("/healthz", h.Healthz)
	r.Get("/readyz", h.Readyz)

	if metricsHandler != nil {
		r.Handle("/metrics", metricsHandler)
	}

	// v1 API routes
	r.Route("/v1", func(r chi.Router) {
		r.Route("/forum", func(r chi.Router) {
			r.Use(m.Timeout(15 * time.Second))

			r.Post("/posts", h.CreatePost)
			r.Post("/posts/list", h.ListPosts)
			r.Post("/posts/search", h.SearchPosts)
			r.Post("/posts/detail", h.PostDetail)
			r.Post("/posts/like", h.TogglePostLike)

			r.Post("/comments", h.CreateComment)
			r.Post("/comments/list", h.ListComments)
			r.Post("/comments/like", h.ToggleCommentLike)

			// Operational surface
			r.Get("/memory", h.MemoryStatus)
			r.Post("/flush", h.Flush)
			r.Post("/reinitialize", h.Reinitialize)
		})

		// Live updates; long-lived connections stay outside the timeout
		r.Get("/stream", h.HandleSSE)
		r.Get("/ws", h.HandleWebSocket)
	})

	return r
}
