package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// conditionalHTTPLogger only logs HTTP requests when HTTP logging is enabled
func (h *Handlers) conditionalHTTPLogger(next http.Handler) http.Handler {
	logger := middleware.Logger(next)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.Log != nil && h.Log.IsHTTPLoggingEnabled() {
			logger.ServeHTTP(w, r)
		} else {
			next.ServeHTTP(w, r)
		}
	})
}

// Router returns a configured chi router with all routes
func (h *Handlers) Router() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(h.conditionalHTTPLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RedirectSlashes)
	r.Use(middleware.Timeout(60 * time.Second))

	if h.staticServer != nil {
		r.Handle("/static/*", http.StripPrefix("/static/", h.staticServer))
	}

	// Live board
	r.Get("/", h.handleIndex)
	if h.Hub != nil {
		r.Get("/ws", h.Hub.ServeWs)
	}

	// Auth routes (public)
	r.Get("/admin/login", h.handleLoginPage)
	r.Post("/admin/login", h.handleLogin)
	r.Post("/admin/logout", h.handleLogout)

	// Admin pages (protected)
	r.Group(func(r chi.Router) {
		r.Use(h.Auth.RequireAuth)
		r.Get("/admin", h.handleAdminDashboard)
	})

	// Public API
	r.Route("/api", func(r chi.Router) {
		r.Get("/routes", h.handleListRoutes)
		r.Get("/routes/{id}", h.handleGetRoute)

		r.Get("/events", h.handleListEvents)
		r.Get("/events/{id}", h.handleGetEvent)
		r.Get("/events/{id}/qr", h.handleEventQR)
		r.Get("/events/{id}/link", h.handleEventLink)
		r.Post("/events/{id}/join", h.handleJoinEvent)
		r.Post("/events/{id}/leave", h.handleLeaveEvent)

		r.Post("/participants", h.handleRegisterParticipant)
		r.Get("/participants/{id}", h.handleGetParticipant)
		r.Get("/participants/{id}/progress", h.handleParticipantProgress)
		r.Put("/participants/{id}/position", h.handleUpdatePosition)

		r.Get("/results", h.handleListResults)
		r.Get("/leaderboard/{routeID}", h.handleLeaderboard)

		// Admin API (protected)
		r.Route("/admin", func(r chi.Router) {
			r.Use(h.Auth.RequireAuthAPI)

			r.Post("/routes", h.handleCreateRoute)
			r.Delete("/routes/{id}", h.handleDeleteRoute)

			r.Post("/events", h.handleCreateEvent)
			r.Delete("/events/{id}", h.handleDeleteEvent)

			r.Get("/settings", h.handleGetSettings)
			r.Put("/settings", h.handleUpdateSettings)
			r.Post("/settings", h.handleUpdateSettings)

			r.Post("/reset-results", h.handleResetResults)
			r.Post("/reset-database", h.handleResetDatabase)
		})
	})

	return r
}
