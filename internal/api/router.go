package api

import (
	"net/http"

	"github.com/Still-River/river/internal/api/handlers"
	"github.com/Still-River/river/internal/api/middleware"
	"github.com/Still-River/river/internal/config"
	"github.com/Still-River/river/internal/service"
	"github.com/Still-River/river/internal/websocket"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
)

func NewRouter(services *service.Services, hub *websocket.Hub, cfg *config.Config) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.RequestID)
	r.Use(middleware.CORS(cfg.AllowedOrigins()))
	r.Use(middleware.Session(services.Session))

	// Initialize handlers
	authHandler := handlers.NewAuthHandler(services.Auth, services.Session)
	journalHandler := handlers.NewJournalHandler(services.Journal)
	wsHandler := handlers.NewWebSocketHandler(hub, services.Journal, cfg.AllowedOrigins())

	r.Get("/health", handlers.Health)

	r.Route("/auth", func(r chi.Router) {
		r.Get("/google/url", authHandler.GoogleURL)
		r.Get("/google/callback", authHandler.GoogleCallback)
		r.Get("/me", authHandler.Me)
		r.Post("/logout", authHandler.Logout)
	})

	r.Route("/journals", func(r chi.Router) {
		r.Get("/", journalHandler.List)
		r.Get("/{identifier}", journalHandler.Get)
		r.Put("/{identifier}/responses", journalHandler.SaveResponses)
		r.Get("/{identifier}/events", wsHandler.Events)
	})

	return r
}
