package server

import (
	"net/http"

	"github.com/cloo-solutions/fhirchat/internal/api"
	"github.com/cloo-solutions/fhirchat/internal/api/handlers"
	"github.com/cloo-solutions/fhirchat/internal/api/middleware"
	"github.com/cloo-solutions/fhirchat/internal/logging"
	"github.com/go-chi/chi/v5"
	"github.com/rs/cors"
)

const maxBodyBytes int64 = 1 * 1024 * 1024

type RouterConfig struct {
	ChatHandler  *handlers.ChatHandler
	AdminHandler *handlers.AdminHandler
	AdminToken   string
	// AllowedOrigins defaults to every origin when empty.
	AllowedOrigins []string
	Logger         *logging.Logger
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	log := cfg.Logger
	if log == nil {
		log = logging.Nop()
	}

	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r.Use(middleware.RequestID)
	r.Use(middleware.SentryMiddleware)
	r.Use(middleware.AccessLog(log.Sub("http")))
	r.Use(cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type", middleware.RequestIDHeader},
		ExposedHeaders: []string{middleware.RequestIDHeader},
		MaxAge:         300,
	}).Handler)
	r.Use(middleware.MaxBodyBytes(maxBodyBytes))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		api.Success(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api/chat", func(r chi.Router) {
		r.Post("/", cfg.ChatHandler.Chat)
		r.Post("/feedback", cfg.ChatHandler.Feedback)
	})

	if cfg.AdminHandler != nil {
		r.Route("/admin", func(r chi.Router) {
			r.Use(middleware.AdminTokenAuth(cfg.AdminToken))

			r.Post("/snippets", cfg.AdminHandler.IngestSnippets)
			r.Delete("/snippets/{id}", cfg.AdminHandler.DeleteSnippet)
			r.Get("/chat-logs", cfg.AdminHandler.ListChatLogs)
		})
	}

	return r
}
