package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"imageforge/internal/http/handlers"
	"imageforge/internal/middleware"
)

// NewRouter assembles the versioned API surface.
func NewRouter(app *handlers.App, logger zerolog.Logger, rateLimitPerMin int) http.Handler {
	r := chi.NewRouter()

	r.Use(
		middleware.RequestID,
		chimw.RealIP,
		chimw.Recoverer,
		middleware.Logger(logger),
	)
	if rateLimitPerMin > 0 {
		r.Use(middleware.RateLimit(rateLimitPerMin, time.Minute))
	}

	r.Get("/v1/healthz", app.Health)

	r.Route("/v1/tasks", func(r chi.Router) {
		r.Post("/", app.CreateTask)
		r.Get("/", app.ListTasks)
		r.Get("/{id}", app.GetTask)
	})

	r.Route("/v1/library", func(r chi.Router) {
		r.Get("/", app.ListLibrary)
		r.Post("/", app.UploadAsset)
		r.Delete("/{id}", app.DeleteAsset)
	})

	r.Route("/v1/auth", func(r chi.Router) {
		r.Get("/url", app.AuthURL)
		r.Post("/exchange", app.Exchange)
		r.Get("/status", app.AuthStatus)
		r.Post("/disconnect", app.Disconnect)
	})

	return r
}
