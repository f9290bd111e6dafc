package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"imageforge/internal/domain"
	"imageforge/internal/service"
	"imageforge/internal/storage/drive"
)

// App bundles the dependencies shared by all handlers. The handlers are a
// thin collaborator layer: they forward to the studio and render whatever
// typed result comes back, including error messages verbatim.
type App struct {
	Studio    *service.Studio
	Connector *drive.Connector
	Logger    zerolog.Logger
}

// NewApp builds the handler container.
func NewApp(studio *service.Studio, connector *drive.Connector, logger zerolog.Logger) *App {
	return &App{Studio: studio, Connector: connector, Logger: logger}
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// renderError maps the typed error taxonomy onto HTTP statuses. The message
// is always the error's own human-readable string.
func (a *App) renderError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError

	var authErr *domain.AuthError
	var subErr *domain.SubmissionError
	var provErr *domain.ProviderError
	var malformed *domain.MalformedResultError
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrNoSession):
		status = http.StatusConflict
	case errors.As(err, &authErr):
		status = http.StatusUnauthorized
	case errors.As(err, &subErr), errors.As(err, &provErr), errors.As(err, &malformed):
		status = http.StatusBadGateway
	}

	a.json(w, status, map[string]string{"error": err.Error()})
}
