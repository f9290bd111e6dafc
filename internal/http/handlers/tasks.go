package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"imageforge/internal/domain"
	"imageforge/internal/ledger"
	"imageforge/internal/service"
)

type createTaskRequest struct {
	Model   string         `json:"model"`
	Input   map[string]any `json:"input"`
	Archive bool           `json:"archive"`
}

type taskResponse struct {
	Job     domain.Job     `json:"job"`
	Archive *archiveReport `json:"archive,omitempty"`
}

type archiveReport struct {
	Succeeded []domain.StoredAsset   `json:"succeeded"`
	Failed    []domain.ArchiveFailure `json:"failed"`
}

// CreateTask submits a generation job and blocks until it reaches a
// terminal state, mirroring the one-job-at-a-time interaction model of the
// calling UI. A partial archive still returns the terminal job together
// with the per-item report.
func (a *App) CreateTask(w http.ResponseWriter, r *http.Request) {
	var req createTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.json(w, http.StatusBadRequest, map[string]string{"error": "invalid json body"})
		return
	}

	sess, _ := a.Connector.Current()
	job, err := a.Studio.Generate(r.Context(), req.Model, req.Input, sess, service.GenerateOptions{Archive: req.Archive})
	if err != nil {
		var partial *domain.PartialArchiveError
		if errors.As(err, &partial) {
			a.json(w, http.StatusOK, taskResponse{
				Job:     job,
				Archive: &archiveReport{Succeeded: partial.Succeeded, Failed: partial.Failed},
			})
			return
		}
		a.renderError(w, err)
		return
	}
	a.json(w, http.StatusOK, taskResponse{Job: job})
}

// ListTasks reads the ledger with optional model/status filters and a sort
// order (newest, oldest, model).
func (a *App) ListTasks(w http.ResponseWriter, r *http.Request) {
	q := ledger.Query{
		Model: r.URL.Query().Get("model"),
		Sort:  ledger.SortOrder(r.URL.Query().Get("sort")),
	}
	if status := r.URL.Query().Get("status"); status != "" {
		q.Status = domain.JobStatus(status)
	}
	a.json(w, http.StatusOK, map[string]any{"tasks": a.Studio.History(q)})
}

// GetTask returns a single ledger entry.
func (a *App) GetTask(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	job, ok := a.Studio.Job(id)
	if !ok {
		a.renderError(w, domain.ErrNotFound)
		return
	}
	a.json(w, http.StatusOK, taskResponse{Job: job})
}
