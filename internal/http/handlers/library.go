package handlers

import (
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"imageforge/internal/domain"
)

const maxUploadBytes = 32 << 20

// ListLibrary returns the app folder's assets. Default order is the
// provider's newest-first; sort=name switches to collation order.
func (a *App) ListLibrary(w http.ResponseWriter, r *http.Request) {
	sess, ok := a.Connector.Current()
	if !ok {
		a.renderError(w, domain.ErrNoSession)
		return
	}
	assets, err := a.Studio.Library(r.Context(), sess, r.URL.Query().Get("sort") == "name")
	if err != nil {
		a.renderError(w, err)
		return
	}
	a.json(w, http.StatusOK, map[string]any{"assets": assets})
}

// UploadAsset stores a user-supplied image in the app folder. The file is
// sent as multipart form field "file".
func (a *App) UploadAsset(w http.ResponseWriter, r *http.Request) {
	sess, ok := a.Connector.Current()
	if !ok {
		a.renderError(w, domain.ErrNoSession)
		return
	}
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		a.json(w, http.StatusBadRequest, map[string]string{"error": "invalid multipart body"})
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		a.json(w, http.StatusBadRequest, map[string]string{"error": "file field is required"})
		return
	}
	defer file.Close()
	data, err := io.ReadAll(io.LimitReader(file, maxUploadBytes))
	if err != nil {
		a.json(w, http.StatusBadRequest, map[string]string{"error": "failed to read upload"})
		return
	}

	asset, err := a.Studio.UploadToLibrary(r.Context(), sess, header.Filename, data)
	if err != nil {
		a.renderError(w, err)
		return
	}
	a.json(w, http.StatusCreated, map[string]any{"asset": asset})
}

// DeleteAsset removes one asset from remote storage.
func (a *App) DeleteAsset(w http.ResponseWriter, r *http.Request) {
	sess, ok := a.Connector.Current()
	if !ok {
		a.renderError(w, domain.ErrNoSession)
		return
	}
	if err := a.Studio.DeleteAsset(r.Context(), sess, chi.URLParam(r, "id")); err != nil {
		a.renderError(w, err)
		return
	}
	a.json(w, http.StatusOK, map[string]string{"status": "deleted"})
}
