package handlers

import (
	"net/http"
)

// Health is the liveness probe. It deliberately does not touch the
// generation provider or remote storage; a degraded provider shows up on the
// task endpoints, not here.
func (a *App) Health(w http.ResponseWriter, r *http.Request) {
	a.json(w, http.StatusOK, map[string]string{"status": "ok"})
}
