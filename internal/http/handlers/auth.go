package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
)

// AuthURL starts the delegated-access flow: the caller sends the user to
// the returned consent URL and posts the resulting code back to Exchange.
func (a *App) AuthURL(w http.ResponseWriter, r *http.Request) {
	state := uuid.NewString()
	a.json(w, http.StatusOK, map[string]string{
		"url":   a.Connector.AuthURL(state),
		"state": state,
	})
}

type exchangeRequest struct {
	Code string `json:"code"`
}

// Exchange trades an authorization code for a persisted session.
func (a *App) Exchange(w http.ResponseWriter, r *http.Request) {
	var req exchangeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.json(w, http.StatusBadRequest, map[string]string{"error": "invalid json body"})
		return
	}
	if _, err := a.Connector.Connect(r.Context(), req.Code); err != nil {
		a.renderError(w, err)
		return
	}
	a.Logger.Info().Msg("storage connected")
	a.json(w, http.StatusOK, map[string]bool{"connected": true})
}

// AuthStatus reports whether a storage session is active.
func (a *App) AuthStatus(w http.ResponseWriter, r *http.Request) {
	_, connected := a.Connector.Current()
	a.json(w, http.StatusOK, map[string]bool{"connected": connected})
}

// Disconnect drops the session and deletes the persisted token.
func (a *App) Disconnect(w http.ResponseWriter, r *http.Request) {
	if err := a.Connector.Disconnect(); err != nil {
		a.renderError(w, err)
		return
	}
	a.json(w, http.StatusOK, map[string]bool{"connected": false})
}
