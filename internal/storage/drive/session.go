// Package drive implements the remote-storage layer on the Google Drive v3
// REST API: one lazily-created folder owned by the app, image blob CRUD, and
// derived public view URLs.
package drive

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"imageforge/internal/domain"
)

// ScopeDriveFile limits access to files the app itself created.
const ScopeDriveFile = "https://www.googleapis.com/auth/drive.file"

// Session is the authenticated capability required by every storage
// operation. It is created once per authentication event and passed
// explicitly; nothing in this package keeps ambient session state. The
// underlying token source refreshes expired tokens silently and is safe for
// concurrent use.
type Session struct {
	hc *http.Client
}

// NewSession wraps an already-authenticated HTTP client. Tests use this to
// point operations at a fake provider.
func NewSession(hc *http.Client) *Session {
	if hc == nil {
		hc = http.DefaultClient
	}
	return &Session{hc: hc}
}

func (s *Session) httpClient() *http.Client {
	if s == nil || s.hc == nil {
		return http.DefaultClient
	}
	return s.hc
}

// OAuthConfig holds the delegated-access client registration. The consent
// redirect itself is the collaborator's concern; this package only produces
// the URL and consumes the resulting code.
type OAuthConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
}

func (c OAuthConfig) config() *oauth2.Config {
	return &oauth2.Config{
		ClientID:     c.ClientID,
		ClientSecret: c.ClientSecret,
		RedirectURL:  c.RedirectURL,
		Scopes:       []string{ScopeDriveFile},
		Endpoint:     google.Endpoint,
	}
}

// AuthURL returns the consent URL a user must visit to delegate access.
// Offline access is requested so a refresh token is issued.
func (c OAuthConfig) AuthURL(state string) string {
	return c.config().AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
}

// Exchange trades an authorization code for a session plus the token to
// persist for later resumption.
func (c OAuthConfig) Exchange(ctx context.Context, code string) (*Session, *oauth2.Token, error) {
	if strings.TrimSpace(code) == "" {
		return nil, nil, &domain.AuthError{Cause: errors.New("authorization code is required")}
	}
	if c.ClientID == "" || c.ClientSecret == "" {
		return nil, nil, &domain.AuthError{Cause: errors.New("google client credentials are not configured")}
	}
	tok, err := c.config().Exchange(ctx, code)
	if err != nil {
		return nil, nil, &domain.AuthError{Cause: err}
	}
	sess, err := c.SessionFromToken(ctx, tok)
	if err != nil {
		return nil, nil, err
	}
	return sess, tok, nil
}

// SessionFromToken rebuilds a session from a previously persisted token.
// Expired access tokens are refreshed transparently on first use.
func (c OAuthConfig) SessionFromToken(ctx context.Context, tok *oauth2.Token) (*Session, error) {
	if tok == nil || (tok.AccessToken == "" && tok.RefreshToken == "") {
		return nil, &domain.AuthError{Cause: errors.New("token is empty")}
	}
	src := c.config().TokenSource(ctx, tok)
	return NewSession(oauth2.NewClient(ctx, src)), nil
}

// SessionFromServiceAccount builds a session from a self-contained service
// identity key. No consent flow and no refresh bookkeeping are needed; the
// JWT source mints tokens on demand.
func SessionFromServiceAccount(ctx context.Context, keyJSON []byte) (*Session, error) {
	cfg, err := google.JWTConfigFromJSON(keyJSON, ScopeDriveFile)
	if err != nil {
		return nil, &domain.AuthError{Cause: err}
	}
	return NewSession(oauth2.NewClient(ctx, cfg.TokenSource(ctx))), nil
}
