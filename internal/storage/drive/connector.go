package drive

import (
	"context"
	"sync"

	"imageforge/internal/domain"
)

// Connector owns the lifecycle of the one long-lived session: consent URL,
// code exchange, token persistence, resumption on restart, disconnect. All
// methods are safe for concurrent use; the check-then-replace around the
// current session is serialized so concurrent requests cannot race a
// refresh-and-swap.
type Connector struct {
	oauth OAuthConfig
	store *TokenStore

	mu      sync.Mutex
	current *Session
}

// NewConnector wires the OAuth client registration with a token store. The
// store may be nil, in which case sessions are never persisted.
func NewConnector(cfg OAuthConfig, store *TokenStore) *Connector {
	return &Connector{oauth: cfg, store: store}
}

// AuthURL returns the consent URL for the delegated-access flow.
func (c *Connector) AuthURL(state string) string {
	return c.oauth.AuthURL(state)
}

// Connect exchanges an authorization code, persists the resulting token and
// installs the session as current.
func (c *Connector) Connect(ctx context.Context, code string) (*Session, error) {
	sess, tok, err := c.oauth.Exchange(ctx, code)
	if err != nil {
		return nil, err
	}
	if c.store != nil {
		if err := c.store.Save(tok); err != nil {
			return nil, &domain.AuthError{Cause: err}
		}
	}
	c.mu.Lock()
	c.current = sess
	c.mu.Unlock()
	return sess, nil
}

// Resume rebuilds the session from a previously persisted token. Returns
// (nil, nil) when no token has been saved.
func (c *Connector) Resume(ctx context.Context) (*Session, error) {
	if c.store == nil {
		return nil, nil
	}
	tok, err := c.store.Load()
	if err != nil {
		return nil, &domain.AuthError{Cause: err}
	}
	if tok == nil {
		return nil, nil
	}
	sess, err := c.oauth.SessionFromToken(ctx, tok)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.current = sess
	c.mu.Unlock()
	return sess, nil
}

// UseServiceAccount installs a non-interactive service-identity session.
func (c *Connector) UseServiceAccount(ctx context.Context, keyJSON []byte) (*Session, error) {
	sess, err := SessionFromServiceAccount(ctx, keyJSON)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.current = sess
	c.mu.Unlock()
	return sess, nil
}

// Current returns the active session, if any.
func (c *Connector) Current() (*Session, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current, c.current != nil
}

// Disconnect drops the current session and deletes the persisted token.
func (c *Connector) Disconnect() error {
	c.mu.Lock()
	c.current = nil
	c.mu.Unlock()
	if c.store != nil {
		return c.store.Clear()
	}
	return nil
}
