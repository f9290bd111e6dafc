package drive

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/oauth2"
)

// TokenStore persists the delegated-access token between runs so the user
// only walks the consent flow once. Tokens carry refresh material, so the
// file is written owner-only.
type TokenStore struct {
	path string
}

// NewTokenStore prepares a store at path, creating parent directories.
func NewTokenStore(path string) (*TokenStore, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("drive: token path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("drive: ensure token directory: %w", err)
	}
	return &TokenStore{path: path}, nil
}

// Load returns the persisted token, or nil when none has been saved yet.
func (s *TokenStore) Load() (*oauth2.Token, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("drive: read token: %w", err)
	}
	var tok oauth2.Token
	if err := json.Unmarshal(data, &tok); err != nil {
		return nil, fmt.Errorf("drive: decode token: %w", err)
	}
	return &tok, nil
}

// Save writes tok to disk, replacing any previous token.
func (s *TokenStore) Save(tok *oauth2.Token) error {
	if tok == nil {
		return errors.New("drive: token is required")
	}
	data, err := json.Marshal(tok)
	if err != nil {
		return fmt.Errorf("drive: encode token: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0o600); err != nil {
		return fmt.Errorf("drive: write token: %w", err)
	}
	return nil
}

// Clear removes the persisted token. Missing files are not an error.
func (s *TokenStore) Clear() error {
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("drive: remove token: %w", err)
	}
	return nil
}
