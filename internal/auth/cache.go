package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/felixgeelhaar/macrocam/internal/session"
)

// TokenCache persists the current session in a JSON file readable only by the owner.
type TokenCache struct {
	path string
	mu   sync.Mutex
}

// NewTokenCache creates a cache backed by path.
func NewTokenCache(path string) *TokenCache {
	return &TokenCache{path: path}
}

// Path returns the backing file path.
func (c *TokenCache) Path() string {
	return c.path
}

// Load returns the cached session, or nil when there is none.
func (c *TokenCache) Load() (*session.Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	data, err := os.ReadFile(c.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, WrapError(ErrSessionStoreFailed, "failed to read session cache", err, map[string]interface{}{
			"path": c.path,
		})
	}

	var s session.Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, WrapError(ErrSessionStoreFailed, "corrupt session cache", err, map[string]interface{}{
			"path": c.path,
		})
	}
	if s.AccessToken == "" || s.UserID == "" {
		return nil, nil
	}
	return &s, nil
}

// Save writes s, replacing any cached session.
func (c *TokenCache) Save(s *session.Session) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(c.path), 0o700); err != nil {
		return WrapError(ErrSessionStoreFailed, "failed to create session directory", err, nil)
	}

	tmp := c.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return WrapError(ErrSessionStoreFailed, "failed to write session cache", err, nil)
	}
	if err := os.Rename(tmp, c.path); err != nil {
		return WrapError(ErrSessionStoreFailed, "failed to replace session cache", err, nil)
	}
	return nil
}

// Clear removes the cached session.
func (c *TokenCache) Clear() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := os.Remove(c.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return WrapError(ErrSessionStoreFailed, "failed to remove session cache", err, nil)
	}
	return nil
}
