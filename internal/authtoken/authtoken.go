// Package authtoken owns the single bearer token non-loopback clients must
// present, shared between the dispatcher (which can report on and rotate it)
// and the transport layer (which checks incoming requests against it).
package authtoken

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

const fileName = "session-manager.token"

// Store holds the current token in memory, backed by a file on disk.
type Store struct {
	mu    sync.RWMutex
	path  string
	token string
}

// Load reads the token from <configDir>/session-manager.token, generating
// and persisting a new random one if it does not exist yet.
func Load(configDir string) (*Store, error) {
	path := filepath.Join(configDir, fileName)
	s := &Store{path: path}

	data, err := os.ReadFile(path)
	if err == nil && len(data) > 0 {
		s.token = string(data)
		return s, nil
	}
	if err != nil && !os.IsNotExist(err) {
		return nil, err
	}

	if _, err := s.Regenerate(); err != nil {
		return nil, err
	}
	return s, nil
}

// Token returns the current bearer token.
func (s *Store) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

// Regenerate replaces the token with a new random value, persists it, and
// returns it. Existing clients holding the old token are rejected from the
// next request onward.
func (s *Store) Regenerate() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating token: %w", err)
	}
	token := hex.EncodeToString(buf)

	if err := os.WriteFile(s.path, []byte(token), 0o600); err != nil {
		return "", fmt.Errorf("writing token file: %w", err)
	}

	s.mu.Lock()
	s.token = token
	s.mu.Unlock()
	return token, nil
}
