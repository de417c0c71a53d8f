// Package session keeps the operator identity that survives console
// restarts. Persistence is a single narrow file adapter at the process
// boundary; the identity itself is injected at startup and passed down,
// never read from ambient storage.
package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/golang-jwt/jwt/v5"
)

// Identity is who the console acts as. Either field may be empty.
type Identity struct {
	CustomerID string `json:"customer_id,omitempty"`
	AgentID    string `json:"agent_id,omitempty"`
}

// Store reads and writes the persisted identity.
type Store struct {
	path string
}

// NewStore creates a store backed by a JSON file.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Load returns the persisted identity. A missing file is a zero identity,
// not an error.
func (s *Store) Load() (Identity, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return Identity{}, nil
	}
	if err != nil {
		return Identity{}, err
	}
	var id Identity
	if err := json.Unmarshal(data, &id); err != nil {
		return Identity{}, fmt.Errorf("corrupt session file %s: %w", s.path, err)
	}
	return id, nil
}

// Save persists the identity.
func (s *Store) Save(id Identity) error {
	data, err := json.MarshalIndent(id, "", "  ")
	if err != nil {
		return err
	}
	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return os.WriteFile(s.path, data, 0o600)
}

// IdentityFromToken prefills the identity from the bearer token's claims.
// The token is not verified here; the backend is the authority on its
// validity. An unparseable token yields a zero identity.
func IdentityFromToken(token string) Identity {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return Identity{}
	}

	sub, _ := claims.GetSubject()
	if sub == "" {
		return Identity{}
	}
	if role, _ := claims["role"].(string); role == "agent" {
		return Identity{AgentID: sub}
	}
	return Identity{CustomerID: sub}
}
