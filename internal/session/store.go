// Package session holds the access/refresh token pair for the active login and
// the stores that persist it between runs.
package session

import (
	"errors"
	"sync"
	"time"
)

// ErrNoTokens is returned by stores asked to update a token that was never set.
var ErrNoTokens = errors.New("no tokens stored")

// Tokens is the access/refresh pair issued by the login endpoint.
type Tokens struct {
	Access    string    `json:"access"`
	Refresh   string    `json:"refresh"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Store is the process-wide token storage shared by the HTTP client and the
// auth session. Implementations must be safe for concurrent use.
type Store interface {
	// Tokens returns the stored pair and whether an access token is present.
	Tokens() (Tokens, bool)
	// SetTokens replaces the whole pair.
	SetTokens(t Tokens) error
	// SetAccess replaces only the access token, keeping the refresh token.
	SetAccess(access string) error
	// Clear removes both tokens.
	Clear() error
}

// MemoryStore keeps tokens in memory only.
type MemoryStore struct {
	mu     sync.RWMutex
	tokens Tokens
}

// NewMemoryStore returns an empty store, or one seeded with t.
func NewMemoryStore(t ...Tokens) *MemoryStore {
	s := &MemoryStore{}
	if len(t) > 0 {
		s.tokens = t[0]
	}
	return s
}

func (s *MemoryStore) Tokens() (Tokens, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tokens, s.tokens.Access != ""
}

func (s *MemoryStore) SetTokens(t Tokens) error {
	if t.UpdatedAt.IsZero() {
		t.UpdatedAt = time.Now()
	}
	s.mu.Lock()
	s.tokens = t
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) SetAccess(access string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tokens.Access == "" && s.tokens.Refresh == "" {
		return ErrNoTokens
	}
	s.tokens.Access = access
	s.tokens.UpdatedAt = time.Now()
	return nil
}

func (s *MemoryStore) Clear() error {
	s.mu.Lock()
	s.tokens = Tokens{}
	s.mu.Unlock()
	return nil
}
