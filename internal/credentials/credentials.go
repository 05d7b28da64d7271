// Package credentials resolves the bearer credential used for the realtime
// handshake and authenticated uploads. The original client keeps tokens in a
// handful of storage locations; here each location is a Source and the Chain
// checks them in a fixed priority order.
package credentials

import (
	"strings"
	"sync"
)

// Source yields a bearer token when one is available.
type Source interface {
	Token() (string, bool)
}

// Static is a fixed token source (persisted token, injected test token).
type Static string

// Token returns the static value when non-empty.
func (s Static) Token() (string, bool) {
	v := strings.TrimSpace(string(s))
	return v, v != ""
}

// SessionStore is a mutable, session-scoped token source. It outranks the
// persisted and test tokens while a value is set.
type SessionStore struct {
	mu    sync.RWMutex
	token string
}

// Set installs the session token.
func (s *SessionStore) Set(token string) {
	s.mu.Lock()
	s.token = strings.TrimSpace(token)
	s.mu.Unlock()
}

// Clear removes the session token.
func (s *SessionStore) Clear() {
	s.Set("")
}

// Token returns the session token when one is set.
func (s *SessionStore) Token() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token, s.token != ""
}

// Chain resolves the first available token across its sources, in order.
type Chain struct {
	sources []Source
}

// NewChain builds a chain; earlier sources win.
func NewChain(sources ...Source) *Chain {
	return &Chain{sources: sources}
}

// Resolve returns the highest-priority available token.
func (c *Chain) Resolve() (string, bool) {
	for _, src := range c.sources {
		if tok, ok := src.Token(); ok {
			return tok, true
		}
	}
	return "", false
}

// Token makes a Chain usable anywhere a single Source is expected.
func (c *Chain) Token() (string, bool) {
	return c.Resolve()
}
