// Package session owns the opaque session token: set on successful login,
// cleared on logout or when the remote signals session invalidity, read
// before every remote call. The store is injected wherever the token is
// needed so the core stays testable without a real transport.
package session

import (
	"context"
	"sync"
)

// Store holds the current session token. An empty token means no session.
type Store interface {
	Token(ctx context.Context) (string, error)
	Set(ctx context.Context, token string) error
	Clear(ctx context.Context) error
}

// Active reports whether a live session token is present. This is the whole
// of the session gate: board access requires it, the login surface does not.
func Active(ctx context.Context, s Store) bool {
	tok, err := s.Token(ctx)
	return err == nil && tok != ""
}

// Memory is an in-process Store for tests and single-run use.
type Memory struct {
	mu    sync.Mutex
	token string
}

func NewMemory() *Memory { return &Memory{} }

func (m *Memory) Token(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.token, nil
}

func (m *Memory) Set(ctx context.Context, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.token = token
	return nil
}

func (m *Memory) Clear(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.token = ""
	return nil
}
