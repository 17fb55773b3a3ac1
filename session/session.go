// Package session holds the server-side session cache that stands in
// for the external identity provider: a verified session token maps to
// a user ID. The store is an explicit dependency passed into the API
// layer, never a process-wide singleton.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ideaforge/vote-engine/voting"
)

// DefaultTTL matches the identity provider's one-day session lifetime.
const DefaultTTL = 24 * time.Hour

// ErrNotFound is returned for unknown or expired tokens.
var ErrNotFound = errors.New("session not found")

// Store resolves bearer tokens to verified user IDs.
type Store interface {
	// Create registers a session token for a user with the given TTL.
	Create(ctx context.Context, token string, userID voting.UserID, ttl time.Duration) error

	// Lookup returns the user behind a token, or ErrNotFound.
	Lookup(ctx context.Context, token string) (voting.UserID, error)

	// Delete removes a session. Deleting an absent token is a no-op.
	Delete(ctx context.Context, token string) error
}

// =============================================================================
// MEMORY STORE - Single-process implementation (tests/dev)
// =============================================================================

type Memory struct {
	mu       sync.Mutex
	sessions map[string]memoryEntry
}

type memoryEntry struct {
	userID    voting.UserID
	expiresAt time.Time
}

func NewMemory() *Memory {
	return &Memory{sessions: make(map[string]memoryEntry)}
}

func (m *Memory) Create(_ context.Context, token string, userID voting.UserID, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[token] = memoryEntry{userID: userID, expiresAt: time.Now().Add(ttl)}
	return nil
}

func (m *Memory) Lookup(_ context.Context, token string) (voting.UserID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.sessions[token]
	if !ok {
		return "", ErrNotFound
	}
	if time.Now().After(entry.expiresAt) {
		delete(m.sessions, token)
		return "", ErrNotFound
	}
	return entry.userID, nil
}

func (m *Memory) Delete(_ context.Context, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, token)
	return nil
}
