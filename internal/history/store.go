// Package history stores conversation turns per session so that realtime
// sessions (and batch callers reusing a session id) can feed recent context
// to the language model.
//
// Retention is intentionally shallow — the store serves session continuity,
// not archival. The in-memory implementation keeps a bounded ring of recent
// turns per session; the Postgres implementation in pg.go persists turns
// across restarts for deployments that want continuity between connections.
package history

import (
	"context"
	"sync"
	"time"
)

// Turn is one utterance in a conversation.
type Turn struct {
	// Role is "user" or "assistant".
	Role string

	// Text is the turn's content.
	Text string

	// At is when the turn was recorded.
	At time.Time
}

// Store persists and recalls conversation turns. Implementations must be
// safe for concurrent use.
type Store interface {
	// AppendTurn records one turn for the session.
	AppendTurn(ctx context.Context, sessionID string, turn Turn) error

	// RecentTurns returns up to n most recent turns for the session,
	// oldest first. A session with no recorded turns yields an empty slice.
	RecentTurns(ctx context.Context, sessionID string, n int) ([]Turn, error)
}

// MemStore is an in-memory Store keeping at most keep turns per session.
type MemStore struct {
	keep int

	mu       sync.RWMutex
	sessions map[string][]Turn
}

// Compile-time assertion that MemStore implements Store.
var _ Store = (*MemStore)(nil)

// NewMemStore creates a MemStore retaining at most keep turns per session.
// keep <= 0 falls back to 40.
func NewMemStore(keep int) *MemStore {
	if keep <= 0 {
		keep = 40
	}
	return &MemStore{
		keep:     keep,
		sessions: make(map[string][]Turn),
	}
}

// AppendTurn implements Store.
func (m *MemStore) AppendTurn(_ context.Context, sessionID string, turn Turn) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	turns := append(m.sessions[sessionID], turn)
	if len(turns) > m.keep {
		turns = turns[len(turns)-m.keep:]
	}
	m.sessions[sessionID] = turns
	return nil
}

// RecentTurns implements Store.
func (m *MemStore) RecentTurns(_ context.Context, sessionID string, n int) ([]Turn, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	turns := m.sessions[sessionID]
	if n > 0 && len(turns) > n {
		turns = turns[len(turns)-n:]
	}
	out := make([]Turn, len(turns))
	copy(out, turns)
	return out, nil
}
