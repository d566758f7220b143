package services

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// SessionManager hands out one RoundOrchestrator per player and drops idle ones.
type SessionManager struct {
	deps   *RoundDeps
	logger *zap.Logger

	mu       sync.Mutex
	sessions map[string]*RoundOrchestrator
}

func NewSessionManager(deps *RoundDeps) *SessionManager {
	deps = deps.withDefaults()
	return &SessionManager{
		deps:     deps,
		logger:   deps.Logger.With(zap.String("component", "sessions")),
		sessions: make(map[string]*RoundOrchestrator),
	}
}

// Get returns the player's orchestrator, creating and loading it on first use.
func (m *SessionManager) Get(ctx context.Context, userID string) (*RoundOrchestrator, error) {
	m.mu.Lock()
	if o, ok := m.sessions[userID]; ok {
		m.mu.Unlock()
		return o, nil
	}
	m.mu.Unlock()

	o := NewRoundOrchestrator(userID, m.deps)
	if err := o.Load(ctx); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.sessions[userID]; ok {
		return existing, nil
	}
	m.sessions[userID] = o
	return o, nil
}

// Peek returns the orchestrator without creating one.
func (m *SessionManager) Peek(userID string) (*RoundOrchestrator, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.sessions[userID]
	return o, ok
}

func (m *SessionManager) Remove(userID string) {
	m.mu.Lock()
	o, ok := m.sessions[userID]
	delete(m.sessions, userID)
	m.mu.Unlock()

	if ok {
		o.Close()
	}
}

// CleanupIdle closes sessions with no round in flight and no activity for maxIdle.
func (m *SessionManager) CleanupIdle(maxIdle time.Duration) int {
	cutoff := time.Now().Add(-maxIdle)

	m.mu.Lock()
	var stale []*RoundOrchestrator
	for userID, o := range m.sessions {
		since, idle := o.IdleSince()
		if idle && since.Before(cutoff) {
			stale = append(stale, o)
			delete(m.sessions, userID)
		}
	}
	m.mu.Unlock()

	for _, o := range stale {
		o.Close()
	}
	if len(stale) > 0 {
		m.logger.Info("cleaned up idle game sessions", zap.Int("count", len(stale)))
	}
	return len(stale)
}

func (m *SessionManager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Shutdown closes every session, letting rounds in flight settle first.
func (m *SessionManager) Shutdown() {
	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[string]*RoundOrchestrator)
	m.mu.Unlock()

	for _, o := range sessions {
		o.Close()
	}
}
