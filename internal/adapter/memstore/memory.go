package memstore

import (
	"context"
	"sync"

	"docrag/internal/domain"
)

// SessionStore keeps chat sessions in process memory. History is lost on exit.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string][]domain.ChatMessage
}

func NewSessionStore() *SessionStore {
	return &SessionStore{
		sessions: make(map[string][]domain.ChatMessage),
	}
}

func (s *SessionStore) Load(_ context.Context, sessionID string) ([]domain.ChatMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	msgs := s.sessions[sessionID]
	out := make([]domain.ChatMessage, len(msgs))
	copy(out, msgs)
	return out, nil
}

func (s *SessionStore) Append(_ context.Context, sessionID string, msgs ...domain.ChatMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sessionID] = append(s.sessions[sessionID], msgs...)
	return nil
}

func (s *SessionStore) Clear(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionID)
	return nil
}

// Sessions returns the number of sessions with history.
func (s *SessionStore) Sessions() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}
