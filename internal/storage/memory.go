package storage

import (
	"context"
	"sort"
	"sync"

	"github.com/zhouzirui/mad-arena/backend/internal/model/debate"
)

// MemoryStore keeps sessions in process memory, suitable for local runs.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]debate.Session
	messages map[string][]debate.Message
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]debate.Session),
		messages: make(map[string][]debate.Message),
	}
}

func (s *MemoryStore) CreateSession(_ context.Context, session debate.Session) error {
	session.Agents = append([]debate.Agent(nil), session.Agents...)

	s.mu.Lock()
	s.sessions[session.ID] = session
	s.messages[session.ID] = make([]debate.Message, 0, 16)
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) GetSession(_ context.Context, sessionID string) (debate.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, ok := s.sessions[sessionID]
	if !ok {
		return debate.Session{}, ErrSessionNotFound
	}
	session.Agents = append([]debate.Agent(nil), session.Agents...)
	return session, nil
}

func (s *MemoryStore) UpdateSession(_ context.Context, session debate.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.sessions[session.ID]
	if !ok {
		return ErrSessionNotFound
	}
	current.Status = session.Status
	current.Round = session.Round
	current.Winner = session.Winner
	current.UpdatedAt = session.UpdatedAt
	s.sessions[session.ID] = current
	return nil
}

func (s *MemoryStore) AppendMessages(_ context.Context, sessionID string, messages ...debate.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[sessionID]; !ok {
		return ErrSessionNotFound
	}
	s.messages[sessionID] = append(s.messages[sessionID], messages...)
	return nil
}

func (s *MemoryStore) LoadTranscript(_ context.Context, sessionID string) ([]debate.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	messages, ok := s.messages[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}

	copied := make([]debate.Message, len(messages))
	copy(copied, messages)
	return copied, nil
}

func (s *MemoryStore) ListSessions(_ context.Context) ([]debate.Session, error) {
	s.mu.RLock()
	list := make([]debate.Session, 0, len(s.sessions))
	for _, session := range s.sessions {
		list = append(list, session)
	}
	s.mu.RUnlock()

	sort.Slice(list, func(i, j int) bool {
		return list[i].CreatedAt.After(list[j].CreatedAt)
	})
	return list, nil
}

func (s *MemoryStore) Ping(context.Context) error { return nil }

func (s *MemoryStore) Close() error { return nil }
