package conversation

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/robertarktes/turf-booking-assistant/internal/domain"
)

// SessionStore persists conversation history between turns.
type SessionStore interface {
	Load(ctx context.Context, sessionID string) ([]domain.ChatMessage, bool, error)
	Save(ctx context.Context, sessionID string, history []domain.ChatMessage) error
	Delete(ctx context.Context, sessionID string) error
}

type memorySession struct {
	history []domain.ChatMessage
	touched time.Time
}

// MemorySessionStore keeps sessions in process. Idle sessions are dropped by Sweep.
type MemorySessionStore struct {
	mu       sync.Mutex
	sessions map[string]memorySession
	ttl      time.Duration
	now      func() time.Time
}

func NewMemorySessionStore(ttl time.Duration) *MemorySessionStore {
	return &MemorySessionStore{
		sessions: make(map[string]memorySession),
		ttl:      ttl,
		now:      time.Now,
	}
}

func (s *MemorySessionStore) Load(_ context.Context, sessionID string) ([]domain.ChatMessage, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[sessionID]
	if !ok || s.expired(sess) {
		return nil, false, nil
	}
	return slices.Clone(sess.history), true, nil
}

func (s *MemorySessionStore) Save(_ context.Context, sessionID string, history []domain.ChatMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sessions[sessionID] = memorySession{history: slices.Clone(history), touched: s.now()}
	return nil
}

func (s *MemorySessionStore) Delete(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.sessions, sessionID)
	return nil
}

// Sweep removes sessions idle for longer than the ttl and reports how many went.
func (s *MemorySessionStore) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, sess := range s.sessions {
		if s.expired(sess) {
			delete(s.sessions, id)
			removed++
		}
	}
	return removed
}

func (s *MemorySessionStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

func (s *MemorySessionStore) expired(sess memorySession) bool {
	return s.ttl > 0 && s.now().Sub(sess.touched) > s.ttl
}
