// Package idempotency remembers the response to a request carrying an Idempotency-Key so a
// retried request gets the same answer instead of repeating the side effect.
package idempotency

import (
	"context"
	"sync"
	"time"

	redisadapter "github.com/robertarktes/turf-booking-assistant/internal/adapters/redis"
)

type Response = redisadapter.IdempResponse

type Backend interface {
	Get(ctx context.Context, key string) (*Response, error)
	Set(ctx context.Context, key string, resp Response, ttl time.Duration) error
}

type Idempotency struct {
	backend Backend
	ttl     time.Duration
}

func NewIdempotency(backend Backend, ttl time.Duration) *Idempotency {
	return &Idempotency{backend: backend, ttl: ttl}
}

// Get returns nil when no response is stored for key.
func (i *Idempotency) Get(ctx context.Context, key string) (*Response, error) {
	return i.backend.Get(ctx, key)
}

// Set records resp for key. The first recorded response wins.
func (i *Idempotency) Set(ctx context.Context, key string, resp Response) error {
	return i.backend.Set(ctx, key, resp, i.ttl)
}

type memoryEntry struct {
	resp    Response
	expires time.Time
}

// MemoryBackend serves a single process when Redis is not configured.
type MemoryBackend struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{entries: make(map[string]memoryEntry), now: time.Now}
}

func (m *MemoryBackend) Get(_ context.Context, key string) (*Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[key]
	if !ok {
		return nil, nil
	}
	if m.now().After(e.expires) {
		delete(m.entries, key)
		return nil, nil
	}
	resp := e.resp
	return &resp, nil
}

func (m *MemoryBackend) Set(_ context.Context, key string, resp Response, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if e, ok := m.entries[key]; ok && now.Before(e.expires) {
		return nil
	}
	for k, e := range m.entries {
		if now.After(e.expires) {
			delete(m.entries, k)
		}
	}
	m.entries[key] = memoryEntry{resp: resp, expires: now.Add(ttl)}
	return nil
}
