package redis

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/robertarktes/turf-booking-assistant/internal/domain"
)

const sessionPrefix = "chat:session:"

// SessionStore keeps each conversation's history as one JSON value that expires after ttl of
// inactivity.
type SessionStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewSessionStore(client *redis.Client, ttl time.Duration) *SessionStore {
	return &SessionStore{client: client, ttl: ttl}
}

func (s *SessionStore) Load(ctx context.Context, sessionID string) ([]domain.ChatMessage, bool, error) {
	data, err := s.client.Get(ctx, sessionPrefix+sessionID).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var history []domain.ChatMessage
	if err := json.Unmarshal(data, &history); err != nil {
		return nil, false, err
	}
	return history, true, nil
}

func (s *SessionStore) Save(ctx context.Context, sessionID string, history []domain.ChatMessage) error {
	data, err := json.Marshal(history)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, sessionPrefix+sessionID, data, s.ttl).Err()
}

func (s *SessionStore) Delete(ctx context.Context, sessionID string) error {
	return s.client.Del(ctx, sessionPrefix+sessionID).Err()
}
