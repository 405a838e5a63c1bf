package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisCursorStore is a Redis implementation of the CursorStore interface
type RedisCursorStore struct {
	client redis.UniversalClient
	prefix string
}

// DefaultCursorPrefix namespaces cursor keys when no prefix is configured
const DefaultCursorPrefix = "anchor:cursor:"

// NewRedisCursorStore creates a new Redis cursor store
func NewRedisCursorStore(client redis.UniversalClient, prefix string) *RedisCursorStore {
	if prefix == "" {
		prefix = DefaultCursorPrefix
	}
	return &RedisCursorStore{
		client: client,
		prefix: prefix,
	}
}

// LoadCursor returns the saved cursor for accountID, or "" if none was saved
func (s *RedisCursorStore) LoadCursor(ctx context.Context, accountID string) (string, error) {
	cursor, err := s.client.Get(ctx, s.prefix+accountID).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to load cursor: %w", err)
	}

	return cursor, nil
}

// SaveCursor stores the cursor for accountID without expiry
func (s *RedisCursorStore) SaveCursor(ctx context.Context, accountID, cursor string) error {
	if err := s.client.Set(ctx, s.prefix+accountID, cursor, 0).Err(); err != nil {
		return fmt.Errorf("failed to save cursor: %w", err)
	}

	return nil
}
