package redis

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// TokenStore persists change feed resume positions.
type TokenStore struct {
	client *Client
}

// NewTokenStore creates a Redis-backed resume token store.
func NewTokenStore(client *Client) *TokenStore {
	return &TokenStore{client: client}
}

// LoadToken returns the saved position of collection.
func (s *TokenStore) LoadToken(ctx context.Context, collection string) (int64, bool, error) {
	seq, err := s.client.rdb.Get(ctx, s.client.key("resume", collection)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to load resume token: %w", err)
	}
	return seq, true, nil
}

// SaveToken records the position of collection.
func (s *TokenStore) SaveToken(ctx context.Context, collection string, seq int64) error {
	if err := s.client.rdb.Set(ctx, s.client.key("resume", collection), seq, 0).Err(); err != nil {
		return fmt.Errorf("failed to save resume token: %w", err)
	}
	return nil
}
