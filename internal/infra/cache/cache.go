// Package cache defines the key-value cache store contract and an
// in-process implementation used when no Redis server is configured.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jellydator/ttlcache/v3"
)

// Store is a JSON key-value store with per-key expiry.
type Store interface {
	GetJSON(ctx context.Context, key string, dst any) (bool, error)
	SetJSON(ctx context.Context, key string, v any, ttl time.Duration) error
}

// Local is a Store kept in process memory. Contents are lost on restart.
type Local struct {
	items *ttlcache.Cache[string, []byte]
}

// NewLocal creates a Local store and starts its expiry loop; call Stop to release it.
func NewLocal(capacity uint64) *Local {
	opts := []ttlcache.Option[string, []byte]{
		ttlcache.WithDisableTouchOnHit[string, []byte](),
	}
	if capacity > 0 {
		opts = append(opts, ttlcache.WithCapacity[string, []byte](capacity))
	}
	l := &Local{items: ttlcache.New(opts...)}
	go l.items.Start()
	return l
}

// GetJSON implements Store.
func (l *Local) GetJSON(_ context.Context, key string, dst any) (bool, error) {
	item := l.items.Get(key)
	if item == nil {
		return false, nil
	}
	if err := json.Unmarshal(item.Value(), dst); err != nil {
		return false, fmt.Errorf("failed to decode %s: %w", key, err)
	}
	return true, nil
}

// SetJSON implements Store. A zero ttl never expires.
func (l *Local) SetJSON(_ context.Context, key string, v any, ttl time.Duration) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", key, err)
	}
	if ttl <= 0 {
		ttl = ttlcache.NoTTL
	}
	l.items.Set(key, data, ttl)
	return nil
}

// Stop ends the expiry loop.
func (l *Local) Stop() { l.items.Stop() }
