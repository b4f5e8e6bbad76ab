package redis

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Requires a live server, e.g. EXPLORER_TEST_REDIS_URL=redis://localhost:6379/15
func newTestClient(t *testing.T) *Client {
	t.Helper()
	url := os.Getenv("EXPLORER_TEST_REDIS_URL")
	if url == "" {
		t.Skip("EXPLORER_TEST_REDIS_URL not set")
	}
	client, err := NewClient(Config{URL: url, Prefix: "explorer-test-" + uuid.NewString()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestCache_RoundTripAndMiss(t *testing.T) {
	client := newTestClient(t)
	cache := NewCache(client)
	ctx := context.Background()

	var got map[string]float64
	found, err := cache.GetJSON(ctx, "rate:ETH:USD", &got)
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, cache.SetJSON(ctx, "rate:ETH:USD", map[string]float64{"price": 3100.5}, time.Minute))
	found, err = cache.GetJSON(ctx, "rate:ETH:USD", &got)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, 3100.5, got["price"])
}

func TestTokenStore(t *testing.T) {
	client := newTestClient(t)
	tokens := NewTokenStore(client)
	ctx := context.Background()

	_, ok, err := tokens.LoadToken(ctx, "blocks")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, tokens.SaveToken(ctx, "blocks", 42))
	seq, ok, err := tokens.LoadToken(ctx, "blocks")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(42), seq)
}
