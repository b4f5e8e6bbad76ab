package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocal_RoundTrip(t *testing.T) {
	l := NewLocal(0)
	defer l.Stop()
	ctx := context.Background()

	type page struct {
		Items []string `json:"items"`
	}

	var got page
	found, err := l.GetJSON(ctx, "blocks:0:10", &got)
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, l.SetJSON(ctx, "blocks:0:10", page{Items: []string{"0x1"}}, 0))
	found, err = l.GetJSON(ctx, "blocks:0:10", &got)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, []string{"0x1"}, got.Items)
}

func TestLocal_Expiry(t *testing.T) {
	l := NewLocal(0)
	defer l.Stop()
	ctx := context.Background()

	require.NoError(t, l.SetJSON(ctx, "k", 1, 20*time.Millisecond))
	var v int
	require.Eventually(t, func() bool {
		found, _ := l.GetJSON(ctx, "k", &v)
		return !found
	}, time.Second, 5*time.Millisecond)
}

var _ Store = (*Local)(nil)
