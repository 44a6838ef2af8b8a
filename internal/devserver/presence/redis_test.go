package presence_test

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatline/internal/devserver/presence"
)

func newRedisTracker(t *testing.T) *presence.RedisTracker {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return presence.NewRedisTracker(client)
}

func TestRedisTrackerTransitions(t *testing.T) {
	tracker := newRedisTracker(t)
	ctx := context.Background()

	cameOnline, err := tracker.Connect(ctx, 1)
	require.NoError(t, err)
	assert.True(t, cameOnline, "first connection flips the user online")

	// A second tab does not re-announce.
	cameOnline, err = tracker.Connect(ctx, 1)
	require.NoError(t, err)
	assert.False(t, cameOnline)

	cameOnline, err = tracker.Connect(ctx, 2)
	require.NoError(t, err)
	assert.True(t, cameOnline)

	online, err := tracker.Online(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2}, online)

	// Closing one of two tabs keeps the user online.
	wentOffline, err := tracker.Disconnect(ctx, 1)
	require.NoError(t, err)
	assert.False(t, wentOffline)

	wentOffline, err = tracker.Disconnect(ctx, 1)
	require.NoError(t, err)
	assert.True(t, wentOffline, "last connection flips the user offline")

	online, err = tracker.Online(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int64{2}, online)
}

func TestRedisTrackerEmpty(t *testing.T) {
	tracker := newRedisTracker(t)

	online, err := tracker.Online(context.Background())
	require.NoError(t, err)
	assert.Empty(t, online)
}

func TestMemoryTrackerTransitions(t *testing.T) {
	tracker := presence.NewMemoryTracker()
	ctx := context.Background()

	cameOnline, err := tracker.Connect(ctx, 1)
	require.NoError(t, err)
	assert.True(t, cameOnline)

	cameOnline, err = tracker.Connect(ctx, 1)
	require.NoError(t, err)
	assert.False(t, cameOnline)

	wentOffline, err := tracker.Disconnect(ctx, 1)
	require.NoError(t, err)
	assert.False(t, wentOffline)

	wentOffline, err = tracker.Disconnect(ctx, 1)
	require.NoError(t, err)
	assert.True(t, wentOffline)

	online, err := tracker.Online(ctx)
	require.NoError(t, err)
	assert.Empty(t, online)
}
