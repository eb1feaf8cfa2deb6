package refresh

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisBridge_RelaysAcrossProcesses(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	newBridge := func() (*RedisBridge, *atomic.Int32) {
		client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		t.Cleanup(func() { _ = client.Close() })

		local := NewCoordinator(nil)
		var count atomic.Int32
		local.Subscribe(func(context.Context) { count.Add(1) })

		bridge := NewRedisBridge(client, "test:refresh", local, nil)
		require.NoError(t, bridge.Start(ctx))
		t.Cleanup(func() { _ = bridge.Close() })
		return bridge, &count
	}

	publisher, publisherCount := newBridge()
	_, listenerCount := newBridge()

	publisher.Publish(ctx)

	require.Eventually(t, func() bool {
		return listenerCount.Load() == 1
	}, 2*time.Second, 10*time.Millisecond)

	// The publishing process must not see its own signal twice.
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(1), publisherCount.Load())
}

func TestRedisBridge_PublishSurvivesRedisOutage(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })

	local := NewCoordinator(nil)
	var count atomic.Int32
	local.Subscribe(func(context.Context) { count.Add(1) })

	bridge := NewRedisBridge(client, "", local, nil)
	mr.Close()

	bridge.Publish(context.Background())
	assert.Equal(t, int32(1), count.Load())
	assert.Equal(t, DefaultChannel, bridge.channel)
}

func TestRedisBridge_StartTwiceFails(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	bridge := NewRedisBridge(client, "test:twice", NewCoordinator(nil), nil)
	require.NoError(t, bridge.Start(context.Background()))
	t.Cleanup(func() { _ = bridge.Close() })

	assert.Error(t, bridge.Start(context.Background()))
}
