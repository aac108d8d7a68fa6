package bus

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBusPublishDeliversToSubscribers(t *testing.T) {
	b := New[int](4)
	sub := b.Subscribe()
	defer sub.Close()

	b.Publish(42)
	select {
	case v := <-sub.C():
		assert.Equal(t, 42, v)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for publish")
	}
}

func TestBusDropsOldestOnOverflow(t *testing.T) {
	b := New[int](1)
	sub := b.Subscribe()
	defer sub.Close()

	b.Publish(1)
	b.Publish(2) // should drop the oldest (1) rather than block

	select {
	case v := <-sub.C():
		assert.Equal(t, 2, v)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for publish")
	}
}

func TestBusSubscriberCount(t *testing.T) {
	b := New[int](1)
	require.Equal(t, 0, b.SubscriberCount())
	sub := b.Subscribe()
	require.Equal(t, 1, b.SubscriberCount())
	sub.Close()
	require.Equal(t, 0, b.SubscriberCount())
}

func TestRateLimiterAllowsAtMostConfiguredRate(t *testing.T) {
	rl := NewRateLimiter(10)
	now := time.Now()
	assert.True(t, rl.Allow(now))
	assert.False(t, rl.Allow(now.Add(time.Millisecond)))
	assert.True(t, rl.Allow(now.Add(200*time.Millisecond)))
}

func TestKeyedThrottleCoalescesWithinWindow(t *testing.T) {
	var flushed map[string]int
	done := make(chan struct{}, 1)
	th := NewKeyedThrottle[string, int](20*time.Millisecond, func(batch map[string]int) {
		flushed = batch
		select {
		case done <- struct{}{}:
		default:
		}
	})
	defer th.Stop()

	th.Update("a", 1)
	th.Update("a", 2)
	th.Update("b", 3)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for flush")
	}
	require.Len(t, flushed, 2)
	assert.Equal(t, 2, flushed["a"])
	assert.Equal(t, 3, flushed["b"])
}
