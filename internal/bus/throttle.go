package bus

import (
	"sync"
	"time"
)

// KeyedThrottle coalesces updates keyed by K: writes within a window replace
// the pending value for that key, and all pending keys are flushed together
// at the window boundary — the batching behaviour spec §4.10 requires for
// ParameterChanged fan-out ("drop intermediate updates ... batch all pending
// updates on the window boundary into a single fan-out event").
type KeyedThrottle[K comparable, V any] struct {
	mu      sync.Mutex
	pending map[K]V
	window  time.Duration
	flush   func(map[K]V)

	stop chan struct{}
	once sync.Once
}

// NewKeyedThrottle starts a throttler that calls flush with the batch of
// keys changed since the last window, at most once per window.
func NewKeyedThrottle[K comparable, V any](window time.Duration, flush func(map[K]V)) *KeyedThrottle[K, V] {
	t := &KeyedThrottle[K, V]{
		pending: make(map[K]V),
		window:  window,
		flush:   flush,
		stop:    make(chan struct{}),
	}
	go t.loop()
	return t
}

func (t *KeyedThrottle[K, V]) loop() {
	ticker := time.NewTicker(t.window)
	defer ticker.Stop()
	for {
		select {
		case <-t.stop:
			return
		case <-ticker.C:
			t.drain()
		}
	}
}

func (t *KeyedThrottle[K, V]) drain() {
	t.mu.Lock()
	if len(t.pending) == 0 {
		t.mu.Unlock()
		return
	}
	batch := t.pending
	t.pending = make(map[K]V)
	t.mu.Unlock()
	t.flush(batch)
}

// Update records the latest value for key, replacing any value queued
// earlier in the current window.
func (t *KeyedThrottle[K, V]) Update(key K, value V) {
	t.mu.Lock()
	t.pending[key] = value
	t.mu.Unlock()
}

// Stop halts the background flush loop. Any values queued but not yet
// flushed are discarded.
func (t *KeyedThrottle[K, V]) Stop() {
	t.once.Do(func() { close(t.stop) })
}

// RateLimiter enforces "at most N events per second" per subscriber, as
// spec §4.2 requires for Transport position publishing (throttled to 10/s).
type RateLimiter struct {
	mu       sync.Mutex
	interval time.Duration
	last     time.Time
}

// NewRateLimiter builds a limiter allowing up to perSecond events/second.
func NewRateLimiter(perSecond int) *RateLimiter {
	if perSecond < 1 {
		perSecond = 1
	}
	return &RateLimiter{interval: time.Second / time.Duration(perSecond)}
}

// Allow reports whether an event may be emitted now, and if so, starts the
// next interval.
func (r *RateLimiter) Allow(now time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if now.Sub(r.last) < r.interval {
		return false
	}
	r.last = now
	return true
}
