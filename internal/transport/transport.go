// Package transport implements the per-clip playback state machine from
// spec §4.2: Stopped/Playing/Paused, trim-bounded virtual-position
// accumulation, and the four loop modes (once/repeat/ping_pong/random).
package transport

import (
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/lumencast/engine/internal/bus"
	"github.com/lumencast/engine/internal/clip"
)

// State is a transport's run state.
type State int

const (
	StateStopped State = iota
	StatePlaying
	StatePaused
)

func (s State) String() string {
	switch s {
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	default:
		return "stopped"
	}
}

// PositionEvent is published whenever a tick advances the transport's frame
// position, throttled to at most 10/s (spec §4.2) except for EndOfClip,
// which always publishes so subscribers never miss the terminal transition.
type PositionEvent struct {
	FrameIndex int
	State      State
	EndOfClip  bool
}

// Transport drives one clip's playback position. It holds no reference to
// the clip itself — Attach copies in the trim state it needs, so the caller
// (internal/player) stays in control of when trim changes take effect.
type Transport struct {
	mu sync.Mutex

	state       State
	virtualPos  float64
	trim        clip.TrimState
	pingPongDir int
	loopsUsed   int

	events  *bus.Bus[PositionEvent]
	limiter *bus.RateLimiter
}

// New creates a stopped Transport. events may be nil to disable publishing
// (e.g. in tests that only care about Tick's return value).
func New(events *bus.Bus[PositionEvent]) *Transport {
	return &Transport{
		events:      events,
		limiter:     bus.NewRateLimiter(10),
		pingPongDir: 1,
	}
}

// Attach installs a new trim window, resetting the virtual position to the
// start of the window. The caller (internal/player) calls this on every
// tick, not just when the trim actually changes, so Attach is a no-op
// against an identical trim — otherwise the position and loop counter would
// never survive past a single tick.
func (t *Transport) Attach(trim clip.TrimState) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if trim == t.trim {
		return
	}
	t.trim = trim
	t.virtualPos = 0
	t.loopsUsed = 0
	t.pingPongDir = 1
	if trim.Reverse {
		t.pingPongDir = -1
	}
}

// Play, Pause and Stop transition the state machine. Stop additionally
// resets the playback position to the start of the trim window.
func (t *Transport) Play() {
	t.mu.Lock()
	t.state = StatePlaying
	t.mu.Unlock()
}

func (t *Transport) Pause() {
	t.mu.Lock()
	if t.state == StatePlaying {
		t.state = StatePaused
	}
	t.mu.Unlock()
}

func (t *Transport) Stop() {
	t.mu.Lock()
	t.state = StateStopped
	t.virtualPos = 0
	t.mu.Unlock()
}

// State reports the current run state.
func (t *Transport) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Tick advances playback by dt source frames at speed 1 (the caller
// converts wall-clock seconds to frames at its target FPS); dt is scaled by
// the clip's trim.Speed and direction inside this call. It returns the resulting
// absolute frame index plus the transport's state after the tick. Ticking a
// non-Playing transport just reports the current index without advancing.
func (t *Transport) Tick(dt float64) (frameIndex int, state State) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state != StatePlaying {
		return t.currentFrameIndexLocked(), t.state
	}

	span := float64(t.trim.Out - t.trim.In)
	if span <= 0 {
		return t.trim.In, t.state
	}

	dir := float64(t.pingPongDir)
	if t.trim.Mode != clip.ModePingPong {
		dir = 1
		if t.trim.Reverse {
			dir = -1
		}
	}
	t.virtualPos += dt * t.trim.Speed * dir
	endOfClip := false

	switch t.trim.Mode {
	case clip.ModeOnce:
		if t.virtualPos >= span {
			t.virtualPos = span - 1
			t.state = StateStopped
			endOfClip = true
		} else if t.virtualPos < 0 {
			t.virtualPos = 0
			t.state = StateStopped
			endOfClip = true
		}
	case clip.ModeRepeat:
		if t.virtualPos >= span || t.virtualPos < 0 {
			// Increment loop counter; if loop_count > 0 and reached, treat
			// as once (spec §4.2 step 5) instead of wrapping again.
			t.loopsUsed++
			if t.trim.LoopCount > 0 && t.loopsUsed >= t.trim.LoopCount {
				if t.virtualPos >= span {
					t.virtualPos = span - 1
				} else {
					t.virtualPos = 0
				}
				t.state = StateStopped
				endOfClip = true
				break
			}
			t.virtualPos = math.Mod(t.virtualPos, span)
			if t.virtualPos < 0 {
				t.virtualPos += span
			}
		}
	case clip.ModePingPong:
		if t.virtualPos >= span {
			t.virtualPos = 2*span - t.virtualPos
			t.pingPongDir = -1
		} else if t.virtualPos < 0 {
			t.virtualPos = -t.virtualPos
			t.pingPongDir = 1
		}
	case clip.ModeRandom:
		if t.virtualPos >= span || t.virtualPos < 0 {
			t.virtualPos = float64(rand.IntN(int(span)))
		}
	}

	idx := t.currentFrameIndexLocked()
	t.publishLocked(idx, endOfClip)
	return idx, t.state
}

func (t *Transport) currentFrameIndexLocked() int {
	return t.trim.In + int(t.virtualPos)
}

func (t *Transport) publishLocked(frameIndex int, endOfClip bool) {
	if t.events == nil {
		return
	}
	// EndOfClip always publishes — throttling a terminal transition would let
	// a subscriber miss it entirely.
	if !endOfClip && !t.limiter.Allow(time.Now()) {
		return
	}
	t.events.Publish(PositionEvent{FrameIndex: frameIndex, State: t.state, EndOfClip: endOfClip})
}
