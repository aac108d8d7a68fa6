package transport

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumencast/engine/internal/bus"
	"github.com/lumencast/engine/internal/clip"
)

func TestTickWhileStoppedDoesNotAdvance(t *testing.T) {
	tr := New(nil)
	tr.Attach(clip.TrimState{In: 0, Out: 10, Speed: 1, Mode: clip.ModeRepeat})

	idx, state := tr.Tick(1.0)
	assert.Equal(t, 0, idx)
	assert.Equal(t, StateStopped, state)
}

func TestTickRepeatWrapsAround(t *testing.T) {
	tr := New(nil)
	tr.Attach(clip.TrimState{In: 0, Out: 10, Speed: 1, Mode: clip.ModeRepeat})
	tr.Play()

	var idx int
	var state State
	for i := 0; i < 15; i++ {
		idx, state = tr.Tick(1.0)
	}
	require.Equal(t, StatePlaying, state)
	assert.True(t, idx >= 0 && idx < 10)
}

func TestTickOnceStopsAtEnd(t *testing.T) {
	tr := New(nil)
	tr.Attach(clip.TrimState{In: 0, Out: 5, Speed: 1, Mode: clip.ModeOnce})
	tr.Play()

	var state State
	for i := 0; i < 10; i++ {
		_, state = tr.Tick(1.0)
		if state == StateStopped {
			break
		}
	}
	assert.Equal(t, StateStopped, state)
}

func TestPauseHaltsAdvance(t *testing.T) {
	tr := New(nil)
	tr.Attach(clip.TrimState{In: 0, Out: 10, Speed: 1, Mode: clip.ModeRepeat})
	tr.Play()
	tr.Tick(2.0)
	tr.Pause()

	before, _ := tr.Tick(0)
	after, state := tr.Tick(3.0)
	assert.Equal(t, StatePaused, state)
	assert.Equal(t, before, after)
}

func TestStopResetsPosition(t *testing.T) {
	tr := New(nil)
	tr.Attach(clip.TrimState{In: 2, Out: 10, Speed: 1, Mode: clip.ModeRepeat})
	tr.Play()
	tr.Tick(3.0)
	tr.Stop()

	idx, state := tr.Tick(0)
	assert.Equal(t, StateStopped, state)
	assert.Equal(t, 2, idx)
}

func TestAttachResetsPositionAndDirection(t *testing.T) {
	tr := New(nil)
	tr.Attach(clip.TrimState{In: 0, Out: 10, Speed: 1, Mode: clip.ModePingPong})
	tr.Play()
	tr.Tick(1.0)

	tr.Attach(clip.TrimState{In: 0, Out: 10, Speed: 1, Mode: clip.ModePingPong, Reverse: true})
	idx, _ := tr.Tick(0)
	assert.Equal(t, 0, idx)
}

func TestAttachIsNoOpForIdenticalTrim(t *testing.T) {
	tr := New(nil)
	trim := clip.TrimState{In: 0, Out: 10, Speed: 1, Mode: clip.ModeRepeat}
	tr.Attach(trim)
	tr.Play()
	tr.Tick(5.0)
	before, _ := tr.Tick(0)

	tr.Attach(trim)
	after, _ := tr.Tick(0)
	assert.Equal(t, before, after)
}

func TestTickRepeatCollapsesToOnceAfterLoopCount(t *testing.T) {
	tr := New(nil)
	tr.Attach(clip.TrimState{In: 0, Out: 5, Speed: 1, Mode: clip.ModeRepeat, LoopCount: 2})
	tr.Play()

	var state State
	for i := 0; i < 20; i++ {
		_, state = tr.Tick(1.0)
		if state == StateStopped {
			break
		}
	}
	assert.Equal(t, StateStopped, state)
}

func TestTickOnceEmitsEndOfClipEvent(t *testing.T) {
	events := bus.New[PositionEvent](8)
	sub := events.Subscribe()
	defer sub.Close()

	tr := New(events)
	tr.Attach(clip.TrimState{In: 0, Out: 3, Speed: 1, Mode: clip.ModeOnce})
	tr.Play()

	var got PositionEvent
	for i := 0; i < 10; i++ {
		tr.Tick(1.0)
		select {
		case got = <-sub.C():
			if got.EndOfClip {
				i = 10
			}
		default:
		}
	}
	assert.True(t, got.EndOfClip)
}
