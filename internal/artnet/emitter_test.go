package artnet

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDecideFullNoPreviousFrame(t *testing.T) {
	o := New(Config{Name: "t", DeltaEnabled: true, FullFrameInterval: 30})
	full, reason := o.decideFull(nil, []byte{1, 2, 3})
	assert.True(t, full)
	assert.Equal(t, "no previous frame", reason)
}

func TestDecideFullDeltaDisabledAlwaysFull(t *testing.T) {
	o := New(Config{Name: "t", DeltaEnabled: false})
	full, reason := o.decideFull([]byte{1, 2, 3}, []byte{1, 2, 3})
	assert.True(t, full)
	assert.Equal(t, "delta disabled", reason)
}

func TestDecideFullSmallChangeStaysDelta(t *testing.T) {
	o := New(Config{Name: "t", DeltaEnabled: true, FullFrameInterval: 1000, ChangeThreshold: 4})
	o.frameCounter = 1
	prev := []byte{100, 100, 100}
	cur := []byte{101, 100, 100}
	full, reason := o.decideFull(prev, cur)
	assert.False(t, full)
	assert.Equal(t, "delta", reason)
}

func TestDecideFullLargeChangeForcesFull(t *testing.T) {
	o := New(Config{Name: "t", DeltaEnabled: true, FullFrameInterval: 1000, ChangeThreshold: 4})
	o.frameCounter = 1
	prev := []byte{0, 0, 0}
	cur := []byte{255, 255, 255}
	full, reason := o.decideFull(prev, cur)
	assert.True(t, full)
	assert.Equal(t, "changed fraction > 80%", reason)
}

func TestDecideFullIntervalBoundaryForcesFull(t *testing.T) {
	o := New(Config{Name: "t", DeltaEnabled: true, FullFrameInterval: 5, ChangeThreshold: 4})
	o.frameCounter = 10
	full, reason := o.decideFull([]byte{1}, []byte{1})
	assert.True(t, full)
	assert.Equal(t, "full_frame_interval boundary", reason)
}

func TestNewDefaultsTargetPort(t *testing.T) {
	o := New(Config{Name: "t"})
	assert.Equal(t, Port, o.cfg.TargetPort)

	o2 := New(Config{Name: "t", TargetPort: 7000})
	assert.Equal(t, 7000, o2.cfg.TargetPort)
}
