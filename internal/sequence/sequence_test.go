package sequence

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumencast/engine/internal/bus"
	"github.com/lumencast/engine/internal/clip"
	"github.com/lumencast/engine/internal/effect"
	"github.com/lumencast/engine/internal/uid"
)

type testFixture struct {
	engine *Engine
	clips  *clip.Registry
	clipID string
	ei     *clip.EffectInstance
}

func newTestFixture(t *testing.T) *testFixture {
	t.Helper()
	uids := uid.New()
	plugins := effect.NewBuiltinRegistry()
	events := bus.New[clip.Event](8)
	clips := clip.NewRegistry(uids, plugins, events)

	c := clips.CreateClip("src", true, 10)
	ei, err := clips.AddEffect(c.ID, "layer", "brightness_contrast", 0)
	require.NoError(t, err)

	return &testFixture{
		engine: New(clips, nil, time.Hour),
		clips:  clips,
		clipID: c.ID,
		ei:     ei,
	}
}

func TestTimelineSequenceInterpolates(t *testing.T) {
	f := newTestFixture(t)
	target := f.ei.Parameters[0] // brightness, range [-1, 1]

	f.engine.Register(&Sequence{
		ID:        "s1",
		Kind:      KindTimeline,
		TargetUID: target.UID,
		Enabled:   true,
		Keyframes: []Keyframe{{T: 0, Value: -1}, {T: 2, Value: 1}},
	})

	f.engine.Tick(1.0) // phase = 1, halfway between -1 and 1 -> 0
	assert.InDelta(t, 0, f.ei.Snapshot()[target.Name], 1e-9)
}

func TestBPMTriangleWave(t *testing.T) {
	assert.Equal(t, 0.0, triangleWave(0))
	assert.InDelta(t, 1.0, triangleWave(0.5), 1e-9)
	assert.InDelta(t, 0.0, triangleWave(1.0), 1e-9)
}

func TestAudioSequenceWithNilFeatureReadsZero(t *testing.T) {
	f := newTestFixture(t)
	target := f.ei.Parameters[0]

	f.engine.Register(&Sequence{ID: "s1", Kind: KindAudio, TargetUID: target.UID, Enabled: true, Feature: "bass"})
	f.engine.Tick(1.0)

	assert.Equal(t, 0.0, f.ei.Snapshot()[target.Name])
}

func TestDisabledSequenceDoesNotWrite(t *testing.T) {
	f := newTestFixture(t)
	target := f.ei.Parameters[0]
	initial := f.ei.Snapshot()[target.Name]

	f.engine.Register(&Sequence{
		ID: "s1", Kind: KindTimeline, TargetUID: target.UID, Enabled: false,
		Keyframes: []Keyframe{{T: 0, Value: -1}, {T: 1, Value: 1}},
	})
	f.engine.Tick(1.0)

	assert.Equal(t, initial, f.ei.Snapshot()[target.Name])
}

func TestRemoveSequenceStopsUpdating(t *testing.T) {
	f := newTestFixture(t)
	target := f.ei.Parameters[0]

	f.engine.Register(&Sequence{
		ID: "s1", Kind: KindTimeline, TargetUID: target.UID, Enabled: true,
		Keyframes: []Keyframe{{T: 0, Value: 1}, {T: 1, Value: 1}},
	})
	f.engine.Remove("s1")
	f.engine.Tick(1.0)

	assert.Equal(t, 0.0, f.ei.Snapshot()[target.Name])
}

func TestTickSkipsTargetThatNoLongerResolves(t *testing.T) {
	f := newTestFixture(t)
	target := f.ei.Parameters[0]

	f.engine.Register(&Sequence{
		ID: "s1", Kind: KindTimeline, TargetUID: target.UID, Enabled: true,
		Keyframes: []Keyframe{{T: 0, Value: 1}, {T: 1, Value: 1}},
	})

	require.NoError(t, f.clips.RemoveEffect(f.clipID, "layer", 0))

	assert.NotPanics(t, func() { f.engine.Tick(1.0) })
}

func TestSubscribeReceivesBatchedUpdate(t *testing.T) {
	f := newTestFixture(t)
	target := f.ei.Parameters[0]
	f.engine = New(f.clips, nil, 10*time.Millisecond)

	sub := f.engine.Subscribe()
	defer sub.Close()

	f.engine.Register(&Sequence{
		ID: "s1", Kind: KindTimeline, TargetUID: target.UID, Enabled: true,
		Keyframes: []Keyframe{{T: 0, Value: 1}, {T: 1, Value: 1}},
	})
	f.engine.Tick(0.5)

	select {
	case batch := <-sub.C():
		assert.Contains(t, batch, target.UID)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for batched update")
	}
}
