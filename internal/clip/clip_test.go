package clip

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumencast/engine/internal/bus"
	"github.com/lumencast/engine/internal/effect"
	"github.com/lumencast/engine/internal/uid"
)

func newTestRegistry(t *testing.T) (*Registry, *uid.Registry, *bus.Bus[Event]) {
	t.Helper()
	uids := uid.New()
	plugins := effect.NewBuiltinRegistry()
	events := bus.New[Event](8)
	return NewRegistry(uids, plugins, events), uids, events
}

func TestCreateClipDefaultsTrimToFullDuration(t *testing.T) {
	r, _, _ := newTestRegistry(t)
	c := r.CreateClip("generator:colorbars", true, 100)

	trim := c.Trim()
	assert.Equal(t, 0, trim.In)
	assert.Equal(t, 100, trim.Out)
	assert.Equal(t, 1.0, trim.Speed)
	assert.Equal(t, ModeRepeat, trim.Mode)
}

func TestSetTrimRejectsOutOfRangeWindow(t *testing.T) {
	r, _, _ := newTestRegistry(t)
	c := r.CreateClip("src", true, 10)

	assert.Error(t, r.SetTrim(c.ID, TrimState{In: 5, Out: 20, Speed: 1}))
	assert.Error(t, r.SetTrim(c.ID, TrimState{In: 5, Out: 2, Speed: 1}))
	assert.Error(t, r.SetTrim(c.ID, TrimState{In: 0, Out: 5, Speed: 0}))
	assert.Error(t, r.SetTrim(c.ID, TrimState{In: 0, Out: 5, Speed: 1, LoopCount: -1}))
}

func TestSetTrimAppliesLoopCount(t *testing.T) {
	r, _, _ := newTestRegistry(t)
	c := r.CreateClip("src", true, 10)

	require.NoError(t, r.SetTrim(c.ID, TrimState{In: 0, Out: 5, Speed: 1, Mode: ModeRepeat, LoopCount: 3}))
	assert.Equal(t, 3, c.Trim().LoopCount)
}

func TestSetTrimAppliesValidWindow(t *testing.T) {
	r, _, _ := newTestRegistry(t)
	c := r.CreateClip("src", true, 10)

	require.NoError(t, r.SetTrim(c.ID, TrimState{In: 1, Out: 5, Speed: 2, Mode: ModePingPong}))
	trim := c.Trim()
	assert.Equal(t, 1, trim.In)
	assert.Equal(t, 5, trim.Out)
	assert.Equal(t, 2.0, trim.Speed)
	assert.Equal(t, ModePingPong, trim.Mode)
}

func TestAddEffectRegistersUIDsAndPublishesEvent(t *testing.T) {
	r, uids, events := newTestRegistry(t)
	sub := events.Subscribe()
	defer sub.Close()

	c := r.CreateClip("src", true, 10)
	ei, err := r.AddEffect(c.ID, "layer", "brightness_contrast", 0)
	require.NoError(t, err)
	require.Len(t, ei.Parameters, 2)

	for _, p := range ei.Parameters {
		_, ok := uids.Resolve(p.UID)
		assert.True(t, ok)
	}

	select {
	case evt := <-sub.C():
		_, ok := evt.(EffectsChanged)
		assert.True(t, ok)
	default:
		t.Fatal("expected EffectsChanged event")
	}
}

func TestAddEffectUnknownPluginFailsTransactionally(t *testing.T) {
	r, _, _ := newTestRegistry(t)
	c := r.CreateClip("src", true, 10)

	_, err := r.AddEffect(c.ID, "layer", "nonexistent", 0)
	assert.Error(t, err)
	assert.Len(t, c.Chain("layer").Instances, 0)
}

func TestRemoveEffectInvalidatesUIDs(t *testing.T) {
	r, uids, _ := newTestRegistry(t)
	c := r.CreateClip("src", true, 10)
	ei, err := r.AddEffect(c.ID, "layer", "invert", 0)
	require.NoError(t, err)
	require.NoError(t, r.RemoveEffect(c.ID, "layer", 0))

	for _, p := range ei.Parameters {
		_, ok := uids.Resolve(p.UID)
		assert.False(t, ok)
	}
	assert.Len(t, c.Chain("layer").Instances, 0)
}

func TestSetParameterClampsToRange(t *testing.T) {
	r, _, _ := newTestRegistry(t)
	c := r.CreateClip("src", true, 10)
	_, err := r.AddEffect(c.ID, "layer", "brightness_contrast", 0)
	require.NoError(t, err)

	require.NoError(t, r.SetParameter(c.ID, "layer", 0, "brightness", 5))
	insts := c.Chain("layer").Instances
	require.Len(t, insts, 1)
	assert.Equal(t, 1.0, insts[0].Params["brightness"])
}

func TestResolveAndSetRoutesThroughUID(t *testing.T) {
	r, _, _ := newTestRegistry(t)
	c := r.CreateClip("src", true, 10)
	ei, err := r.AddEffect(c.ID, "layer", "brightness_contrast", 0)
	require.NoError(t, err)

	target := ei.Parameters[0]
	require.NoError(t, r.ResolveAndSet(target.UID, 0.5))

	insts := c.Chain("layer").Instances
	assert.Equal(t, 0.5, insts[0].Params[target.Name])
}

func TestSnapshotRestoreRoundTrip(t *testing.T) {
	r, uids, _ := newTestRegistry(t)
	c := r.CreateClip("generator:colorbars", true, 50)
	_, err := r.AddEffect(c.ID, "layer", "grayscale", 0)
	require.NoError(t, err)

	snaps := r.Snapshot()
	require.Len(t, snaps, 1)

	r2, _, _ := newTestRegistry(t)
	errs := r2.Restore(snaps)
	assert.Empty(t, errs)
	uids.Rebuild(r2)

	restored, ok := r2.Get(c.ID)
	require.True(t, ok)
	assert.Equal(t, c.SourceRef, restored.SourceRef)
	assert.Len(t, restored.Chain("layer").Instances, 1)
}

func TestRestoreDropsUnknownPlugin(t *testing.T) {
	r, _, _ := newTestRegistry(t)
	snaps := []ClipSnapshot{{
		ID:             "c1",
		DurationFrames: 10,
		Chains: map[string][]EffectSnapshot{
			"layer": {{PluginID: "does-not-exist", Enabled: true}},
		},
	}}
	errs := r.Restore(snaps)
	assert.Len(t, errs, 1)
	c, ok := r.Get("c1")
	require.True(t, ok)
	assert.Len(t, c.Chain("layer").Instances, 0)
}
