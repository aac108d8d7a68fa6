package player

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumencast/engine/internal/bus"
	"github.com/lumencast/engine/internal/clip"
	"github.com/lumencast/engine/internal/decoder"
	"github.com/lumencast/engine/internal/effect"
	"github.com/lumencast/engine/internal/frame"
	"github.com/lumencast/engine/internal/layer"
	"github.com/lumencast/engine/internal/output"
	"github.com/lumencast/engine/internal/slice"
	"github.com/lumencast/engine/internal/uid"
)

type fakeOutput struct {
	received []*frame.Frame
}

func (f *fakeOutput) Initialise(ctx context.Context) error { return nil }
func (f *fakeOutput) Send(fr *frame.Frame) error {
	f.received = append(f.received, fr)
	return nil
}
func (f *fakeOutput) Stats() output.Stats { return output.Stats{} }
func (f *fakeOutput) Shutdown() error     { return nil }

func newTestPlayer(t *testing.T) (*Player, *clip.Registry, *fakeOutput) {
	t.Helper()
	uids := uid.New()
	plugins := effect.NewBuiltinRegistry()
	events := bus.New[clip.Event](8)
	clips := clip.NewRegistry(uids, plugins, events)
	layers := layer.NewStack()
	slices := slice.NewManager()
	outputs := output.NewManager(4)

	resolve := func(sourceRef string) (decoder.FrameDecoder, error) {
		return decoder.ColorBars(8, 8, 10), nil
	}
	p := New(clips, layers, slices, outputs, resolve, 8, 8, 60)

	fo := &fakeOutput{}
	require.NoError(t, outputs.Register(context.Background(), "test", fo, 0))
	require.NoError(t, outputs.SetSource("test", "canvas"))
	return p, clips, fo
}

func TestTickDispatchesCanvasToOutput(t *testing.T) {
	p, clips, fo := newTestPlayer(t)
	c := clips.CreateClip("bars", true, 10)
	p.Layers.Add(&layer.Layer{ClipID: c.ID, Blend: layer.BlendNormal, Opacity: 1, Enabled: true})

	p.Tick(1.0 / 60)

	require.Len(t, fo.received, 1)
	assert.Equal(t, 8, fo.received[0].Width)
}

func TestTickSkipsDisabledLayers(t *testing.T) {
	p, clips, fo := newTestPlayer(t)
	c := clips.CreateClip("bars", true, 10)
	p.Layers.Add(&layer.Layer{ClipID: c.ID, Blend: layer.BlendNormal, Opacity: 1, Enabled: false})

	p.Tick(1.0 / 60)

	require.Len(t, fo.received, 1)
	// A fully disabled stack composites to a transparent canvas; every pixel
	// alpha should be zero.
	_, _, _, a, ok := fo.received[0].At(0, 0)
	require.True(t, ok)
	assert.Equal(t, byte(0), a)
}

func TestLayerSelectorResolvesSoloFrame(t *testing.T) {
	p, clips, fo := newTestPlayer(t)
	require.NoError(t, p.Outputs.SetSource("test", "layer:0"))
	c := clips.CreateClip("bars", true, 10)
	p.Layers.Add(&layer.Layer{ClipID: c.ID, Blend: layer.BlendNormal, Opacity: 1, Enabled: true})

	p.Tick(1.0 / 60)
	require.Len(t, fo.received, 1)
}

func TestOutOfRangeLayerSelectorDispatchesTransparentFrame(t *testing.T) {
	p, clips, fo := newTestPlayer(t)
	require.NoError(t, p.Outputs.SetSource("test", "layer:5"))
	c := clips.CreateClip("bars", true, 10)
	p.Layers.Add(&layer.Layer{ClipID: c.ID, Blend: layer.BlendNormal, Opacity: 1, Enabled: true})

	p.Tick(1.0 / 60)

	require.Len(t, fo.received, 1)
	_, _, _, a, ok := fo.received[0].At(0, 0)
	require.True(t, ok)
	assert.Equal(t, byte(0), a)
}

func TestNegativeLayerSelectorDispatchesTransparentFrame(t *testing.T) {
	p, clips, fo := newTestPlayer(t)
	require.NoError(t, p.Outputs.SetSource("test", "layer:-1"))
	c := clips.CreateClip("bars", true, 10)
	p.Layers.Add(&layer.Layer{ClipID: c.ID, Blend: layer.BlendNormal, Opacity: 1, Enabled: true})

	p.Tick(1.0 / 60)

	require.Len(t, fo.received, 1)
	_, _, _, a, ok := fo.received[0].At(0, 0)
	require.True(t, ok)
	assert.Equal(t, byte(0), a)
}

func TestRunStopsOnContextCancel(t *testing.T) {
	p, _, _ := newTestPlayer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	p.Run(ctx)
	assert.GreaterOrEqual(t, p.TickCount(), uint64(1))
}
