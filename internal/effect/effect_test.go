package effect

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumencast/engine/internal/frame"
)

func TestBuiltinRegistryHasExpectedIDs(t *testing.T) {
	r := NewBuiltinRegistry()
	ids := r.IDs()
	for _, want := range []string{"brightness_contrast", "invert", "grayscale", "chroma_key", "mirror"} {
		assert.Contains(t, ids, want)
	}
}

func TestRegistryNewUnknownID(t *testing.T) {
	r := NewRegistry()
	_, ok := r.New("nope")
	assert.False(t, ok)
}

func TestInvertAppliedTwiceIsIdentity(t *testing.T) {
	r := NewBuiltinRegistry()
	p, ok := r.New("invert")
	require.True(t, ok)

	f := frame.New(2, 2, frame.RGBA)
	f.Set(0, 0, 10, 20, 30, 255)

	once, err := p.Apply(f, nil)
	require.NoError(t, err)
	twice, err := p.Apply(once, nil)
	require.NoError(t, err)

	r0, g0, b0, a0, _ := twice.At(0, 0)
	assert.Equal(t, byte(10), r0)
	assert.Equal(t, byte(20), g0)
	assert.Equal(t, byte(30), b0)
	assert.Equal(t, byte(255), a0)
}

func TestChainSkipsDisabledInstances(t *testing.T) {
	r := NewBuiltinRegistry()
	p, _ := r.New("invert")
	c := &Chain{Instances: []Instance{{Plugin: p, Enabled: false}}}

	f := frame.New(1, 1, frame.RGBA)
	f.Set(0, 0, 10, 20, 30, 255)

	out := c.Apply(f)
	r0, _, _, _, _ := out.At(0, 0)
	assert.Equal(t, byte(10), r0)
	assert.Equal(t, 0, c.ErrorCount())
}

type panickingPlugin struct{}

func (panickingPlugin) ID() string             { return "panics" }
func (panickingPlugin) ParamSpecs() []ParamSpec { return nil }
func (panickingPlugin) Apply(in *frame.Frame, _ map[string]float64) (*frame.Frame, error) {
	panic("boom")
}

func TestChainIsolatesPanickingPlugin(t *testing.T) {
	c := &Chain{Instances: []Instance{{Plugin: panickingPlugin{}, Enabled: true}}}
	f := frame.New(1, 1, frame.RGBA)
	f.Set(0, 0, 1, 2, 3, 255)

	out := c.Apply(f)
	r0, g0, b0, _, _ := out.At(0, 0)
	assert.Equal(t, byte(1), r0)
	assert.Equal(t, byte(2), g0)
	assert.Equal(t, byte(3), b0)
	assert.Equal(t, 1, c.ErrorCount())
}

type erroringPlugin struct{}

func (erroringPlugin) ID() string             { return "errors" }
func (erroringPlugin) ParamSpecs() []ParamSpec { return nil }
func (erroringPlugin) Apply(in *frame.Frame, _ map[string]float64) (*frame.Frame, error) {
	return nil, errors.New("boom")
}

func TestChainIsolatesErroringPlugin(t *testing.T) {
	c := &Chain{Instances: []Instance{{Plugin: erroringPlugin{}, Enabled: true}}}
	f := frame.New(1, 1, frame.RGBA)
	out := c.Apply(f)
	assert.Same(t, f, out)
	assert.Equal(t, 1, c.ErrorCount())
}
