package decoder

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestColorBarsLenAndFrameBounds(t *testing.T) {
	g := ColorBars(4, 4, 10)
	assert.Equal(t, 10, g.Len())

	f, err := g.Frame(0)
	require.NoError(t, err)
	assert.Equal(t, 4, f.Width)

	_, err = g.Frame(10)
	assert.Error(t, err)
	_, err = g.Frame(-1)
	assert.Error(t, err)
}

func TestColorBarsIsDeterministic(t *testing.T) {
	g := ColorBars(2, 2, 5)
	a, err := g.Frame(2)
	require.NoError(t, err)
	b, err := g.Frame(2)
	require.NoError(t, err)
	assert.Equal(t, a.Pix, b.Pix)
}

func TestStaticSetEmptyRejectsIndex(t *testing.T) {
	s := NewStaticSet(nil)
	assert.Equal(t, 0, s.Len())
	_, err := s.Frame(0)
	assert.Error(t, err)
}
