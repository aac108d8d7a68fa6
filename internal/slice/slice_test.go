package slice

import (
	"image"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumencast/engine/internal/frame"
)

func solidFrame(w, h int, r, g, b, a byte) *frame.Frame {
	f := frame.New(w, h, frame.RGBA)
	f.Fill(r, g, b, a)
	return f
}

func TestFullSliceReturnsClone(t *testing.T) {
	m := NewManager()
	src := solidFrame(4, 4, 1, 2, 3, 255)

	out, err := m.GetSlice(FullID, src)
	require.NoError(t, err)
	assert.Equal(t, src.Width, out.Width)
	r, g, b, a, _ := out.At(0, 0)
	assert.Equal(t, []byte{1, 2, 3, 255}, []byte{r, g, b, a})
}

func TestRegisterRejectsNonRectFullOverride(t *testing.T) {
	m := NewManager()
	err := m.Register(&Slice{ID: FullID, Shape: ShapeCircle})
	assert.Error(t, err)
}

func TestDeleteFullAlwaysFails(t *testing.T) {
	m := NewManager()
	err := m.Delete(FullID, func(string) bool { return false })
	assert.Error(t, err)
}

func TestDeleteInUseSliceFails(t *testing.T) {
	m := NewManager()
	require.NoError(t, m.Register(&Slice{ID: "s1", Shape: ShapeRect, Rect: image.Rect(0, 0, 2, 2)}))

	err := m.Delete("s1", func(string) bool { return true })
	assert.Error(t, err)
	_, ok := m.Get("s1")
	assert.True(t, ok)
}

func TestDeleteUnusedSliceSucceeds(t *testing.T) {
	m := NewManager()
	require.NoError(t, m.Register(&Slice{ID: "s1", Shape: ShapeRect, Rect: image.Rect(0, 0, 2, 2)}))

	require.NoError(t, m.Delete("s1", func(string) bool { return false }))
	_, ok := m.Get("s1")
	assert.False(t, ok)
}

func TestGetSliceCropsToBoundingBox(t *testing.T) {
	m := NewManager()
	require.NoError(t, m.Register(&Slice{ID: "s1", Shape: ShapeRect, Rect: image.Rect(1, 1, 3, 3)}))
	src := solidFrame(4, 4, 9, 9, 9, 255)

	out, err := m.GetSlice("s1", src)
	require.NoError(t, err)
	assert.Equal(t, 2, out.Width)
	assert.Equal(t, 2, out.Height)
}

func TestGetSliceOutOfBoundsReturnsTinyTransparentFrame(t *testing.T) {
	m := NewManager()
	require.NoError(t, m.Register(&Slice{ID: "s1", Shape: ShapeRect, Rect: image.Rect(100, 100, 200, 200)}))
	src := solidFrame(4, 4, 9, 9, 9, 255)

	out, err := m.GetSlice("s1", src)
	require.NoError(t, err)
	assert.Equal(t, 1, out.Width)
	assert.Equal(t, 1, out.Height)
}

func TestGetSliceCircleMasksOutsideRadius(t *testing.T) {
	m := NewManager()
	require.NoError(t, m.Register(&Slice{
		ID: "s1", Shape: ShapeCircle,
		Rect:   image.Rect(0, 0, 6, 6),
		Center: image.Pt(3, 3), Radius: 1,
	}))
	src := solidFrame(6, 6, 1, 1, 1, 255)

	out, err := m.GetSlice("s1", src)
	require.NoError(t, err)
	_, _, _, aCorner, _ := out.At(0, 0)
	_, _, _, aCenter, _ := out.At(3, 3)
	assert.Equal(t, byte(0), aCorner)
	assert.Equal(t, byte(255), aCenter)
}

func TestGetSliceUnknownIDFails(t *testing.T) {
	m := NewManager()
	_, err := m.GetSlice("missing", solidFrame(2, 2, 0, 0, 0, 255))
	assert.Error(t, err)
}

func TestConcurrentRegisterAndGetSliceDoNotRace(t *testing.T) {
	m := NewManager()
	require.NoError(t, m.Register(&Slice{ID: "s1", Shape: ShapeRect, Rect: image.Rect(0, 0, 2, 2)}))
	src := solidFrame(4, 4, 1, 1, 1, 255)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			_ = m.Register(&Slice{ID: "s1", Shape: ShapeRect, Rect: image.Rect(0, 0, 2, 2)})
		}(i)
		go func() {
			defer wg.Done()
			_, _ = m.GetSlice("s1", src)
		}()
	}
	wg.Wait()
}

func TestGetSliceRotationPreservesFrameSize(t *testing.T) {
	m := NewManager()
	require.NoError(t, m.Register(&Slice{
		ID: "s1", Shape: ShapeRect, Rect: image.Rect(0, 0, 8, 8), Rotation: 45,
	}))
	src := solidFrame(8, 8, 5, 5, 5, 255)

	out, err := m.GetSlice("s1", src)
	require.NoError(t, err)
	assert.Equal(t, 8, out.Width)
	assert.Equal(t, 8, out.Height)
}
