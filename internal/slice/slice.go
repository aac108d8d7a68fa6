// Package slice implements SliceManager and the GetSlice extraction
// algorithm from spec §4.5: bounding-box crop, polygon/circle alpha
// masking, rotation with bilinear resampling, soft-edge blur, and an
// optional user mask — all deterministic for identical inputs.
package slice

import (
	"image"
	"math"
	"sync"

	"golang.org/x/image/draw"
	"golang.org/x/image/math/f64"

	"github.com/lumencast/engine/internal/engineerr"
	"github.com/lumencast/engine/internal/frame"
)

// Shape is a slice's geometric kind.
type Shape int

const (
	ShapeRect Shape = iota
	ShapePolygon
	ShapeCircle
)

// FullID is the slice id that always exists and cannot be deleted (spec
// §3 invariant: "slice_id = full always exists and cannot be deleted").
const FullID = "full"

// Slice is one geometric extraction definition.
type Slice struct {
	ID       string
	Shape    Shape
	Rect     image.Rectangle // bounding box for rect/polygon/circle alike
	Polygon  []image.Point   // only meaningful when Shape == ShapePolygon
	Center   image.Point     // only meaningful when Shape == ShapeCircle
	Radius   int             // only meaningful when Shape == ShapeCircle
	Rotation float64         // degrees, about the slice's centre
	SoftEdge float64         // Gaussian blur radius applied to alpha only
	Mask     *frame.Frame    // optional user mask; alpha channel is multiplied in
}

// Manager owns slice definitions. A slice referenced by an enabled output
// cannot be deleted — Delete takes a predicate the caller supplies (the
// player/output layer knows which slices are in use) rather than Manager
// reaching into OutputManager itself. mu guards slices the same way
// clip.Registry and output.Manager guard their own maps (spec §5: control
// plane mutations and player-tick reads happen from different goroutines).
type Manager struct {
	mu     sync.RWMutex
	slices map[string]*Slice
}

// NewManager creates a Manager pre-populated with the mandatory "full" slice
// (shape rect, identity bounding box is resolved per-frame in GetSlice since
// frame size can vary by source).
func NewManager() *Manager {
	return &Manager{slices: map[string]*Slice{
		FullID: {ID: FullID, Shape: ShapeRect},
	}}
}

// Register adds or replaces a slice definition. Replacing "full" with
// anything other than its identity shape is rejected.
func (m *Manager) Register(s *Slice) error {
	if s.ID == FullID && s.Shape != ShapeRect {
		return engineerr.New(engineerr.BadInput, "Register", "full slice must remain an identity rect")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.slices[s.ID] = s
	return nil
}

// Delete removes a slice. inUse reports whether some enabled output still
// references sliceID; if so the deletion fails with InUse. Deleting "full"
// always fails with InUse regardless of inUse's answer.
func (m *Manager) Delete(sliceID string, inUse func(string) bool) error {
	if sliceID == FullID {
		return engineerr.New(engineerr.InUse, "Delete", "the full slice cannot be deleted")
	}
	if inUse != nil && inUse(sliceID) {
		return engineerr.New(engineerr.InUse, "Delete", "slice "+sliceID+" is referenced by an enabled output")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.slices[sliceID]; !ok {
		return engineerr.New(engineerr.NotFound, "Delete", "slice "+sliceID+" not found")
	}
	delete(m.slices, sliceID)
	return nil
}

// Get returns a slice definition.
func (m *Manager) Get(sliceID string) (*Slice, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.slices[sliceID]
	return s, ok
}

// Names lists every currently registered slice id.
func (m *Manager) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.slices))
	for id := range m.slices {
		out = append(out, id)
	}
	return out
}

// GetSlice extracts the region defined by sliceID out of f, per spec §4.5's
// seven-step algorithm.
func (m *Manager) GetSlice(sliceID string, f *frame.Frame) (*frame.Frame, error) {
	if sliceID == FullID {
		return f.Clone(), nil
	}
	m.mu.RLock()
	s, ok := m.slices[sliceID]
	m.mu.RUnlock()
	if !ok {
		return nil, engineerr.New(engineerr.NotFound, "GetSlice", "slice "+sliceID+" not found")
	}

	bounds := clampRect(s.Rect, f.Width, f.Height)
	if bounds.Dx() <= 0 || bounds.Dy() <= 0 {
		return frame.Transparent(1, 1), nil
	}
	out := extractRect(f, bounds)

	switch s.Shape {
	case ShapePolygon:
		applyPolygonMask(out, s.Polygon, bounds.Min)
	case ShapeCircle:
		applyCircleMask(out, s.Center, s.Radius, bounds.Min)
	}

	if s.Rotation != 0 {
		out = rotate(out, s.Rotation)
	}
	if s.SoftEdge > 0 {
		gaussianBlurAlpha(out, s.SoftEdge)
	}
	if s.Mask != nil {
		applyUserMask(out, s.Mask)
	}
	return out, nil
}

func clampRect(r image.Rectangle, w, h int) image.Rectangle {
	frameBounds := image.Rect(0, 0, w, h)
	return r.Intersect(frameBounds)
}

func extractRect(f *frame.Frame, r image.Rectangle) *frame.Frame {
	out := frame.New(r.Dx(), r.Dy(), f.Format)
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			red, g, b, a, _ := f.At(x, y)
			out.Set(x-r.Min.X, y-r.Min.Y, red, g, b, a)
		}
	}
	return out
}

func applyPolygonMask(f *frame.Frame, poly []image.Point, origin image.Point) {
	if len(poly) < 3 {
		return
	}
	local := make([]image.Point, len(poly))
	for i, p := range poly {
		local[i] = p.Sub(origin)
	}
	for y := 0; y < f.Height; y++ {
		for x := 0; x < f.Width; x++ {
			if !pointInPolygon(local, x, y) {
				r, g, b, _, _ := f.At(x, y)
				f.Set(x, y, r, g, b, 0)
			}
		}
	}
}

// pointInPolygon uses the standard even-odd ray casting test.
func pointInPolygon(poly []image.Point, x, y int) bool {
	inside := false
	n := len(poly)
	for i, j := 0, n-1; i < n; j, i = i, i+1 {
		xi, yi := float64(poly[i].X), float64(poly[i].Y)
		xj, yj := float64(poly[j].X), float64(poly[j].Y)
		if (yi > float64(y)) != (yj > float64(y)) &&
			float64(x) < (xj-xi)*(float64(y)-yi)/(yj-yi)+xi {
			inside = !inside
		}
	}
	return inside
}

func applyCircleMask(f *frame.Frame, center image.Point, radius int, origin image.Point) {
	if radius <= 0 {
		return
	}
	cx, cy := center.X-origin.X, center.Y-origin.Y
	r2 := float64(radius) * float64(radius)
	for y := 0; y < f.Height; y++ {
		for x := 0; x < f.Width; x++ {
			dx, dy := float64(x-cx), float64(y-cy)
			if dx*dx+dy*dy > r2 {
				r, g, b, _, _ := f.At(x, y)
				f.Set(x, y, r, g, b, 0)
			}
		}
	}
}

// rotate rotates f about its centre by degrees, cropping to the original
// bounding box (spec §4.5 step 5 leaves crop-vs-expand to the implementer;
// this package crops, to keep every slice's output size fixed and
// predictable for downstream outputs that expect a stable resolution — see
// DESIGN.md). Resampling is bilinear via golang.org/x/image/draw.
func rotate(f *frame.Frame, degrees float64) *frame.Frame {
	src := f.AsImage()
	out := image.NewRGBA(image.Rect(0, 0, f.Width, f.Height))

	theta := degrees * math.Pi / 180
	cos, sin := math.Cos(theta), math.Sin(theta)
	cx, cy := float64(f.Width)/2, float64(f.Height)/2

	// Source-to-destination transform (draw's s2d), rotated about centre.
	s2d := f64.Aff3{
		cos, -sin, cx - cos*cx + sin*cy,
		sin, cos, cy - sin*cx - cos*cy,
	}
	draw.BiLinear.Transform(out, s2d, src, src.Bounds(), draw.Src, nil)
	return frame.FromImage(out)
}

// gaussianBlurAlpha applies a separable Gaussian blur of the given radius
// to the alpha channel only (spec §4.5 step 6), leaving colour untouched.
func gaussianBlurAlpha(f *frame.Frame, radius float64) {
	kernel := gaussianKernel(radius)
	half := len(kernel) / 2

	alpha := make([]float64, f.Width*f.Height)
	for y := 0; y < f.Height; y++ {
		for x := 0; x < f.Width; x++ {
			_, _, _, a, _ := f.At(x, y)
			alpha[y*f.Width+x] = float64(a)
		}
	}

	horiz := make([]float64, len(alpha))
	for y := 0; y < f.Height; y++ {
		for x := 0; x < f.Width; x++ {
			var sum float64
			for k, wgt := range kernel {
				sx := x + k - half
				if sx < 0 {
					sx = 0
				}
				if sx >= f.Width {
					sx = f.Width - 1
				}
				sum += alpha[y*f.Width+sx] * wgt
			}
			horiz[y*f.Width+x] = sum
		}
	}

	for y := 0; y < f.Height; y++ {
		for x := 0; x < f.Width; x++ {
			var sum float64
			for k, wgt := range kernel {
				sy := y + k - half
				if sy < 0 {
					sy = 0
				}
				if sy >= f.Height {
					sy = f.Height - 1
				}
				sum += horiz[sy*f.Width+x] * wgt
			}
			r, g, b, _, _ := f.At(x, y)
			f.Set(x, y, r, g, b, byte(clampF(sum)))
		}
	}
}

func gaussianKernel(radius float64) []float64 {
	size := int(radius*3)*2 + 1
	if size < 3 {
		size = 3
	}
	kernel := make([]float64, size)
	sigma := radius
	if sigma <= 0 {
		sigma = 0.5
	}
	half := size / 2
	var total float64
	for i := range kernel {
		x := float64(i - half)
		v := math.Exp(-(x * x) / (2 * sigma * sigma))
		kernel[i] = v
		total += v
	}
	for i := range kernel {
		kernel[i] /= total
	}
	return kernel
}

func applyUserMask(f *frame.Frame, mask *frame.Frame) {
	for y := 0; y < f.Height; y++ {
		for x := 0; x < f.Width; x++ {
			_, _, _, ma, ok := mask.At(x, y)
			if !ok {
				ma = 0
			}
			r, g, b, a, _ := f.At(x, y)
			f.Set(x, y, r, g, b, byte(float64(a)*float64(ma)/255))
		}
	}
}

func clampF(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return v
}
