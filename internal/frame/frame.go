// Package frame defines the pixel buffer type shared by every stage of the
// playback pipeline: decoders produce it, effects transform it, the
// compositor blends it, and outputs consume it.
package frame

import (
	"fmt"
	"image"
)

// Format identifies the channel layout of a Frame's pixel data.
type Format int

const (
	// RGBA is 4 bytes per pixel, byte order R, G, B, A.
	RGBA Format = iota
)

// BytesPerPixel returns the stride of one pixel for the given format.
func (f Format) BytesPerPixel() int {
	switch f {
	case RGBA:
		return 4
	default:
		return 4
	}
}

// Frame is an immutable-by-convention pixel buffer. Producers never mutate a
// Frame once handed downstream; a stage that needs to change pixels copies
// into a fresh buffer via Clone. A stage that makes no change may return its
// input Frame unmodified — callers must not assume two Frames with the same
// pointer are distinct allocations.
type Frame struct {
	Width, Height int
	Format        Format
	Pix           []byte // len == Width*Height*Format.BytesPerPixel()
}

// New allocates a zeroed (fully transparent black) frame of the given size.
func New(w, h int, format Format) *Frame {
	if w < 0 {
		w = 0
	}
	if h < 0 {
		h = 0
	}
	return &Frame{
		Width:  w,
		Height: h,
		Format: format,
		Pix:    make([]byte, w*h*format.BytesPerPixel()),
	}
}

// Transparent returns a new fully-transparent frame of the given size. Used
// whenever a routing rule resolves to "no source" (out-of-range layer index,
// disabled layer, unknown clip) per spec §4.6 / invariant table.
func Transparent(w, h int) *Frame {
	return New(w, h, RGBA)
}

// Clone returns a deep copy, safe for in-place mutation by the caller.
func (f *Frame) Clone() *Frame {
	if f == nil {
		return nil
	}
	out := &Frame{Width: f.Width, Height: f.Height, Format: f.Format}
	out.Pix = make([]byte, len(f.Pix))
	copy(out.Pix, f.Pix)
	return out
}

// At returns the RGBA bytes for pixel (x, y). ok is false if out of bounds.
func (f *Frame) At(x, y int) (r, g, b, a byte, ok bool) {
	if f == nil || x < 0 || y < 0 || x >= f.Width || y >= f.Height {
		return 0, 0, 0, 0, false
	}
	bpp := f.Format.BytesPerPixel()
	i := (y*f.Width + x) * bpp
	if i+bpp > len(f.Pix) {
		return 0, 0, 0, 0, false
	}
	return f.Pix[i], f.Pix[i+1], f.Pix[i+2], f.Pix[i+3], true
}

// Set writes RGBA bytes for pixel (x, y). Silently ignored if out of bounds.
func (f *Frame) Set(x, y int, r, g, b, a byte) {
	if f == nil || x < 0 || y < 0 || x >= f.Width || y >= f.Height {
		return
	}
	bpp := f.Format.BytesPerPixel()
	i := (y*f.Width + x) * bpp
	if i+bpp > len(f.Pix) {
		return
	}
	f.Pix[i], f.Pix[i+1], f.Pix[i+2], f.Pix[i+3] = r, g, b, a
}

// Fill sets every pixel to a single colour.
func (f *Frame) Fill(r, g, b, a byte) {
	if f == nil {
		return
	}
	for y := 0; y < f.Height; y++ {
		for x := 0; x < f.Width; x++ {
			f.Set(x, y, r, g, b, a)
		}
	}
}

// AsImage views an RGBA frame as a stdlib image.Image without copying pixel
// data — used to hand frames to golang.org/x/image/draw for rotation/scaling.
func (f *Frame) AsImage() *image.RGBA {
	return &image.RGBA{
		Pix:    f.Pix,
		Stride: f.Width * f.Format.BytesPerPixel(),
		Rect:   image.Rect(0, 0, f.Width, f.Height),
	}
}

// FromImage wraps a stdlib *image.RGBA as a Frame, copying its pixels so
// the result owns independent storage.
func FromImage(img *image.RGBA) *Frame {
	out := New(img.Rect.Dx(), img.Rect.Dy(), RGBA)
	if img.Stride == out.Width*4 {
		copy(out.Pix, img.Pix)
		return out
	}
	for y := 0; y < out.Height; y++ {
		srcOff := y * img.Stride
		dstOff := y * out.Width * 4
		copy(out.Pix[dstOff:dstOff+out.Width*4], img.Pix[srcOff:srcOff+out.Width*4])
	}
	return out
}

func (f *Frame) String() string {
	if f == nil {
		return "frame<nil>"
	}
	return fmt.Sprintf("frame<%dx%d fmt=%d>", f.Width, f.Height, f.Format)
}
