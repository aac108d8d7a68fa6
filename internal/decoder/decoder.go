// Package decoder defines the FrameDecoder capability spec §1 deliberately
// leaves unimplemented: "Image/video decoding is consumed through a
// FrameDecoder capability — its implementation is not specified." This
// package provides the interface plus two implementations that exercise it
// without pulling in a real codec: a procedural generator (useful for
// generator-kind clips and tests) and StaticSet, which serves a pre-built
// in-memory slice of frames (useful for fixtures).
package decoder

import (
	"fmt"
	"math"

	"github.com/lumencast/engine/internal/engineerr"
	"github.com/lumencast/engine/internal/frame"
)

// FrameDecoder is the capability every clip source must provide: how many
// frames it has, and random access to any one of them. Len is allowed to be
// expensive only once — callers are expected to cache it.
type FrameDecoder interface {
	Len() int
	Frame(i int) (*frame.Frame, error)
	Close() error
}

// Generator is a procedural FrameDecoder: Fn computes one frame given its
// index, width and height. This backs generator-kind clips (spec's "source
// that is not a decoded file") — e.g. test colour bars, a clock, a solid
// fill — without any decoding at all.
type Generator struct {
	Width, Height int
	Frames        int
	Fn            func(i, w, h int) *frame.Frame
}

func (g *Generator) Len() int { return g.Frames }

func (g *Generator) Frame(i int) (*frame.Frame, error) {
	if i < 0 || i >= g.Frames {
		return nil, engineerr.New(engineerr.BadInput, "Generator.Frame", fmt.Sprintf("index %d out of range [0,%d)", i, g.Frames))
	}
	return g.Fn(i, g.Width, g.Height), nil
}

func (g *Generator) Close() error { return nil }

// ColorBars returns a Generator that cycles a hue sweep across the frame
// count — a deterministic, codec-free stand-in clips can point at in tests
// and demos.
func ColorBars(w, h, frames int) *Generator {
	return &Generator{
		Width: w, Height: h, Frames: frames,
		Fn: func(i, w, h int) *frame.Frame {
			hue := float64(i) / float64(maxInt(frames, 1))
			r, g, b := hsvToRGB(hue, 1, 1)
			f := frame.New(w, h, frame.RGBA)
			f.Fill(r, g, b, 255)
			return f
		},
	}
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func hsvToRGB(h, s, v float64) (byte, byte, byte) {
	i := math.Floor(h * 6)
	f := h*6 - i
	p := v * (1 - s)
	q := v * (1 - f*s)
	t := v * (1 - (1-f)*s)
	var r, g, b float64
	switch int(i) % 6 {
	case 0:
		r, g, b = v, t, p
	case 1:
		r, g, b = q, v, p
	case 2:
		r, g, b = p, v, t
	case 3:
		r, g, b = p, q, v
	case 4:
		r, g, b = t, p, v
	case 5:
		r, g, b = v, p, q
	}
	return byte(r * 255), byte(g * 255), byte(b * 255)
}

// StaticSet is a FrameDecoder backed by a pre-built slice of frames, the
// simplest possible stand-in for "something decoded an image/video
// externally and handed us frames" — used by tests and by any future real
// decoder that wants to decode eagerly rather than lazily.
type StaticSet struct {
	frames []*frame.Frame
}

// NewStaticSet wraps an already-decoded slice of frames.
func NewStaticSet(frames []*frame.Frame) *StaticSet {
	return &StaticSet{frames: frames}
}

func (s *StaticSet) Len() int { return len(s.frames) }

func (s *StaticSet) Frame(i int) (*frame.Frame, error) {
	if i < 0 || i >= len(s.frames) {
		return nil, engineerr.New(engineerr.BadInput, "StaticSet.Frame", fmt.Sprintf("index %d out of range [0,%d)", i, len(s.frames)))
	}
	return s.frames[i], nil
}

func (s *StaticSet) Close() error { return nil }
