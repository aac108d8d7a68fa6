// Package player implements the tick-driven engine core from spec §2/§5:
// one driver per Player, paced to target_fps, running Transport advance →
// per-layer decode and effect chain → Compositor → OutputManager dispatch
// as a single synchronous logical operation each tick.
package player

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/lumencast/engine/internal/clip"
	"github.com/lumencast/engine/internal/decoder"
	"github.com/lumencast/engine/internal/frame"
	"github.com/lumencast/engine/internal/layer"
	"github.com/lumencast/engine/internal/logging"
	"github.com/lumencast/engine/internal/output"
	"github.com/lumencast/engine/internal/slice"
	"github.com/lumencast/engine/internal/transport"
)

// DecoderResolver maps a clip's opaque SourceRef to a FrameDecoder. The
// image/video decoding itself is an explicit external collaborator (spec
// §1); Player only needs something that hands back frames by index.
type DecoderResolver func(sourceRef string) (decoder.FrameDecoder, error)

// Player is the engine core: one LayerStack composited through one
// Compositor and fanned out to an OutputManager, every tick.
type Player struct {
	Clips   *clip.Registry
	Layers  *layer.Stack
	Slices  *slice.Manager
	Outputs *output.Manager
	Resolve DecoderResolver

	TargetFPS int

	compositor *layer.Compositor

	mu          sync.Mutex
	transports  map[string]*transport.Transport
	decoders    map[string]decoder.FrameDecoder
	currentClip string
	tickCount   uint64
	lastDt      float64
}

// New builds a Player targeting a canvas of width x height.
func New(clips *clip.Registry, layers *layer.Stack, slices *slice.Manager, outputs *output.Manager, resolve DecoderResolver, width, height, targetFPS int) *Player {
	return &Player{
		Clips:      clips,
		Layers:     layers,
		Slices:     slices,
		Outputs:    outputs,
		Resolve:    resolve,
		TargetFPS:  targetFPS,
		compositor: layer.New(width, height),
		transports: make(map[string]*transport.Transport),
		decoders:   make(map[string]decoder.FrameDecoder),
	}
}

// SetCurrentClip sets which clip the "clip:current" output selector
// resolves to (spec §6 grammar) — typically driven by whatever the control
// plane's UI has focused.
func (p *Player) SetCurrentClip(clipID string) {
	p.mu.Lock()
	p.currentClip = clipID
	p.mu.Unlock()
}

// TickCount reports how many ticks have run (introspection/test helper).
func (p *Player) TickCount() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.tickCount
}

// Run drives ticks at TargetFPS (wall-clock) until ctx is cancelled. Each
// tick is one logical operation, never interleaved with its own successor
// (spec §5) — the ticker simply waits for the previous Tick to return
// before the next fires, since both live on this one goroutine.
func (p *Player) Run(ctx context.Context) {
	fps := p.TargetFPS
	if fps <= 0 {
		fps = 60
	}
	interval := time.Second / time.Duration(fps)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			dt := now.Sub(last).Seconds()
			last = now
			p.Tick(dt)
		}
	}
}

// Tick runs exactly one pass of the pipeline.
func (p *Player) Tick(dt float64) {
	fps := p.TargetFPS
	if fps <= 0 {
		fps = 60
	}
	// Transports advance in source frames: dt seconds at fps frames/second.
	dt *= float64(fps)
	p.mu.Lock()
	p.lastDt = dt
	p.mu.Unlock()

	layers := p.Layers.Snapshot()
	lfs := make([]layer.LayerFrame, len(layers))
	perLayer := make([]*frame.Frame, len(layers))

	for i, l := range layers {
		if !l.Enabled {
			continue
		}
		f := p.renderLayer(l, dt)
		perLayer[i] = f
		lfs[i] = layer.LayerFrame{Frame: f, Blend: l.Blend, Opacity: l.Opacity, Enabled: true}
	}

	canvas, layerCache, inclusiveCache := p.compositor.Composite(lfs)

	p.mu.Lock()
	p.tickCount++
	p.mu.Unlock()

	log := logging.Component("player")
	for _, name := range p.Outputs.Names() {
		selector, sliceName, err := p.Outputs.Source(name)
		if err != nil || selector == "" {
			continue
		}
		src := p.resolveSelector(selector, canvas, layerCache, inclusiveCache, perLayer)
		if src == nil {
			continue
		}
		out := src
		if sliceName != "" {
			sliced, err := p.Slices.GetSlice(sliceName, src)
			if err != nil {
				log.Warn("slice extraction failed", "output", name, "slice", sliceName, "error", err)
			} else {
				out = sliced
			}
		}
		if err := p.Outputs.Dispatch(name, out); err != nil {
			log.Warn("dispatch failed", "output", name, "error", err)
		}
	}
}

// renderLayer advances the layer's clip transport, decodes the resulting
// frame, and runs the clip's "layer" effect chain over it.
func (p *Player) renderLayer(l *layer.Layer, dt float64) *frame.Frame {
	c, ok := p.Clips.Get(l.ClipID)
	if !ok {
		return nil
	}
	trim := c.Trim()
	t := p.transportFor(l.ClipID, trim)

	idx, _ := t.Tick(dt)

	dec, err := p.decoderFor(c.SourceRef)
	if err != nil {
		return nil
	}
	if idx < 0 || idx >= dec.Len() {
		return nil
	}
	f, err := dec.Frame(idx)
	if err != nil {
		return nil
	}

	chain := c.Chain("layer")
	return chain.Apply(f)
}

func (p *Player) transportFor(clipID string, trim clip.TrimState) *transport.Transport {
	p.mu.Lock()
	defer p.mu.Unlock()
	t, ok := p.transports[clipID]
	if !ok {
		t = transport.New(nil)
		t.Play()
		p.transports[clipID] = t
	}
	t.Attach(trim)
	return t
}

func (p *Player) decoderFor(sourceRef string) (decoder.FrameDecoder, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if d, ok := p.decoders[sourceRef]; ok {
		return d, nil
	}
	d, err := p.Resolve(sourceRef)
	if err != nil {
		return nil, err
	}
	p.decoders[sourceRef] = d
	return d, nil
}

// resolveSelector implements spec §6's output source grammar:
// canvas | clip:current | clip:<uuid> | layer:<N> | layer:<N>:inclusive
func (p *Player) resolveSelector(selector string, canvas *frame.Frame, layerCache, inclusiveCache, perLayer []*frame.Frame) *frame.Frame {
	switch {
	case selector == "canvas":
		return canvas
	case selector == "clip:current":
		p.mu.Lock()
		id := p.currentClip
		p.mu.Unlock()
		return p.decodeClipDirect(id)
	case strings.HasPrefix(selector, "clip:"):
		return p.decodeClipDirect(strings.TrimPrefix(selector, "clip:"))
	case strings.HasPrefix(selector, "layer:"):
		rest := strings.TrimPrefix(selector, "layer:")
		inclusive := false
		if strings.HasSuffix(rest, ":inclusive") {
			inclusive = true
			rest = strings.TrimSuffix(rest, ":inclusive")
		}
		n, err := strconv.Atoi(rest)
		if err != nil || n < 0 {
			return frame.Transparent(p.compositor.Width, p.compositor.Height)
		}
		if inclusive {
			if n >= len(inclusiveCache) {
				return frame.Transparent(p.compositor.Width, p.compositor.Height)
			}
			return inclusiveCache[n]
		}
		if n >= len(layerCache) {
			return frame.Transparent(p.compositor.Width, p.compositor.Height)
		}
		return layerCache[n]
	default:
		return nil
	}
}

// decodeClipDirect renders a clip's current frame outside the layer stack
// (used by "clip:current"/"clip:<uuid>" output selectors that bypass
// compositing entirely). An unknown clip, or one with no decodable frame,
// yields a transparent canvas-sized frame.
func (p *Player) decodeClipDirect(clipID string) *frame.Frame {
	c, ok := p.Clips.Get(clipID)
	if !ok {
		return frame.Transparent(p.compositor.Width, p.compositor.Height)
	}
	trim := c.Trim()
	t := p.transportFor("direct:"+clipID, trim)
	p.mu.Lock()
	dt := p.lastDt
	p.mu.Unlock()
	idx, _ := t.Tick(dt)
	dec, err := p.decoderFor(c.SourceRef)
	if err != nil || idx < 0 || idx >= dec.Len() {
		return frame.Transparent(p.compositor.Width, p.compositor.Height)
	}
	f, err := dec.Frame(idx)
	if err != nil {
		return frame.Transparent(p.compositor.Width, p.compositor.Height)
	}
	return c.Chain("layer").Apply(f)
}
