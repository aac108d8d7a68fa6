// Package display adapts IntuitionAmiga-IntuitionEngine's
// video_backend_ebiten.go into an output.Output: a resizable window that
// shows the canvas or a source selector's frame in real time. The keyboard
// input / clipboard-paste handling in the teacher's backend was specific to
// feeding a text-mode CPU console and has no analogue in a frame router, so
// it is dropped rather than adapted (see DESIGN.md) — everything else
// (window lifecycle, frame buffer swap, vsync signalling, fullscreen
// toggle) carries over.
package display

import (
	"context"
	"image"
	"sync"
	"sync/atomic"

	"github.com/hajimehoshi/ebiten/v2"
	"golang.org/x/image/draw"

	"github.com/lumencast/engine/internal/engineerr"
	"github.com/lumencast/engine/internal/frame"
	"github.com/lumencast/engine/internal/output"
)

// Config mirrors the teacher's DisplayConfig, trimmed to what a routing
// output actually needs (no PixelFormat selector: the pipeline is RGBA
// end-to-end).
type Config struct {
	Width, Height int
	Scale         int
	Fullscreen    bool
	Title         string
}

func clampScale(s int) int {
	if s < 1 {
		return 1
	}
	if s > 4 {
		return 4
	}
	return s
}

// Output is an ebiten-backed window output.
type Output struct {
	cfg Config

	mu          sync.RWMutex
	frameBuffer []byte
	window      *ebiten.Image

	running    atomic.Bool
	frameCount atomic.Uint64
	dropped    atomic.Uint64
	vsyncChan  chan struct{}
}

// New constructs a display output; call Initialise to open the window.
func New(cfg Config) *Output {
	if cfg.Width <= 0 {
		cfg.Width = 640
	}
	if cfg.Height <= 0 {
		cfg.Height = 480
	}
	cfg.Scale = clampScale(cfg.Scale)
	if cfg.Title == "" {
		cfg.Title = "lumencast"
	}
	return &Output{
		cfg:         cfg,
		frameBuffer: make([]byte, cfg.Width*cfg.Height*4),
		vsyncChan:   make(chan struct{}, 1),
	}
}

// Initialise opens the window and starts ebiten's run loop in the
// background, blocking until the first Draw call confirms it's ready —
// exactly the handshake video_backend_ebiten.go's Start used.
func (o *Output) Initialise(ctx context.Context) error {
	if o.running.Load() {
		return nil
	}
	o.running.Store(true)

	ebiten.SetWindowSize(o.cfg.Width*o.cfg.Scale, o.cfg.Height*o.cfg.Scale)
	ebiten.SetWindowTitle(o.cfg.Title)
	ebiten.SetWindowResizable(true)
	ebiten.SetRunnableOnUnfocused(true)
	ebiten.SetVsyncEnabled(true)
	if o.cfg.Fullscreen {
		ebiten.SetFullscreen(true)
	}

	go func() {
		_ = ebiten.RunGame(o)
	}()

	select {
	case <-o.vsyncChan:
	case <-ctx.Done():
		return engineerr.Wrap(engineerr.InitFailed, "Initialise", "display window", ctx.Err())
	}
	return nil
}

// Send copies a new frame into the buffer ebiten's Draw callback reads,
// first scaling it (bilinear) to the configured Width x Height when its size
// differs.
func (o *Output) Send(f *frame.Frame) error {
	if !o.running.Load() {
		return engineerr.New(engineerr.Transient, "Send", "display output not running")
	}
	if f.Width != o.cfg.Width || f.Height != o.cfg.Height {
		src := f.AsImage()
		dst := image.NewRGBA(image.Rect(0, 0, o.cfg.Width, o.cfg.Height))
		draw.BiLinear.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)
		f = frame.FromImage(dst)
	}
	o.mu.Lock()
	if len(o.frameBuffer) != len(f.Pix) {
		o.frameBuffer = make([]byte, len(f.Pix))
	}
	copy(o.frameBuffer, f.Pix)
	o.mu.Unlock()
	return nil
}

// Stats reports basic frame accounting; QueueDepth is filled in by
// output.Manager.
func (o *Output) Stats() output.Stats {
	return output.Stats{
		FramesSent:    o.frameCount.Load(),
		FramesDropped: o.dropped.Load(),
	}
}

// Shutdown stops the run loop. ebiten has no clean programmatic window
// close outside its own event loop, so this just marks the output stopped;
// Update's Termination return closes the actual window on the next tick.
func (o *Output) Shutdown() error {
	o.running.Store(false)
	return nil
}

// Update implements ebiten.Game; it only watches for window-close/stop.
func (o *Output) Update() error {
	if ebiten.IsWindowBeingClosed() || !o.running.Load() {
		return ebiten.Termination
	}
	return nil
}

// Draw implements ebiten.Game: blit the latest frame buffer to the screen.
func (o *Output) Draw(screen *ebiten.Image) {
	o.mu.Lock()
	if o.window == nil {
		o.window = ebiten.NewImage(o.cfg.Width, o.cfg.Height)
	}
	o.window.WritePixels(o.frameBuffer)
	o.mu.Unlock()

	screen.DrawImage(o.window, nil)
	o.frameCount.Add(1)
	select {
	case o.vsyncChan <- struct{}{}:
	default:
	}
}

// Layout implements ebiten.Game.
func (o *Output) Layout(_, _ int) (int, int) {
	return o.cfg.Width, o.cfg.Height
}

// Virtual is a no-op output — the headless analogue of the teacher's
// HeadlessVideoOutput — useful for tests and for outputs that exist only to
// be observed through Stats (e.g. a dry-run target).
type Virtual struct {
	frameCount atomic.Uint64
	running    atomic.Bool
}

func NewVirtual() *Virtual { return &Virtual{} }

func (v *Virtual) Initialise(context.Context) error { v.running.Store(true); return nil }

func (v *Virtual) Send(f *frame.Frame) error {
	v.frameCount.Add(1)
	return nil
}

func (v *Virtual) Stats() output.Stats {
	return output.Stats{FramesSent: v.frameCount.Load()}
}

func (v *Virtual) Shutdown() error { v.running.Store(false); return nil }
