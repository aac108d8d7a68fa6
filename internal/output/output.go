// Package output implements the OutputManager and Output plugin capability
// from spec §4.6: a dynamic set of named output sinks (display windows,
// Art-Net universes, a virtual no-op) each fed frames
// through its own small bounded queue so one slow output can never stall
// another or the player tick itself.
package output

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/lumencast/engine/internal/engineerr"
	"github.com/lumencast/engine/internal/frame"
	"github.com/lumencast/engine/internal/logging"
)

// Stats is the introspection snapshot an Output reports; concrete plugins
// embed this and add their own fields (see internal/artnet.Stats).
type Stats struct {
	FramesSent    uint64
	FramesDropped uint64
	QueueDepth    int
}

// Output is the capability every output sink implements. Send must not
// block past the manager's queue — the manager already guarantees at most
// one frame is in flight via the bounded channel, so a well-behaved Send
// simply does the work synchronously.
type Output interface {
	Initialise(ctx context.Context) error
	Send(f *frame.Frame) error
	Stats() Stats
	Shutdown() error
}

// entry is one registered output's runtime state.
type entry struct {
	output   Output
	queue    chan *frame.Frame
	enabled  bool
	fpsCap   int
	lastSent time.Time
	cancel   context.CancelFunc
	done     chan struct{}

	source string // selector string, interpreted by the player
	slice  string // optional slice name, "" for the full canvas

	droppedCount uint64
}

// Manager owns the dynamic set of registered outputs and fans frames out to
// them every tick via Dispatch. Each output's queue has the configured
// capacity (spec: "bounded channel capacity N per output"); a full queue
// drops the oldest pending frame rather than blocking the tick.
type Manager struct {
	mu       sync.RWMutex
	entries  map[string]*entry
	capacity int
}

// NewManager creates a Manager whose per-output queues hold capacity frames.
func NewManager(capacity int) *Manager {
	if capacity < 1 {
		capacity = 1
	}
	return &Manager{entries: make(map[string]*entry), capacity: capacity}
}

// Register adds a new output under name, starts its consumer goroutine, and
// calls Initialise. fpsCap of 0 means "no cap beyond the tick rate".
func (m *Manager) Register(ctx context.Context, name string, o Output, fpsCap int) error {
	if err := o.Initialise(ctx); err != nil {
		return engineerr.Wrap(engineerr.InitFailed, "Register", "output "+name, err)
	}

	cctx, cancel := context.WithCancel(ctx)
	e := &entry{
		output:  o,
		queue:   make(chan *frame.Frame, m.capacity),
		enabled: true,
		fpsCap:  fpsCap,
		cancel:  cancel,
		done:    make(chan struct{}),
	}

	m.mu.Lock()
	if _, exists := m.entries[name]; exists {
		m.mu.Unlock()
		cancel()
		return engineerr.New(engineerr.InUse, "Register", "output "+name+" already registered")
	}
	m.entries[name] = e
	m.mu.Unlock()

	go m.consume(cctx, name, e)
	return nil
}

func (m *Manager) consume(ctx context.Context, name string, e *entry) {
	defer close(e.done)
	log := logging.Component("output").With("output", name)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		for {
			select {
			case <-gctx.Done():
				return nil
			case f, ok := <-e.queue:
				if !ok {
					return nil
				}
				if err := e.output.Send(f); err != nil {
					log.Warn("send failed", "error", err)
				}
			}
		}
	})
	_ = g.Wait()
}

// Unregister stops and removes an output, calling Shutdown.
func (m *Manager) Unregister(name string) error {
	m.mu.Lock()
	e, ok := m.entries[name]
	if !ok {
		m.mu.Unlock()
		return engineerr.New(engineerr.NotFound, "Unregister", "output "+name+" not found")
	}
	delete(m.entries, name)
	m.mu.Unlock()

	e.cancel()
	<-e.done
	close(e.queue)
	return e.output.Shutdown()
}

// Enable / Disable toggle whether Dispatch delivers frames to an output
// without tearing down its goroutine or queue.
func (m *Manager) Enable(name string) error  { return m.setEnabled(name, true) }
func (m *Manager) Disable(name string) error { return m.setEnabled(name, false) }

func (m *Manager) setEnabled(name string, enabled bool) error {
	m.mu.RLock()
	e, ok := m.entries[name]
	m.mu.RUnlock()
	if !ok {
		return engineerr.New(engineerr.NotFound, "setEnabled", "output "+name+" not found")
	}
	e.enabled = enabled
	return nil
}

// SetSource assigns the selector string (spec §6 grammar: canvas |
// clip:current | clip:<uuid> | layer:<N> | layer:<N>:inclusive) an output
// should pull frames from. The player resolves the selector; the manager
// only stores it.
func (m *Manager) SetSource(name, selector string) error {
	m.mu.RLock()
	e, ok := m.entries[name]
	m.mu.RUnlock()
	if !ok {
		return engineerr.New(engineerr.NotFound, "SetSource", "output "+name+" not found")
	}
	e.source = selector
	return nil
}

// SetSlice assigns an optional named slice that crops/transforms the
// selected source before it reaches this output; "" selects the full frame.
func (m *Manager) SetSlice(name, sliceName string) error {
	m.mu.RLock()
	e, ok := m.entries[name]
	m.mu.RUnlock()
	if !ok {
		return engineerr.New(engineerr.NotFound, "SetSlice", "output "+name+" not found")
	}
	e.slice = sliceName
	return nil
}

// Source and Slice report an output's current selector/slice assignment —
// the player reads these once per tick to know what to feed Dispatch.
func (m *Manager) Source(name string) (selector, sliceName string, err error) {
	m.mu.RLock()
	e, ok := m.entries[name]
	m.mu.RUnlock()
	if !ok {
		return "", "", engineerr.New(engineerr.NotFound, "Source", "output "+name+" not found")
	}
	return e.source, e.slice, nil
}

// Names lists every currently registered output name.
func (m *Manager) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.entries))
	for n := range m.entries {
		names = append(names, n)
	}
	return names
}

// Dispatch enqueues f for delivery to the named output, subject to its fps
// cap and enabled flag. If the queue is full, the oldest pending frame is
// dropped to make room (spec: bounded queue, never block the tick).
func (m *Manager) Dispatch(name string, f *frame.Frame) error {
	m.mu.RLock()
	e, ok := m.entries[name]
	m.mu.RUnlock()
	if !ok {
		return engineerr.New(engineerr.NotFound, "Dispatch", "output "+name+" not found")
	}
	if !e.enabled {
		return nil
	}
	if e.fpsCap > 0 {
		now := time.Now()
		min := time.Second / time.Duration(e.fpsCap)
		if now.Sub(e.lastSent) < min {
			return nil
		}
		e.lastSent = now
	}

	select {
	case e.queue <- f:
		return nil
	default:
		select {
		case <-e.queue:
			e.droppedCount++
		default:
		}
		select {
		case e.queue <- f:
		default:
		}
		return nil
	}
}

// Stats returns one output's current Stats plus its queue depth.
func (m *Manager) Stats(name string) (Stats, error) {
	m.mu.RLock()
	e, ok := m.entries[name]
	m.mu.RUnlock()
	if !ok {
		return Stats{}, engineerr.New(engineerr.NotFound, "Stats", "output "+name+" not found")
	}
	s := e.output.Stats()
	s.QueueDepth = len(e.queue)
	s.FramesDropped += e.droppedCount
	return s, nil
}

// Shutdown tears down every registered output.
func (m *Manager) Shutdown() {
	m.mu.RLock()
	names := make([]string, 0, len(m.entries))
	for n := range m.entries {
		names = append(names, n)
	}
	m.mu.RUnlock()
	for _, n := range names {
		_ = m.Unregister(n)
	}
}
