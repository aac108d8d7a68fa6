package layer

import (
	"sync"

	"github.com/lumencast/engine/internal/engineerr"
)

// Layer is one entry in a Stack: which clip it shows, how it blends, and
// whether it currently contributes to the composite. Index in the Stack is
// a layer's addressable position (spec §6's "layer:<N>" selector), so layers
// are stored as a plain ordered slice rather than a keyed map.
type Layer struct {
	ClipID  string
	Blend   BlendMode
	Opacity float64
	Enabled bool
}

// Stack is the ordered list of layers a Player composites every tick.
type Stack struct {
	mu     sync.RWMutex
	layers []*Layer
}

// NewStack creates an empty layer stack.
func NewStack() *Stack {
	return &Stack{}
}

// Add appends a layer and returns its index.
func (s *Stack) Add(l *Layer) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.layers = append(s.layers, l)
	return len(s.layers) - 1
}

// Remove deletes the layer at index, shifting subsequent layers down.
// Callers that address layers by index (slices, sequences) must re-fetch
// after a Remove — identity is positional, not stable.
func (s *Stack) Remove(index int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if index < 0 || index >= len(s.layers) {
		return engineerr.New(engineerr.BadInput, "Stack.Remove", "layer index out of range")
	}
	s.layers = append(s.layers[:index], s.layers[index+1:]...)
	return nil
}

// Get returns the layer at index.
func (s *Stack) Get(index int) (*Layer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if index < 0 || index >= len(s.layers) {
		return nil, engineerr.New(engineerr.NotFound, "Stack.Get", "layer index out of range")
	}
	return s.layers[index], nil
}

// Len reports the number of layers currently in the stack.
func (s *Stack) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.layers)
}

// Snapshot returns a stable-order copy of the layer pointers for one tick's
// compositing pass — the slice is copied so a concurrent Add/Remove never
// races with iteration, but the Layer values themselves are shared (field
// reads during Composite should go through atomic-friendly simple types
// only, which Opacity/Blend/Enabled/ClipID all are).
func (s *Stack) Snapshot() []*Layer {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Layer, len(s.layers))
	copy(out, s.layers)
	return out
}
