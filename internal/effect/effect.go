// Package effect implements the plugin capability and chain evaluation
// engine from spec §4.3/§9: effects are a small capability set ("Apply" for
// effects) dispatched through a string-keyed plugin registry, not an
// inheritance hierarchy.
package effect

import (
	"fmt"

	"github.com/lumencast/engine/internal/frame"
	"github.com/lumencast/engine/internal/logging"
)

// ParamKind is the type tag for one effect parameter.
type ParamKind int

const (
	KindFloat ParamKind = iota
	KindInt
	KindEnum
	KindBool
)

// ParamSpec describes one parameter a plugin exposes: name, type, bounds and
// default. ClipRegistry.AddEffect uses this to materialise the live
// Parameter (with a freshly assigned UID) that backs the plugin instance.
type ParamSpec struct {
	Name       string
	Kind       ParamKind
	Min, Max   float64
	Default    float64
	EnumValues []string // only meaningful when Kind == KindEnum
}

// Plugin is the capability every effect implementation provides. Apply must
// never mutate in; if it makes no change it may return in unchanged (spec
// §4.3: "if no change is needed the same buffer may be returned").
type Plugin interface {
	ID() string
	ParamSpecs() []ParamSpec
	Apply(in *frame.Frame, params map[string]float64) (*frame.Frame, error)
}

// Factory constructs a fresh Plugin instance. Plugins are typically stateless
// pure functions of (frame, params), so most factories just return a shared
// singleton, but the factory shape leaves room for stateful plugins (e.g. a
// feedback/echo effect) without changing the registry's API.
type Factory func() Plugin

// Registry is the string-keyed plugin lookup table described in spec §9.
type Registry struct {
	factories map[string]Factory
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register adds a plugin factory under id, overwriting any previous
// registration — callers that want built-ins plus custom plugins call
// Register for each one at start-up.
func (r *Registry) Register(id string, f Factory) {
	r.factories[id] = f
}

// New instantiates the plugin registered under id, or (nil, false) if no
// such plugin id is known — the caller (ClipRegistry.AddEffect) turns that
// into a BadInput error.
func (r *Registry) New(id string) (Plugin, bool) {
	f, ok := r.factories[id]
	if !ok {
		return nil, false
	}
	return f(), true
}

// IDs lists every registered plugin id, sorted by registration is not
// guaranteed; callers that need a stable order should sort.
func (r *Registry) IDs() []string {
	ids := make([]string, 0, len(r.factories))
	for id := range r.factories {
		ids = append(ids, id)
	}
	return ids
}

// NewBuiltinRegistry returns a registry pre-populated with the built-in
// plugins in this package only; the Lua scripting plugin from the script
// subpackage is registered by the caller (see cmd/lumencast) — callers are
// free to Register additional plugins (e.g. a test double) afterwards.
func NewBuiltinRegistry() *Registry {
	r := NewRegistry()
	r.Register("brightness_contrast", func() Plugin { return brightnessContrast{} })
	r.Register("invert", func() Plugin { return invert{} })
	r.Register("grayscale", func() Plugin { return grayscale{} })
	r.Register("chroma_key", func() Plugin { return chromaKey{} })
	r.Register("mirror", func() Plugin { return mirror{} })
	return r
}

// Instance is one position in an evaluated chain: a live plugin plus its
// current parameter values and enabled flag. Chain is deliberately decoupled
// from ClipRegistry's EffectInstance (which owns UIDs and persistence); the
// clip package adapts its EffectInstance into an Instance once per tick via
// Snapshot.
type Instance struct {
	Plugin  Plugin
	Params  map[string]float64
	Enabled bool
	Label   string // for logging; typically "clip:<uuid>:<chain>:<index>"
}

// Chain evaluates an ordered list of Instances against a frame. Evaluation
// order is insertion order (spec §4.3). A disabled effect is skipped. A
// panicking or erroring effect is isolated: the chain logs, increments
// errorCount, and passes the frame through that step unchanged — it never
// aborts the tick.
type Chain struct {
	Instances  []Instance
	errorCount int
}

// Apply runs every enabled instance over in, in order, returning the final
// frame. Chain-local evaluation failures (panic or error) are isolated per
// spec §4.3.
func (c *Chain) Apply(in *frame.Frame) *frame.Frame {
	out := in
	for i := range c.Instances {
		inst := &c.Instances[i]
		if !inst.Enabled {
			continue
		}
		next, err := c.applyOne(inst, out)
		if err != nil {
			c.errorCount++
			logging.Component("effect").Warn("effect step failed, passing frame through",
				"label", inst.Label, "plugin", inst.Plugin.ID(), "error", err)
			continue
		}
		out = next
	}
	return out
}

// applyOne isolates a single plugin invocation, converting a panic into an
// error so one misbehaving plugin cannot take down the tick.
func (c *Chain) applyOne(inst *Instance, in *frame.Frame) (out *frame.Frame, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("effect %s panicked: %v", inst.Plugin.ID(), r)
			out = in
		}
	}()
	return inst.Plugin.Apply(in, inst.Params)
}

// ErrorCount reports how many step failures this chain has absorbed across
// its lifetime (exposed for component stats / tests).
func (c *Chain) ErrorCount() int { return c.errorCount }
