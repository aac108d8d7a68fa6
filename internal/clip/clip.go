// Package clip implements the ClipRegistry data model from spec §4.1: clips,
// their trim/speed/loop-mode state, and the per-clip effect chains whose
// parameters are published into the process-wide UID registry (internal/uid)
// so the sequence engine can address them in O(1) without walking the clip
// graph.
package clip

import (
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/lumencast/engine/internal/bus"
	"github.com/lumencast/engine/internal/effect"
	"github.com/lumencast/engine/internal/engineerr"
	"github.com/lumencast/engine/internal/uid"
)

// Mode is a clip's loop behaviour once playback runs past its trim bounds.
type Mode int

const (
	ModeOnce Mode = iota
	ModeRepeat
	ModePingPong
	ModeRandom
)

func (m Mode) String() string {
	switch m {
	case ModeOnce:
		return "once"
	case ModeRepeat:
		return "repeat"
	case ModePingPong:
		return "ping_pong"
	case ModeRandom:
		return "random"
	default:
		return "unknown"
	}
}

// TrimState is a clip's playback window, per spec §4.2: In/Out bound which
// source frames are reachable, Speed scales virtual-position accumulation,
// Reverse flips direction, and Mode governs what happens at the bounds.
// LoopCount caps how many passes ModeRepeat plays: the LoopCount-th time
// playback reaches a bound it clamps and stops like ModeOnce instead of
// wrapping (spec §4.2 step 5), so it wraps LoopCount-1 times; zero means
// repeat indefinitely.
type TrimState struct {
	In, Out   int
	Speed     float64
	Reverse   bool
	Mode      Mode
	LoopCount int
}

// Parameter is one live, modulatable value inside an effect instance. Its UID
// is registered in the process-wide uid.Registry the moment the parameter is
// created (AddEffect) and invalidated the moment its owning effect is
// removed (RemoveEffect) — see internal/uid's package doc for why that path
// is deterministic rather than GC-timed.
type Parameter struct {
	UID        uid.UID
	Name       string
	Kind       effect.ParamKind
	Value      float64
	Min, Max   float64
	Default    float64
	EnumValues []string

	token *uid.Token
}

func (p *Parameter) clamp() {
	switch p.Kind {
	case effect.KindBool:
		if p.Value != 0 {
			p.Value = 1
		}
	case effect.KindEnum:
		if p.Value < 0 {
			p.Value = 0
		}
		if max := float64(len(p.EnumValues) - 1); p.Value > max {
			p.Value = max
		}
	default:
		if p.Value < p.Min {
			p.Value = p.Min
		}
		if p.Value > p.Max {
			p.Value = p.Max
		}
	}
}

// EffectInstance is one position in a clip's effect chain: a plugin id, its
// live parameters, and an enabled flag. index/chainType/clipID together form
// its container identity used for UID binding and invalidation.
type EffectInstance struct {
	PluginID   string
	Enabled    bool
	Parameters []*Parameter

	plugin    effect.Plugin
	container string
}

// Snapshot converts the instance's live parameter values into the
// name→value map effect.Chain needs to evaluate it.
func (ei *EffectInstance) Snapshot() map[string]float64 {
	m := make(map[string]float64, len(ei.Parameters))
	for _, p := range ei.Parameters {
		m[p.Name] = p.Value
	}
	return m
}

// ToInstance adapts this EffectInstance into the effect package's runtime
// Instance shape for one tick's chain evaluation.
func (ei *EffectInstance) ToInstance() effect.Instance {
	return effect.Instance{
		Plugin:  ei.plugin,
		Params:  ei.Snapshot(),
		Enabled: ei.Enabled,
		Label:   ei.container,
	}
}

// Clip is one entry in the ClipRegistry: a reference to decodable source
// material (opaque to this package — see internal/decoder) plus trim state
// and per-chain-type effect chains.
type Clip struct {
	ID             string
	SourceRef      string
	IsGenerator    bool
	DurationFrames int

	mu     sync.RWMutex
	trim   TrimState
	chains map[string][]*EffectInstance
}

// Trim returns a copy of the clip's current trim state.
func (c *Clip) Trim() TrimState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.trim
}

// Chain returns the evaluation-ready effect.Chain for one chain type
// (e.g. "layer"). A clip with no effects registered under that chain type
// returns an empty chain, which is a no-op when applied.
func (c *Clip) Chain(chainType string) *effect.Chain {
	c.mu.RLock()
	defer c.mu.RUnlock()
	insts := c.chains[chainType]
	out := &effect.Chain{Instances: make([]effect.Instance, len(insts))}
	for i, ei := range insts {
		out.Instances[i] = ei.ToInstance()
	}
	return out
}

// Event is published on a Registry's bus whenever clip state visible to
// control-plane subscribers changes.
type Event interface{ isClipEvent() }

// EffectsChanged fires whenever a clip's effect chain membership changes
// (AddEffect/RemoveEffect), per spec §4.1.
type EffectsChanged struct {
	ClipID    string
	ChainType string
}

func (EffectsChanged) isClipEvent() {}

// ParameterChanged fires whenever a parameter's value changes, addressed by
// its UID so subscribers never need the clip/chain/index path.
type ParameterChanged struct {
	UID   uid.UID
	Value float64
}

func (ParameterChanged) isClipEvent() {}

// Registry is the process-wide clip store. Reads (Get, GetTrim, Chain) are
// far more frequent than writes (AddEffect/RemoveEffect/SetTrim), so the
// top-level map is RWMutex-guarded and each Clip additionally guards its own
// trim/chains so that unrelated clips never contend (spec §5: reader-heavy
// state uses RWMutex).
type Registry struct {
	mu    sync.RWMutex
	clips map[string]*Clip

	uids    *uid.Registry
	plugins *effect.Registry
	events  *bus.Bus[Event]
}

// NewRegistry wires a ClipRegistry to the shared UID registry, the effect
// plugin registry, and the event bus its EffectsChanged/ParameterChanged
// events are published on.
func NewRegistry(uids *uid.Registry, plugins *effect.Registry, events *bus.Bus[Event]) *Registry {
	return &Registry{
		clips:   make(map[string]*Clip),
		uids:    uids,
		plugins: plugins,
		events:  events,
	}
}

// CreateClip registers a new clip backed by sourceRef (opaque to this
// package; interpreted by internal/decoder) with durationFrames total
// length, defaulting its trim window to the full duration.
func (r *Registry) CreateClip(sourceRef string, isGenerator bool, durationFrames int) *Clip {
	c := &Clip{
		ID:             uuid.NewString(),
		SourceRef:      sourceRef,
		IsGenerator:    isGenerator,
		DurationFrames: durationFrames,
		trim:           TrimState{In: 0, Out: durationFrames, Speed: 1, Mode: ModeRepeat},
		chains:         make(map[string][]*EffectInstance),
	}
	r.mu.Lock()
	r.clips[c.ID] = c
	r.mu.Unlock()
	return c
}

// Get returns the clip registered under id.
func (r *Registry) Get(id string) (*Clip, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.clips[id]
	return c, ok
}

// GetTrim returns the current trim state for a clip.
func (r *Registry) GetTrim(id string) (TrimState, error) {
	c, ok := r.Get(id)
	if !ok {
		return TrimState{}, engineerr.New(engineerr.NotFound, "GetTrim", "clip "+id+" not found")
	}
	return c.Trim(), nil
}

// SetTrim validates and applies a new trim window. 0 <= In < Out <=
// DurationFrames and Speed > 0 are required (spec §4.2 invariants).
func (r *Registry) SetTrim(id string, t TrimState) error {
	c, ok := r.Get(id)
	if !ok {
		return engineerr.New(engineerr.NotFound, "SetTrim", "clip "+id+" not found")
	}
	if t.In < 0 || t.In >= t.Out || t.Out > c.DurationFrames {
		return engineerr.New(engineerr.BadInput, "SetTrim", "trim window out of range")
	}
	if t.Speed <= 0 {
		return engineerr.New(engineerr.BadInput, "SetTrim", "speed must be positive")
	}
	if t.LoopCount < 0 {
		return engineerr.New(engineerr.BadInput, "SetTrim", "loop count must not be negative")
	}
	c.mu.Lock()
	c.trim = t
	c.mu.Unlock()
	return nil
}

func containerKey(clipID, chainType string, index int) string {
	return fmt.Sprintf("clip:%s:%s:%d", clipID, chainType, index)
}

// reindex recomputes container keys (and therefore UID bindings) for every
// instance in a chain after an insertion or removal shifts positions.
func (r *Registry) reindex(clipID, chainType string, insts []*EffectInstance) {
	for i, ei := range insts {
		old := ei.container
		ei.container = containerKey(clipID, chainType, i)
		if old == ei.container {
			continue
		}
		for _, p := range ei.Parameters {
			r.uids.Register(p.UID, uid.Binding{Container: ei.container, Param: p.Name}, p.token)
		}
	}
}

// AddEffect inserts a new instance of the named plugin into clipID's chain
// at position (a negative or past-the-end position appends), materialising one Parameter (with a
// freshly registered UID) per ParamSpec the plugin declares. Mutation is
// transactional: if the plugin id is unknown, nothing is registered or
// mutated.
func (r *Registry) AddEffect(clipID, chainType, pluginID string, position int) (*EffectInstance, error) {
	c, ok := r.Get(clipID)
	if !ok {
		return nil, engineerr.New(engineerr.NotFound, "AddEffect", "clip "+clipID+" not found")
	}
	plugin, ok := r.plugins.New(pluginID)
	if !ok {
		return nil, engineerr.New(engineerr.BadInput, "AddEffect", "unknown plugin id "+pluginID)
	}

	specs := plugin.ParamSpecs()
	ei := &EffectInstance{PluginID: pluginID, Enabled: true, plugin: plugin}
	ei.Parameters = make([]*Parameter, len(specs))
	for i, spec := range specs {
		tok := uid.NewToken()
		ei.Parameters[i] = &Parameter{
			UID:        uid.UID(uuid.NewString()),
			Name:       spec.Name,
			Kind:       spec.Kind,
			Value:      spec.Default,
			Min:        spec.Min,
			Max:        spec.Max,
			Default:    spec.Default,
			EnumValues: spec.EnumValues,
			token:      tok,
		}
	}

	c.mu.Lock()
	insts := c.chains[chainType]
	if position < 0 || position > len(insts) {
		position = len(insts)
	}
	insts = append(insts, nil)
	copy(insts[position+1:], insts[position:])
	insts[position] = ei
	c.chains[chainType] = insts
	r.reindex(clipID, chainType, insts)
	c.mu.Unlock()

	if r.events != nil {
		r.events.Publish(EffectsChanged{ClipID: clipID, ChainType: chainType})
	}
	return ei, nil
}

// RemoveEffect deletes the instance at index from clipID's chain, first
// invalidating every UID it owns (spec §4.9: the UID registry entry must be
// gone before the effect instance itself is dropped).
func (r *Registry) RemoveEffect(clipID, chainType string, index int) error {
	c, ok := r.Get(clipID)
	if !ok {
		return engineerr.New(engineerr.NotFound, "RemoveEffect", "clip "+clipID+" not found")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	insts := c.chains[chainType]
	if index < 0 || index >= len(insts) {
		return engineerr.New(engineerr.BadInput, "RemoveEffect", "index out of range")
	}
	r.uids.InvalidateByContainer(insts[index].container)
	insts = append(insts[:index], insts[index+1:]...)
	c.chains[chainType] = insts
	r.reindex(clipID, chainType, insts)

	if r.events != nil {
		r.events.Publish(EffectsChanged{ClipID: clipID, ChainType: chainType})
	}
	return nil
}

// SetParameter sets one parameter's value by chain/index/name, clamping to
// its declared range and publishing ParameterChanged.
func (r *Registry) SetParameter(clipID, chainType string, index int, name string, value float64) error {
	c, ok := r.Get(clipID)
	if !ok {
		return engineerr.New(engineerr.NotFound, "SetParameter", "clip "+clipID+" not found")
	}
	c.mu.Lock()
	insts := c.chains[chainType]
	if index < 0 || index >= len(insts) {
		c.mu.Unlock()
		return engineerr.New(engineerr.BadInput, "SetParameter", "index out of range")
	}
	var target *Parameter
	for _, p := range insts[index].Parameters {
		if p.Name == name {
			target = p
			break
		}
	}
	if target == nil {
		c.mu.Unlock()
		return engineerr.New(engineerr.NotFound, "SetParameter", "no such parameter "+name)
	}
	target.Value = value
	target.clamp()
	v := target.Value
	u := target.UID
	c.mu.Unlock()

	if r.events != nil {
		r.events.Publish(ParameterChanged{UID: u, Value: v})
	}
	return nil
}

// ResolveAndSet sets a parameter's value given only its UID — the path the
// sequence engine uses every tick, per spec §4.9/§4.10.
func (r *Registry) ResolveAndSet(id uid.UID, value float64) error {
	binding, ok := r.uids.Resolve(id)
	if !ok {
		return engineerr.New(engineerr.NotFound, "ResolveAndSet", "uid "+string(id)+" not live")
	}
	clipID, chainType, index, err := parseContainer(binding.Container)
	if err != nil {
		return engineerr.Wrap(engineerr.InternalInvariant, "ResolveAndSet", "malformed container", err)
	}
	return r.SetParameter(clipID, chainType, index, binding.Param, value)
}

// WalkBindings implements uid.Source so a freshly loaded Registry can
// rebuild the process-wide UID registry in one full scan at session-load
// time (spec §4.9: "full scan used only on session load").
func (r *Registry) WalkBindings(fn func(uid.UID, uid.Binding, *uid.Token)) {
	r.mu.RLock()
	clips := make([]*Clip, 0, len(r.clips))
	for _, c := range r.clips {
		clips = append(clips, c)
	}
	r.mu.RUnlock()

	for _, c := range clips {
		c.mu.RLock()
		for _, insts := range c.chains {
			for _, ei := range insts {
				for _, p := range ei.Parameters {
					fn(p.UID, uid.Binding{Container: ei.container, Param: p.Name}, p.token)
				}
			}
		}
		c.mu.RUnlock()
	}
}

// ClipSnapshot is the persisted shape of one clip, written into the
// session document's "clips" section.
type ClipSnapshot struct {
	ID             string
	SourceRef      string
	IsGenerator    bool
	DurationFrames int
	Trim           TrimState
	Chains         map[string][]EffectSnapshot
}

// EffectSnapshot is the persisted shape of one effect chain entry.
type EffectSnapshot struct {
	PluginID   string
	Enabled    bool
	Parameters []ParamSnapshot
}

// ParamSnapshot is the persisted shape of one parameter, including its UID
// so control-plane subscribers addressing it by UID keep working across a
// restart.
type ParamSnapshot struct {
	UID        uid.UID
	Name       string
	Kind       effect.ParamKind
	Value      float64
	Min, Max   float64
	Default    float64
	EnumValues []string
}

// Snapshot returns a persistable copy of every clip currently registered.
func (r *Registry) Snapshot() []ClipSnapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]ClipSnapshot, 0, len(r.clips))
	for _, c := range r.clips {
		c.mu.RLock()
		cs := ClipSnapshot{
			ID:             c.ID,
			SourceRef:      c.SourceRef,
			IsGenerator:    c.IsGenerator,
			DurationFrames: c.DurationFrames,
			Trim:           c.trim,
			Chains:         make(map[string][]EffectSnapshot, len(c.chains)),
		}
		for chainType, insts := range c.chains {
			es := make([]EffectSnapshot, len(insts))
			for i, ei := range insts {
				params := make([]ParamSnapshot, len(ei.Parameters))
				for j, p := range ei.Parameters {
					params[j] = ParamSnapshot{
						UID: p.UID, Name: p.Name, Kind: p.Kind,
						Value: p.Value, Min: p.Min, Max: p.Max,
						Default: p.Default, EnumValues: p.EnumValues,
					}
				}
				es[i] = EffectSnapshot{PluginID: ei.PluginID, Enabled: ei.Enabled, Parameters: params}
			}
			cs.Chains[chainType] = es
		}
		c.mu.RUnlock()
		out = append(out, cs)
	}
	return out
}

// Restore repopulates the registry from a snapshot taken by Snapshot,
// re-resolving each effect's plugin by id (an effect whose plugin was
// removed between sessions is dropped — logged by the caller) and
// preserving every parameter's original UID so external addressing
// survives a restart. Callers must follow Restore with
// uids.Rebuild(registry) to repopulate the UID registry from the restored
// state (spec §4.9's session-load full scan).
func (r *Registry) Restore(snaps []ClipSnapshot) []error {
	var errs []error
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clips = make(map[string]*Clip, len(snaps))
	for _, cs := range snaps {
		c := &Clip{
			ID:             cs.ID,
			SourceRef:      cs.SourceRef,
			IsGenerator:    cs.IsGenerator,
			DurationFrames: cs.DurationFrames,
			trim:           cs.Trim,
			chains:         make(map[string][]*EffectInstance, len(cs.Chains)),
		}
		for chainType, es := range cs.Chains {
			insts := make([]*EffectInstance, 0, len(es))
			for _, e := range es {
				plugin, ok := r.plugins.New(e.PluginID)
				if !ok {
					errs = append(errs, engineerr.New(engineerr.BadInput, "Restore", "unknown plugin id "+e.PluginID+" in clip "+cs.ID))
					continue
				}
				ei := &EffectInstance{
					PluginID: e.PluginID, Enabled: e.Enabled, plugin: plugin,
					container: containerKey(cs.ID, chainType, len(insts)),
				}
				ei.Parameters = make([]*Parameter, len(e.Parameters))
				for j, ps := range e.Parameters {
					ei.Parameters[j] = &Parameter{
						UID: ps.UID, Name: ps.Name, Kind: ps.Kind,
						Value: ps.Value, Min: ps.Min, Max: ps.Max,
						Default: ps.Default, EnumValues: ps.EnumValues,
						token: uid.NewToken(),
					}
				}
				insts = append(insts, ei)
			}
			c.chains[chainType] = insts
		}
		r.clips[cs.ID] = c
	}
	return errs
}

func parseContainer(container string) (clipID, chainType string, index int, err error) {
	parts := strings.SplitN(container, ":", 4)
	if len(parts) != 4 || parts[0] != "clip" {
		return "", "", 0, fmt.Errorf("unexpected container shape %q", container)
	}
	idx, err := strconv.Atoi(parts[3])
	if err != nil {
		return "", "", 0, fmt.Errorf("non-numeric index in container %q: %w", container, err)
	}
	return parts[1], parts[2], idx, nil
}
