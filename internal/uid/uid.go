// Package uid implements the process-wide parameter UID registry described
// in spec §4.9: a single O(1) map from an opaque parameter UID to the
// (player, container, parameter name) triple that owns it, with weak-pointer
// semantics — the registry must never hand back a reference to an effect
// that has gone away. The "source repository" referenced in spec §9 scanned
// the whole object graph on every sequence tick; that shape doesn't belong in
// a systems language, so this registry is the mandated O(1) replacement.
package uid

import (
	"sync"
	"weak"
)

// UID is an opaque identifier for a modulatable parameter.
type UID string

// Binding is the (player, container, parameter name) triple a UID resolves
// to. Container is an opaque string identifying the owning effect instance
// (e.g. "clip:<uuid>:<chain_type>:<index>"); callers that need to invalidate
// every UID belonging to one effect pass this same string to
// InvalidateByContainer.
type Binding struct {
	Player    string
	Container string
	Param     string
}

// Token is the liveness handle an owner keeps alive for exactly as long as
// its parameter is live. The registry only stores a weak.Pointer to it, so a
// token that is garbage collected (because its owning effect instance was
// dropped) makes Resolve fail even if the caller forgot to call Invalidate.
// Invalidate/RemoveEffect remain the primary, deterministic removal path;
// the weak pointer is defense in depth, not the mechanism the spec's
// round-trip tests rely on.
type Token struct{ _ byte }

// NewToken allocates a fresh liveness token for one parameter.
func NewToken() *Token { return &Token{} }

type entry struct {
	binding Binding
	live    weak.Pointer[Token]
}

// Registry is the process-wide UID → binding map. The zero value is not
// usable; use New.
type Registry struct {
	mu      sync.RWMutex
	entries map[UID]entry
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{entries: make(map[UID]entry)}
}

// Register binds uid to the given target, keeping it alive exactly as long
// as tok is reachable from the caller (normally: as long as the owning
// EffectInstance is referenced by its ClipRegistry entry). Called when an
// effect instance is created (spec §4.1 AddEffect).
func (r *Registry) Register(id UID, b Binding, tok *Token) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[id] = entry{binding: b, live: weak.Make(tok)}
}

// Resolve looks up a UID in O(1). It returns (Binding{}, false) both when the
// UID was never registered and when its token has been collected — the
// invariant in spec §4.9 is that Resolve never returns a dangling reference.
func (r *Registry) Resolve(id UID) (Binding, bool) {
	r.mu.RLock()
	e, ok := r.entries[id]
	r.mu.RUnlock()
	if !ok {
		return Binding{}, false
	}
	if e.live.Value() == nil {
		// Token was collected without an explicit Invalidate; clean up lazily.
		r.mu.Lock()
		delete(r.entries, id)
		r.mu.Unlock()
		return Binding{}, false
	}
	return e.binding, true
}

// Invalidate removes a single UID. Called when its owning effect is removed,
// before the effect instance itself is dropped, per spec §4.9's ordering
// requirement (the entry is deleted before the underlying object).
func (r *Registry) Invalidate(id UID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, id)
}

// InvalidateByContainer removes every UID owned by the given container, used
// by ClipRegistry.RemoveEffect to drop an entire effect's parameters in one
// call.
func (r *Registry) InvalidateByContainer(container string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, e := range r.entries {
		if e.binding.Container == container {
			delete(r.entries, id)
		}
	}
}

// Len reports the number of live entries (test/introspection helper).
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Source describes something that can be re-scanned into a Registry, used
// only by Rebuild at session-load time (spec §4.9: "full scan used only on
// session load").
type Source interface {
	// WalkBindings calls fn once per (uid, binding, token) currently defined.
	WalkBindings(fn func(UID, Binding, *Token))
}

// Rebuild repopulates the registry from scratch, discarding any stale
// entries left over from a previous session. Used only at session load.
func (r *Registry) Rebuild(src Source) {
	r.mu.Lock()
	r.entries = make(map[UID]entry)
	r.mu.Unlock()
	src.WalkBindings(func(id UID, b Binding, tok *Token) {
		r.Register(id, b, tok)
	})
}
