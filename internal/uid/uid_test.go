package uid

import (
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterAndResolve(t *testing.T) {
	r := New()
	tok := NewToken()
	b := Binding{Player: "p1", Container: "clip:1:effects:0", Param: "brightness"}
	r.Register("u1", b, tok)

	got, ok := r.Resolve("u1")
	require.True(t, ok)
	assert.Equal(t, b, got)
	runtime.KeepAlive(tok)
}

func TestResolveUnknownUID(t *testing.T) {
	r := New()
	_, ok := r.Resolve("missing")
	assert.False(t, ok)
}

func TestInvalidateRemovesUID(t *testing.T) {
	r := New()
	tok := NewToken()
	r.Register("u1", Binding{Param: "x"}, tok)
	r.Invalidate("u1")
	_, ok := r.Resolve("u1")
	assert.False(t, ok)
	runtime.KeepAlive(tok)
}

func TestInvalidateByContainerRemovesOnlyMatching(t *testing.T) {
	r := New()
	tokA, tokB := NewToken(), NewToken()
	r.Register("a1", Binding{Container: "containerA", Param: "x"}, tokA)
	r.Register("b1", Binding{Container: "containerB", Param: "y"}, tokB)

	r.InvalidateByContainer("containerA")

	_, okA := r.Resolve("a1")
	_, okB := r.Resolve("b1")
	assert.False(t, okA)
	assert.True(t, okB)
	assert.Equal(t, 1, r.Len())
	runtime.KeepAlive(tokA)
	runtime.KeepAlive(tokB)
}

type fakeSource struct {
	bindings map[UID]Binding
	tokens   map[UID]*Token
}

func (f *fakeSource) WalkBindings(fn func(UID, Binding, *Token)) {
	for id, b := range f.bindings {
		fn(id, b, f.tokens[id])
	}
}

func TestRebuildRepopulatesFromSource(t *testing.T) {
	r := New()
	r.Register("stale", Binding{Param: "stale"}, NewToken())

	tok := NewToken()
	src := &fakeSource{
		bindings: map[UID]Binding{"fresh": {Param: "fresh"}},
		tokens:   map[UID]*Token{"fresh": tok},
	}
	r.Rebuild(src)

	_, staleOk := r.Resolve("stale")
	got, freshOk := r.Resolve("fresh")
	assert.False(t, staleOk)
	require.True(t, freshOk)
	assert.Equal(t, "fresh", got.Param)
	runtime.KeepAlive(tok)
}
