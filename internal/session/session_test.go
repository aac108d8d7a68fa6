package session

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type clipsSection struct {
	Count int `json:"count"`
}

func TestUpdateInMemoryThenPersistRoundTrips(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "session.json")
	s := NewStore(path, time.Hour, nil)

	require.NoError(t, s.UpdateInMemory("clips", clipsSection{Count: 3}))
	require.NoError(t, s.Persist(context.Background()))

	loaded := NewStore(path, time.Hour, nil)
	loaded.Load()

	var out clipsSection
	require.NoError(t, loaded.Section("clips", &out))
	assert.Equal(t, 3, out.Count)
}

func TestLoadMissingFileStartsEmpty(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(filepath.Join(dir, "missing.json"), time.Second, nil)
	s.Load()

	var out clipsSection
	require.NoError(t, s.Section("clips", &out))
	assert.Equal(t, 0, out.Count)
}

func TestLoadCorruptFileStartsEmptyNotFatal(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "session.json")
	require.NoError(t, writeRaw(path, []byte("{not valid json")))

	s := NewStore(path, time.Second, nil)
	s.Load() // must not panic or error out

	var out clipsSection
	require.NoError(t, s.Section("clips", &out))
}

func TestRunDebouncesBurstsIntoOnePersist(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "session.json")
	s := NewStore(path, 20*time.Millisecond, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	for i := 0; i < 5; i++ {
		require.NoError(t, s.UpdateInMemory("clips", clipsSection{Count: i}))
	}
	time.Sleep(60 * time.Millisecond)

	loaded := NewStore(path, time.Second, nil)
	loaded.Load()
	var out clipsSection
	require.NoError(t, loaded.Section("clips", &out))
	assert.Equal(t, 4, out.Count)

	cancel()
	<-done
}

func writeRaw(path string, data []byte) error {
	return atomicWrite(path, data)
}
