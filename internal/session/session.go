// Package session implements SessionStore from spec §4.11: a debounced,
// asynchronous writer that persists clip/slice/output/sequence state to a
// local JSON document via an atomic temp-file-then-rename write, with an
// optional Azure Blob mirror upload following the credential/upload shape of
// alxayo-rtmp-go/azure/blob-sidecar's dependency set (no reference source
// for that package was retrieved, only its go.mod — see DESIGN.md).
package session

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/lumencast/engine/internal/engineerr"
	"github.com/lumencast/engine/internal/logging"
)

const schemaVersion = 1

// document is the on-disk shape: a schema version plus opaque per-section
// payloads. Exact per-section schema is left to callers (spec §4.11: "exact
// schema is at the implementer's discretion").
type document struct {
	SchemaVersion int                        `json:"schema_version"`
	Sections      map[string]json.RawMessage `json:"sections"`
}

// Mirror uploads the persisted document bytes to an off-box store. Azure
// blob-sidecar's client-wrapping pattern: Store never depends on a concrete
// Azure type directly, so it stays unit-testable without credentials.
type Mirror interface {
	Upload(ctx context.Context, data []byte) error
}

// Store is the single owner of the session document. UpdateInMemory is
// synchronous and cheap; Persist does the actual file I/O and runs only
// from the background writer goroutine (Run), which also persists once more
// when its context is cancelled.
type Store struct {
	path     string
	debounce time.Duration
	mirror   Mirror

	mu  sync.Mutex
	doc map[string]json.RawMessage

	dirty chan struct{}
}

// NewStore creates a Store targeting path. mirror may be nil (no off-box
// copy). Call Load once at start-up, then Run in its own goroutine.
func NewStore(path string, debounce time.Duration, mirror Mirror) *Store {
	if debounce <= 0 {
		debounce = time.Second
	}
	return &Store{
		path:     path,
		debounce: debounce,
		mirror:   mirror,
		doc:      make(map[string]json.RawMessage),
		dirty:    make(chan struct{}, 1),
	}
}

// Load reads the on-disk document. Corruption or absence is not fatal: spec
// §4.11 requires the engine start empty and log, never refuse to boot.
func (s *Store) Load() {
	log := logging.Component("session")
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Warn("session file unreadable, starting empty", "path", s.path, "err", err)
		}
		return
	}
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		log.Warn("session file corrupt, starting empty", "path", s.path, "err", err)
		return
	}
	s.mu.Lock()
	s.doc = doc.Sections
	if s.doc == nil {
		s.doc = make(map[string]json.RawMessage)
	}
	s.mu.Unlock()
}

// Section unmarshals the named section's payload into out. A missing
// section leaves out untouched and returns nil — callers start from their
// own zero-value defaults.
func (s *Store) Section(name string, out any) error {
	s.mu.Lock()
	raw, ok := s.doc[name]
	s.mu.Unlock()
	if !ok {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return engineerr.Wrap(engineerr.BadInput, "Section", "malformed section "+name, err)
	}
	return nil
}

// UpdateInMemory replaces one section's payload and marks the store dirty.
// Synchronous and returns immediately (spec §4.11); the actual write is
// debounced by Run.
func (s *Store) UpdateInMemory(section string, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return engineerr.Wrap(engineerr.BadInput, "UpdateInMemory", "marshal section "+section, err)
	}
	s.mu.Lock()
	s.doc[section] = raw
	s.mu.Unlock()

	select {
	case s.dirty <- struct{}{}:
	default:
	}
	return nil
}

// Run is the single background writer: it coalesces bursts of
// UpdateInMemory calls into one Persist, 1s (debounce) after the last
// change, and persists once more immediately before returning when ctx is
// cancelled (graceful shutdown).
func (s *Store) Run(ctx context.Context) {
	log := logging.Component("session")
	timer := time.NewTimer(s.debounce)
	if !timer.Stop() {
		<-timer.C
	}
	timerActive := false

	for {
		select {
		case <-ctx.Done():
			if err := s.Persist(context.Background()); err != nil {
				log.Error("final session persist failed", "err", err)
			}
			return
		case <-s.dirty:
			if timerActive && !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(s.debounce)
			timerActive = true
		case <-timer.C:
			timerActive = false
			if err := s.Persist(ctx); err != nil {
				// SessionStore errors are logged and in-memory state stays
				// authoritative (spec §4.11) — never propagated as a fatal.
				log.Error("session persist failed", "err", err)
			}
		}
	}
}

// Persist writes the current document to disk atomically (temp file, fsync,
// rename) and, if a mirror is configured, uploads the same bytes.
func (s *Store) Persist(ctx context.Context) error {
	s.mu.Lock()
	sections := make(map[string]json.RawMessage, len(s.doc))
	for k, v := range s.doc {
		sections[k] = v
	}
	s.mu.Unlock()

	data, err := json.MarshalIndent(document{SchemaVersion: schemaVersion, Sections: sections}, "", "  ")
	if err != nil {
		return engineerr.Wrap(engineerr.InternalInvariant, "Persist", "marshal document", err)
	}

	if err := atomicWrite(s.path, data); err != nil {
		return engineerr.Wrap(engineerr.Transient, "Persist", "write "+s.path, err)
	}

	if s.mirror != nil {
		if err := s.mirror.Upload(ctx, data); err != nil {
			// Off-box mirror failure does not invalidate the local write;
			// the local file is the source of truth at boot.
			logging.Component("session").Warn("azure mirror upload failed", "err", err)
		}
	}
	return nil
}

func atomicWrite(path string, data []byte) error {
	dir := filepath.Dir(path)
	if dir == "" {
		dir = "."
	}
	tmp, err := os.CreateTemp(dir, ".session-*.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath) // no-op once the rename below succeeds

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpPath, path)
}
