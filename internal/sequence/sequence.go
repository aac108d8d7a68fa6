// Package sequence implements the SequenceEngine from spec §4.10: owns
// parameter-modulating sequences (timeline, audio, bpm), resolves their
// target UID every tick via the UID registry (internal/clip.Registry wraps
// that resolve-and-write path), and publishes throttled, per-UID-batched
// ParameterChanged notifications to external subscribers.
package sequence

import (
	"sort"
	"sync"
	"time"

	"github.com/lumencast/engine/internal/bus"
	"github.com/lumencast/engine/internal/clip"
	"github.com/lumencast/engine/internal/logging"
	"github.com/lumencast/engine/internal/uid"
)

// Kind selects how a sequence computes its current value each tick.
type Kind int

const (
	KindTimeline Kind = iota
	KindAudio
	KindBPM
)

// Keyframe is one (time, value) control point in a timeline sequence.
type Keyframe struct {
	T     float64
	Value float64
}

// AudioFeature is the capability an audio-reactive sequence reads from —
// spec §1 names "the audio decoder used by the sequencer feature" as an
// explicit external collaborator, so this engine only consumes extracted
// scalar features, never raw audio. See internal/sequence/audioanalyser for
// a concrete FFT-based implementation.
type AudioFeature interface {
	// Read returns the current value of the named feature (e.g. "bass",
	// "mid", "treble", "rms"), in [0, 1].
	Read(feature string) float64
}

// Sequence is one modulation source targeting a single parameter UID.
type Sequence struct {
	ID        string
	Kind      Kind
	TargetUID uid.UID
	Enabled   bool

	// Timeline
	Keyframes []Keyframe
	Loop      bool

	// BPM
	Rate float64 // beats per second

	// Audio
	Feature string

	phase float64
}

// Engine owns every registered Sequence and advances them once per tick.
type Engine struct {
	mu        sync.Mutex
	sequences map[string]*Sequence

	resolver  *clip.Registry
	audio     AudioFeature
	throttle  *bus.KeyedThrottle[uid.UID, float64]
	extBus    *bus.Bus[BatchEvent]
}

// BatchEvent is one throttle-window's worth of coalesced parameter writes,
// published to external subscribers per spec §4.10 step 4.
type BatchEvent map[uid.UID]float64

// New creates an Engine. resolver is the clip registry that owns the UID →
// parameter write path; audio may be nil (audio-kind sequences then always
// read 0, matching "skip silently" semantics for a missing capability).
func New(resolver *clip.Registry, audio AudioFeature, throttleWindow time.Duration) *Engine {
	e := &Engine{
		sequences: make(map[string]*Sequence),
		resolver:  resolver,
		audio:     audio,
		extBus:    bus.New[BatchEvent](8),
	}
	e.throttle = bus.NewKeyedThrottle(throttleWindow, e.flush)
	return e
}

func (e *Engine) flush(batch map[uid.UID]float64) {
	e.extBus.Publish(BatchEvent(batch))
}

// Subscribe returns a subscription to the throttled, batched parameter
// update stream.
func (e *Engine) Subscribe() *bus.Subscription[BatchEvent] {
	return e.extBus.Subscribe()
}

// Register adds or replaces a sequence definition.
func (e *Engine) Register(s *Sequence) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sequences[s.ID] = s
}

// Remove deletes a sequence.
func (e *Engine) Remove(id string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.sequences, id)
}

// Tick advances every enabled sequence by dt seconds, writing resolved
// values through the clip registry and queuing them for throttled external
// fan-out.
func (e *Engine) Tick(dt float64) {
	e.mu.Lock()
	seqs := make([]*Sequence, 0, len(e.sequences))
	for _, s := range e.sequences {
		seqs = append(seqs, s)
	}
	e.mu.Unlock()

	log := logging.Component("sequence")
	for _, s := range seqs {
		if !s.Enabled {
			continue
		}
		value := e.computeValue(s, dt)
		if err := e.resolver.ResolveAndSet(s.TargetUID, value); err != nil {
			// The target parameter may have been removed since this sequence
			// was created — spec §4.10 step 2 says skip silently, no error,
			// but it's still worth a debug trace when diagnosing a sequence
			// that appears to do nothing.
			log.Debug("sequence target no longer live", "sequence", s.ID, "uid", s.TargetUID, "err", err)
			continue
		}
		e.throttle.Update(s.TargetUID, value)
	}
}

func (e *Engine) computeValue(s *Sequence, dt float64) float64 {
	switch s.Kind {
	case KindAudio:
		if e.audio == nil {
			return 0
		}
		return e.audio.Read(s.Feature)
	case KindBPM:
		s.phase += dt * s.Rate
		s.phase -= float64(int(s.phase))
		return triangleWave(s.phase)
	default: // KindTimeline
		return evalTimeline(s, dt)
	}
}

func triangleWave(phase float64) float64 {
	if phase < 0.5 {
		return phase * 2
	}
	return 2 - phase*2
}

func evalTimeline(s *Sequence, dt float64) float64 {
	if len(s.Keyframes) == 0 {
		return 0
	}
	sorted := s.Keyframes
	if !sort.SliceIsSorted(sorted, func(i, j int) bool { return sorted[i].T < sorted[j].T }) {
		sorted = append([]Keyframe(nil), sorted...)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i].T < sorted[j].T })
	}
	last := sorted[len(sorted)-1].T
	s.phase += dt
	if last <= 0 {
		return sorted[0].Value
	}
	if s.phase > last {
		if s.Loop {
			s.phase -= last * float64(int(s.phase/last))
		} else {
			s.phase = last
		}
	}
	return interpolate(sorted, s.phase)
}

func interpolate(kf []Keyframe, t float64) float64 {
	if t <= kf[0].T {
		return kf[0].Value
	}
	for i := 1; i < len(kf); i++ {
		if t <= kf[i].T {
			span := kf[i].T - kf[i-1].T
			if span <= 0 {
				return kf[i].Value
			}
			frac := (t - kf[i-1].T) / span
			return kf[i-1].Value + (kf[i].Value-kf[i-1].Value)*frac
		}
	}
	return kf[len(kf)-1].Value
}
