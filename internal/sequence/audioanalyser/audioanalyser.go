// Package audioanalyser implements sequence.AudioFeature by extracting
// band-energy features (bass, mid, treble, rms) from a stream of PCM
// samples via FFT. The Cooley-Tukey FFT, Hann window, and RMS computation
// are adapted from the onset/energy analysis used by the audio pipeline in
// vividhyeok-djbot/backend/dsp.go, restructured here for incremental,
// real-time feature reads rather than whole-track offline analysis.
package audioanalyser

import (
	"math"
	"math/cmplx"
	"sync"
)

// Analyser ingests a continuous stream of mono PCM samples and exposes
// smoothed, normalised band-energy features for sequence.Engine's
// audio-kind sequences to read each tick.
type Analyser struct {
	sampleRate int
	frameSize  int
	window     []float64

	mu      sync.Mutex
	ring    []float32
	ringPos int
	filled  bool

	bass, mid, treble, rms float64 // smoothed, in [0, 1]
}

// New creates an Analyser for a given sample rate. frameSize is rounded up
// to the next power of two and determines FFT frequency resolution; 1024 at
// 44100Hz gives roughly 43Hz bins, enough to separate bass/mid/treble.
func New(sampleRate, frameSize int) *Analyser {
	n := nextPow2(frameSize)
	return &Analyser{
		sampleRate: sampleRate,
		frameSize:  n,
		window:     hannWindow(n),
		ring:       make([]float32, n),
	}
}

// Push appends newly captured samples to the analysis window and recomputes
// band energies. Callers (an audio input driver) push as samples arrive;
// Read then returns the most recently computed values without blocking.
func (a *Analyser) Push(samples []float32) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, s := range samples {
		a.ring[a.ringPos] = s
		a.ringPos++
		if a.ringPos >= len(a.ring) {
			a.ringPos = 0
			a.filled = true
		}
	}
	if !a.filled {
		return
	}
	a.analyseLocked()
}

// Read implements sequence.AudioFeature. Unknown feature names return 0.
func (a *Analyser) Read(feature string) float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	switch feature {
	case "bass":
		return a.bass
	case "mid":
		return a.mid
	case "treble":
		return a.treble
	case "rms":
		return a.rms
	default:
		return 0
	}
}

const smoothing = 0.6 // exponential smoothing factor, higher = more responsive

func (a *Analyser) analyseLocked() {
	n := len(a.ring)
	buf := make([]complex128, n)
	// Unroll the ring starting at the oldest sample so window phase is stable.
	for i := 0; i < n; i++ {
		s := a.ring[(a.ringPos+i)%n]
		buf[i] = complex(float64(s)*a.window[i], 0)
	}
	spec := fft(buf)

	var bassSum, midSum, trebleSum float64
	var bassN, midN, trebleN int
	for bin := 1; bin <= n/2; bin++ {
		freq := float64(bin) * float64(a.sampleRate) / float64(n)
		mag := cmplx.Abs(spec[bin])
		switch {
		case freq < 250:
			bassSum += mag
			bassN++
		case freq < 4000:
			midSum += mag
			midN++
		case freq < 16000:
			trebleSum += mag
			trebleN++
		}
	}

	bass := normaliseBand(bassSum, bassN)
	mid := normaliseBand(midSum, midN)
	treble := normaliseBand(trebleSum, trebleN)

	var sumSq float64
	for _, s := range a.ring {
		sumSq += float64(s) * float64(s)
	}
	rms := clamp01(math.Sqrt(sumSq / float64(n)))

	a.bass = a.bass + smoothing*(bass-a.bass)
	a.mid = a.mid + smoothing*(mid-a.mid)
	a.treble = a.treble + smoothing*(treble-a.treble)
	a.rms = a.rms + smoothing*(rms-a.rms)
}

// normaliseBand converts an average magnitude into a [0,1] loudness-ish
// value via a log scale — raw FFT magnitude has no fixed ceiling, so this
// compresses the typical working range instead of clipping hard.
func normaliseBand(sum float64, n int) float64 {
	if n == 0 {
		return 0
	}
	avg := sum / float64(n)
	db := 20 * math.Log10(avg+1e-6)
	// Map roughly [-60, 0] dB onto [0, 1].
	return clamp01((db + 60) / 60)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func nextPow2(n int) int {
	v := 1
	for v < n {
		v <<= 1
	}
	return v
}

func hannWindow(n int) []float64 {
	w := make([]float64, n)
	for i := range w {
		w[i] = 0.5 * (1 - math.Cos(2*math.Pi*float64(i)/float64(n-1)))
	}
	return w
}

// fft is an iterative Cooley-Tukey radix-2 FFT (in-place on a copy of x).
func fft(x []complex128) []complex128 {
	n := len(x)
	out := make([]complex128, n)
	copy(out, x)
	if n <= 1 {
		return out
	}

	j := 0
	for i := 0; i < n-1; i++ {
		if i < j {
			out[i], out[j] = out[j], out[i]
		}
		m := n >> 1
		for j >= m && m > 0 {
			j -= m
			m >>= 1
		}
		j += m
	}

	for size := 2; size <= n; size <<= 1 {
		half := size >> 1
		step := -2 * math.Pi / float64(size)
		wLen := complex(math.Cos(step), math.Sin(step))
		for i := 0; i < n; i += size {
			w := complex(1, 0)
			for k := 0; k < half; k++ {
				u := out[i+k]
				v := out[i+k+half] * w
				out[i+k] = u + v
				out[i+k+half] = u - v
				w *= wLen
			}
		}
	}
	return out
}

// Null is a no-op AudioFeature for when no audio input capability is wired
// — every feature reads 0, matching the "skip silently" semantics spec
// §4.10 requires for a missing external collaborator.
type Null struct{}

func (Null) Read(string) float64 { return 0 }
