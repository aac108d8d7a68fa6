package artnet

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/lumencast/engine/internal/engineerr"
	"github.com/lumencast/engine/internal/frame"
	"github.com/lumencast/engine/internal/output"
)

// Decision records why one universe's packet was sent full or delta, kept
// in a ring buffer for introspection (spec §4.8 step 6).
type Decision struct {
	Universe int
	Full     bool
	Reason   string
	At       time.Time
}

// Config describes one ArtNetOutput instance.
type Config struct {
	Name              string
	TargetIP          string
	TargetPort        int // defaults to the standard Art-Net Port (6454) if 0
	StartUniverse     int
	Fixtures          []FixturePixel // pixel coordinates, one fixture per entry
	Order             ChannelOrder
	Correction        ColorCorrection
	DeltaEnabled      bool
	FullFrameInterval int     // send a full frame at least this often
	ChangeThreshold   float64 // 0..255 per-channel delta to count as "changed"
}

// metrics holds the package-wide Prometheus collectors, registered once via
// sync.Once so multiple Output instances can share the same registry
// without a duplicate-registration panic.
type metrics struct {
	framesSent    *prometheus.CounterVec
	framesFull    *prometheus.CounterVec
	framesDropped *prometheus.CounterVec
	bytesSent     *prometheus.CounterVec
	bytesSaved    *prometheus.CounterVec
}

var (
	metricsOnce sync.Once
	sharedM     *metrics
)

func getMetrics() *metrics {
	metricsOnce.Do(func() {
		sharedM = &metrics{
			framesSent: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "lumencast_artnet_frames_sent_total",
				Help: "Art-Net packets transmitted, by output and universe.",
			}, []string{"output", "universe"}),
			framesFull: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "lumencast_artnet_full_frames_total",
				Help: "Art-Net full-frame (non-delta) packets transmitted.",
			}, []string{"output", "universe"}),
			framesDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "lumencast_artnet_frames_dropped_total",
				Help: "Frames dropped before reaching the Art-Net emitter.",
			}, []string{"output"}),
			bytesSent: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "lumencast_artnet_bytes_sent_total",
				Help: "Bytes transmitted over UDP for Art-Net.",
			}, []string{"output"}),
			bytesSaved: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "lumencast_artnet_bytes_saved_total",
				Help: "Theoretical bytes saved by delta encoding (not all transports support partial frames).",
			}, []string{"output"}),
		}
		prometheus.MustRegister(sharedM.framesSent, sharedM.framesFull, sharedM.framesDropped, sharedM.bytesSent, sharedM.bytesSaved)
	})
	return sharedM
}

// Output is the ArtNetOutput plugin: it implements output.Output, converting
// each received frame into one ArtDMX packet per universe.
type Output struct {
	cfg  Config
	conn *net.UDPConn

	mu            sync.Mutex
	prevUniverses [][]byte
	frameCounter  int
	sequence      byte

	sent, dropped uint64
	fullCount     uint64
	deltaCount    uint64
	bytesSent     uint64
	bytesSaved    uint64
	ring          []Decision
	ringPos       int

	m *metrics
}

// New constructs an ArtNetOutput; call Initialise to open the UDP socket.
func New(cfg Config) *Output {
	if cfg.FullFrameInterval <= 0 {
		cfg.FullFrameInterval = 30
	}
	if cfg.ChangeThreshold <= 0 {
		cfg.ChangeThreshold = 4
	}
	if len(cfg.Order) == 0 {
		cfg.Order = OrderRGB
	}
	if cfg.TargetPort <= 0 {
		cfg.TargetPort = Port
	}
	return &Output{cfg: cfg, ring: make([]Decision, 100), m: getMetrics()}
}

func (o *Output) Initialise(ctx context.Context) error {
	addr, err := net.ResolveUDPAddr("udp4", fmt.Sprintf("%s:%d", o.cfg.TargetIP, o.cfg.TargetPort))
	if err != nil {
		return engineerr.Wrap(engineerr.InitFailed, "Initialise", "resolve "+o.cfg.TargetIP, err)
	}
	conn, err := net.DialUDP("udp4", nil, addr)
	if err != nil {
		return engineerr.Wrap(engineerr.InitFailed, "Initialise", "dial udp", err)
	}
	o.conn = conn

	universeCount := (len(o.cfg.Fixtures)*len(o.cfg.Order) + UniverseSize - 1) / UniverseSize
	if universeCount == 0 {
		universeCount = 1
	}
	o.prevUniverses = make([][]byte, universeCount)
	return nil
}

// Send extracts fixture colours from f (nearest-neighbour sampling — chosen
// for determinism and speed; spec §4.8 step 1 leaves the choice open but
// requires it be consistent per output, which it is here), applies colour
// correction and channel order, splits into universes, and transmits.
func (o *Output) Send(f *frame.Frame) error {
	dmx := make([]byte, 0, len(o.cfg.Fixtures)*len(o.cfg.Order))
	for _, px := range o.cfg.Fixtures {
		r, g, b, _, ok := f.At(px.X, px.Y)
		if !ok {
			r, g, b = 0, 0, 0
		}
		dmx = encodeFixture(o.cfg.Order, o.cfg.Correction, r, g, b, dmx)
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	o.frameCounter++

	for u := 0; u < len(o.prevUniverses); u++ {
		lo := u * UniverseSize
		hi := lo + UniverseSize
		if hi > len(dmx) {
			hi = len(dmx)
		}
		if lo >= hi {
			continue
		}
		universeBytes := dmx[lo:hi]
		o.sendUniverse(o.cfg.StartUniverse+u, universeBytes)
	}
	return nil
}

func (o *Output) sendUniverse(universe int, cur []byte) {
	idx := universe - o.cfg.StartUniverse
	prev := o.prevUniverses[idx]

	full, reason := o.decideFull(prev, cur)
	// Every Art-Net ArtDMX packet carries the complete universe payload —
	// the wire protocol has no partial-update opcode — so "delta" mode only
	// changes bookkeeping (bytesSaved), never what's transmitted, matching
	// spec §4.8 step 5's documented implementer note for transports that
	// don't support partial packets.
	pkt := BuildDMXPacket(universe, cur, o.sequence)
	o.sequence++

	if _, err := o.conn.Write(pkt); err == nil {
		o.sent++
		o.bytesSent += uint64(len(pkt))
		o.m.framesSent.WithLabelValues(o.cfg.Name, fmt.Sprint(universe)).Inc()
		o.m.bytesSent.WithLabelValues(o.cfg.Name).Add(float64(len(pkt)))
	}

	if full {
		o.fullCount++
		o.m.framesFull.WithLabelValues(o.cfg.Name, fmt.Sprint(universe)).Inc()
	} else {
		o.deltaCount++
		saved := uint64(0)
		for i := range cur {
			if i < len(prev) && absByte(cur[i], prev[i]) <= byte(o.cfg.ChangeThreshold) {
				saved++
			}
		}
		o.bytesSaved += saved
		o.m.bytesSaved.WithLabelValues(o.cfg.Name).Add(float64(saved))
	}

	o.recordDecision(Decision{Universe: universe, Full: full, Reason: reason, At: time.Now()})

	buf := make([]byte, len(cur))
	copy(buf, cur)
	o.prevUniverses[idx] = buf
}

func (o *Output) decideFull(prev, cur []byte) (full bool, reason string) {
	if !o.cfg.DeltaEnabled {
		return true, "delta disabled"
	}
	if prev == nil {
		return true, "no previous frame"
	}
	if o.frameCounter%o.cfg.FullFrameInterval == 0 {
		return true, "full_frame_interval boundary"
	}
	changed := 0
	for i := range cur {
		var p byte
		if i < len(prev) {
			p = prev[i]
		}
		if absByte(cur[i], p) > byte(o.cfg.ChangeThreshold) {
			changed++
		}
	}
	if len(cur) > 0 && float64(changed)/float64(len(cur)) > 0.8 {
		return true, "changed fraction > 80%"
	}
	return false, "delta"
}

func absByte(a, b byte) byte {
	if a > b {
		return a - b
	}
	return b - a
}

func (o *Output) recordDecision(d Decision) {
	o.ring[o.ringPos%len(o.ring)] = d
	o.ringPos++
}

// Stats reports accumulated counters plus human-readable byte totals.
type Stats struct {
	output.Stats
	FullFrames       uint64
	DeltaFrames      uint64
	BytesSent        uint64
	BytesSaved       uint64
	BytesSentHuman   string
	BytesSavedHuman  string
	RecentDecisions  []Decision
}

func (o *Output) Stats() output.Stats {
	o.mu.Lock()
	defer o.mu.Unlock()
	return output.Stats{FramesSent: o.sent, FramesDropped: o.dropped}
}

// ExtendedStats returns the full Art-Net-specific stats, including the
// humanize-formatted byte totals and the last 100 send decisions.
func (o *Output) ExtendedStats() Stats {
	o.mu.Lock()
	defer o.mu.Unlock()
	recent := make([]Decision, 0, len(o.ring))
	for i := 0; i < len(o.ring); i++ {
		d := o.ring[(o.ringPos+i)%len(o.ring)]
		if !d.At.IsZero() {
			recent = append(recent, d)
		}
	}
	return Stats{
		Stats:           output.Stats{FramesSent: o.sent, FramesDropped: o.dropped},
		FullFrames:      o.fullCount,
		DeltaFrames:     o.deltaCount,
		BytesSent:       o.bytesSent,
		BytesSaved:      o.bytesSaved,
		BytesSentHuman:  humanize.Bytes(o.bytesSent),
		BytesSavedHuman: humanize.Bytes(o.bytesSaved),
		RecentDecisions: recent,
	}
}

func (o *Output) Shutdown() error {
	if o.conn == nil {
		return nil
	}
	// Send a blackout frame on shutdown so fixtures don't hold their last
	// state indefinitely.
	for u := 0; u < len(o.prevUniverses); u++ {
		blank := make([]byte, UniverseSize)
		pkt := BuildDMXPacket(o.cfg.StartUniverse+u, blank, o.sequence)
		_, _ = o.conn.Write(pkt)
	}
	return o.conn.Close()
}
