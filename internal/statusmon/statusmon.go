// Package statusmon implements a terminal status dashboard: the operational
// introspection analogue of the teacher's debug overlay (debug_overlay.go /
// debug_monitor.go — CPU/video/audio register dumps), here showing live
// OutputManager and Art-Net emitter stats instead. The periodic
// redraw-from-a-ticker shape follows terminal_host.go's PrintOutput
// pattern ("drains ... periodically from the main loop"), generalised from
// raw-mode stdin echo to a formatted live view via golang.org/x/term.
package statusmon

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"golang.org/x/term"

	"github.com/lumencast/engine/internal/artnet"
	"github.com/lumencast/engine/internal/output"
)

// Monitor periodically redraws a text dashboard of every registered
// output's stats, with extended Art-Net delta/byte-savings detail for any
// output backed by an artnet.Output.
type Monitor struct {
	Outputs  *output.Manager
	ArtNet   map[string]*artnet.Output // output name -> emitter, for extended stats
	Interval time.Duration
}

// New creates a Monitor redrawing twice a second by default.
func New(outputs *output.Manager, artnetOutputs map[string]*artnet.Output) *Monitor {
	return &Monitor{Outputs: outputs, ArtNet: artnetOutputs, Interval: 500 * time.Millisecond}
}

// Run redraws the dashboard on Interval until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) {
	interval := m.Interval
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.render()
		}
	}
}

func (m *Monitor) render() {
	width := 80
	if w, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && w > 0 {
		width = w
	}

	var b strings.Builder
	b.WriteString("\x1b[2J\x1b[H") // clear screen, home cursor
	b.WriteString(strings.Repeat("-", width) + "\n")
	fmt.Fprintf(&b, "%-20s %-10s %-10s %-8s\n", "output", "sent", "dropped", "queue")

	names := m.Outputs.Names()
	sort.Strings(names)
	for _, name := range names {
		stats, err := m.Outputs.Stats(name)
		if err != nil {
			continue
		}
		fmt.Fprintf(&b, "%-20s %-10d %-10d %-8d\n", name, stats.FramesSent, stats.FramesDropped, stats.QueueDepth)
		if an, ok := m.ArtNet[name]; ok {
			ext := an.ExtendedStats()
			fmt.Fprintf(&b, "  %-18s full=%-8d delta=%-8d sent=%-10s saved=%-10s\n",
				"art-net", ext.FullFrames, ext.DeltaFrames, ext.BytesSentHuman, ext.BytesSavedHuman)
		}
	}
	b.WriteString(strings.Repeat("-", width) + "\n")
	os.Stdout.WriteString(b.String())
}
