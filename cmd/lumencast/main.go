// Command lumencast is the engine process: it wires every subsystem package
// together (clip registry, layer stack, slice manager, output manager,
// sequence engine, session store, control plane) into one running pipeline
// and drives it until signalled to stop. Following the teacher's main.go
// shape: print what's running, validate arguments, construct-or-exit, then
// hand off to the long-running loops.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"sort"
	"syscall"
	"time"

	"github.com/lumencast/engine/internal/artnet"
	"github.com/lumencast/engine/internal/bus"
	"github.com/lumencast/engine/internal/clip"
	"github.com/lumencast/engine/internal/config"
	"github.com/lumencast/engine/internal/controlplane"
	"github.com/lumencast/engine/internal/decoder"
	"github.com/lumencast/engine/internal/effect"
	"github.com/lumencast/engine/internal/effect/script"
	"github.com/lumencast/engine/internal/engineerr"
	"github.com/lumencast/engine/internal/layer"
	"github.com/lumencast/engine/internal/logging"
	"github.com/lumencast/engine/internal/output"
	"github.com/lumencast/engine/internal/output/display"
	"github.com/lumencast/engine/internal/player"
	"github.com/lumencast/engine/internal/sequence"
	"github.com/lumencast/engine/internal/sequence/audioanalyser"
	"github.com/lumencast/engine/internal/session"
	"github.com/lumencast/engine/internal/slice"
	"github.com/lumencast/engine/internal/statusmon"
	"github.com/lumencast/engine/internal/uid"
)

// Version is stamped at build time via -ldflags; "dev" outside a release build.
var Version = "dev"

// sessionContainer and sessionBlobName are the engine's fixed Azure mirror
// naming convention, not per-deployment configuration.
const (
	sessionContainer = "lumencast-sessions"
	sessionBlobName  = "session.json"
)

func main() {
	displayEnabled := flag.Bool("display", false, "open a local preview window")
	artnetTarget := flag.String("artnet-target", "", "if set, register an Art-Net output pointed at this IP")
	artnetUniverse := flag.Int("artnet-universe", 0, "starting universe for the Art-Net output")
	monitorEnabled := flag.Bool("monitor", true, "show the terminal status dashboard")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	logging.Init()
	log := logging.Component("main")
	printBanner(cfg)

	uids := uid.New()
	plugins := effect.NewBuiltinRegistry()
	registerScriptPlugin(plugins)

	events := bus.New[clip.Event](cfg.EventBusBufferSize)
	clips := clip.NewRegistry(uids, plugins, events)
	layers := layer.NewStack()
	slices := slice.NewManager()
	outputs := output.NewManager(cfg.OutputQueueCapacity)

	p := player.New(clips, layers, slices, outputs, resolveDecoder, cfg.CanvasWidth, cfg.CanvasHeight, cfg.TargetFPS)

	// No realtime audio capture driver is wired yet (spec names the audio
	// decoder as an external collaborator); audio-kind sequences read 0 via
	// audioanalyser.Null until one is.
	seq := sequence.New(clips, audioanalyser.Null{}, cfg.SequenceThrottle)

	mirror, err := buildMirror(cfg)
	if err != nil {
		log.Error("azure session mirror disabled", "err", err)
		mirror = nil // buildMirror's underlying *AzureMirror is nil on error; discard the interface wrapper too
	}
	store := session.NewStore(cfg.SessionPath, cfg.SessionDebounce, mirror)
	store.Load()
	restoreClips(store, clips, uids, log)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	artnetOutputs := map[string]*artnet.Output{}
	if *artnetTarget != "" {
		if err := registerArtNet(ctx, outputs, *artnetTarget, *artnetUniverse, artnetOutputs, cfg); err != nil {
			log.Error("art-net output registration failed", "err", err)
		}
	}
	if *displayEnabled {
		if err := registerDisplay(ctx, outputs, cfg); err != nil {
			log.Error("display output registration failed", "err", err)
		}
	}

	// svc exposes every control-plane operation as plain Go methods; binding
	// it to an actual transport (HTTP/WebSocket) is outside this repo's scope
	// (spec §1 names the transport as an external collaborator), so it's
	// constructed here for in-process callers (tests, a future server) and
	// otherwise sits idle.
	svc := controlplane.New(clips, outputs, slices, seq, p)
	_ = svc

	var monitor *statusmon.Monitor
	if *monitorEnabled {
		monitor = statusmon.New(outputs, artnetOutputs)
	}

	go p.Run(ctx)
	go runSequenceLoop(ctx, seq, cfg.SequenceEngineHz)
	go store.Run(ctx)
	if monitor != nil {
		go monitor.Run(ctx)
	}

	<-ctx.Done()
	log.Info("shutting down")
	outputs.Shutdown()
}

func printBanner(cfg *config.Config) {
	fmt.Printf("lumencast %s\n", Version)
	fmt.Printf("  Go version: %s\n", runtime.Version())
	fmt.Printf("  OS/Arch:    %s/%s\n", runtime.GOOS, runtime.GOARCH)
	fmt.Println()
	fmt.Println("Active subsystems:")
	active := []string{
		fmt.Sprintf("player @ %d fps, canvas %dx%d", cfg.TargetFPS, cfg.CanvasWidth, cfg.CanvasHeight),
		fmt.Sprintf("sequence engine @ %d hz", cfg.SequenceEngineHz),
		fmt.Sprintf("session store: %s", cfg.SessionPath),
	}
	if cfg.AzureContainerURL != "" {
		active = append(active, "azure session mirror: enabled")
	}
	sort.Strings(active)
	for _, a := range active {
		fmt.Printf("  %s\n", a)
	}
	fmt.Println()
}

// registerScriptPlugin wires the Lua "script" effect kind into the builtin
// registry from here rather than from package effect, which would create an
// import cycle (script imports effect for the Plugin/ParamSpec types). The
// factory always starts from an empty chunk; a control-plane caller type-
// asserts the returned effect.Plugin to *script.Plugin and calls SetSource
// to give an instance its real Lua source after AddEffect.
func registerScriptPlugin(plugins *effect.Registry) {
	plugins.Register("script", func() effect.Plugin {
		p, err := script.New("")
		if err != nil {
			// An empty Lua chunk is always valid; reaching here means
			// gopher-lua itself failed to initialise a state.
			logging.Component("main").Error("script plugin bootstrap failed", "err", err)
			return nil
		}
		return p
	})
}

// resolveDecoder interprets a clip's opaque SourceRef. Only the "generator:"
// scheme is implemented (spec §1 leaves real image/video decoding to an
// external collaborator); any other scheme fails loudly rather than
// returning a silently blank clip.
func resolveDecoder(sourceRef string) (decoder.FrameDecoder, error) {
	switch sourceRef {
	case "generator:colorbars":
		return decoder.ColorBars(320, 240, 300), nil
	default:
		return nil, engineerr.New(engineerr.BadInput, "resolveDecoder", "unrecognised source ref "+sourceRef)
	}
}

func buildMirror(cfg *config.Config) (session.Mirror, error) {
	if cfg.AzureContainerURL == "" {
		return nil, nil
	}
	return session.NewAzureMirror(cfg.AzureContainerURL, sessionContainer, sessionBlobName)
}

func restoreClips(store *session.Store, clips *clip.Registry, uids *uid.Registry, log *slog.Logger) {
	var snaps []clip.ClipSnapshot
	if err := store.Section("clips", &snaps); err != nil {
		log.Warn("clips section unreadable, starting empty", "err", err)
		return
	}
	if len(snaps) == 0 {
		return
	}
	for _, restoreErr := range clips.Restore(snaps) {
		log.Warn("dropped stale effect on restore", "err", restoreErr)
	}
	uids.Rebuild(clips)
}

func registerArtNet(ctx context.Context, outputs *output.Manager, targetIP string, startUniverse int, into map[string]*artnet.Output, cfg *config.Config) error {
	name := "artnet:" + targetIP
	fixtures := make([]artnet.FixturePixel, 0, cfg.CanvasWidth)
	for x := 0; x < cfg.CanvasWidth && len(fixtures)*3 < artnet.UniverseSize; x++ {
		fixtures = append(fixtures, artnet.FixturePixel{X: x, Y: 0})
	}
	an := artnet.New(artnet.Config{
		Name:              name,
		TargetIP:          targetIP,
		TargetPort:        cfg.ArtNetDefaultPort,
		StartUniverse:     startUniverse,
		Fixtures:          fixtures,
		Order:             artnet.OrderRGB,
		Correction:        artnet.DefaultCorrection(),
		DeltaEnabled:      true,
		FullFrameInterval: cfg.ArtNetFullInterval,
	})
	if err := outputs.Register(ctx, name, an, 0); err != nil {
		return err
	}
	if err := outputs.SetSource(name, "canvas"); err != nil {
		return err
	}
	into[name] = an
	return nil
}

func registerDisplay(ctx context.Context, outputs *output.Manager, cfg *config.Config) error {
	d := display.New(display.Config{Width: cfg.CanvasWidth, Height: cfg.CanvasHeight, Scale: 1, Title: "lumencast"})
	if err := outputs.Register(ctx, "display", d, 0); err != nil {
		return err
	}
	return outputs.SetSource("display", "canvas")
}

// runSequenceLoop drives the SequenceEngine on its own ticker, parallel to
// the player loop, per spec §5 ("SequenceEngine runs as its own loop at
// target_fps, or higher for audio").
func runSequenceLoop(ctx context.Context, seq *sequence.Engine, hz int) {
	if hz <= 0 {
		hz = 60
	}
	ticker := time.NewTicker(time.Second / time.Duration(hz))
	defer ticker.Stop()
	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			dt := now.Sub(last).Seconds()
			last = now
			seq.Tick(dt)
		}
	}
}
