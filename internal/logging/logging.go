// Package logging provides the engine's single structured logger: a
// slog.Logger with a JSON handler and a runtime-adjustable level, following
// the shape of alxayo-rtmp-go's internal/logger (atomic slog.Leveler,
// sync.Once-guarded global, env-var level selection).
package logging

import (
	"log/slog"
	"os"
	"strings"
	"sync"
	"sync/atomic"
)

const envLevel = "LUMENCAST_LOG_LEVEL"

type dynamicLevel struct{ v int64 }

func (d *dynamicLevel) Level() slog.Level { return slog.Level(atomic.LoadInt64(&d.v)) }
func (d *dynamicLevel) set(l slog.Level)  { atomic.StoreInt64(&d.v, int64(l)) }

var (
	level    = &dynamicLevel{v: int64(slog.LevelInfo)}
	global   *slog.Logger
	initOnce sync.Once
)

// Init initializes the global logger. Safe to call multiple times; the first
// call wins except SetLevel, which mutates the shared atomic level.
func Init() *slog.Logger {
	initOnce.Do(func() {
		level.set(detectLevel())
		global = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	})
	return global
}

func detectLevel() slog.Level {
	switch strings.ToLower(os.Getenv(envLevel)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// SetLevel changes the running log level without restarting the process.
func SetLevel(l slog.Level) { level.set(l) }

// L returns the global logger, initializing it on first use.
func L() *slog.Logger {
	if global == nil {
		return Init()
	}
	return global
}

// Component returns a logger scoped with a "component" attribute, the way
// each subsystem (player, output, artnet, sequence...) tags its log lines.
func Component(name string) *slog.Logger {
	return L().With("component", name)
}
