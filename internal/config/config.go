// Package config loads engine-wide configuration via viper (env + defaults)
// and validates it with go-playground/validator, following the pattern in
// ThirdCoastInteractive-Rewind/internal/config.
package config

import (
	"fmt"
	"reflect"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Config holds the knobs every subsystem needs at start-up. Per-output and
// per-clip configuration lives in the session document (internal/session),
// not here: this is process-wide, not session state.
type Config struct {
	TargetFPS           int           `mapstructure:"TARGET_FPS" validate:"required,gt=0,lte=240"`
	SequenceEngineHz    int           `mapstructure:"SEQUENCE_ENGINE_HZ" validate:"required,gt=0,lte=1000"`
	SessionPath         string        `mapstructure:"SESSION_PATH" validate:"required"`
	SessionDebounce     time.Duration `mapstructure:"SESSION_DEBOUNCE"`
	ArtNetDefaultPort   int           `mapstructure:"ARTNET_PORT" validate:"required,gt=0,lte=65535"`
	ArtNetFullInterval  int           `mapstructure:"ARTNET_FULL_FRAME_INTERVAL" validate:"gt=0"`
	AzureContainerURL   string        `mapstructure:"AZURE_SESSION_CONTAINER_URL"`
	EventBusBufferSize  int           `mapstructure:"EVENT_BUS_BUFFER_SIZE" validate:"gt=0"`
	OutputQueueCapacity int           `mapstructure:"OUTPUT_QUEUE_CAPACITY" validate:"gt=0"`
	CanvasWidth         int           `mapstructure:"CANVAS_WIDTH" validate:"required,gt=0"`
	CanvasHeight        int           `mapstructure:"CANVAS_HEIGHT" validate:"required,gt=0"`
	SequenceThrottle    time.Duration `mapstructure:"SEQUENCE_THROTTLE"`
}

// bindEnv mirrors every mapstructure tag into viper's env binding, the way
// Rewind's configuration.go walks the struct with reflection instead of
// hand-listing BindEnv calls per field.
func bindEnv(c Config) {
	val := reflect.ValueOf(c)
	typ := val.Type()
	for i := 0; i < val.NumField(); i++ {
		tag := typ.Field(i).Tag.Get("mapstructure")
		if tag != "" {
			_ = viper.BindEnv(tag)
		}
	}
}

// Load reads configuration from the environment (LUMENCAST_-prefixed), layers
// in sane defaults, and validates the result.
func Load() (*Config, error) {
	viper.SetEnvPrefix("LUMENCAST")
	bindEnv(Config{})
	viper.AutomaticEnv()

	viper.SetDefault("TARGET_FPS", 60)
	viper.SetDefault("SEQUENCE_ENGINE_HZ", 60)
	viper.SetDefault("SESSION_PATH", "./session.json")
	viper.SetDefault("SESSION_DEBOUNCE", time.Second)
	viper.SetDefault("ARTNET_PORT", 6454)
	viper.SetDefault("ARTNET_FULL_FRAME_INTERVAL", 30)
	viper.SetDefault("EVENT_BUS_BUFFER_SIZE", 256)
	viper.SetDefault("OUTPUT_QUEUE_CAPACITY", 2)
	viper.SetDefault("CANVAS_WIDTH", 1280)
	viper.SetDefault("CANVAS_HEIGHT", 720)
	viper.SetDefault("SEQUENCE_THROTTLE", 100*time.Millisecond)

	cfg := Config{}
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &cfg, nil
}
