package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 60, cfg.TargetFPS)
	assert.Equal(t, 1280, cfg.CanvasWidth)
	assert.Equal(t, 720, cfg.CanvasHeight)
	assert.Equal(t, 6454, cfg.ArtNetDefaultPort)
}

func TestLoadHonoursEnvOverride(t *testing.T) {
	t.Setenv("LUMENCAST_TARGET_FPS", "30")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 30, cfg.TargetFPS)
}
