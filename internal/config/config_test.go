package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tower.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_DefaultsWithoutPath(t *testing.T) {
	t.Setenv("TOWER_CONFIG", "")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "tower:best", cfg.Game.BestKey)
	assert.Equal(t, 180.0, cfg.Game.Tuning.BaseWidth)
	assert.Equal(t, time.Second/60, cfg.Game.TickInterval())
}

func TestLoad_OverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
game:
  policy: ramp
  lock_release: ack
  ack_delay_ms: 150
  tuning:
    base_width: 220
storage:
  best: badger
  badger_path: /tmp/best
eventbus:
  backend: jetstream
  codec: proto
server:
  rest_port: 9000
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "ramp", cfg.Game.Policy)
	assert.Equal(t, 150*time.Millisecond, cfg.Game.AckDelay())
	assert.Equal(t, 220.0, cfg.Game.Tuning.BaseWidth)
	// незаданные поля tuning остаются по умолчанию
	assert.Equal(t, 15.0, cfg.Game.Tuning.MinBlockWidth)
	assert.Equal(t, "badger", cfg.Storage.Best)
	assert.Equal(t, "proto", cfg.EventBus.Codec)
	assert.Equal(t, 9000, cfg.Server.GetRESTPort())
}

func TestLoad_FromEnv(t *testing.T) {
	path := writeConfig(t, "game:\n  best_key: custom:best\n")
	t.Setenv("TOWER_CONFIG", path)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "custom:best", cfg.Game.BestKey)
}

func TestLoad_Invalid(t *testing.T) {
	_, err := Load(writeConfig(t, "game:\n  policy: turbo\n"))
	assert.Error(t, err)

	_, err = Load(writeConfig(t, "storage:\n  best: floppy\n"))
	assert.Error(t, err)

	_, err = Load(writeConfig(t, "game:\n  tuning:\n    min_block_width: 0\n"))
	assert.Error(t, err)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = Load(writeConfig(t, "log_levels:\n  session: loud\n"))
	assert.Error(t, err)
}

func TestLoad_LogLevels(t *testing.T) {
	cfg, err := Load(writeConfig(t, "log_levels:\n  session: debug\n  storage: warn\n"))
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"session": "debug", "storage": "warn"}, cfg.LogLevels)
}

func TestPortEnvFallback(t *testing.T) {
	var s ServerConfig
	t.Setenv("TOWER_REST_PORT", "")
	assert.Equal(t, 8088, s.GetRESTPort())

	t.Setenv("TOWER_GRPC_PORT", "7001")
	assert.Equal(t, 7001, s.GetGRPCPort())

	t.Setenv("TOWER_GRPC_PORT", "nope")
	assert.Equal(t, 9090, s.GetGRPCPort())
}
