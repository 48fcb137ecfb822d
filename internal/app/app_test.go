package app

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/annel0/tower-stack/internal/config"
	"github.com/annel0/tower-stack/internal/storage"
	"github.com/annel0/tower-stack/internal/tower"
)

func newApp(t *testing.T, mutate func(*config.Config)) *App {
	t.Helper()
	cfg := config.Default()
	if mutate != nil {
		mutate(cfg)
	}
	a, err := New(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	return a
}

func TestNew_Defaults(t *testing.T) {
	a := newApp(t, nil)

	assert.IsType(t, &storage.MemoryBestScoreRepo{}, a.Best)
	assert.IsType(t, &storage.MemoryRoundRepo{}, a.Rounds)
	assert.Equal(t, "tower:best", a.Keeper.Key())

	a.Session.Restart(context.Background())
	a.Session.Tick(10)
	out := a.Session.Drop(context.Background())
	require.Equal(t, tower.OutcomeMiss, out.Kind)

	assert.Eventually(t, func() bool {
		return a.Bus.Metrics().Published >= 4
	}, time.Second, 10*time.Millisecond)
	assert.Zero(t, a.Publisher.Failures())

	n, err := testutil.GatherAndCount(a.Registry, "tower_session_drops_total")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestNew_FallsBackToMemory(t *testing.T) {
	a := newApp(t, func(c *config.Config) {
		c.Storage.Best = "redis"
		c.Storage.Redis.Addr = "127.0.0.1:1"
		c.Storage.Rounds = "mariadb"
		c.Storage.Maria.Host = "127.0.0.1"
		c.Storage.Maria.Port = 1
		c.EventBus.Backend = "jetstream"
		c.EventBus.URL = "nats://127.0.0.1:1"
	})

	assert.IsType(t, &storage.MemoryBestScoreRepo{}, a.Best)
	assert.IsType(t, &storage.MemoryRoundRepo{}, a.Rounds)
	assert.Equal(t, tower.PhaseIdle, a.Session.Snapshot().Phase)
}

func TestNew_Badger(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "best")
	a := newApp(t, func(c *config.Config) {
		c.Storage.Best = "badger"
		c.Storage.BadgerPath = dir
	})
	assert.IsType(t, &storage.BadgerBestScoreRepo{}, a.Best)
}

func TestNew_BadCodec(t *testing.T) {
	cfg := config.Default()
	cfg.EventBus.Codec = "xml"
	_, err := New(context.Background(), cfg)
	assert.Error(t, err)
}
