package eventbus

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// collector собирает доставленные конверты
type collector struct {
	mu  sync.Mutex
	got []*Envelope
}

func (c *collector) handle(_ context.Context, ev *Envelope) {
	c.mu.Lock()
	c.got = append(c.got, ev)
	c.mu.Unlock()
}

func (c *collector) types() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.got))
	for _, ev := range c.got {
		out = append(out, ev.EventType)
	}
	return out
}

func TestMemoryBus_OrderedDelivery(t *testing.T) {
	bus := NewMemoryBus(64)
	c := &collector{}
	_, err := bus.Subscribe(context.Background(), Filter{}, c.handle)
	require.NoError(t, err)

	ctx := context.Background()
	for _, typ := range []string{"RoundStarted", "Spawned", "Placed", "GameOver"} {
		require.NoError(t, bus.Publish(ctx, &Envelope{EventType: typ, Priority: 9}))
	}
	require.NoError(t, bus.Close())

	assert.Equal(t, []string{"RoundStarted", "Spawned", "Placed", "GameOver"}, c.types())
	stats := bus.Metrics()
	assert.Equal(t, uint64(4), stats.Published)
	assert.Equal(t, uint64(4), stats.Consumed)
}

func TestMemoryBus_Filter(t *testing.T) {
	bus := NewMemoryBus(16)
	overs := &collector{}
	fromA := &collector{}
	ctx := context.Background()

	_, err := bus.Subscribe(ctx, Filter{Types: []string{"GameOver"}}, overs.handle)
	require.NoError(t, err)
	_, err = bus.Subscribe(ctx, Filter{Sources: []string{"a"}}, fromA.handle)
	require.NoError(t, err)

	require.NoError(t, bus.Publish(ctx, &Envelope{EventType: "Placed", Source: "a"}))
	require.NoError(t, bus.Publish(ctx, &Envelope{EventType: "GameOver", Source: "b"}))
	require.NoError(t, bus.Close())

	assert.Equal(t, []string{"GameOver"}, overs.types())
	assert.Equal(t, []string{"Placed"}, fromA.types())
}

func TestMemoryBus_Unsubscribe(t *testing.T) {
	bus := NewMemoryBus(16)
	c := &collector{}
	sub, err := bus.Subscribe(context.Background(), Filter{}, c.handle)
	require.NoError(t, err)
	sub.Unsubscribe()

	require.NoError(t, bus.Publish(context.Background(), &Envelope{EventType: "Placed"}))
	require.NoError(t, bus.Close())
	assert.Empty(t, c.types())
}

func TestMemoryBus_BackPressure(t *testing.T) {
	bus := NewMemoryBus(1)
	release := make(chan struct{})
	started := make(chan struct{}, 1)
	_, err := bus.Subscribe(context.Background(), Filter{}, func(ctx context.Context, ev *Envelope) {
		select {
		case started <- struct{}{}:
		default:
		}
		<-release
	})
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, bus.Publish(ctx, &Envelope{EventType: "first"}))
	<-started // dispatch loop занят первым событием
	require.NoError(t, bus.Publish(ctx, &Envelope{EventType: "fills buffer"}))

	// низкий приоритет отбрасывается без ошибки
	require.NoError(t, bus.Publish(ctx, &Envelope{EventType: "Spawned", Priority: 1}))
	assert.Equal(t, uint64(1), bus.Metrics().Dropped)

	// высокий приоритет ждёт до таймаута
	tctx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	err = bus.Publish(tctx, &Envelope{EventType: "GameOver", Priority: 9})
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	close(release)
	require.NoError(t, bus.Close())
}

func TestMemoryBus_Closed(t *testing.T) {
	bus := NewMemoryBus(4)
	require.NoError(t, bus.Close())
	require.NoError(t, bus.Close())

	assert.ErrorIs(t, bus.Publish(context.Background(), &Envelope{}), ErrBusClosed)
	_, err := bus.Subscribe(context.Background(), Filter{}, func(context.Context, *Envelope) {})
	assert.ErrorIs(t, err, ErrBusClosed)
}

func TestMemoryBus_CloseDeliversAccepted(t *testing.T) {
	ctx := context.Background()
	for i := 0; i < 50; i++ {
		bus := NewMemoryBus(16)
		var delivered atomic.Int64
		_, err := bus.Subscribe(ctx, Filter{}, func(context.Context, *Envelope) { delivered.Add(1) })
		require.NoError(t, err)

		var accepted atomic.Int64
		var wg sync.WaitGroup
		for p := 0; p < 4; p++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for j := 0; j < 50; j++ {
					if bus.Publish(ctx, &Envelope{EventType: "Placed", Priority: HighPriority}) == nil {
						accepted.Add(1)
					}
				}
			}()
		}
		require.NoError(t, bus.Close())
		wg.Wait()

		// всё, что Publish принял, доставлено до выхода Close
		assert.Equal(t, accepted.Load(), delivered.Load())
		assert.Equal(t, uint64(accepted.Load()), bus.Metrics().Published)
	}
}

func TestMetricsExporter_Sync(t *testing.T) {
	bus := NewMemoryBus(8)
	reg := prometheus.NewRegistry()
	me, err := NewMetricsExporter(bus, reg)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, bus.Publish(ctx, &Envelope{EventType: "Placed"}))
	require.NoError(t, bus.Publish(ctx, &Envelope{EventType: "Placed"}))
	require.NoError(t, bus.Close())

	me.sync()
	me.sync() // повторный вызов не удваивает счётчики
	assert.Equal(t, 2.0, testutil.ToFloat64(me.published))
	assert.Equal(t, 0.0, testutil.ToFloat64(me.dropped))

	// повторная регистрация в том же регистре — ошибка
	_, err = NewMetricsExporter(bus, reg)
	assert.Error(t, err)
}

func TestMetricsExporter_StartStop(t *testing.T) {
	bus := NewMemoryBus(8)
	defer bus.Close()
	me, err := NewMetricsExporter(bus, prometheus.NewRegistry())
	require.NoError(t, err)

	me.Start(5 * time.Millisecond)
	require.NoError(t, bus.Publish(context.Background(), &Envelope{EventType: "Placed"}))
	assert.Eventually(t, func() bool {
		return testutil.ToFloat64(me.published) == 1
	}, time.Second, 5*time.Millisecond)
	me.Stop()
	me.Stop()
}

func TestSubject(t *testing.T) {
	assert.Equal(t, "tower.GameOver", Subject("GameOver"))
}
