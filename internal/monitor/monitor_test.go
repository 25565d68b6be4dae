package monitor

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ibErrors "github.com/context-labs/ibtop/internal/errors"
	"github.com/context-labs/ibtop/internal/fabric"
	"github.com/context-labs/ibtop/internal/logger"
)

const testRoot = "/sys/class/infiniband"

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func portDir(adapter string, port int) string {
	return filepath.Join(testRoot, adapter, "ports", fmt.Sprint(port))
}

func writeCounters(t *testing.T, fsys afero.Fs, adapter string, port int, tx, rx uint64) {
	t.Helper()
	dir := portDir(adapter, port)
	require.NoError(t, fsys.MkdirAll(filepath.Join(dir, "counters"), 0755))
	require.NoError(t, fsys.MkdirAll(filepath.Join(dir, "hw_counters"), 0755))
	files := map[string]string{
		"state":                      "4: ACTIVE",
		"rate":                       "100 Gb/sec (4X EDR)",
		"counters/port_xmit_data":    fmt.Sprint(tx),
		"counters/port_rcv_data":     fmt.Sprint(rx),
		"counters/port_xmit_packets": fmt.Sprint(tx / 1024),
		"counters/port_rcv_packets":  fmt.Sprint(rx / 1024),
	}
	for name, v := range files {
		require.NoError(t, afero.WriteFile(fsys, filepath.Join(dir, name), []byte(v+"\n"), 0644))
	}
}

func newTestMonitor(fsys afero.Fs, clock *fakeClock, log logger.Logger, concurrency int) *Monitor {
	return New(fsys, Options{
		Root:        testRoot,
		Concurrency: concurrency,
		Clock:       clock.Now,
		Logger:      log,
	})
}

func TestTickComputesWordScaledRates(t *testing.T) {
	fsys := afero.NewMemMapFs()
	clock := newFakeClock()
	writeCounters(t, fsys, "mlx5_0", 1, 0, 1000)
	m := newTestMonitor(fsys, clock, logger.Noop(), 2)

	snap, err := m.Tick(context.Background())
	require.NoError(t, err)
	require.Len(t, snap.Adapters, 1)
	pv := snap.Adapters[0].Ports[0]
	assert.Equal(t, fabric.StatusPending, pv.Status)
	assert.False(t, pv.RxBytes.Valid)

	clock.Advance(time.Second)
	writeCounters(t, fsys, "mlx5_0", 1, 0, 1500)
	snap, err = m.Tick(context.Background())
	require.NoError(t, err)

	pv = snap.Adapters[0].Ports[0]
	assert.Equal(t, fabric.StatusOK, pv.Status)
	assert.Equal(t, "mlx5", snap.Adapters[0].Vendor)
	assert.Equal(t, Rate{Value: 2000, Valid: true}, pv.RxBytes)
	assert.Equal(t, uint64(2000), pv.RxTotal)
	assert.Equal(t, 2000.0, snap.Totals.RxBytes)
	assert.Equal(t, 1, snap.Totals.ActivePorts)
	assert.Equal(t, []float64{2000}, pv.History)
}

func TestTickIsolatesFailingPort(t *testing.T) {
	fsys := afero.NewMemMapFs()
	clock := newFakeClock()
	buf := logger.NewBufferLogger()
	for _, a := range []string{"mlx5_0", "mlx5_1", "mlx5_2"} {
		writeCounters(t, fsys, a, 1, 0, 0)
	}
	m := newTestMonitor(fsys, clock, buf, 3)

	_, err := m.Tick(context.Background())
	require.NoError(t, err)
	clock.Advance(time.Second)
	for _, a := range []string{"mlx5_0", "mlx5_1", "mlx5_2"} {
		writeCounters(t, fsys, a, 1, 250, 250)
	}
	_, err = m.Tick(context.Background())
	require.NoError(t, err)

	require.NoError(t, fsys.RemoveAll(filepath.Join(portDir("mlx5_1", 1), "counters")))
	for i := 0; i < 3; i++ {
		clock.Advance(time.Second)
		writeCounters(t, fsys, "mlx5_0", 1, 1250, 1250)
		writeCounters(t, fsys, "mlx5_2", 1, 1250, 1250)
		require.NoError(t, fsys.RemoveAll(filepath.Join(portDir("mlx5_1", 1), "counters")))

		snap, err := m.Tick(context.Background())
		require.NoError(t, err)
		ports := snap.Ports()
		require.Len(t, ports, 3)

		assert.Equal(t, fabric.StatusFailed, ports[1].Status)
		assert.NotEmpty(t, ports[1].Error)
		assert.Equal(t, 1000.0, ports[1].RxBytes.Value, "failed port keeps its previous rate")
		assert.Equal(t, fabric.StatusOK, ports[0].Status)
		assert.Equal(t, fabric.StatusOK, ports[2].Status)
	}
	assert.Equal(t, 1, buf.Count("warn"), "one diagnostic per failing port")
}

func TestTickMalformedCounterLoggedOnce(t *testing.T) {
	fsys := afero.NewMemMapFs()
	clock := newFakeClock()
	buf := logger.NewBufferLogger()
	writeCounters(t, fsys, "mlx5_0", 1, 0, 0)
	bad := filepath.Join(portDir("mlx5_0", 1), "counters", "port_rcv_errors")
	require.NoError(t, afero.WriteFile(fsys, bad, []byte("n/a\n"), 0644))
	m := newTestMonitor(fsys, clock, buf, 1)

	for i := 0; i < 3; i++ {
		_, err := m.Tick(context.Background())
		require.NoError(t, err)
		clock.Advance(time.Second)
	}
	require.Equal(t, 1, buf.Count("warn"))
	assert.Contains(t, buf.Messages[0].Message, "port_rcv_errors")
}

func TestTickHotUnplug(t *testing.T) {
	fsys := afero.NewMemMapFs()
	clock := newFakeClock()
	writeCounters(t, fsys, "mlx5_0", 1, 0, 0)
	writeCounters(t, fsys, "mlx5_1", 1, 0, 0)
	m := newTestMonitor(fsys, clock, logger.Noop(), 2)

	for i := 0; i < 2; i++ {
		_, err := m.Tick(context.Background())
		require.NoError(t, err)
		clock.Advance(time.Second)
	}
	require.Equal(t, 1, m.History().depth(fabric.Key{Adapter: "mlx5_1", Port: 1}))

	require.NoError(t, fsys.RemoveAll(filepath.Join(testRoot, "mlx5_1")))
	snap, err := m.Tick(context.Background())
	require.NoError(t, err)
	require.Len(t, snap.Adapters, 1)
	assert.Equal(t, "mlx5_0", snap.Adapters[0].Name)
	assert.Zero(t, m.History().depth(fabric.Key{Adapter: "mlx5_1", Port: 1}))
	assert.Nil(t, m.Store().Lookup(fabric.Key{Adapter: "mlx5_1", Port: 1}))
}

func TestTickRootVanishes(t *testing.T) {
	fsys := afero.NewMemMapFs()
	clock := newFakeClock()
	buf := logger.NewBufferLogger()
	writeCounters(t, fsys, "mlx5_0", 1, 0, 0)
	m := newTestMonitor(fsys, clock, buf, 1)
	require.NoError(t, m.Check())

	_, err := m.Tick(context.Background())
	require.NoError(t, err)

	require.NoError(t, fsys.RemoveAll(testRoot))
	for i := 0; i < 2; i++ {
		clock.Advance(time.Second)
		snap, err := m.Tick(context.Background())
		require.NoError(t, err)
		assert.Empty(t, snap.Adapters)
		assert.NotEmpty(t, snap.RootErr)
	}
	assert.Equal(t, 1, buf.Count("warn"))
	assert.True(t, ibErrors.IsCode(m.Check(), ibErrors.ErrStartup))
}

func TestConcurrencyDoesNotChangeOrder(t *testing.T) {
	build := func(concurrency int) []string {
		fsys := afero.NewMemMapFs()
		clock := newFakeClock()
		for a := 0; a < 5; a++ {
			for p := 1; p <= 2; p++ {
				writeCounters(t, fsys, fmt.Sprintf("mlx5_%d", a), p, uint64(a*10+p), uint64(a*10+p))
			}
		}
		m := newTestMonitor(fsys, clock, logger.Noop(), concurrency)
		snap, err := m.Tick(context.Background())
		require.NoError(t, err)

		var keys []string
		for _, p := range snap.Ports() {
			keys = append(keys, fmt.Sprintf("%s/%d", p.Adapter, p.Number))
		}
		return keys
	}

	assert.Equal(t, build(1), build(8))
	assert.Len(t, build(3), 10)
}

func TestTickCancelledContext(t *testing.T) {
	fsys := afero.NewMemMapFs()
	writeCounters(t, fsys, "mlx5_0", 1, 0, 0)
	m := newTestMonitor(fsys, newFakeClock(), logger.Noop(), 1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := m.Tick(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestLatencyStatsRecorded(t *testing.T) {
	fsys := afero.NewMemMapFs()
	writeCounters(t, fsys, "mlx5_0", 1, 0, 0)
	m := newTestMonitor(fsys, newFakeClock(), logger.Noop(), 1)

	snap, err := m.Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), snap.Latency.Count)
	assert.GreaterOrEqual(t, snap.Latency.P50, time.Microsecond)
	assert.Less(t, snap.Latency.P50, 10*time.Microsecond)
}
