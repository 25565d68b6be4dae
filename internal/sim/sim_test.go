package sim

import (
	"context"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/context-labs/ibtop/internal/fabric"
	"github.com/context-labs/ibtop/internal/monitor"
)

var start = time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)

func TestTreeIsDiscoverable(t *testing.T) {
	f, err := New(1, start)
	require.NoError(t, err)

	adapters, err := fabric.Discover(f.Fs(), Root, fabric.DefaultCompatTable())
	require.NoError(t, err)

	var names []string
	for _, a := range adapters {
		names = append(names, a.Name)
		assert.Equal(t, fabric.VendorTag("mlx5"), a.Vendor)
	}
	assert.Equal(t, []string{"mlx5_0", "mlx5_1", "mlx5_2", "mlx5_bond0"}, names)
	assert.Len(t, adapters[0].Ports, 2)
	assert.Equal(t, "demo: MPI Collective, RDMA Stream", adapters[0].Description)
	assert.Equal(t, "demo: Periodic Load", adapters[2].Description)
}

func TestStepAdvancesActivePortsOnly(t *testing.T) {
	f, err := New(7, start)
	require.NoError(t, err)

	read := func(path string) string {
		b, err := afero.ReadFile(f.Fs(), Root+path)
		require.NoError(t, err)
		return string(b)
	}
	before := read("/mlx5_1/ports/1/counters/port_rcv_data")
	require.NoError(t, f.Step(start.Add(time.Second)))

	assert.NotEqual(t, before, read("/mlx5_1/ports/1/counters/port_rcv_data"))
	assert.Equal(t, "0\n", read("/mlx5_0/ports/2/counters/port_rcv_data"))

	// stepping backwards is a no-op
	after := read("/mlx5_1/ports/1/counters/port_rcv_data")
	require.NoError(t, f.Step(start))
	assert.Equal(t, after, read("/mlx5_1/ports/1/counters/port_rcv_data"))
}

func TestFsIsReadOnly(t *testing.T) {
	f, err := New(1, start)
	require.NoError(t, err)
	assert.Error(t, afero.WriteFile(f.Fs(), Root+"/mlx5_0/ports/1/state", []byte("1: DOWN"), 0644))
}

func TestSimulatedRatesThroughMonitor(t *testing.T) {
	f, err := New(3, start)
	require.NoError(t, err)

	now := start
	m := monitor.New(f.Fs(), monitor.Options{Root: Root, Clock: func() time.Time { return now }})

	var snap monitor.Snapshot
	for i := 0; i < 3; i++ {
		now = now.Add(time.Second)
		require.NoError(t, f.Step(now))
		snap, err = m.Tick(context.Background())
		require.NoError(t, err)
	}

	for _, p := range snap.Ports() {
		if p.State != fabric.StateActive {
			assert.Equal(t, 0.0, p.RxBytes.Value)
			continue
		}
		require.True(t, p.RxBytes.Valid, "%s/%d", p.Adapter, p.Number)
		assert.Greater(t, p.RxBytes.Value+p.TxBytes.Value, 0.0)
	}
	assert.Greater(t, snap.Totals.RxBytes, 1e9)
}
