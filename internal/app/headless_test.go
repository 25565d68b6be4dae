package app

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ibErrors "github.com/context-labs/ibtop/internal/errors"
	"github.com/context-labs/ibtop/internal/fabric"
	"github.com/context-labs/ibtop/internal/monitor"
)

func headlessSnapshot() monitor.Snapshot {
	pending := monitor.PortView{Adapter: "mlx5_0", Number: 2, State: fabric.StateDown, Status: fabric.StatusPending}
	failed := monitor.PortView{Adapter: "mlx5_1", Number: 1, State: fabric.StateActive, Status: fabric.StatusFailed}
	p := activePort("mlx5_0", 1, 1024, 2048)
	p.RxTotal = 4096
	return testSnapshot(p, pending, failed)
}

func TestRunHeadlessJSON(t *testing.T) {
	var out bytes.Buffer
	sampler := &fakeSampler{snap: headlessSnapshot()}
	cfg := Config{Interval: time.Millisecond, Count: 2, Format: FormatJSON}

	require.NoError(t, runHeadless(context.Background(), cfg, sampler, HostInfo{Hostname: "node1"}, &out))
	assert.Equal(t, 2, sampler.ticks)

	scanner := bufio.NewScanner(&out)
	lines := 0
	for scanner.Scan() {
		lines++
		var rec map[string]any
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &rec))
		assert.Equal(t, "node1", rec["host"].(map[string]any)["hostname"])

		snap := rec["snapshot"].(map[string]any)
		adapters := snap["adapters"].([]any)
		require.Len(t, adapters, 2)
		ports := adapters[0].(map[string]any)["ports"].([]any)
		first := ports[0].(map[string]any)
		assert.Equal(t, "ACTIVE", first["state"])
		assert.Equal(t, 1024.0, first["rx_bytes_per_sec"])
		assert.Equal(t, 4096.0, first["rx_bytes_total"])

		second := ports[1].(map[string]any)
		assert.Equal(t, "pending", second["status"])
		assert.Nil(t, second["rx_bytes_per_sec"], "rates are null until two samples exist")
	}
	assert.Equal(t, 2, lines)
}

func TestRunHeadlessProm(t *testing.T) {
	var out bytes.Buffer
	cfg := Config{Interval: time.Millisecond, Count: 1, Format: FormatProm}

	require.NoError(t, runHeadless(context.Background(), cfg, &fakeSampler{snap: headlessSnapshot()}, HostInfo{}, &out))

	text := out.String()
	assert.Contains(t, text, "# TYPE ibtop_port_rate gauge")
	assert.Contains(t, text, `ibtop_port_rate{adapter="mlx5_0",counter="rx_data",port="1"} 1024`)
	assert.Contains(t, text, `ibtop_port_rate{adapter="mlx5_0",counter="tx_data",port="1"} 2048`)
	assert.Contains(t, text, `ibtop_port_up{adapter="mlx5_0",port="1"} 1`)
	assert.Contains(t, text, `ibtop_port_up{adapter="mlx5_0",port="2"} 0`)
	assert.Contains(t, text, `ibtop_port_total_bytes{adapter="mlx5_0",direction="rx",port="1"} 4096`)
	assert.NotContains(t, text, `counter="rx_data",port="2"`, "pending rates are not exported")
	assert.Contains(t, text, `ibtop_tick_latency_seconds{stat="p99"}`)
}

func TestExporterDropsVanishedPorts(t *testing.T) {
	exp := newExporter()
	exp.Update(headlessSnapshot())
	exp.Update(testSnapshot(activePort("mlx5_9", 1, 1, 1)))

	var out bytes.Buffer
	require.NoError(t, exp.Write(&out))
	assert.NotContains(t, out.String(), "mlx5_0")
	assert.Contains(t, out.String(), "mlx5_9")
}

func TestRunHeadlessText(t *testing.T) {
	var out bytes.Buffer
	cfg := Config{Interval: time.Millisecond, Count: 1, Format: FormatText}

	require.NoError(t, runHeadless(context.Background(), cfg, &fakeSampler{snap: headlessSnapshot()}, HostInfo{Hostname: "node1"}, &out))

	lines := strings.Split(strings.TrimRight(out.String(), "\n"), "\n")
	require.Len(t, lines, 4)
	assert.Contains(t, lines[0], "node1")
	assert.Contains(t, lines[1], "1.0 KB/s")
	assert.Contains(t, lines[2], placeholderPending)
	assert.Contains(t, lines[3], placeholderFailed)
}

func TestRunHeadlessTextNoAdapters(t *testing.T) {
	var out bytes.Buffer
	cfg := Config{Interval: time.Millisecond, Count: 1, Format: FormatText}

	require.NoError(t, runHeadless(context.Background(), cfg, &fakeSampler{}, HostInfo{}, &out))
	assert.Contains(t, out.String(), noAdaptersMessage)
}

func TestRunHeadlessStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	sampler := &fakeSampler{onTick: func(n int) {
		if n == 2 {
			cancel()
		}
	}}
	cfg := Config{Interval: time.Millisecond, Format: FormatJSON}

	var out bytes.Buffer
	require.NoError(t, runHeadless(ctx, cfg, sampler, HostInfo{}, &out))
	assert.GreaterOrEqual(t, sampler.ticks, 2)
}

func TestRunHeadlessUnknownFormat(t *testing.T) {
	err := runHeadless(context.Background(), Config{Interval: time.Millisecond, Format: "xml"}, &fakeSampler{}, HostInfo{}, &bytes.Buffer{})
	require.Error(t, err)
	assert.True(t, ibErrors.IsCode(err, ibErrors.ErrConfig))
}
