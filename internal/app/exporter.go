package app

import (
	"io"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"

	ibErrors "github.com/context-labs/ibtop/internal/errors"
	"github.com/context-labs/ibtop/internal/fabric"
	"github.com/context-labs/ibtop/internal/monitor"
)

// exporter renders snapshots in the Prometheus text exposition format for
// --headless --format prom. It keeps its own registry so the process
// collectors are not mixed in.
type exporter struct {
	registry *prometheus.Registry

	portRate    *prometheus.GaugeVec
	portTotal   *prometheus.GaugeVec
	portUp      *prometheus.GaugeVec
	tickLatency *prometheus.GaugeVec
}

func newExporter() *exporter {
	e := &exporter{
		registry: prometheus.NewRegistry(),
		portRate: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "ibtop_port_rate",
				Help: "Per-second rate of a port counter (bytes or packets)",
			},
			[]string{"adapter", "port", "counter"},
		),
		portTotal: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "ibtop_port_total_bytes",
				Help: "Bytes transferred since ibtop started",
			},
			[]string{"adapter", "port", "direction"},
		),
		portUp: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "ibtop_port_up",
				Help: "1 if the port link state is ACTIVE",
			},
			[]string{"adapter", "port"},
		),
		tickLatency: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "ibtop_tick_latency_seconds",
				Help: "Sampling tick latency by statistic",
			},
			[]string{"stat"},
		),
	}
	e.registry.MustRegister(e.portRate)
	e.registry.MustRegister(e.portTotal)
	e.registry.MustRegister(e.portUp)
	e.registry.MustRegister(e.tickLatency)
	return e
}

// Update replaces every series with the snapshot's values. Ports that
// disappeared are dropped rather than left at their last value.
func (e *exporter) Update(snap monitor.Snapshot) {
	e.portRate.Reset()
	e.portTotal.Reset()
	e.portUp.Reset()

	for _, p := range snap.Ports() {
		port := strconv.Itoa(p.Number)
		rates := map[fabric.CounterID]monitor.Rate{
			fabric.RxData:    p.RxBytes,
			fabric.TxData:    p.TxBytes,
			fabric.RxPackets: p.RxPackets,
			fabric.TxPackets: p.TxPackets,
		}
		for id, r := range rates {
			if r.Valid {
				e.portRate.WithLabelValues(p.Adapter, port, string(id)).Set(r.Value)
			}
		}
		if p.Errors.Valid {
			e.portRate.WithLabelValues(p.Adapter, port, "errors").Set(p.Errors.Value)
		}
		e.portTotal.WithLabelValues(p.Adapter, port, "rx").Set(float64(p.RxTotal))
		e.portTotal.WithLabelValues(p.Adapter, port, "tx").Set(float64(p.TxTotal))

		up := 0.0
		if p.State == fabric.StateActive {
			up = 1
		}
		e.portUp.WithLabelValues(p.Adapter, port).Set(up)
	}

	e.tickLatency.WithLabelValues("p50").Set(snap.Latency.P50.Seconds())
	e.tickLatency.WithLabelValues("p99").Set(snap.Latency.P99.Seconds())
	e.tickLatency.WithLabelValues("max").Set(snap.Latency.Max.Seconds())
}

func (e *exporter) Write(out io.Writer) error {
	families, err := e.registry.Gather()
	if err != nil {
		return ibErrors.WrapWithCode(err, ibErrors.ErrFormat, "Cannot gather metrics", "")
	}
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(out, mf); err != nil {
			return ibErrors.WrapWithCode(err, ibErrors.ErrFormat, "Cannot write metrics", "")
		}
	}
	return nil
}
