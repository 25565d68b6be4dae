// Copyright (c) 2024-2026 Carsen Klock under MIT License

// Package monitor runs one sampling tick at a time: discovery, counter
// reads, rate updates and history, producing an immutable Snapshot.
package monitor

import (
	"context"
	"runtime"
	"time"

	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"

	ibErrors "github.com/context-labs/ibtop/internal/errors"
	"github.com/context-labs/ibtop/internal/fabric"
	"github.com/context-labs/ibtop/internal/logger"
)

// DefaultConcurrency bounds parallel port reads within a tick.
const DefaultConcurrency = 4

// Options configures a Monitor. Zero values select the defaults.
type Options struct {
	Root        string
	Table       *fabric.CompatTable
	Concurrency int
	// Smoothing is the EMA alpha for displayed rates; 0 disables it.
	Smoothing   float64
	HistorySize int
	Clock       func() time.Time
	Logger      logger.Logger
}

// Monitor owns all state carried between ticks. It is not safe for
// concurrent use; the render loop is its only caller.
type Monitor struct {
	fsys    afero.Fs
	opts    Options
	store   *fabric.Store
	history *History
	diag    *diagnostics
	latency *tickLatency
}

type readResult struct {
	reading fabric.Reading
	err     error
}

// New creates a Monitor reading the tree in fsys.
func New(fsys afero.Fs, opts Options) *Monitor {
	if opts.Root == "" {
		opts.Root = fabric.DefaultRoot
	}
	if opts.Table == nil {
		opts.Table = fabric.DefaultCompatTable()
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultConcurrency
	}
	if opts.Concurrency > runtime.NumCPU()*4 {
		opts.Concurrency = runtime.NumCPU() * 4
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = logger.Noop()
	}
	return &Monitor{
		fsys:    fsys,
		opts:    opts,
		store:   fabric.NewStore(),
		history: NewHistory(opts.HistorySize),
		diag:    newDiagnostics(opts.Logger),
		latency: newTickLatency(),
	}
}

// Check fails with a startup error when the discovery root is unreadable.
func (m *Monitor) Check() error {
	return fabric.CheckRoot(m.fsys, m.opts.Root)
}

// Store exposes the reconciled adapters and ports.
func (m *Monitor) Store() *fabric.Store {
	return m.store
}

// History exposes the per-port throughput history.
func (m *Monitor) History() *History {
	return m.history
}

// Tick runs discovery, reads every port and folds the readings into the
// counter series. A failing port never aborts the tick; only context
// cancellation does.
func (m *Monitor) Tick(ctx context.Context) (Snapshot, error) {
	start := m.opts.Clock()
	var rootErr string

	found, err := fabric.Discover(m.fsys, m.opts.Root, m.opts.Table)
	if err != nil {
		rootErr = ibErrors.OneLine(err)
		m.diag.once("root", "discovery root unavailable: %s", rootErr)
		found = nil
	} else {
		m.diag.clear("root")
	}

	removed := m.store.Reconcile(found)
	if len(removed) > 0 {
		m.history.Remove(removed...)
		for _, k := range removed {
			m.diag.clearPrefix("read:" + k.String())
			m.opts.Logger.Info("port %s removed", k)
		}
	}

	ports := m.store.Ports()
	results, err := m.readAll(ctx, ports)
	if err != nil {
		return Snapshot{}, err
	}

	var aggRx, aggTx float64
	for i, p := range ports {
		k := p.Key()
		res := results[i]
		if res.err != nil {
			p.Fail(res.err)
			m.diag.once("read:"+k.String(), "port %s: %s", k, ibErrors.OneLine(res.err))
			continue
		}
		m.diag.clear("read:" + k.String())

		for _, path := range res.reading.Malformed {
			m.diag.once("format:"+path, "ignoring malformed counter %s", path)
		}

		p.Apply(res.reading, m.opts.Table.Layout(p.Adapter.Vendor), m.opts.Smoothing)
		if p.Status != fabric.StatusOK {
			continue
		}
		s := sampleOf(p)
		m.history.Record(k, s)
		aggRx += s.RxBytes
		aggTx += s.TxBytes
	}
	m.history.RecordAggregate(aggRx, aggTx)

	m.latency.record(m.opts.Clock().Sub(start))
	snap := m.snapshot(start)
	snap.RootErr = rootErr
	return snap, nil
}

func (m *Monitor) readAll(ctx context.Context, ports []*fabric.Port) ([]readResult, error) {
	results := make([]readResult, len(ports))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.opts.Concurrency)

	for i, p := range ports {
		dir := p.Dir
		layout := m.opts.Table.Layout(p.Adapter.Vendor)
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			r, err := fabric.ReadPort(m.fsys, dir, layout, m.opts.Clock)
			results[i] = readResult{reading: r, err: err}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func sampleOf(p *fabric.Port) Sample {
	var s Sample
	s.RxBytes, _ = p.Rate(fabric.RxData)
	s.TxBytes, _ = p.Rate(fabric.TxData)
	s.RxPackets, _ = p.Rate(fabric.RxPackets)
	s.TxPackets, _ = p.Rate(fabric.TxPackets)
	s.Errors, _ = p.ErrorRate()
	return s
}

func (m *Monitor) snapshot(at time.Time) Snapshot {
	snap := Snapshot{Time: at, Latency: m.latency.stats()}
	for _, a := range m.store.Adapters() {
		av := AdapterView{Name: a.Name, Vendor: string(a.Vendor), Description: a.Description}
		for _, p := range a.Ports {
			pv := viewOf(p, m.history)
			av.Ports = append(av.Ports, pv)

			snap.Totals.Ports++
			if p.State == fabric.StateActive {
				snap.Totals.ActivePorts++
			}
			if p.Status == fabric.StatusOK {
				snap.Totals.RxBytes += pv.RxBytes.Value
				snap.Totals.TxBytes += pv.TxBytes.Value
			}
		}
		snap.Adapters = append(snap.Adapters, av)
	}
	snap.Totals.Adapters = len(snap.Adapters)
	snap.Totals.RxHistory, snap.Totals.TxHistory = m.history.Aggregate(m.history.size)
	return snap
}
