// Copyright (c) 2024-2026 Carsen Klock under MIT License

// Package sim fabricates an in-memory /sys/class/infiniband tree with
// realistic traffic so the dashboard can run on machines without HCAs.
package sim

import (
	"fmt"
	"math"
	"math/rand/v2"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/afero"
)

// Root is where the simulated tree is mounted inside the in-memory fs.
const Root = "/sys/class/infiniband"

// Pattern is the traffic shape a simulated port follows.
type Pattern int

const (
	Burst Pattern = iota
	Steady
	Wave
	Interactive
	Congestion
)

func (p Pattern) String() string {
	switch p {
	case Burst:
		return "MPI Collective"
	case Steady:
		return "RDMA Stream"
	case Wave:
		return "Periodic Load"
	case Interactive:
		return "Interactive"
	case Congestion:
		return "Congested"
	}
	return "Unknown"
}

func (p Pattern) packetSize() float64 {
	switch p {
	case Burst:
		return 4096
	case Steady:
		return 65536
	case Wave:
		return 8192
	case Interactive:
		return 512
	default:
		return 32768
	}
}

func (p Pattern) errorProbability() float64 {
	switch p {
	case Steady:
		return 0.00005
	case Interactive:
		return 0.0002
	case Congestion:
		return 0.002
	default:
		return 0.0001
	}
}

type simPort struct {
	adapter  string
	number   int
	state    string
	rate     string
	pattern  Pattern
	maxBytes float64
	rxRatio  float64

	rxWords, txWords     uint64
	rxPackets, txPackets uint64
	rxErrors, txDiscards uint64
}

func defaultPorts() []*simPort {
	return []*simPort{
		{adapter: "mlx5_0", number: 1, state: "4: ACTIVE", rate: "100 Gb/sec (4X EDR)", pattern: Burst, maxBytes: 12.5e9, rxRatio: 0.55},
		{adapter: "mlx5_0", number: 2, state: "1: DOWN", rate: "100 Gb/sec (4X EDR)", pattern: Steady, maxBytes: 12.5e9, rxRatio: 0.5},
		{adapter: "mlx5_1", number: 1, state: "4: ACTIVE", rate: "200 Gb/sec (4X HDR)", pattern: Steady, maxBytes: 25e9, rxRatio: 0.48},
		{adapter: "mlx5_2", number: 1, state: "4: ACTIVE", rate: "400 Gb/sec (4X NDR)", pattern: Wave, maxBytes: 50e9, rxRatio: 0.52},
		{adapter: "mlx5_bond0", number: 1, state: "4: ACTIVE", rate: "200 Gb/sec (Bonded)", pattern: Interactive, maxBytes: 25e9, rxRatio: 0.7},
		{adapter: "mlx5_bond0", number: 2, state: "4: ACTIVE", rate: "200 Gb/sec (Bonded)", pattern: Congestion, maxBytes: 25e9, rxRatio: 0.3},
	}
}

// Fabric owns the simulated tree. Step advances the counters.
type Fabric struct {
	fs      afero.Fs
	rng     *rand.Rand
	ports   []*simPort
	started time.Time
	last    time.Time
}

// New builds the tree on a fresh MemMapFs. The seed makes runs reproducible.
func New(seed uint64, start time.Time) (*Fabric, error) {
	f := &Fabric{
		fs:      afero.NewMemMapFs(),
		rng:     rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		ports:   defaultPorts(),
		started: start,
		last:    start,
	}
	for _, p := range f.ports {
		dir := p.dir()
		for _, sub := range []string{"counters", "hw_counters"} {
			if err := f.fs.MkdirAll(filepath.Join(dir, sub), 0755); err != nil {
				return nil, err
			}
		}
		static := map[string]string{
			"state":      p.state,
			"rate":       p.rate,
			"link_layer": "InfiniBand",
		}
		for name, v := range static {
			if err := afero.WriteFile(f.fs, filepath.Join(dir, name), []byte(v+"\n"), 0444); err != nil {
				return nil, err
			}
		}
		if err := f.flush(p); err != nil {
			return nil, err
		}
	}
	if err := f.writeNodeDescs(); err != nil {
		return nil, err
	}
	return f, nil
}

// writeNodeDescs names each adapter after the traffic its ports simulate,
// e.g. "demo: MPI Collective, RDMA Stream".
func (f *Fabric) writeNodeDescs() error {
	var order []string
	patterns := map[string][]string{}
	for _, p := range f.ports {
		if _, ok := patterns[p.adapter]; !ok {
			order = append(order, p.adapter)
		}
		patterns[p.adapter] = append(patterns[p.adapter], p.pattern.String())
	}
	for _, adapter := range order {
		desc := "demo: " + strings.Join(patterns[adapter], ", ")
		path := filepath.Join(Root, adapter, "node_desc")
		if err := afero.WriteFile(f.fs, path, []byte(desc+"\n"), 0444); err != nil {
			return err
		}
	}
	return nil
}

// Fs exposes the tree read-only.
func (f *Fabric) Fs() afero.Fs {
	return afero.NewReadOnlyFs(f.fs)
}

// Step advances every active port by the traffic generated since the
// previous step.
func (f *Fabric) Step(now time.Time) error {
	dt := now.Sub(f.last).Seconds()
	if dt <= 0 {
		return nil
	}
	f.last = now
	t := now.Sub(f.started).Seconds()

	for _, p := range f.ports {
		if p.state != "4: ACTIVE" {
			continue
		}
		util := f.utilization(p.pattern, t)
		total := p.maxBytes * util * dt
		rx := total * p.rxRatio
		tx := total - rx

		p.rxWords += uint64(rx / 4)
		p.txWords += uint64(tx / 4)
		p.rxPackets += uint64(rx / p.pattern.packetSize())
		p.txPackets += uint64(tx / p.pattern.packetSize())
		if f.rng.Float64() < p.pattern.errorProbability()*dt*100 {
			p.rxErrors += uint64(1 + f.rng.IntN(3))
		}
		if f.rng.Float64() < p.pattern.errorProbability()*dt*50 {
			p.txDiscards++
		}
		if err := f.flush(p); err != nil {
			return err
		}
	}
	return nil
}

func (f *Fabric) utilization(p Pattern, t float64) float64 {
	noise := f.rng.Float64()
	switch p {
	case Burst:
		if math.Mod(t, 2) < 0.5 {
			return 0.85 + noise*0.1
		}
		return 0.05 + noise*0.1
	case Steady:
		return 0.75 + noise*0.15
	case Wave:
		return 0.5 + 0.4*math.Sin(t*2*math.Pi/10) + noise*0.1
	case Interactive:
		spike := 0.0
		if f.rng.Float64() > 0.92 {
			spike = 0.7
		}
		return 0.05 + noise*0.08 + spike
	default:
		drop := 0.0
		if f.rng.Float64() > 0.85 {
			drop = -0.3
		}
		return math.Max(0.9+noise*0.1+drop, 0.3)
	}
}

func (p *simPort) dir() string {
	return filepath.Join(Root, p.adapter, "ports", fmt.Sprint(p.number))
}

func (f *Fabric) flush(p *simPort) error {
	values := map[string]uint64{
		"counters/port_rcv_data":              p.rxWords,
		"counters/port_xmit_data":             p.txWords,
		"counters/port_rcv_packets":           p.rxPackets,
		"counters/port_xmit_packets":          p.txPackets,
		"counters/port_rcv_errors":            p.rxErrors,
		"counters/port_xmit_discards":         p.txDiscards,
		"counters/port_rcv_constraint_errors": 0,
		"counters/symbol_error":               0,
		"counters/link_downed":                0,
	}
	for name, v := range values {
		if err := afero.WriteFile(f.fs, filepath.Join(p.dir(), name), []byte(fmt.Sprintf("%d\n", v)), 0444); err != nil {
			return err
		}
	}
	return nil
}
