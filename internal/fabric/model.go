// Copyright (c) 2024-2026 Carsen Klock under MIT License

// Package fabric models InfiniBand adapters and ports as exposed under
// /sys/class/infiniband and reads their hardware counters.
package fabric

import (
	"fmt"
	"strings"
	"time"

	"github.com/context-labs/ibtop/internal/rate"
)

// DefaultRoot is where the kernel exposes InfiniBand devices.
const DefaultRoot = "/sys/class/infiniband"

// CounterID names a hardware counter independent of its vendor file.
type CounterID string

const (
	TxData             CounterID = "tx_data"
	RxData             CounterID = "rx_data"
	TxPackets          CounterID = "tx_packets"
	RxPackets          CounterID = "rx_packets"
	RxErrors           CounterID = "rx_errors"
	TxDiscards         CounterID = "tx_discards"
	RxConstraintErrors CounterID = "rx_constraint_errors"
	SymbolErrors       CounterID = "symbol_errors"
	LinkDowned         CounterID = "link_downed"
)

// AllCounters lists every counter in display order.
var AllCounters = []CounterID{
	TxData, RxData, TxPackets, RxPackets,
	RxErrors, TxDiscards, RxConstraintErrors, SymbolErrors, LinkDowned,
}

// ErrorCounters are summed into the per-port error rate.
var ErrorCounters = []CounterID{RxErrors, TxDiscards, RxConstraintErrors, SymbolErrors, LinkDowned}

// Unit is the semantic unit of a counter after scaling.
func (c CounterID) Unit() string {
	switch c {
	case TxData, RxData:
		return "bytes"
	case TxPackets, RxPackets:
		return "packets"
	default:
		return "events"
	}
}

// Valid reports whether c is a known counter.
func (c CounterID) Valid() bool {
	for _, id := range AllCounters {
		if id == c {
			return true
		}
	}
	return false
}

// LinkState is the logical port state reported in the port's state file.
type LinkState int

const (
	StateUnknown LinkState = iota
	StateDown
	StateInitializing
	StateActive
)

func (s LinkState) String() string {
	switch s {
	case StateActive:
		return "ACTIVE"
	case StateDown:
		return "DOWN"
	case StateInitializing:
		return "INIT"
	default:
		return "UNKNOWN"
	}
}

func (s LinkState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// ParseLinkState accepts the kernel's "4: ACTIVE" form as well as a bare name.
func ParseLinkState(raw string) LinkState {
	s := strings.TrimSpace(raw)
	if i := strings.Index(s, ":"); i >= 0 {
		s = strings.TrimSpace(s[i+1:])
	}
	switch strings.ToUpper(s) {
	case "ACTIVE", "ACTIVE_DEFER":
		return StateActive
	case "DOWN":
		return StateDown
	case "INIT", "ARMED", "INITIALIZING":
		return StateInitializing
	}
	return StateUnknown
}

// PortStatus describes the outcome of the most recent read of a port.
type PortStatus int

const (
	StatusPending PortStatus = iota
	StatusOK
	StatusFailed
)

func (s PortStatus) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusFailed:
		return "failed"
	default:
		return "pending"
	}
}

func (s PortStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Adapter is one entry under the discovery root. Ports are sorted by number.
type Adapter struct {
	Name   string
	Vendor VendorTag
	Dir    string
	Ports  []*Port

	// Description is the node_desc text, when the driver provides one.
	Description string
}

// Port holds one port's link attributes and its counter series.
type Port struct {
	Adapter   *Adapter
	Number    int
	Dir       string
	State     LinkState
	LinkRate  string
	LinkLayer string
	Status    PortStatus
	LastErr   error
	LastRead  time.Time
	Series    map[CounterID]*rate.Series
}

// Key identifies a port across ticks.
type Key struct {
	Adapter string
	Port    int
}

func (k Key) String() string {
	return fmt.Sprintf("%s/%d", k.Adapter, k.Port)
}

// Key returns the port's identity.
func (p *Port) Key() Key {
	return Key{Adapter: p.Adapter.Name, Port: p.Number}
}

// Apply feeds a successful reading into the port's counter series, creating
// series lazily from the vendor layout. Counters absent from the reading keep
// their previous state.
func (p *Port) Apply(r Reading, layout *Layout, alpha float64) {
	p.State = r.State
	p.LinkRate = r.LinkRate
	p.LinkLayer = r.LinkLayer
	p.LastRead = r.At
	p.LastErr = nil
	if p.Series == nil {
		p.Series = make(map[CounterID]*rate.Series)
	}
	for id, raw := range r.Values {
		s, ok := p.Series[id]
		if !ok {
			spec, known := layout.Counters[id]
			if !known {
				continue
			}
			s = rate.NewSeries(spec.width(), spec.Scale, alpha)
			p.Series[id] = s
		}
		s.Update(raw, r.At)
	}

	// OK once any counter has a rate; layouts without data counters still count
	p.Status = StatusPending
	for _, s := range p.Series {
		if _, ok := s.Rate(); ok {
			p.Status = StatusOK
			break
		}
	}
}

// Fail marks the port as unreadable for this tick. Series keep their state.
func (p *Port) Fail(err error) {
	p.Status = StatusFailed
	p.LastErr = err
}

// Rate returns the display rate of a counter.
func (p *Port) Rate(id CounterID) (float64, bool) {
	s, ok := p.Series[id]
	if !ok {
		return 0, false
	}
	return s.Display()
}

// Total returns the cumulative scaled delta of a counter.
func (p *Port) Total(id CounterID) uint64 {
	if s, ok := p.Series[id]; ok {
		return s.Total()
	}
	return 0
}

// ErrorRate sums the rates of all error counters that have one.
func (p *Port) ErrorRate() (float64, bool) {
	var sum float64
	seen := false
	for _, id := range ErrorCounters {
		if r, ok := p.Rate(id); ok {
			sum += r
			seen = true
		}
	}
	return sum, seen
}
