package monitor

import (
	"encoding/json"
	"time"

	"github.com/context-labs/ibtop/internal/fabric"
)

// Rate is a per-second value that may still be undefined.
type Rate struct {
	Value float64
	Valid bool
}

func (r Rate) MarshalJSON() ([]byte, error) {
	if !r.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(r.Value)
}

// Snapshot is an immutable view of one completed tick.
type Snapshot struct {
	Time     time.Time     `json:"timestamp"`
	Adapters []AdapterView `json:"adapters"`
	Totals   Totals        `json:"totals"`
	Latency  LatencyStats  `json:"tick_latency"`
	// RootErr is set when the discovery root vanished mid-run.
	RootErr string `json:"root_error,omitempty"`
}

// AdapterView is one adapter and its ports in display order.
type AdapterView struct {
	Name        string     `json:"name"`
	Vendor      string     `json:"vendor"`
	Description string     `json:"description,omitempty"`
	Ports       []PortView `json:"ports"`
}

// PortView is a port's state, rates and totals at one tick.
type PortView struct {
	Adapter   string            `json:"adapter"`
	Number    int               `json:"port"`
	State     fabric.LinkState  `json:"state"`
	LinkRate  string            `json:"link_rate,omitempty"`
	LinkLayer string            `json:"link_layer,omitempty"`
	Status    fabric.PortStatus `json:"status"`
	Error     string            `json:"error,omitempty"`

	RxBytes   Rate `json:"rx_bytes_per_sec"`
	TxBytes   Rate `json:"tx_bytes_per_sec"`
	RxPackets Rate `json:"rx_packets_per_sec"`
	TxPackets Rate `json:"tx_packets_per_sec"`
	Errors    Rate `json:"errors_per_sec"`

	RxTotal    uint64 `json:"rx_bytes_total"`
	TxTotal    uint64 `json:"tx_bytes_total"`
	ErrorTotal uint64 `json:"errors_total"`

	// History is the combined RX+TX byte rate, oldest first.
	History []float64 `json:"history,omitempty"`
	Peak    float64   `json:"peak_bytes_per_sec"`
	Average float64   `json:"avg_bytes_per_sec"`
}

// Totals aggregates the whole fabric.
type Totals struct {
	Adapters    int     `json:"adapters"`
	Ports       int     `json:"ports"`
	ActivePorts int     `json:"active_ports"`
	RxBytes     float64 `json:"rx_bytes_per_sec"`
	TxBytes     float64 `json:"tx_bytes_per_sec"`
	// RxHistory and TxHistory hold fabric-wide throughput, oldest first.
	RxHistory []float64 `json:"-"`
	TxHistory []float64 `json:"-"`
}

// Ports flattens the snapshot in display order.
func (s Snapshot) Ports() []PortView {
	var out []PortView
	for _, a := range s.Adapters {
		out = append(out, a.Ports...)
	}
	return out
}

func rateOf(p *fabric.Port, id fabric.CounterID) Rate {
	v, ok := p.Rate(id)
	return Rate{Value: v, Valid: ok}
}

func viewOf(p *fabric.Port, h *History) PortView {
	k := p.Key()
	v := PortView{
		Adapter:   k.Adapter,
		Number:    p.Number,
		State:     p.State,
		LinkRate:  p.LinkRate,
		LinkLayer: p.LinkLayer,
		Status:    p.Status,
		RxBytes:   rateOf(p, fabric.RxData),
		TxBytes:   rateOf(p, fabric.TxData),
		RxPackets: rateOf(p, fabric.RxPackets),
		TxPackets: rateOf(p, fabric.TxPackets),
		RxTotal:   p.Total(fabric.RxData),
		TxTotal:   p.Total(fabric.TxData),
		History:   h.Combined(k, h.size),
		Peak:      h.Peak(k),
		Average:   h.Average(k),
	}
	if e, ok := p.ErrorRate(); ok {
		v.Errors = Rate{Value: e, Valid: true}
	}
	for _, id := range fabric.ErrorCounters {
		v.ErrorTotal += p.Total(id)
	}
	if p.LastErr != nil {
		v.Error = p.LastErr.Error()
	}
	return v
}
