package monitor

import (
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
)

// LatencyStats summarizes how long ticks take.
type LatencyStats struct {
	Count int64         `json:"count"`
	P50   time.Duration `json:"p50_ns"`
	P99   time.Duration `json:"p99_ns"`
	Max   time.Duration `json:"max_ns"`
}

// tickLatency records tick durations in microseconds, up to one minute.
type tickLatency struct {
	hist *hdrhistogram.Histogram
}

func newTickLatency() *tickLatency {
	return &tickLatency{hist: hdrhistogram.New(1, int64(time.Minute/time.Microsecond), 3)}
}

func (l *tickLatency) record(d time.Duration) {
	us := d.Microseconds()
	if us < 1 {
		us = 1
	}
	if us > l.hist.HighestTrackableValue() {
		us = l.hist.HighestTrackableValue()
	}
	_ = l.hist.RecordValue(us)
}

func (l *tickLatency) stats() LatencyStats {
	return LatencyStats{
		Count: l.hist.TotalCount(),
		P50:   time.Duration(l.hist.ValueAtQuantile(50)) * time.Microsecond,
		P99:   time.Duration(l.hist.ValueAtQuantile(99)) * time.Microsecond,
		Max:   time.Duration(l.hist.Max()) * time.Microsecond,
	}
}
