package monitor

import (
	"math"
	"sync"

	"github.com/context-labs/ibtop/internal/fabric"
)

// DefaultHistorySize keeps two minutes of samples at a one second interval.
const DefaultHistorySize = 120

// SparkLevels is the number of distinct sparkline heights.
const SparkLevels = 8

// History keeps per-port rate samples in ring buffers for sparklines.
type History struct {
	mu    sync.RWMutex
	size  int
	ports map[fabric.Key]*portHistory
	aggRx *ringBuffer
	aggTx *ringBuffer
}

type portHistory struct {
	rxBytes   *ringBuffer
	txBytes   *ringBuffer
	rxPackets *ringBuffer
	txPackets *ringBuffer
	errors    *ringBuffer
}

// Sample is one tick's worth of rates for a port.
type Sample struct {
	RxBytes   float64
	TxBytes   float64
	RxPackets float64
	TxPackets float64
	Errors    float64
}

type ringBuffer struct {
	data  []float64
	head  int
	count int
	size  int
}

// NewHistory creates ring buffers of size samples; zero means DefaultHistorySize.
func NewHistory(size int) *History {
	if size <= 0 {
		size = DefaultHistorySize
	}
	return &History{
		size:  size,
		ports: make(map[fabric.Key]*portHistory),
		aggRx: newRingBuffer(size),
		aggTx: newRingBuffer(size),
	}
}

// Record appends one sample for port k.
func (h *History) Record(k fabric.Key, s Sample) {
	h.mu.Lock()
	defer h.mu.Unlock()

	ph, ok := h.ports[k]
	if !ok {
		ph = &portHistory{
			rxBytes:   newRingBuffer(h.size),
			txBytes:   newRingBuffer(h.size),
			rxPackets: newRingBuffer(h.size),
			txPackets: newRingBuffer(h.size),
			errors:    newRingBuffer(h.size),
		}
		h.ports[k] = ph
	}
	ph.rxBytes.push(s.RxBytes)
	ph.txBytes.push(s.TxBytes)
	ph.rxPackets.push(s.RxPackets)
	ph.txPackets.push(s.TxPackets)
	ph.errors.push(s.Errors)
}

// RecordAggregate stores the fabric-wide throughput for this tick.
func (h *History) RecordAggregate(rx, tx float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.aggRx.push(rx)
	h.aggTx.push(tx)
}

// Remove drops the history of vanished ports.
func (h *History) Remove(keys ...fabric.Key) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, k := range keys {
		delete(h.ports, k)
	}
}

// depth is the number of samples held for k.
func (h *History) depth(k fabric.Key) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if ph, ok := h.ports[k]; ok {
		return ph.rxBytes.count
	}
	return 0
}

// Combined returns up to n of the latest RX+TX byte rates, oldest first.
func (h *History) Combined(k fabric.Key, n int) []float64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	ph, ok := h.ports[k]
	if !ok {
		return nil
	}
	rx := ph.rxBytes.getLast(n)
	tx := ph.txBytes.getLast(n)
	out := make([]float64, len(rx))
	for i := range rx {
		out[i] = rx[i] + tx[i]
	}
	return out
}

// Peak is the highest RX plus highest TX byte rate seen.
func (h *History) Peak(k fabric.Key) float64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	ph, ok := h.ports[k]
	if !ok {
		return 0
	}
	return ph.rxBytes.max() + ph.txBytes.max()
}

// Average is the mean combined byte rate over the buffered samples.
func (h *History) Average(k fabric.Key) float64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	ph, ok := h.ports[k]
	if !ok || ph.rxBytes.count == 0 {
		return 0
	}
	return (ph.rxBytes.sum() + ph.txBytes.sum()) / float64(ph.rxBytes.count)
}

// Aggregate returns up to n fabric-wide RX and TX samples, oldest first.
func (h *History) Aggregate(n int) (rx, tx []float64) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.aggRx.getLast(n), h.aggTx.getLast(n)
}

// Normalize scales values to sparkline levels 0..SparkLevels-1 against their
// own maximum.
func Normalize(values []float64) []int {
	out := make([]int, len(values))
	peak := 0.0
	for _, v := range values {
		peak = math.Max(peak, v)
	}
	if peak <= 0 {
		return out
	}
	for i, v := range values {
		out[i] = int(math.Round(v / peak * float64(SparkLevels-1)))
	}
	return out
}

func newRingBuffer(size int) *ringBuffer {
	return &ringBuffer{
		data: make([]float64, size),
		size: size,
	}
}

func (r *ringBuffer) push(value float64) {
	r.data[r.head] = value
	r.head = (r.head + 1) % r.size
	if r.count < r.size {
		r.count++
	}
}

// getLast returns up to n values, oldest first.
func (r *ringBuffer) getLast(n int) []float64 {
	if n <= 0 || r.count == 0 {
		return nil
	}
	if n > r.count {
		n = r.count
	}
	result := make([]float64, n)
	start := (r.head - n + r.size) % r.size
	for i := 0; i < n; i++ {
		result[i] = r.data[(start+i)%r.size]
	}
	return result
}

func (r *ringBuffer) max() float64 {
	m := 0.0
	for _, v := range r.getLast(r.count) {
		m = math.Max(m, v)
	}
	return m
}

func (r *ringBuffer) sum() float64 {
	s := 0.0
	for _, v := range r.getLast(r.count) {
		s += v
	}
	return s
}
