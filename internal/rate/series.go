// Copyright (c) 2024-2026 Carsen Klock under MIT License

// Package rate turns monotonic hardware counters into per-second rates.
package rate

import (
	"fmt"
	"math"
	"time"
)

// MinElapsed is the smallest sample spacing that produces a new rate.
// Updates closer together than this keep the previous rate.
const MinElapsed = 10 * time.Millisecond

// Width is the bit width a counter wraps at.
type Width uint8

const (
	Width32 Width = 32
	Width64 Width = 64
)

// ParseWidth accepts 32 or 64.
func ParseWidth(bits int) (Width, error) {
	switch bits {
	case 32:
		return Width32, nil
	case 64:
		return Width64, nil
	}
	return 0, fmt.Errorf("unsupported counter width %d", bits)
}

func (w Width) mask() uint64 {
	if w >= Width64 {
		return math.MaxUint64
	}
	return (uint64(1) << w) - 1
}

// Delta returns cur-prev modulo 2^w. A decrease is always read as one wrap.
func Delta(prev, cur uint64, w Width) uint64 {
	m := w.mask()
	return ((cur & m) - (prev & m)) & m
}

// Series tracks one counter of one port.
type Series struct {
	Width Width
	// Scale converts one counter unit into the semantic unit (bytes per word).
	Scale float64
	// Alpha enables EMA smoothing of Display when in (0, 1].
	Alpha float64

	last     uint64
	lastAt   time.Time
	sampled  bool
	rate     float64
	hasRate  bool
	smoothed float64
	total    uint64
}

// NewSeries creates an empty series; alpha 0 disables smoothing.
func NewSeries(w Width, scale float64, alpha float64) *Series {
	if scale <= 0 {
		scale = 1
	}
	return &Series{Width: w, Scale: scale, Alpha: alpha}
}

// Update folds a new raw reading into the series and returns the current
// rate. ok is false while the rate is still undefined.
func (s *Series) Update(raw uint64, at time.Time) (float64, bool) {
	if !s.sampled {
		s.last, s.lastAt, s.sampled = raw, at, true
		return 0, false
	}

	elapsed := at.Sub(s.lastAt)
	if elapsed <= MinElapsed {
		return s.rate, s.hasRate
	}

	delta := Delta(s.last, raw, s.Width)
	s.rate = float64(delta) * s.Scale / elapsed.Seconds()
	s.total += uint64(float64(delta) * s.Scale)

	if s.Alpha > 0 && s.Alpha <= 1 && s.hasRate {
		s.smoothed = s.Alpha*s.rate + (1-s.Alpha)*s.smoothed
	} else {
		s.smoothed = s.rate
	}
	s.hasRate = true

	s.last, s.lastAt = raw, at
	return s.rate, true
}

// Rate is the exact rate from the latest two samples.
func (s *Series) Rate() (float64, bool) {
	return s.rate, s.hasRate
}

// Display is the rate shown to the user, smoothed when Alpha is set.
func (s *Series) Display() (float64, bool) {
	return s.smoothed, s.hasRate
}

// Total is the cumulative scaled delta observed since the first sample.
func (s *Series) Total() uint64 {
	return s.total
}

// lastSample returns the latest raw value and its timestamp.
func (s *Series) lastSample() (uint64, time.Time, bool) {
	return s.last, s.lastAt, s.sampled
}
