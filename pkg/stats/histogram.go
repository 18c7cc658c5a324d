// Package stats holds latency samples and the operators the analyzer needs.
package stats

import (
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
)

const (
	// Values are tracked in nanoseconds, 1ns up to one hour.
	minTracked = 1
	maxTracked = int64(time.Hour)
	sigFigs    = 3
)

// Histogram is a mergeable latency histogram. It keeps fixed buckets
// so replaying millions of ops does not hold every latency in memory.
type Histogram struct {
	h       *hdrhistogram.Histogram
	dropped int64
}

func NewHistogram() *Histogram {
	return &Histogram{h: hdrhistogram.New(minTracked, maxTracked, sigFigs)}
}

// Record adds one latency. Values beyond the tracked range are clamped.
func (h *Histogram) Record(d time.Duration) {
	v := int64(d)
	if v < minTracked {
		v = minTracked
	}
	if v > maxTracked {
		v = maxTracked
	}
	if err := h.h.RecordValue(v); err != nil {
		h.dropped++
	}
}

// RecordSeconds adds a latency given in seconds.
func (h *Histogram) RecordSeconds(s float64) {
	h.Record(time.Duration(s * float64(time.Second)))
}

func (h *Histogram) Merge(other *Histogram) {
	if other == nil {
		return
	}
	h.dropped += h.h.Merge(other.h) + other.dropped
}

// ValueAtQuantile takes q in [0, 1].
func (h *Histogram) ValueAtQuantile(q float64) time.Duration {
	if h.h.TotalCount() == 0 {
		return 0
	}
	return time.Duration(h.h.ValueAtQuantile(q * 100))
}

func (h *Histogram) Mean() time.Duration {
	return time.Duration(h.h.Mean())
}

func (h *Histogram) Max() time.Duration {
	return time.Duration(h.h.Max())
}

func (h *Histogram) TotalCount() int64 {
	return h.h.TotalCount()
}

// Dropped counts values the histogram could not record.
func (h *Histogram) Dropped() int64 {
	return h.dropped
}
