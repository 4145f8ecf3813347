// Package stats provides rolling-window statistics used by the connection
// health monitor.
package stats

import (
	"math"
	"sync"
	"time"
)

// Statistics is an aggregate over the live portion of a reservoir window.
type Statistics struct {
	Count   int64
	Sum     float64
	Min     float64
	Max     float64
	Average float64
}

// Reservoir accumulates measurements into a fixed number of sub-windows
// spanning a total time window. Sub-windows older than the window are evicted
// lazily on the next push or read, so both operations stay O(size).
type Reservoir struct {
	mu       sync.Mutex
	size     int
	interval time.Duration
	buckets  []bucket

	now func() time.Time
}

type bucket struct {
	epoch int64
	count int64
	sum   float64
	min   float64
	max   float64
}

// NewReservoir creates a reservoir with size sub-windows over span. A one week
// span with 168 sub-windows gives hourly resolution.
func NewReservoir(size int, span time.Duration) *Reservoir {
	if size <= 0 {
		panic("stats: reservoir size must be positive")
	}
	if span <= 0 {
		panic("stats: reservoir span must be positive")
	}
	return &Reservoir{
		size:     size,
		interval: span / time.Duration(size),
		buckets:  make([]bucket, size),
		now:      time.Now,
	}
}

// Push records value at the current time.
func (r *Reservoir) Push(value float64) {
	r.PushAt(value, r.now())
}

// PushAt records value at the given time. Measurements older than the window
// are dropped.
func (r *Reservoir) PushAt(value float64, at time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()

	epoch := r.epoch(at)
	current := r.epoch(r.now())
	if epoch <= current-int64(r.size) {
		return
	}

	b := &r.buckets[r.index(epoch)]
	if b.epoch != epoch {
		if epoch < b.epoch {
			// The slot holds a newer sub-window; the measurement is stale.
			return
		}
		*b = bucket{epoch: epoch, min: math.Inf(1), max: math.Inf(-1)}
	}
	b.count++
	b.sum += value
	if value < b.min {
		b.min = value
	}
	if value > b.max {
		b.max = value
	}
}

// Statistics sums the sub-windows that are still inside the window. Min, Max
// and Average are zero when no measurements are live.
func (r *Reservoir) Statistics() Statistics {
	r.mu.Lock()
	defer r.mu.Unlock()

	current := r.epoch(r.now())
	s := Statistics{Min: math.Inf(1), Max: math.Inf(-1)}
	for i := range r.buckets {
		b := &r.buckets[i]
		if b.count == 0 || b.epoch <= current-int64(r.size) || b.epoch > current {
			continue
		}
		s.Count += b.count
		s.Sum += b.sum
		if b.min < s.Min {
			s.Min = b.min
		}
		if b.max > s.Max {
			s.Max = b.max
		}
	}
	if s.Count == 0 {
		return Statistics{}
	}
	s.Average = s.Sum / float64(s.Count)
	return s
}

func (r *Reservoir) epoch(at time.Time) int64 {
	return at.UnixNano() / int64(r.interval)
}

func (r *Reservoir) index(epoch int64) int {
	i := int(epoch % int64(r.size))
	if i < 0 {
		i += r.size
	}
	return i
}
