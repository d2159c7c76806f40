package dsp

import (
	"fmt"
	"sync"
)

// SampleRing is a thread-safe fixed-capacity ring of the most recent raw
// samples. The ingestion goroutine appends decoded raw EEG values while the
// analysis loop periodically snapshots the window it feeds to the Analyzer.
type SampleRing struct {
	mu    sync.Mutex
	buf   []float64
	head  int // next write position
	count int // number of valid samples, <= len(buf)
	total uint64
}

// NewSampleRing creates a ring holding up to capacity samples.
func NewSampleRing(capacity int) (*SampleRing, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("invalid ring capacity: %d", capacity)
	}
	return &SampleRing{buf: make([]float64, capacity)}, nil
}

// Append adds samples to the ring, overwriting the oldest when full.
func (r *SampleRing) Append(samples ...float64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, s := range samples {
		r.buf[r.head] = s
		r.head = (r.head + 1) % len(r.buf)
		if r.count < len(r.buf) {
			r.count++
		}
	}
	r.total += uint64(len(samples))
}

// Snapshot returns a copy of the buffered samples in arrival order,
// oldest first.
func (r *SampleRing) Snapshot() []float64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.count == 0 {
		return nil
	}

	out := make([]float64, r.count)
	start := (r.head - r.count + len(r.buf)) % len(r.buf)
	for i := 0; i < r.count; i++ {
		out[i] = r.buf[(start+i)%len(r.buf)]
	}
	return out
}

// Tail returns a copy of the most recent n samples in arrival order, oldest
// first, or fewer when the ring holds fewer. The live analysis path reads one
// window this way even when the ring retains a longer history.
func (r *SampleRing) Tail(n int) []float64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	if n > r.count {
		n = r.count
	}
	if n <= 0 {
		return nil
	}

	out := make([]float64, n)
	start := (r.head - n + len(r.buf)) % len(r.buf)
	for i := 0; i < n; i++ {
		out[i] = r.buf[(start+i)%len(r.buf)]
	}
	return out
}

// Len returns the number of buffered samples.
func (r *SampleRing) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count
}

// Total returns the number of samples appended over the ring's lifetime,
// used by the live analysis loop to step in half-window increments.
func (r *SampleRing) Total() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.total
}

// Clear empties the ring.
func (r *SampleRing) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.head = 0
	r.count = 0
	r.total = 0
}
