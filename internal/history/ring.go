// Package history provides the bounded record and bucket history backing
// the dashboard.
package history

import "sync/atomic"

// DefaultCapacity is used when a ring is created with a non-positive size.
const DefaultCapacity = 50

// Ring is a fixed-capacity circular buffer that overwrites its oldest
// element when full. It is not safe for concurrent mutation; the owner
// serializes access.
type Ring[T any] struct {
	buffer []T
	size   int
	head   int // index of the oldest element
	count  int

	// Metrics (accessed atomically)
	totalPushed  uint64
	totalEvicted uint64
}

// NewRing creates a ring with the specified capacity.
func NewRing[T any](size int) *Ring[T] {
	if size <= 0 {
		size = DefaultCapacity
	}
	return &Ring[T]{
		buffer: make([]T, size),
		size:   size,
	}
}

// Push appends v, evicting the oldest element when the ring is full.
// It reports whether an element was evicted.
func (r *Ring[T]) Push(v T) bool {
	atomic.AddUint64(&r.totalPushed, 1)

	if r.count < r.size {
		r.buffer[(r.head+r.count)%r.size] = v
		r.count++
		return false
	}

	r.buffer[r.head] = v
	r.head = (r.head + 1) % r.size
	atomic.AddUint64(&r.totalEvicted, 1)
	return true
}

// At returns the i-th element counting from the oldest.
func (r *Ring[T]) At(i int) (T, bool) {
	var zero T
	if i < 0 || i >= r.count {
		return zero, false
	}
	return r.buffer[(r.head+i)%r.size], true
}

// Oldest returns elements in insertion order, oldest first.
func (r *Ring[T]) Oldest() []T {
	out := make([]T, r.count)
	for i := 0; i < r.count; i++ {
		out[i] = r.buffer[(r.head+i)%r.size]
	}
	return out
}

// Newest returns elements in reverse insertion order, newest first.
func (r *Ring[T]) Newest() []T {
	out := make([]T, r.count)
	for i := 0; i < r.count; i++ {
		out[i] = r.buffer[(r.head+r.count-1-i)%r.size]
	}
	return out
}

// Len returns the number of stored elements.
func (r *Ring[T]) Len() int {
	return r.count
}

// Cap returns the capacity of the ring.
func (r *Ring[T]) Cap() int {
	return r.size
}

// Metrics returns ring statistics.
func (r *Ring[T]) Metrics() RingMetrics {
	return RingMetrics{
		Pushed:   atomic.LoadUint64(&r.totalPushed),
		Evicted:  atomic.LoadUint64(&r.totalEvicted),
		Depth:    r.count,
		Capacity: r.size,
	}
}

// RingMetrics holds statistics about ring operations.
type RingMetrics struct {
	Pushed   uint64 `json:"pushed"`
	Evicted  uint64 `json:"evicted"`
	Depth    int    `json:"depth"`
	Capacity int    `json:"capacity"`
}
