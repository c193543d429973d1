// Package history keeps bounded rolling windows of scalar metric values.
package history

import (
	"sort"
	"sync"
	"time"
)

// DefaultCapacity is the number of points retained per series.
const DefaultCapacity = 60

// Point is one timestamped value of a series
type Point struct {
	Timestamp time.Time `json:"timestamp"`
	Value     float64   `json:"value"`
}

// ring is a fixed-size circular buffer; start is the index of the oldest point.
type ring struct {
	points []Point
	start  int
	size   int
}

func newRing(capacity int) *ring {
	return &ring{points: make([]Point, capacity)}
}

func (r *ring) push(p Point) {
	capacity := len(r.points)
	if r.size < capacity {
		r.points[(r.start+r.size)%capacity] = p
		r.size++
		return
	}
	r.points[r.start] = p
	r.start = (r.start + 1) % capacity
}

// tail copies the newest n points in insertion order.
func (r *ring) tail(n int) []Point {
	if n > r.size {
		n = r.size
	}
	if n <= 0 {
		return []Point{}
	}

	out := make([]Point, n)
	capacity := len(r.points)
	first := r.start + r.size - n
	for i := 0; i < n; i++ {
		out[i] = r.points[(first+i)%capacity]
	}
	return out
}

// Buffer is a thread-safe set of named series with a shared fixed capacity.
// Readers always receive copies.
type Buffer struct {
	mu       sync.RWMutex
	capacity int
	series   map[string]*ring
}

// New creates a buffer holding at most capacity points per series.
// A capacity below 1 uses DefaultCapacity.
func New(capacity int) *Buffer {
	if capacity < 1 {
		capacity = DefaultCapacity
	}
	return &Buffer{
		capacity: capacity,
		series:   make(map[string]*ring),
	}
}

// Capacity returns the per-series point limit.
func (b *Buffer) Capacity() int {
	return b.capacity
}

// Push appends a point, creating the series on first use and evicting the
// oldest point once the series is full.
func (b *Buffer) Push(name string, ts time.Time, value float64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	r, ok := b.series[name]
	if !ok {
		r = newRing(b.capacity)
		b.series[name] = r
	}
	r.push(Point{Timestamp: ts, Value: value})
}

// Recent returns up to n of the newest points of a series, oldest first.
// Unknown series and n <= 0 give an empty slice.
func (b *Buffer) Recent(name string, n int) []Point {
	b.mu.RLock()
	defer b.mu.RUnlock()

	r, ok := b.series[name]
	if !ok {
		return []Point{}
	}
	return r.tail(n)
}

// Len returns the number of points currently held for a series.
func (b *Buffer) Len(name string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if r, ok := b.series[name]; ok {
		return r.size
	}
	return 0
}

// Names returns the known series names, sorted.
func (b *Buffer) Names() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	names := make([]string, 0, len(b.series))
	for name := range b.series {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Snapshot copies every series in full.
func (b *Buffer) Snapshot() map[string][]Point {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make(map[string][]Point, len(b.series))
	for name, r := range b.series {
		out[name] = r.tail(r.size)
	}
	return out
}

// Clear removes all series.
func (b *Buffer) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.series = make(map[string]*ring)
}
