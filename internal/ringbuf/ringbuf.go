// Package ringbuf provides a bounded FIFO queue of price points between the
// live feed (producer) and the run worker (consumer). When full, Push
// evicts the oldest pending point so the newest is never lost.
package ringbuf

import (
	"sync"
	"sync/atomic"

	"github.com/xdrBogdan22/trader-bot-modernized-python-python-d2c6f645/internal/model"
)

// Ring is a drop-oldest ring buffer. Size is rounded up to a power of two
// for fast bitwise modulo.
type Ring struct {
	mu   sync.Mutex
	buf  []model.PricePoint
	mask uint64
	head uint64 // next write position
	tail uint64 // next read position

	// notify carries at most one pending wake-up for the consumer.
	notify chan struct{}

	// Overflow counter (atomic, for metrics)
	overflow atomic.Uint64
}

// New creates a ring buffer. capacity is rounded up to the next power of two.
// Minimum capacity is 2.
func New(capacity int) *Ring {
	cap := nextPow2(capacity)
	if cap < 2 {
		cap = 2
	}
	return &Ring{
		buf:    make([]model.PricePoint, cap),
		mask:   uint64(cap - 1),
		notify: make(chan struct{}, 1),
	}
}

// Push appends p. If the buffer is full the oldest pending point is dropped
// and Push returns it with dropped=true. Non-blocking.
func (r *Ring) Push(p model.PricePoint) (evicted model.PricePoint, dropped bool) {
	r.mu.Lock()
	if r.head-r.tail >= uint64(len(r.buf)) {
		evicted = r.buf[r.tail&r.mask]
		r.tail++
		dropped = true
		r.overflow.Add(1)
	}
	r.buf[r.head&r.mask] = p
	r.head++
	r.mu.Unlock()

	select {
	case r.notify <- struct{}{}:
	default:
	}
	return evicted, dropped
}

// Pop retrieves the oldest pending point.
// Returns false if the buffer is empty. Non-blocking.
func (r *Ring) Pop() (model.PricePoint, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.tail >= r.head {
		return model.PricePoint{}, false
	}
	p := r.buf[r.tail&r.mask]
	r.buf[r.tail&r.mask] = model.PricePoint{}
	r.tail++
	return p, true
}

// Notify returns a channel that receives after Push. Consumers drain with
// Pop until empty, then wait on Notify again.
func (r *Ring) Notify() <-chan struct{} {
	return r.notify
}

// Len returns the current number of items in the buffer.
func (r *Ring) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return int(r.head - r.tail)
}

// Cap returns the buffer capacity.
func (r *Ring) Cap() int {
	return len(r.buf)
}

// Overflow returns the total number of points evicted because the buffer
// was full.
func (r *Ring) Overflow() uint64 {
	return r.overflow.Load()
}

// nextPow2 returns the smallest power of 2 >= n.
func nextPow2(n int) int {
	if n <= 0 {
		return 1
	}
	n--
	n |= n >> 1
	n |= n >> 2
	n |= n >> 4
	n |= n >> 8
	n |= n >> 16
	n |= n >> 32
	return n + 1
}
