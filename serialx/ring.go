// serialx/ring.go

package serialx

import "sync/atomic"

// DefaultBufferSize is the ring capacity used when a Config leaves the
// buffer sizes at zero.
const DefaultBufferSize = 64

// Ring is a fixed-capacity byte ring for exactly one producer and one
// consumer. The producer only advances head, the consumer only advances
// tail; both indices are free-running counters published atomically, so
// no lock is needed as long as the single-producer/single-consumer roles
// are respected. Capacity is always a power of two.
type Ring struct {
	buf  []byte
	mask uint32
	head atomic.Uint32 // next write slot (producer-owned)
	tail atomic.Uint32 // next read slot (consumer-owned)
}

// NewRing returns a ring holding at least size bytes. The requested size
// is rounded up to a power of two; sizes below 2 get DefaultBufferSize.
func NewRing(size int) *Ring {
	if size < 2 {
		size = DefaultBufferSize
	}
	n := uint32(1)
	for int(n) < size {
		n <<= 1
	}
	return &Ring{buf: make([]byte, n), mask: n - 1}
}

// Cap returns the total capacity in bytes.
func (r *Ring) Cap() int { return len(r.buf) }

// Len returns how many bytes are currently stored.
func (r *Ring) Len() int {
	return int(r.head.Load() - r.tail.Load())
}

// Free returns the remaining space in bytes.
func (r *Ring) Free() int { return r.Cap() - r.Len() }

// Put stores one byte. It returns false, leaving the ring unchanged, if
// the ring is full.
func (r *Ring) Put(b byte) bool {
	h := r.head.Load()
	if h-r.tail.Load() == uint32(len(r.buf)) { // full
		return false
	}
	r.buf[h&r.mask] = b // 1) write data
	r.head.Store(h + 1) // 2) publish
	return true
}

// Get removes and returns the oldest byte. It returns (0, false),
// leaving the ring unchanged, if the ring is empty.
func (r *Ring) Get() (byte, bool) {
	t := r.tail.Load()
	if r.head.Load() == t { // empty
		return 0, false
	}
	b := r.buf[t&r.mask] // 1) read current element
	r.tail.Store(t + 1)  // 2) publish consumption
	return b, true
}

// Flush discards all stored bytes. It acts from the consumer side by
// advancing tail to head; the producer must be quiescent (port closed or
// its interrupt masked) while Flush runs.
func (r *Ring) Flush() {
	r.tail.Store(r.head.Load())
}
