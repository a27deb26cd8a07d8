package router

import (
	"context"
	"errors"
	"sync"
)

// ErrBufferClosed is returned by Receive once the buffer is closed and drained.
var ErrBufferClosed = errors.New("buffer closed")

// GrowableBuffer is a thread-safe FIFO between the dispatch loop and a slower
// consumer. It doubles its capacity at 70% fill until maxCapacity is reached;
// at that point Send evicts the oldest item so the producer never blocks.
type GrowableBuffer[T any] struct {
	mu          sync.Mutex
	buf         []T
	head        int // read position
	count       int
	maxCapacity int // 0 = unbounded
	closed      bool

	// ready has capacity 1 and is signalled whenever an item is added or the
	// buffer is closed.
	ready chan struct{}

	// Stats
	totalReceived int64
	totalSent     int64
	dropped       int64
	resizeCount   int
}

// BufferStats contains buffer statistics.
type BufferStats struct {
	Count         int
	Capacity      int
	TotalReceived int64
	TotalSent     int64
	Dropped       int64
	ResizeCount   int
}

// NewGrowableBuffer creates a buffer with the given initial capacity. A
// maxCapacity of 0 lets the buffer grow without bound.
func NewGrowableBuffer[T any](initialCapacity, maxCapacity int) *GrowableBuffer[T] {
	if initialCapacity < 1 {
		initialCapacity = 1
	}
	if maxCapacity > 0 && maxCapacity < initialCapacity {
		maxCapacity = initialCapacity
	}
	return &GrowableBuffer[T]{
		buf:         make([]T, initialCapacity),
		maxCapacity: maxCapacity,
		ready:       make(chan struct{}, 1),
	}
}

// Send appends an item. Returns false if the buffer is closed.
func (b *GrowableBuffer[T]) Send(item T) bool {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return false
	}

	threshold := len(b.buf) * 70 / 100
	if threshold < 1 {
		threshold = 1
	}
	if b.count+1 >= threshold && b.canGrow() {
		b.grow()
	}
	if b.count == len(b.buf) {
		// Full at max capacity: evict the oldest item.
		b.popLocked()
		b.dropped++
	}

	b.buf[(b.head+b.count)%len(b.buf)] = item
	b.count++
	b.totalReceived++
	b.mu.Unlock()

	b.signal()
	return true
}

// TryReceive removes the oldest item without blocking.
func (b *GrowableBuffer[T]) TryReceive() (T, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.count == 0 {
		var zero T
		return zero, false
	}
	b.totalSent++
	return b.popLocked(), true
}

// Receive blocks until an item is available, the buffer is closed and
// drained (ErrBufferClosed), or ctx is done.
func (b *GrowableBuffer[T]) Receive(ctx context.Context) (T, error) {
	for {
		b.mu.Lock()
		if b.count > 0 {
			item := b.popLocked()
			b.totalSent++
			more := b.count > 0
			b.mu.Unlock()
			if more {
				b.signal()
			}
			return item, nil
		}
		closed := b.closed
		b.mu.Unlock()

		var zero T
		if closed {
			return zero, ErrBufferClosed
		}

		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-b.ready:
		}
	}
}

// DrainTo removes up to max items (all when max <= 0) in FIFO order.
func (b *GrowableBuffer[T]) DrainTo(max int) []T {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.count == 0 {
		return nil
	}

	n := b.count
	if max > 0 && max < n {
		n = max
	}

	result := make([]T, n)
	for i := 0; i < n; i++ {
		result[i] = b.popLocked()
	}
	b.totalSent += int64(n)
	return result
}

// Close stops accepting items. Remaining items can still be received.
func (b *GrowableBuffer[T]) Close() {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()
	b.signal()
}

// Len returns the current number of items in the buffer.
func (b *GrowableBuffer[T]) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.count
}

// Stats returns buffer statistics.
func (b *GrowableBuffer[T]) Stats() BufferStats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return BufferStats{
		Count:         b.count,
		Capacity:      len(b.buf),
		TotalReceived: b.totalReceived,
		TotalSent:     b.totalSent,
		Dropped:       b.dropped,
		ResizeCount:   b.resizeCount,
	}
}

func (b *GrowableBuffer[T]) signal() {
	select {
	case b.ready <- struct{}{}:
	default:
	}
}

// popLocked removes the head item without counting it as sent. Must be
// called with lock held and count > 0.
func (b *GrowableBuffer[T]) popLocked() T {
	item := b.buf[b.head]
	var zero T
	b.buf[b.head] = zero // Clear reference for GC
	b.head = (b.head + 1) % len(b.buf)
	b.count--
	return item
}

func (b *GrowableBuffer[T]) canGrow() bool {
	return b.maxCapacity == 0 || len(b.buf) < b.maxCapacity
}

// grow doubles capacity, clamped to maxCapacity. Must be called with lock held.
func (b *GrowableBuffer[T]) grow() {
	newCapacity := len(b.buf) * 2
	if b.maxCapacity > 0 && newCapacity > b.maxCapacity {
		newCapacity = b.maxCapacity
	}
	newBuf := make([]T, newCapacity)
	for i := 0; i < b.count; i++ {
		newBuf[i] = b.buf[(b.head+i)%len(b.buf)]
	}
	b.buf = newBuf
	b.head = 0
	b.resizeCount++
}
