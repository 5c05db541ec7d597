// Package ring implements a fixed-capacity ring buffer used for the bounded
// in-memory histories kept by the monitors (fund snapshots, stop-loss
// adjustments, emergency events). Once full, the oldest entry is overwritten;
// memory stays capped under long-running operation.
package ring

// Buffer is a fixed-capacity FIFO ring. The zero value is not usable; create
// one with New. Buffer is not safe for concurrent use; owners guard it with
// their own locks.
type Buffer[T any] struct {
	items []T
	head  int // index of the oldest element
	size  int
}

// New creates a Buffer holding at most capacity elements. Capacity must be
// positive.
func New[T any](capacity int) *Buffer[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Buffer[T]{items: make([]T, capacity)}
}

// Append adds v, evicting the oldest element when the buffer is full.
func (b *Buffer[T]) Append(v T) {
	tail := (b.head + b.size) % len(b.items)
	b.items[tail] = v
	if b.size < len(b.items) {
		b.size++
	} else {
		b.head = (b.head + 1) % len(b.items)
	}
}

// Len returns the number of stored elements.
func (b *Buffer[T]) Len() int { return b.size }

// Cap returns the fixed capacity.
func (b *Buffer[T]) Cap() int { return len(b.items) }

// Items returns the stored elements oldest-first as a freshly allocated
// slice.
func (b *Buffer[T]) Items() []T {
	out := make([]T, b.size)
	for i := 0; i < b.size; i++ {
		out[i] = b.items[(b.head+i)%len(b.items)]
	}
	return out
}

// Last returns the most recently appended element, or the zero value and
// false when the buffer is empty.
func (b *Buffer[T]) Last() (T, bool) {
	if b.size == 0 {
		var zero T
		return zero, false
	}
	return b.items[(b.head+b.size-1)%len(b.items)], true
}
