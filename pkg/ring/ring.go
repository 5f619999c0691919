// Package ring provides a fixed-capacity buffer that drops its oldest element
// when full. It is not safe for concurrent use; callers hold their own lock.
package ring

// Buffer holds at most Cap() elements in insertion order
type Buffer[T any] struct {
	buf  []T
	head int
	size int
}

// New creates a Buffer with the given capacity. Capacity below 1 is raised to 1.
func New[T any](capacity int) *Buffer[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Buffer[T]{buf: make([]T, capacity)}
}

// Push appends v, evicting the oldest element when the buffer is full.
// It reports whether an element was evicted.
func (b *Buffer[T]) Push(v T) bool {
	if b.size < len(b.buf) {
		b.buf[(b.head+b.size)%len(b.buf)] = v
		b.size++
		return false
	}
	b.buf[b.head] = v
	b.head = (b.head + 1) % len(b.buf)
	return true
}

// Len returns the number of stored elements
func (b *Buffer[T]) Len() int {
	return b.size
}

// Cap returns the capacity
func (b *Buffer[T]) Cap() int {
	return len(b.buf)
}

// At returns the i-th element, 0 being the oldest
func (b *Buffer[T]) At(i int) T {
	return b.buf[(b.head+i)%len(b.buf)]
}

// Items returns a copy of all elements, oldest first
func (b *Buffer[T]) Items() []T {
	out := make([]T, b.size)
	for i := range out {
		out[i] = b.At(i)
	}
	return out
}

// Last returns a copy of the newest n elements, oldest first
func (b *Buffer[T]) Last(n int) []T {
	if n <= 0 {
		return []T{}
	}
	if n > b.size {
		n = b.size
	}
	out := make([]T, n)
	start := b.size - n
	for i := range out {
		out[i] = b.At(start + i)
	}
	return out
}

// Retain keeps only the elements for which keep returns true, preserving
// order, and returns how many were dropped.
func (b *Buffer[T]) Retain(keep func(T) bool) int {
	kept := 0
	for i := 0; i < b.size; i++ {
		v := b.At(i)
		if keep(v) {
			b.buf[(b.head+kept)%len(b.buf)] = v
			kept++
		}
	}
	dropped := b.size - kept
	var zero T
	for i := kept; i < b.size; i++ {
		b.buf[(b.head+i)%len(b.buf)] = zero
	}
	b.size = kept
	return dropped
}

// Clear removes every element
func (b *Buffer[T]) Clear() {
	var zero T
	for i := range b.buf {
		b.buf[i] = zero
	}
	b.head = 0
	b.size = 0
}
