// ABOUTME: Byte ring buffer between a capture producer and a blocking reader
// ABOUTME: Reads block while empty or paused and fail with ErrClosed after Close
package input

import "sync"

// RingBuffer provides a thread-safe circular byte buffer.
//
// Writers never block: bytes that do not fit are dropped and counted as
// overruns. Readers block until data is available and the buffer is not
// paused, or until the buffer is closed.
type RingBuffer struct {
	buffer   []byte
	readPos  int
	writePos int
	size     int
	count    int // Number of bytes currently in buffer
	overruns uint64
	paused   bool
	closed   bool

	mu   sync.Mutex
	cond *sync.Cond
}

// NewRingBuffer creates a paused ring buffer with given capacity (in bytes)
func NewRingBuffer(capacity int) *RingBuffer {
	rb := &RingBuffer{
		buffer: make([]byte, capacity),
		size:   capacity,
		paused: true,
	}
	rb.cond = sync.NewCond(&rb.mu)
	return rb
}

// Write adds bytes to the ring buffer and returns how many were stored
func (rb *RingBuffer) Write(p []byte) int {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	if rb.closed {
		return 0
	}

	written := 0
	for written < len(p) && rb.count < rb.size {
		chunk := min(len(p)-written, rb.size-rb.count, rb.size-rb.writePos)
		copy(rb.buffer[rb.writePos:], p[written:written+chunk])
		rb.writePos = (rb.writePos + chunk) % rb.size
		rb.count += chunk
		written += chunk
	}
	if written < len(p) {
		rb.overruns++
	}
	if written > 0 {
		rb.cond.Broadcast()
	}
	return written
}

// Read blocks until data is available, then copies up to len(p) bytes
func (rb *RingBuffer) Read(p []byte) (int, error) {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	for !rb.closed && (rb.paused || rb.count == 0) {
		rb.cond.Wait()
	}
	if rb.closed {
		return 0, ErrClosed
	}

	read := 0
	for read < len(p) && rb.count > 0 {
		chunk := min(len(p)-read, rb.count, rb.size-rb.readPos)
		copy(p[read:read+chunk], rb.buffer[rb.readPos:])
		rb.readPos = (rb.readPos + chunk) % rb.size
		rb.count -= chunk
		read += chunk
	}
	return read, nil
}

// SetPaused blocks or releases readers
func (rb *RingBuffer) SetPaused(paused bool) {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	rb.paused = paused
	if !paused {
		rb.cond.Broadcast()
	}
}

// Reset drops buffered bytes without waking readers
func (rb *RingBuffer) Reset() {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	rb.readPos, rb.writePos, rb.count = 0, 0, 0
}

// Close wakes all readers with ErrClosed
func (rb *RingBuffer) Close() {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	rb.closed = true
	rb.cond.Broadcast()
}

// Available returns the number of bytes available to read
func (rb *RingBuffer) Available() int {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	return rb.count
}

// Free returns the number of free bytes in the buffer
func (rb *RingBuffer) Free() int {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	return rb.size - rb.count
}

// Cap returns the capacity in bytes
func (rb *RingBuffer) Cap() int {
	return rb.size
}

// Overruns returns how many writes lost data because the buffer was full
func (rb *RingBuffer) Overruns() uint64 {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	return rb.overruns
}
