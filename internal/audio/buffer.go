package audio

import (
	"sync"
)

// RingBuffer is a thread-safe byte ring that keeps the most recent audio.
// When full, writes overwrite the oldest bytes instead of failing, so a
// stalled consumer loses stale audio rather than the words just spoken.
type RingBuffer struct {
	mu      sync.Mutex
	buffer  []byte
	start   int
	length  int
	dropped int64
}

// NewRingBuffer creates a new ring buffer holding at most size bytes
func NewRingBuffer(size int) *RingBuffer {
	if size < 1 {
		size = 1
	}
	return &RingBuffer{buffer: make([]byte, size)}
}

// Write appends data, evicting the oldest bytes when capacity is exceeded.
// Returns the number of older bytes evicted.
func (rb *RingBuffer) Write(data []byte) int {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	size := len(rb.buffer)
	evicted := 0

	// Only the tail of an oversized write can survive
	if len(data) > size {
		evicted += len(data) - size
		data = data[len(data)-size:]
	}

	if overflow := rb.length + len(data) - size; overflow > 0 {
		rb.start = (rb.start + overflow) % size
		rb.length -= overflow
		evicted += overflow
	}

	end := (rb.start + rb.length) % size
	n := copy(rb.buffer[end:], data)
	copy(rb.buffer, data[n:])
	rb.length += len(data)
	rb.dropped += int64(evicted)

	return evicted
}

// Drain removes and returns everything buffered, oldest first
func (rb *RingBuffer) Drain() []byte {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	out := make([]byte, rb.length)
	n := copy(out, rb.buffer[rb.start:min(rb.start+rb.length, len(rb.buffer))])
	copy(out[n:], rb.buffer[:rb.length-n])

	rb.start = 0
	rb.length = 0
	return out
}

// Available returns the number of bytes buffered
func (rb *RingBuffer) Available() int {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	return rb.length
}

// Dropped returns the total bytes evicted since creation
func (rb *RingBuffer) Dropped() int64 {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	return rb.dropped
}

// Clear discards buffered audio
func (rb *RingBuffer) Clear() {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	rb.start = 0
	rb.length = 0
}

// IsEmpty returns true if the buffer is empty
func (rb *RingBuffer) IsEmpty() bool {
	return rb.Available() == 0
}
