// Package output buffers interpreter output and hands it to a consumer in
// bounded chunks.
package output

import (
	"bytes"
	"errors"
	"fmt"
	"sync"
)

// DefaultCapacity is the default chunk size in bytes.
const DefaultCapacity = 1024

// ErrInvalidCapacity is returned by NewChannel for a non-positive capacity.
var ErrInvalidCapacity = errors.New("output capacity must be positive")

// Sink receives flushed chunks in emission order. Each chunk is a fresh,
// non-empty slice the sink may retain.
type Sink interface {
	Chunk(p []byte)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(p []byte)

// Chunk calls f(p).
func (f SinkFunc) Chunk(p []byte) {
	f(p)
}

// Discard is a Sink that drops every chunk.
var Discard Sink = SinkFunc(func([]byte) {})

// Channel accumulates bytes and flushes them to its sink whenever the buffer
// fills. The buffer never holds more than its capacity.
type Channel struct {
	buf     []byte
	sink    Sink
	chunks  int
	written int
	onFlush func(n int)
}

// NewChannel creates a Channel that flushes every capacity bytes to sink.
func NewChannel(capacity int, sink Sink) (*Channel, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidCapacity, capacity)
	}
	if sink == nil {
		sink = Discard
	}
	return &Channel{
		buf:  make([]byte, 0, capacity),
		sink: sink,
	}, nil
}

// OnFlush registers f to be called with the size of every chunk delivered.
func (c *Channel) OnFlush(f func(n int)) {
	c.onFlush = f
}

// Append adds b to the buffer, flushing if it is now full.
func (c *Channel) Append(b byte) {
	c.buf = append(c.buf, b)
	c.written++
	if len(c.buf) == cap(c.buf) {
		c.flush()
	}
}

// FlushRemaining delivers any buffered bytes as a final chunk.
func (c *Channel) FlushRemaining() {
	if len(c.buf) > 0 {
		c.flush()
	}
}

func (c *Channel) flush() {
	chunk := make([]byte, len(c.buf))
	copy(chunk, c.buf)
	c.buf = c.buf[:0]
	c.chunks++
	c.sink.Chunk(chunk)
	if c.onFlush != nil {
		c.onFlush(len(chunk))
	}
}

// Chunks returns the number of chunks delivered so far.
func (c *Channel) Chunks() int {
	return c.chunks
}

// Written returns the total number of bytes appended.
func (c *Channel) Written() int {
	return c.written
}

// Collector is a Sink that keeps every chunk. It is safe for concurrent use.
type Collector struct {
	mu     sync.Mutex
	chunks [][]byte
}

// Chunk records p.
func (c *Collector) Chunk(p []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.chunks = append(c.chunks, p)
}

// Chunks returns the chunks received so far.
func (c *Collector) Chunks() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([][]byte, len(c.chunks))
	copy(out, c.chunks)
	return out
}

// Bytes returns the concatenation of all chunks.
func (c *Collector) Bytes() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return bytes.Join(c.chunks, nil)
}
