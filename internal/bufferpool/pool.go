// ABOUTME: Fixed-size recyclable byte buffer pool for the hot broadcast path
// ABOUTME: Mirrors original_source/server-core/src/buffer_pool.hpp
package bufferpool

import "sync"

// Pool is a thread-safe stack of recyclable fixed-capacity buffers.
// Acquire returns a handle whose Release re-inserts the buffer into the
// pool if it's under capacity, otherwise the buffer is dropped.
type Pool struct {
	mu          sync.Mutex
	stack       [][]byte
	bufferSize  int
	maxPoolSize int
}

// New creates a pool pre-populated with initialCapacity buffers of
// bufferSize bytes, capped at maxPoolSize buffers on return.
func New(bufferSize, initialCapacity, maxPoolSize int) *Pool {
	p := &Pool{
		bufferSize:  bufferSize,
		maxPoolSize: maxPoolSize,
	}
	for i := 0; i < initialCapacity; i++ {
		p.stack = append(p.stack, make([]byte, bufferSize))
	}
	return p
}

// Buffer is an owned, pool-backed byte slice. Release returns it to the
// pool (or lets it be garbage collected, if the pool is full).
type Buffer struct {
	pool *Pool
	data []byte
}

// Bytes returns the buffer's current contents.
func (b *Buffer) Bytes() []byte {
	return b.data
}

// Resize truncates or extends the buffer's visible length, up to its
// backing capacity (bufferSize). Segments shorter than bufferSize are
// common on the last segment of a chunk.
func (b *Buffer) Resize(n int) {
	b.data = b.data[:n]
}

// Release returns the buffer to its pool. Release detaches the Buffer
// from its pool, so calling it again (or on a zero Buffer) is a no-op.
func (b *Buffer) Release() {
	if b.pool == nil {
		return
	}
	b.pool.release(b.data[:cap(b.data)])
	b.pool = nil
	b.data = nil
}

// Acquire pops a buffer from the pool if one is available, else allocates
// a new one. The returned buffer is sized to bufferSize; callers that
// need a shorter segment call Resize.
func (p *Pool) Acquire() *Buffer {
	buf := p.acquireRaw()
	return &Buffer{pool: p, data: buf}
}

func (p *Pool) acquireRaw() []byte {
	p.mu.Lock()
	n := len(p.stack)
	if n > 0 {
		buf := p.stack[n-1]
		p.stack = p.stack[:n-1]
		p.mu.Unlock()
		return buf[:p.bufferSize]
	}
	p.mu.Unlock()
	return make([]byte, p.bufferSize)
}

func (p *Pool) release(buf []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.stack) >= p.maxPoolSize {
		return
	}
	p.stack = append(p.stack, buf[:p.bufferSize])
}

// PoolSize returns the current number of buffers parked in the pool.
func (p *Pool) PoolSize() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.stack)
}
