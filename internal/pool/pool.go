// Package pool provides reusable byte buffers for streaming reads. Hashing
// and decoding touch every byte of every source file, so copy buffers are
// pooled instead of reallocated per file.
package pool

import "sync"

// DefaultBufferSize is the default copy buffer size.
const DefaultBufferSize = 64 * 1024

// BufferPool manages reusable byte buffers of a fixed size.
type BufferPool struct {
	pool sync.Pool
}

// NewBufferPool creates a pool handing out buffers of bufferSize bytes.
func NewBufferPool(bufferSize int) *BufferPool {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	bp := &BufferPool{}
	bp.pool.New = func() any {
		buf := make([]byte, bufferSize)
		return &buf
	}
	return bp
}

// Get retrieves a buffer from the pool.
func (p *BufferPool) Get() *[]byte {
	return p.pool.Get().(*[]byte)
}

// Put returns a buffer to the pool.
func (p *BufferPool) Put(buf *[]byte) {
	p.pool.Put(buf)
}
