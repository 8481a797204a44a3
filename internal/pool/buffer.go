// Package pool provides reusable copy buffers for streaming transfers.
// Pooling the buffers keeps a large concurrent sync from allocating one
// per file.
package pool

import (
	"sync"
)

// CopyBufferSize is the chunk size for streaming file content (64KB).
const CopyBufferSize = 64 * 1024

// BufferPool hands out fixed-size copy buffers.
type BufferPool struct {
	pool *sync.Pool
}

// NewBufferPool creates a buffer pool.
func NewBufferPool() *BufferPool {
	return &BufferPool{
		pool: &sync.Pool{
			New: func() interface{} {
				buf := make([]byte, CopyBufferSize)
				return &buf
			},
		},
	}
}

// Get returns a full-length buffer from the pool.
func (bp *BufferPool) Get() []byte {
	bufPtr := bp.pool.Get().(*[]byte)
	return (*bufPtr)[:CopyBufferSize]
}

// Put returns a buffer to the pool. The buffer must not be used after.
func (bp *BufferPool) Put(buf []byte) {
	if cap(buf) < CopyBufferSize {
		return
	}
	buf = buf[:CopyBufferSize]
	bp.pool.Put(&buf)
}
