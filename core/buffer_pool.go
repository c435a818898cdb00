package core

import (
	"sync"

	"github.com/armon/circbuf"
)

// BufferPool manages a pool of reusable circular buffers to reduce memory allocation
type BufferPool struct {
	pool    sync.Pool
	size    int64
	maxSize int64
	minSize int64
}

// NewBufferPool creates a new buffer pool with configurable sizes
func NewBufferPool(minSize, defaultSize, maxSize int64) *BufferPool {
	bp := &BufferPool{
		size:    defaultSize,
		maxSize: maxSize,
		minSize: minSize,
	}

	bp.pool = sync.Pool{
		New: func() interface{} {
			buf, _ := circbuf.NewBuffer(bp.size)
			return buf
		},
	}

	return bp
}

// Get retrieves a buffer from the pool or creates a new one
func (bp *BufferPool) Get() *circbuf.Buffer {
	return bp.pool.Get().(*circbuf.Buffer)
}

// GetSized retrieves a buffer with a specific size requirement
func (bp *BufferPool) GetSized(size int64) *circbuf.Buffer {
	if size >= bp.minSize && size <= bp.size {
		return bp.Get()
	}

	// Custom-sized buffers are capped to avoid excessive memory usage
	if size > bp.maxSize {
		size = bp.maxSize
	}

	buf, _ := circbuf.NewBuffer(size)
	return buf
}

// Put returns a buffer to the pool for reuse
func (bp *BufferPool) Put(buf *circbuf.Buffer) {
	if buf == nil {
		return
	}

	buf.Reset()

	// Only standard-size buffers go back to the pool, custom-sized
	// buffers are left for the GC
	if buf.Size() == bp.size {
		bp.pool.Put(buf)
	}
}

// DefaultBufferPool provides buffers for job executions.
// Min: 1KB for tiny outputs, default: 256KB, max: 10MB (maxStreamSize).
var DefaultBufferPool = NewBufferPool(1024, 256*1024, maxStreamSize)
