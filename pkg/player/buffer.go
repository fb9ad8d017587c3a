package player

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// BufferPool hands out session buffers from a fixed byte budget, standing in
// for the scarce DMA-capable heap.
type BufferPool struct {
	mu       sync.Mutex
	capacity int
	inUse    int
}

// Buffer is a byte slice owned by exactly one session.
type Buffer struct {
	pool     *BufferPool
	data     []byte
	released atomic.Bool
}

// NewBufferPool creates a pool holding at most capacity bytes.
func NewBufferPool(capacity int) *BufferPool {
	return &BufferPool{capacity: capacity}
}

// Allocate reserves n bytes.
func (p *BufferPool) Allocate(n int) (*Buffer, error) {
	if n <= 0 {
		return nil, fmt.Errorf("%w: buffer size %d", ErrInvalidArgument, n)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if n > p.capacity-p.inUse {
		return nil, fmt.Errorf("%w: want %d, %d of %d free", ErrPoolExhausted, n, p.capacity-p.inUse, p.capacity)
	}
	p.inUse += n
	return &Buffer{pool: p, data: make([]byte, n)}, nil
}

// Release returns b to the pool. A second release of the same buffer is
// reported and does not credit the pool again.
func (p *BufferPool) Release(b *Buffer) error {
	if b == nil {
		return nil
	}
	if b.pool != p {
		return fmt.Errorf("player: buffer belongs to another pool")
	}
	if !b.released.CompareAndSwap(false, true) {
		return ErrDoubleRelease
	}

	p.mu.Lock()
	p.inUse -= len(b.data)
	p.mu.Unlock()

	b.data = nil
	return nil
}

// InUse returns the bytes currently allocated.
func (p *BufferPool) InUse() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.inUse
}

// Capacity returns the pool budget.
func (p *BufferPool) Capacity() int {
	return p.capacity
}

// Bytes returns the buffer contents, or nil once released.
func (b *Buffer) Bytes() []byte {
	if b.released.Load() {
		return nil
	}
	return b.data
}

// Len returns the buffer size.
func (b *Buffer) Len() int {
	return len(b.data)
}
