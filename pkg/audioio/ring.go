package audioio

import (
	"io"
	"sync"
	"time"
)

// dmaRing is a bounded byte queue between the writer and a pull-based
// output. It plays the role of the DMA descriptor chain: writers block when
// it is full, the reader never blocks and gets silence on underrun.
type dmaRing struct {
	mu        sync.Mutex
	buf       []byte
	r         int
	n         int
	closed    bool
	underruns int64

	space chan struct{}
	done  chan struct{}
}

func newDMARing(size int) *dmaRing {
	return &dmaRing{
		buf:   make([]byte, size),
		space: make(chan struct{}, 1),
		done:  make(chan struct{}),
	}
}

func (q *dmaRing) signal() {
	select {
	case q.space <- struct{}{}:
	default:
	}
}

// Write copies as much of p as fits, waiting for space up to timeout.
func (q *dmaRing) Write(p []byte, timeout time.Duration) (int, error) {
	var deadline <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		deadline = t.C
	}

	written := 0
	for written < len(p) {
		q.mu.Lock()
		if q.closed {
			q.mu.Unlock()
			return written, ErrClosed
		}
		if free := len(q.buf) - q.n; free > 0 {
			k := min(free, len(p)-written)
			w := (q.r + q.n) % len(q.buf)
			c := copy(q.buf[w:], p[written:written+k])
			copy(q.buf, p[written+c:written+k])
			q.n += k
			written += k
			q.mu.Unlock()
			continue
		}
		q.mu.Unlock()

		select {
		case <-q.space:
		case <-q.done:
			return written, ErrClosed
		case <-deadline:
			return written, ErrWriteTimeout
		}
	}
	return written, nil
}

// Read fills p from the queue, padding with zeros when the queue runs dry.
func (q *dmaRing) Read(p []byte) (int, error) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return 0, io.EOF
	}
	k := min(q.n, len(p))
	c := copy(p[:k], q.buf[q.r:])
	copy(p[c:k], q.buf)
	q.r = (q.r + k) % len(q.buf)
	q.n -= k
	if k < len(p) {
		clear(p[k:])
		q.underruns++
	}
	q.mu.Unlock()

	if k > 0 {
		q.signal()
	}
	return len(p), nil
}

// Reset drops everything queued.
func (q *dmaRing) Reset() {
	q.mu.Lock()
	q.r, q.n = 0, 0
	clear(q.buf)
	q.mu.Unlock()
	q.signal()
}

// Buffered returns the number of queued bytes.
func (q *dmaRing) Buffered() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.n
}

// Close wakes any blocked writer and makes further calls fail.
func (q *dmaRing) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	close(q.done)
}

// Underruns returns how many reads found fewer bytes than requested.
func (q *dmaRing) Underruns() int64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.underruns
}
