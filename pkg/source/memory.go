package source

import (
	"context"
	"fmt"
	"io"
)

// Memory plays a caller-supplied byte slice. Open copies it into the
// session buffer, so the caller may reuse its slice once Open returns.
type Memory struct {
	data []byte
	size int

	buf []byte
	off int
}

// NewMemory returns a source for data.
func NewMemory(data []byte) *Memory {
	return &Memory{data: data, size: len(data)}
}

func (s *Memory) Kind() Kind { return KindMemory }

// Size reports the buffer space needed to stage the whole payload.
func (s *Memory) Size() int { return s.size }

func (s *Memory) Open(ctx context.Context, buf []byte) error {
	if len(buf) < s.size {
		return fmt.Errorf("%w: need %d, have %d", ErrBufferTooSmall, s.size, len(buf))
	}
	copy(buf, s.data)
	s.data = nil
	s.buf = buf[:s.size]
	s.off = 0
	return nil
}

func (s *Memory) Next(ctx context.Context, max int) ([]byte, error) {
	if s.buf == nil && s.size > 0 {
		return nil, ErrNotOpen
	}
	if s.off >= len(s.buf) {
		return nil, io.EOF
	}
	k := min(max, len(s.buf)-s.off)
	p := s.buf[s.off : s.off+k]
	s.off += k
	return p, nil
}

func (s *Memory) Close() error {
	s.buf = nil
	return nil
}
