package source

import (
	"context"
	"errors"
	"io"
	"net"
	"os"
	"time"
)

// DefaultPollInterval bounds how long a network read waits before the
// playback loop gets a chance to look at its stop flag.
const DefaultPollInterval = 10 * time.Millisecond

type readDeadliner interface {
	SetReadDeadline(t time.Time) error
}

// Push reads an inbound stream the remote side is already sending, such as
// an accepted TCP connection or an HTTP request body. It stops after total
// bytes, or at end of stream when total is zero or negative.
type Push struct {
	r     io.Reader
	total int64
	poll  time.Duration

	read int64
	buf  []byte
	stop func() bool
}

// NewPush returns a source reading up to total bytes from r.
func NewPush(r io.Reader, total int64, poll time.Duration) *Push {
	if poll <= 0 {
		poll = DefaultPollInterval
	}
	return &Push{r: r, total: total, poll: poll}
}

func (s *Push) Kind() Kind { return KindPush }

// Read returns the number of bytes consumed so far.
func (s *Push) Read() int64 { return s.read }

func (s *Push) Open(ctx context.Context, buf []byte) error {
	s.buf = buf
	// Readers without deadlines can only be unblocked by closing them.
	if _, ok := s.r.(readDeadliner); !ok {
		if c, ok := s.r.(io.Closer); ok {
			s.stop = context.AfterFunc(ctx, func() { c.Close() })
		}
	}
	return nil
}

// Next reads the next piece of the stream. Readers with deadlines are
// polled so a silent peer never blocks the caller longer than the poll
// interval.
func (s *Push) Next(ctx context.Context, max int) ([]byte, error) {
	if s.buf == nil {
		return nil, ErrNotOpen
	}
	if s.total > 0 && s.read >= s.total {
		return nil, io.EOF
	}
	if ctx.Err() != nil {
		return nil, io.EOF
	}

	want := int64(min(max, len(s.buf)))
	if s.total > 0 {
		want = min(want, s.total-s.read)
	}

	d, polled := s.r.(readDeadliner)
	if polled {
		d.SetReadDeadline(time.Now().Add(s.poll))
	}

	n, err := s.r.Read(s.buf[:want])
	s.read += int64(n)
	if n > 0 {
		return s.buf[:n], nil
	}
	if err == nil || (polled && isTimeout(err)) {
		return nil, nil
	}
	return nil, io.EOF
}

func (s *Push) Close() error {
	if s.stop != nil {
		s.stop()
	}
	if d, ok := s.r.(readDeadliner); ok {
		d.SetReadDeadline(time.Time{})
	}
	return nil
}

func isTimeout(err error) bool {
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
