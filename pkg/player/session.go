package player

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/teslashibe/go-soundnode/pkg/source"
)

// Session is one playback instance, from the play request to hardware
// teardown. At most one exists per Controller.
type Session struct {
	ID        string
	Kind      source.Kind
	Label     string
	StartedAt time.Time

	ctx    context.Context
	cancel context.CancelFunc
	stop   atomic.Bool
	done   chan struct{}

	src   source.Source
	buf   *Buffer
	skip  *source.HeaderSkipper
	armed bool

	// odd byte held back so samples never straddle a volume pass
	carry    byte
	hasCarry bool
	work     []byte

	forwarded atomic.Int64
	skipped   atomic.Int64
	writeErrs atomic.Int64
	received  atomic.Int64
	total     atomic.Int64

	finishOnce sync.Once

	// serializes upload writes against Stop
	uploadSem chan struct{}
}

// SessionInfo is a snapshot of a session for status reporting.
type SessionInfo struct {
	ID          string      `json:"id"`
	Kind        source.Kind `json:"kind"`
	Label       string      `json:"label,omitempty"`
	StartedAt   time.Time   `json:"started_at"`
	Forwarded   int64       `json:"forwarded"`
	Skipped     int64       `json:"skipped"`
	WriteErrors int64       `json:"write_errors"`
	Received    int64       `json:"received,omitempty"`
	Total       int64       `json:"total,omitempty"`
}

func newSession(kind source.Kind, label string, mode source.HeaderMode) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	return &Session{
		ID:        uuid.NewString(),
		Kind:      kind,
		Label:     label,
		StartedAt: time.Now(),
		ctx:       ctx,
		cancel:    cancel,
		done:      make(chan struct{}),
		skip:      source.NewHeaderSkipper(mode),
		uploadSem: make(chan struct{}, 1),
	}
}

// Done is closed once the session has been torn down.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Wait blocks until the session ends or ctx is done.
func (s *Session) Wait(ctx context.Context) error {
	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stopping reports whether a stop has been requested.
func (s *Session) Stopping() bool {
	return s.stop.Load()
}

// Info returns a snapshot of the session counters.
func (s *Session) Info() SessionInfo {
	return SessionInfo{
		ID:          s.ID,
		Kind:        s.Kind,
		Label:       s.Label,
		StartedAt:   s.StartedAt,
		Forwarded:   s.forwarded.Load(),
		Skipped:     s.skipped.Load(),
		WriteErrors: s.writeErrs.Load(),
		Received:    s.received.Load(),
		Total:       s.total.Load(),
	}
}

// finished reports whether teardown has completed.
func (s *Session) finished() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

func (s *Session) requestStop() {
	s.stop.Store(true)
	s.cancel()
}

// align returns the whole samples available after prepending any carried
// byte, and carries a trailing odd byte into the next call.
func (s *Session) align(p []byte) []byte {
	if s.hasCarry {
		s.work = append(s.work[:0], s.carry)
		s.work = append(s.work, p...)
		p = s.work
		s.hasCarry = false
	}
	if len(p)%2 == 1 {
		s.carry = p[len(p)-1]
		s.hasCarry = true
		p = p[:len(p)-1]
	}
	return p
}
