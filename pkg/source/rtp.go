package source

import (
	"context"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/pion/rtp"
)

// DefaultRTPIdleTimeout ends an RTP stream after this long without packets.
const DefaultRTPIdleTimeout = 3 * time.Second

const maxDatagram = 1500

// RTP receives L16 mono audio over RTP/UDP. Payloads are network byte
// order and are swapped to little-endian. Late or duplicate packets are
// dropped; there is no jitter buffer.
type RTP struct {
	addr string
	idle time.Duration
	poll time.Duration

	conn     *net.UDPConn
	buf      []byte
	pkt      []byte
	pending  []byte
	scratch  []byte
	lastSeq  uint16
	haveSeq  bool
	lastData time.Time

	dropped int
}

// NewRTP returns a source listening on addr (host:port).
func NewRTP(addr string, idle, poll time.Duration) *RTP {
	if idle <= 0 {
		idle = DefaultRTPIdleTimeout
	}
	if poll <= 0 {
		poll = DefaultPollInterval
	}
	return &RTP{addr: addr, idle: idle, poll: poll}
}

func (s *RTP) Kind() Kind { return KindRTP }

// HeaderMode is HeaderNone: RTP payloads are bare samples.
func (s *RTP) HeaderMode() HeaderMode { return HeaderNone }

// Addr returns the bound local address once open.
func (s *RTP) Addr() net.Addr {
	if s.conn == nil {
		return nil
	}
	return s.conn.LocalAddr()
}

// Dropped returns how many packets were discarded.
func (s *RTP) Dropped() int { return s.dropped }

func (s *RTP) Open(ctx context.Context, buf []byte) error {
	laddr, err := net.ResolveUDPAddr("udp", s.addr)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", s.addr, err)
	}
	conn, err := net.ListenUDP("udp", laddr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.addr, err)
	}
	s.conn = conn
	s.buf = buf
	s.pkt = make([]byte, maxDatagram)
	s.lastData = time.Now()
	return nil
}

func (s *RTP) Next(ctx context.Context, max int) ([]byte, error) {
	if s.conn == nil {
		return nil, ErrNotOpen
	}
	if len(s.pending) == 0 {
		if ctx.Err() != nil {
			return nil, io.EOF
		}
		ok, err := s.receive()
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, nil
		}
	}

	k := min(max, len(s.buf), len(s.pending))
	copy(s.buf, s.pending[:k])
	s.pending = s.pending[k:]
	return s.buf[:k], nil
}

// receive waits one poll interval for a packet and queues its payload.
func (s *RTP) receive() (bool, error) {
	s.conn.SetReadDeadline(time.Now().Add(s.poll))
	n, _, err := s.conn.ReadFromUDP(s.pkt)
	if err != nil {
		if isTimeout(err) {
			if time.Since(s.lastData) > s.idle {
				return false, io.EOF
			}
			return false, nil
		}
		return false, io.EOF
	}

	var p rtp.Packet
	if err := p.Unmarshal(s.pkt[:n]); err != nil {
		s.dropped++
		return false, nil
	}
	if s.haveSeq && int16(p.SequenceNumber-s.lastSeq) <= 0 {
		s.dropped++
		return false, nil
	}
	s.lastSeq = p.SequenceNumber
	s.haveSeq = true
	s.lastData = time.Now()

	payload := p.Payload[:len(p.Payload)&^1]
	s.scratch = s.scratch[:0]
	for i := 0; i < len(payload); i += 2 {
		s.scratch = append(s.scratch, payload[i+1], payload[i])
	}
	s.pending = s.scratch
	return len(s.pending) > 0, nil
}

func (s *RTP) Close() error {
	if s.conn == nil {
		return nil
	}
	err := s.conn.Close()
	s.conn = nil
	return err
}
