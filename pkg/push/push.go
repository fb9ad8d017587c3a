// Package push accepts raw audio pushed over TCP.
//
// A client connects, sends the payload length as a 4-byte little-endian
// unsigned integer, then the payload (an optional WAV header followed by
// 16-bit PCM). The payload is played as it arrives. When playback ends the
// server answers "OK\n"; a busy node answers "BUSY\n" immediately and any
// other failure is reported as "ERR <reason>\n".
package push

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/teslashibe/go-soundnode/pkg/player"
)

// Replies sent to the client.
const (
	ReplyOK   = "OK"
	ReplyBusy = "BUSY"
	ReplyErr  = "ERR"
)

const (
	// MaxPayload bounds the announced length.
	MaxPayload = 64 << 20

	headerTimeout = 5 * time.Second
	replyTimeout  = 5 * time.Second
)

var (
	// ErrBusy is returned by Send when the node is already playing.
	ErrBusy = errors.New("push: node busy")
	// ErrRejected is returned by Send for any other refusal.
	ErrRejected = errors.New("push: rejected")
)

// Server is a TCP push listener.
type Server struct {
	ln     net.Listener
	player *player.Controller
	logger *slog.Logger

	wg        sync.WaitGroup
	closeOnce sync.Once
}

// Listen opens a push listener on addr.
func Listen(addr string, ctrl *player.Controller, logger *slog.Logger) (*Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("push: listen %s: %w", addr, err)
	}
	return NewServer(ln, ctrl, logger), nil
}

// NewServer serves pushes accepted from ln.
func NewServer(ln net.Listener, ctrl *player.Controller, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		ln:     ln,
		player: ctrl,
		logger: logger.With("component", "push"),
	}
}

// Addr returns the listening address.
func (s *Server) Addr() net.Addr {
	return s.ln.Addr()
}

// Serve accepts connections until ctx ends or Close is called. Each
// connection is handled on its own goroutine; only one can play at a time
// and the rest are answered BUSY.
func (s *Server) Serve(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() { s.Close() })
	defer stop()

	s.logger.Info("push listener ready", "addr", s.ln.Addr().String())
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				s.wg.Wait()
				return nil
			}
			s.logger.Warn("accept failed", "error", err)
			continue
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handle(conn)
		}()
	}
}

// Close stops accepting. In-flight pushes finish on their own.
func (s *Server) Close() error {
	var err error
	s.closeOnce.Do(func() { err = s.ln.Close() })
	return err
}

func (s *Server) handle(conn net.Conn) {
	defer conn.Close()
	log := s.logger.With("remote", conn.RemoteAddr().String())

	conn.SetReadDeadline(time.Now().Add(headerTimeout))
	var hdr [4]byte
	if _, err := io.ReadFull(conn, hdr[:]); err != nil {
		log.Debug("no length prefix", "error", err)
		return
	}
	conn.SetReadDeadline(time.Time{})

	n := binary.LittleEndian.Uint32(hdr[:])
	if n == 0 || n > MaxPayload {
		s.reply(conn, fmt.Sprintf("%s bad length %d", ReplyErr, n))
		return
	}

	sess, err := s.player.StreamDirect(conn, int64(n))
	switch {
	case errors.Is(err, player.ErrBusy):
		s.reply(conn, ReplyBusy)
		discard(conn, n)
		return
	case err != nil:
		log.Warn("push rejected", "error", err)
		s.reply(conn, ReplyErr+" "+err.Error())
		discard(conn, n)
		return
	}

	log.Info("push started", "session", sess.ID, "bytes", n)
	<-sess.Done()
	s.reply(conn, ReplyOK)
}

func (s *Server) reply(conn net.Conn, msg string) {
	conn.SetWriteDeadline(time.Now().Add(replyTimeout))
	if _, err := io.WriteString(conn, msg+"\n"); err != nil {
		s.logger.Debug("reply failed", "error", err)
	}
}

// discard reads an unwanted payload so closing the connection does not
// reset it before the client has read the reply.
func discard(conn net.Conn, n uint32) {
	conn.SetReadDeadline(time.Now().Add(replyTimeout))
	io.CopyN(io.Discard, conn, int64(n))
}

// Send pushes n bytes from r to addr and waits for the node's reply.
func Send(ctx context.Context, addr string, r io.Reader, n int64) error {
	if n <= 0 || n > MaxPayload {
		return fmt.Errorf("push: payload length %d out of range", n)
	}

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("push: dial %s: %w", addr, err)
	}
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	var hdr [4]byte
	binary.LittleEndian.PutUint32(hdr[:], uint32(n))
	if _, err := conn.Write(hdr[:]); err != nil {
		return fmt.Errorf("push: write length: %w", err)
	}

	// A busy node answers before reading the payload, so watch for an
	// early reply while sending.
	replies := make(chan string, 1)
	go func() {
		line, _ := bufio.NewReader(conn).ReadString('\n')
		replies <- strings.TrimSpace(line)
	}()

	if _, err := io.CopyN(conn, r, n); err != nil {
		select {
		case line := <-replies:
			return parseReply(line)
		default:
			return fmt.Errorf("push: write payload: %w", err)
		}
	}

	select {
	case line := <-replies:
		return parseReply(line)
	case <-ctx.Done():
		return ctx.Err()
	}
}

func parseReply(line string) error {
	switch {
	case line == ReplyOK:
		return nil
	case line == ReplyBusy:
		return ErrBusy
	case line == "":
		return fmt.Errorf("%w: connection closed without reply", ErrRejected)
	default:
		return fmt.Errorf("%w: %s", ErrRejected, strings.TrimPrefix(line, ReplyErr+" "))
	}
}
