package source

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/gorilla/websocket"
)

// WebSocket pulls PCM from binary messages on a websocket. Text messages
// are ignored. The stream ends when the peer closes.
type WebSocket struct {
	url    string
	dialer *websocket.Dialer

	conn    *websocket.Conn
	buf     []byte
	pending []byte
	stop    func() bool

	closeOnce sync.Once
}

// NewWebSocket returns a source for a ws:// or wss:// url. A nil dialer
// uses websocket.DefaultDialer.
func NewWebSocket(url string, dialer *websocket.Dialer) *WebSocket {
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	return &WebSocket{url: url, dialer: dialer}
}

func (s *WebSocket) Kind() Kind { return KindWebSocket }

// URL returns the stream address.
func (s *WebSocket) URL() string { return s.url }

func (s *WebSocket) Open(ctx context.Context, buf []byte) error {
	conn, resp, err := s.dialer.DialContext(ctx, s.url, nil)
	if err != nil {
		if resp != nil {
			return &StatusError{URL: s.url, Code: resp.StatusCode}
		}
		return fmt.Errorf("dial %s: %w", s.url, err)
	}
	s.conn = conn
	s.buf = buf
	// ReadMessage has no context; closing the socket unblocks it.
	s.stop = context.AfterFunc(ctx, func() { conn.Close() })
	return nil
}

func (s *WebSocket) Next(ctx context.Context, max int) ([]byte, error) {
	if s.conn == nil {
		return nil, ErrNotOpen
	}
	if len(s.pending) == 0 {
		mt, data, err := s.conn.ReadMessage()
		if err != nil {
			return nil, io.EOF
		}
		if mt != websocket.BinaryMessage {
			return nil, nil
		}
		s.pending = data
	}

	k := min(max, len(s.buf), len(s.pending))
	copy(s.buf, s.pending[:k])
	s.pending = s.pending[k:]
	return s.buf[:k], nil
}

func (s *WebSocket) Close() error {
	if s.conn == nil {
		return nil
	}
	var err error
	s.closeOnce.Do(func() {
		s.stop()
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		s.conn.WriteMessage(websocket.CloseMessage, msg)
		err = s.conn.Close()
	})
	return err
}
