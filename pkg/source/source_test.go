package source

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"testing/fstest"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pion/rtp"
)

// drain reads s to EOF in chunks of max, failing after timeout.
func drain(t *testing.T, s Source, max int, timeout time.Duration) []byte {
	t.Helper()
	ctx := context.Background()
	deadline := time.Now().Add(timeout)

	var out []byte
	for {
		if time.Now().After(deadline) {
			t.Fatalf("drain: timed out after %d bytes", len(out))
		}
		p, err := s.Next(ctx, max)
		out = append(out, p...)
		if errors.Is(err, io.EOF) {
			return out
		}
		if err != nil {
			t.Fatalf("Next failed: %v", err)
		}
	}
}

func TestMemory(t *testing.T) {
	data := stream(100)
	src := NewMemory(data)
	if src.Size() != 100 {
		t.Fatalf("Size = %d, want 100", src.Size())
	}

	buf := make([]byte, 100)
	if err := src.Open(context.Background(), buf); err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	// The payload must be staged; the caller's slice is free to change.
	data[0] = 0xEE

	got := drain(t, src, 33, time.Second)
	if !bytes.Equal(got, stream(100)) {
		t.Errorf("memory source returned wrong bytes")
	}
}

func TestMemory_BufferTooSmall(t *testing.T) {
	src := NewMemory(stream(10))
	err := src.Open(context.Background(), make([]byte, 5))
	if !errors.Is(err, ErrBufferTooSmall) {
		t.Errorf("got %v, want ErrBufferTooSmall", err)
	}
}

func TestFile(t *testing.T) {
	fsys := fstest.MapFS{
		"sounds/a.wav": {Data: stream(200)},
	}

	src := NewFile(fsys, "sounds/a.wav")
	if err := src.Open(context.Background(), make([]byte, 64)); err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer src.Close()

	if got := drain(t, src, 64, time.Second); !bytes.Equal(got, stream(200)) {
		t.Errorf("file source returned %d bytes, want 200", len(got))
	}
}

func TestFile_OpenErrors(t *testing.T) {
	fsys := fstest.MapFS{
		"sounds/a.wav": {Data: stream(10)},
	}

	if err := NewFile(fsys, "missing.wav").Open(context.Background(), make([]byte, 8)); err == nil {
		t.Error("expected error for missing file")
	}
	if err := NewFile(fsys, "sounds").Open(context.Background(), make([]byte, 8)); err == nil {
		t.Error("expected error for directory")
	}
}

func TestPull(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			http.NotFound(w, r)
			return
		}
		w.Write(stream(500))
	}))
	defer srv.Close()

	src := NewPull(srv.URL+"/audio", srv.Client())
	if err := src.Open(context.Background(), make([]byte, 128)); err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer src.Close()

	if got := drain(t, src, 128, 2*time.Second); !bytes.Equal(got, stream(500)) {
		t.Errorf("pull returned %d bytes, want 500", len(got))
	}

	bad := NewPull(srv.URL+"/missing", srv.Client())
	err := bad.Open(context.Background(), make([]byte, 8))
	var se *StatusError
	if !errors.As(err, &se) || se.Code != http.StatusNotFound {
		t.Errorf("got %v, want StatusError 404", err)
	}
}

func TestPull_DisconnectIsEOF(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "1000")
		w.Write(stream(100))
		w.(http.Flusher).Flush()
		// Hijack and drop the connection before the promised length.
		hj, _ := w.(http.Hijacker)
		conn, _, _ := hj.Hijack()
		conn.Close()
	}))
	defer srv.Close()

	src := NewPull(srv.URL, srv.Client())
	if err := src.Open(context.Background(), make([]byte, 64)); err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer src.Close()

	got := drain(t, src, 64, 2*time.Second)
	if len(got) > 100 {
		t.Errorf("got %d bytes, want at most 100", len(got))
	}
}

func TestPull_CancelEndsStream(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte{1, 2})
		w.(http.Flusher).Flush()
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	src := NewPull(srv.URL, srv.Client())
	if err := src.Open(ctx, make([]byte, 64)); err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer src.Close()

	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	drain(t, src, 64, 2*time.Second)
}

func TestWebSocket(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		data := stream(300)
		conn.WriteMessage(websocket.BinaryMessage, data[:250])
		conn.WriteMessage(websocket.TextMessage, []byte("ignored"))
		conn.WriteMessage(websocket.BinaryMessage, data[250:])
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	}))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	src := NewWebSocket(url, nil)
	if err := src.Open(context.Background(), make([]byte, 100)); err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer src.Close()

	if got := drain(t, src, 100, 2*time.Second); !bytes.Equal(got, stream(300)) {
		t.Errorf("websocket returned %d bytes, want 300", len(got))
	}
}

func TestPush_Total(t *testing.T) {
	r := bytes.NewReader(stream(100))
	src := NewPush(r, 60, 0)
	if err := src.Open(context.Background(), make([]byte, 16)); err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	got := drain(t, src, 16, time.Second)
	if !bytes.Equal(got, stream(60)) {
		t.Errorf("got %d bytes, want first 60", len(got))
	}
	if src.Read() != 60 {
		t.Errorf("Read = %d, want 60", src.Read())
	}
}

func TestPush_EarlyDisconnectIsEOF(t *testing.T) {
	client, server := net.Pipe()
	src := NewPush(server, 1000, 5*time.Millisecond)
	if err := src.Open(context.Background(), make([]byte, 64)); err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	go func() {
		client.Write(stream(40))
		time.Sleep(30 * time.Millisecond)
		client.Close()
	}()

	got := drain(t, src, 64, 2*time.Second)
	if !bytes.Equal(got, stream(40)) {
		t.Errorf("got %d bytes, want 40", len(got))
	}
}

func TestPush_PollsWhenIdle(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()

	src := NewPush(server, 100, 5*time.Millisecond)
	src.Open(context.Background(), make([]byte, 64))

	start := time.Now()
	p, err := src.Next(context.Background(), 64)
	if err != nil || len(p) != 0 {
		t.Fatalf("idle Next = (%d bytes, %v), want (0, nil)", len(p), err)
	}
	if time.Since(start) > 500*time.Millisecond {
		t.Errorf("idle Next blocked for %v", time.Since(start))
	}
}

func TestPush_CancelledContext(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()

	ctx, cancel := context.WithCancel(context.Background())
	src := NewPush(server, 100, 5*time.Millisecond)
	src.Open(ctx, make([]byte, 64))
	cancel()

	if _, err := src.Next(ctx, 64); !errors.Is(err, io.EOF) {
		t.Errorf("Next after cancel = %v, want io.EOF", err)
	}
}

func TestRTP(t *testing.T) {
	src := NewRTP("127.0.0.1:0", 100*time.Millisecond, 5*time.Millisecond)
	if err := src.Open(context.Background(), make([]byte, 64)); err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer src.Close()

	conn, err := net.DialUDP("udp", nil, src.Addr().(*net.UDPAddr))
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	send := func(seq uint16, payload []byte) {
		pkt := rtp.Packet{
			Header:  rtp.Header{Version: 2, PayloadType: 11, SequenceNumber: seq},
			Payload: payload,
		}
		raw, err := pkt.Marshal()
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		conn.Write(raw)
	}

	send(10, []byte{0x01, 0x02, 0x03, 0x04})
	send(9, []byte{0xAA, 0xAA})  // late
	send(10, []byte{0xBB, 0xBB}) // duplicate
	send(11, []byte{0x05, 0x06})

	got := drain(t, src, 64, 2*time.Second)
	want := []byte{0x02, 0x01, 0x04, 0x03, 0x06, 0x05}
	if !bytes.Equal(got, want) {
		t.Errorf("got %x, want %x", got, want)
	}
	if src.Dropped() != 2 {
		t.Errorf("dropped = %d, want 2", src.Dropped())
	}
	if src.HeaderMode() != HeaderNone {
		t.Errorf("HeaderMode = %q, want none", src.HeaderMode())
	}
}

func TestTone(t *testing.T) {
	src := NewTone(440, 100*time.Millisecond, 22050)
	if err := src.Open(context.Background(), make([]byte, 512)); err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	got := drain(t, src, 512, time.Second)
	if len(got) != 4410 {
		t.Errorf("tone produced %d bytes, want 4410", len(got))
	}
}

func TestFromURL(t *testing.T) {
	tests := []struct {
		url     string
		kind    Kind
		wantErr bool
	}{
		{"http://host/a.wav", KindHTTP, false},
		{"https://host/a.wav", KindHTTP, false},
		{"ws://host/stream", KindWebSocket, false},
		{"rtp://0.0.0.0:5004", KindRTP, false},
		{"rtp://0.0.0.0", "", true},
		{"ftp://host/a.wav", "", true},
	}

	for _, tt := range tests {
		src, err := FromURL(tt.url, URLOptions{})
		if (err != nil) != tt.wantErr {
			t.Errorf("FromURL(%q) error = %v, wantErr %v", tt.url, err, tt.wantErr)
			continue
		}
		if err == nil && src.Kind() != tt.kind {
			t.Errorf("FromURL(%q) kind = %q, want %q", tt.url, src.Kind(), tt.kind)
		}
	}
}
