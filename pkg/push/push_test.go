package push

import (
	"bytes"
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/teslashibe/go-soundnode/internal/log"
	"github.com/teslashibe/go-soundnode/pkg/audioio"
	"github.com/teslashibe/go-soundnode/pkg/player"
)

func newNode(t *testing.T) (*Server, *player.Controller, *audioio.MockDevice) {
	t.Helper()

	logger := log.Discard()
	dev := audioio.NewMockDevice()
	sink := audioio.NewSinkWithDevice(audioio.DefaultConfig(), dev, logger)

	cfg := player.DefaultConfig()
	cfg.Drain = 0
	ctrl, err := player.New(cfg, sink, nil, player.WithLogger(logger))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { ctrl.Close() })

	srv, err := Listen("127.0.0.1:0", ctrl, logger)
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(3 * time.Second):
			t.Error("Serve did not return after cancel")
		}
	})
	return srv, ctrl, dev
}

func payload(pcm ...byte) []byte {
	return append(make([]byte, 44), pcm...)
}

func TestSend(t *testing.T) {
	srv, ctrl, dev := newNode(t)

	body := payload(1, 0, 2, 0, 3, 0)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	if err := Send(ctx, srv.Addr().String(), bytes.NewReader(body), int64(len(body))); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if got := dev.Data(); !bytes.Equal(got, []byte{1, 0, 2, 0, 3, 0}) {
		t.Errorf("sink got %x", got)
	}
	if ctrl.IsPlaying() {
		t.Error("still playing after OK")
	}
}

func TestSend_Busy(t *testing.T) {
	srv, ctrl, dev := newNode(t)
	dev.WriteDelay = 5 * time.Millisecond

	if _, err := ctrl.PlayTone(440, 10*time.Second); err != nil {
		t.Fatal(err)
	}
	defer ctrl.Stop()

	body := payload(1, 0)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	err := Send(ctx, srv.Addr().String(), bytes.NewReader(body), int64(len(body)))
	if !errors.Is(err, ErrBusy) {
		t.Errorf("got %v, want ErrBusy", err)
	}
}

func TestBadLength(t *testing.T) {
	srv, _, dev := newNode(t)

	conn, err := net.Dial("tcp", srv.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	conn.Write([]byte{0, 0, 0, 0})
	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	buf := make([]byte, 64)
	n, _ := conn.Read(buf)
	if !bytes.HasPrefix(buf[:n], []byte("ERR")) {
		t.Errorf("reply = %q, want ERR", buf[:n])
	}
	if len(dev.Events()) != 0 {
		t.Errorf("sink touched: %v", dev.Events())
	}
}

func TestClientDisconnectEndsSession(t *testing.T) {
	srv, ctrl, _ := newNode(t)

	conn, err := net.Dial("tcp", srv.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	// Announce far more than is sent, then hang up.
	conn.Write([]byte{0x00, 0x00, 0x10, 0x00})
	conn.Write(payload(1, 0, 2, 0))

	deadline := time.Now().Add(2 * time.Second)
	for !ctrl.IsPlaying() {
		if time.Now().After(deadline) {
			t.Fatal("push never started")
		}
		time.Sleep(5 * time.Millisecond)
	}
	conn.Close()

	deadline = time.Now().Add(3 * time.Second)
	for ctrl.IsPlaying() {
		if time.Now().After(deadline) {
			t.Fatal("session outlived the client connection")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestSend_InvalidLength(t *testing.T) {
	if err := Send(context.Background(), "127.0.0.1:1", bytes.NewReader(nil), 0); err == nil {
		t.Error("expected error for empty payload")
	}
}
