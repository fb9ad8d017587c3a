package node

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/teslashibe/go-soundnode/internal/config"
	"github.com/teslashibe/go-soundnode/internal/log"
	"github.com/teslashibe/go-soundnode/pkg/audioio"
	"github.com/teslashibe/go-soundnode/pkg/push"
)

func testNode(t *testing.T) *App {
	t.Helper()

	media := t.TempDir()
	clip := append(make([]byte, 44), 1, 0, 2, 0)
	if err := os.WriteFile(filepath.Join(media, "a.wav"), clip, 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := config.Default()
	cfg.HTTP.Listen = "127.0.0.1:0"
	cfg.Push.Listen = "127.0.0.1:0"
	cfg.Media.Root = media
	cfg.Audio.Backend = audioio.BackendMock
	cfg.Power.Backend = "mock"
	cfg.Power.SettleDelay = 0
	cfg.Player.Drain = 0

	app, err := New(cfg, log.Discard())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if err := app.Init(); err != nil {
		t.Fatalf("Init failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- app.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		app.Shutdown()
		<-done
	})
	return app
}

func waitIdle(t *testing.T, app *App) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for app.Player().IsPlaying() {
		if time.Now().After(deadline) {
			t.Fatal("node never returned to idle")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestNode_EndToEnd(t *testing.T) {
	app := testNode(t)
	base := "http://" + app.HTTPAddr().String()

	resp, err := http.Get(base + "/ping")
	if err != nil {
		t.Fatalf("ping failed: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if string(body) != "OK" {
		t.Errorf("ping = %q", body)
	}

	resp, err = http.Post(base+"/api/play?file=a.wav", "", nil)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("play status %d", resp.StatusCode)
	}
	waitIdle(t, app)

	payload := append(make([]byte, 44), 3, 0, 4, 0)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := push.Send(ctx, app.PushAddr().String(), bytes.NewReader(payload), int64(len(payload))); err != nil {
		t.Fatalf("push failed: %v", err)
	}

	st := app.Player().Status()
	if st.LastSession == nil || st.LastSession.Forwarded != 4 {
		t.Errorf("last session = %+v", st.LastSession)
	}
	if st.Sink.BytesWritten != 8 {
		t.Errorf("sink wrote %d bytes, want 8", st.Sink.BytesWritten)
	}
}

func TestNode_ApplyConfig(t *testing.T) {
	app := testNode(t)

	cfg := config.Default()
	cfg.Player.Volume = 0.3
	app.ApplyConfig(cfg)

	if got := app.Player().Volume(); got != 0.3 {
		t.Errorf("volume = %v, want 0.3", got)
	}
}

func TestNew_InvalidConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Audio.BitsPerSample = 8
	if _, err := New(cfg, log.Discard()); err == nil {
		t.Error("expected validation error")
	}
}
