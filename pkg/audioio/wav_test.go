package audioio

import (
	"encoding/binary"
	"os"
	"testing"

	"github.com/go-audio/wav"
)

func TestWAVDevice_Capture(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Backend = BackendWAV
	cfg.CaptureDir = t.TempDir()

	dev := NewWAVDevice(cfg.CaptureDir, nil)
	sink := NewSinkWithDevice(cfg, dev, nil)

	if err := sink.Install(); err != nil {
		t.Fatalf("Install failed: %v", err)
	}
	if err := sink.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	p := make([]byte, 6)
	binary.LittleEndian.PutUint16(p[0:], uint16(100))
	binary.LittleEndian.PutUint16(p[2:], uint16(0xFF9C)) // -100
	binary.LittleEndian.PutUint16(p[4:], uint16(7))

	// Split mid-sample to exercise the pending byte.
	if n, err := sink.Write(p[:3], 0); n != 3 || err != nil {
		t.Fatalf("Write = (%d, %v)", n, err)
	}
	if n, err := sink.Write(p[3:], 0); n != 3 || err != nil {
		t.Fatalf("Write = (%d, %v)", n, err)
	}

	sink.Stop()
	if err := sink.Uninstall(); err != nil {
		t.Fatalf("Uninstall failed: %v", err)
	}

	path := dev.LastPath()
	if path == "" {
		t.Fatal("no capture file recorded")
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open capture: %v", err)
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		t.Fatalf("decode capture: %v", err)
	}
	if int(dec.SampleRate) != cfg.SampleRate {
		t.Errorf("sample rate = %d, want %d", dec.SampleRate, cfg.SampleRate)
	}
	want := []int{100, -100, 7}
	if len(buf.Data) != len(want) {
		t.Fatalf("decoded %d samples, want %d", len(buf.Data), len(want))
	}
	for i, s := range want {
		if buf.Data[i] != s {
			t.Errorf("sample %d = %d, want %d", i, buf.Data[i], s)
		}
	}
}

func TestWAVDevice_FilePerInstall(t *testing.T) {
	dir := t.TempDir()
	dev := NewWAVDevice(dir, nil)
	cfg := DefaultConfig()

	for i := 0; i < 2; i++ {
		if err := dev.Install(cfg); err != nil {
			t.Fatalf("Install failed: %v", err)
		}
		dev.Start()
		dev.Write([]byte{0, 0}, 0)
		dev.Stop()
		if err := dev.Uninstall(); err != nil {
			t.Fatalf("Uninstall failed: %v", err)
		}
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 2 {
		t.Errorf("capture files = %d, want 2", len(entries))
	}
}
