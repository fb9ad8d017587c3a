package audioio

import (
	"encoding/binary"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// WAVDevice captures output to WAV files instead of a speaker.
// Each Install opens a new file in dir; Uninstall finalizes it.
type WAVDevice struct {
	dir    string
	logger *slog.Logger

	mu       sync.Mutex
	cfg      Config
	f        *os.File
	enc      *wav.Encoder
	format   *goaudio.Format
	path     string
	seq      int
	running  bool
	pending  []byte
	lastPath string
}

// NewWAVDevice creates a capture device writing into dir.
func NewWAVDevice(dir string, logger *slog.Logger) *WAVDevice {
	if logger == nil {
		logger = slog.Default()
	}
	return &WAVDevice{dir: dir, logger: logger}
}

// Install creates the next capture file.
func (d *WAVDevice) Install(cfg Config) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := os.MkdirAll(d.dir, 0o755); err != nil {
		return fmt.Errorf("create capture dir: %w", err)
	}

	d.seq++
	name := fmt.Sprintf("capture-%s-%03d.wav", time.Now().Format("20060102-150405"), d.seq)
	path := filepath.Join(d.dir, name)

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create capture file: %w", err)
	}

	chans := 1
	if cfg.Channels == ChannelsStereo {
		chans = 2
	}

	d.cfg = cfg
	d.f = f
	d.path = path
	d.enc = wav.NewEncoder(f, cfg.SampleRate, cfg.BitsPerSample, chans, 1)
	d.format = &goaudio.Format{SampleRate: cfg.SampleRate, NumChannels: chans}
	d.pending = d.pending[:0]

	d.logger.Debug("capture file opened", "path", path)
	return nil
}

// Start enables writes.
func (d *WAVDevice) Start() error {
	d.mu.Lock()
	d.running = true
	d.mu.Unlock()
	return nil
}

// Stop disables writes. The encoder writes synchronously, so the only
// queued audio is a dangling half sample.
func (d *WAVDevice) Stop() error {
	d.mu.Lock()
	d.running = false
	d.pending = d.pending[:0]
	d.mu.Unlock()
	return nil
}

// Uninstall finalizes the WAV header and closes the file.
func (d *WAVDevice) Uninstall() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.enc == nil {
		return nil
	}
	encErr := d.enc.Close()
	closeErr := d.f.Close()
	d.logger.Info("capture file written", "path", d.path)

	d.lastPath = d.path
	d.enc, d.f, d.path = nil, nil, ""

	if encErr != nil {
		return fmt.Errorf("finalize wav: %w", encErr)
	}
	return closeErr
}

// Write encodes p. It never blocks on space.
func (d *WAVDevice) Write(p []byte, timeout time.Duration) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.enc == nil {
		return 0, ErrNotInstalled
	}
	if !d.running {
		return 0, ErrNotRunning
	}

	data := p
	if len(d.pending) > 0 {
		data = append(d.pending, p...)
	}
	whole := len(data) &^ 1
	if whole == 0 {
		d.pending = append(d.pending[:0], data...)
		return len(p), nil
	}

	chans := d.format.NumChannels
	buf := &goaudio.IntBuffer{
		Format:         d.format,
		Data:           make([]int, 0, whole/2*chans),
		SourceBitDepth: 16,
	}
	for i := 0; i < whole; i += 2 {
		s := int(int16(binary.LittleEndian.Uint16(data[i:])))
		for c := 0; c < chans; c++ {
			buf.Data = append(buf.Data, s)
		}
	}
	if err := d.enc.Write(buf); err != nil {
		return 0, fmt.Errorf("encode wav: %w", err)
	}

	d.pending = append(d.pending[:0], data[whole:]...)
	return len(p), nil
}

// Name returns "wav".
func (d *WAVDevice) Name() string {
	return "wav"
}

// LastPath returns the most recently finalized capture file.
func (d *WAVDevice) LastPath() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lastPath
}

// Ensure WAVDevice implements Device.
var _ Device = (*WAVDevice)(nil)
