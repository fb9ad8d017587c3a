package audioio

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/teslashibe/go-soundnode/pkg/audio"
)

// Sink errors.
var (
	ErrNotInstalled = errors.New("audioio: sink not installed")
	ErrNotRunning   = errors.New("audioio: sink not running")
	ErrWriteTimeout = errors.New("audioio: write timed out")
	ErrClosed       = errors.New("audioio: sink closed")
)

// Device is a raw output backend.
//
// Sink serializes the lifecycle calls and never calls them twice in a row.
// Write may be called from a different goroutine than Stop and must return
// promptly once Stop has run.
type Device interface {
	// Install claims the peripheral and applies cfg.
	Install(cfg Config) error

	// Start begins clocking queued audio out.
	Start() error

	// Stop halts output and zeroes anything still queued.
	Stop() error

	// Uninstall releases the peripheral.
	Uninstall() error

	// Write queues p, blocking up to timeout for space (timeout <= 0 blocks
	// until space is available). It returns the bytes accepted; on timeout
	// it returns ErrWriteTimeout together with that count.
	Write(p []byte, timeout time.Duration) (int, error)

	// Name returns the backend name (e.g., "oto", "wav", "mock").
	Name() string
}

// SinkStats contains statistics about the audio sink.
type SinkStats struct {
	// BytesWritten is the total number of bytes accepted by the device.
	BytesWritten int64 `json:"bytes_written"`

	// Writes is the number of Write calls.
	Writes int64 `json:"writes"`

	// Timeouts is the number of writes that hit their deadline.
	Timeouts int64 `json:"timeouts"`

	// Installed indicates if the peripheral is claimed.
	Installed bool `json:"installed"`

	// Running indicates if the sink is currently playing.
	Running bool `json:"running"`

	// Backend is the name of the audio backend.
	Backend string `json:"backend"`
}

// Sink owns the output peripheral. All lifecycle methods are idempotent.
// Only one playback session may drive a Sink at a time.
type Sink struct {
	cfg    Config
	dev    Device
	logger *slog.Logger

	mu        sync.Mutex
	installed bool
	running   bool
	closed    bool

	// Only touched by the writing goroutine.
	scratch []byte

	bytesWritten atomic.Int64
	writes       atomic.Int64
	timeouts     atomic.Int64
}

// NewSinkWithDevice wraps an already constructed backend.
func NewSinkWithDevice(cfg Config, dev Device, logger *slog.Logger) *Sink {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sink{
		cfg:    cfg,
		dev:    dev,
		logger: logger.With("backend", dev.Name()),
	}
}

// Install configures the peripheral. No-op if already installed.
func (s *Sink) Install() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	if s.installed {
		return nil
	}
	if err := s.dev.Install(s.cfg); err != nil {
		return fmt.Errorf("install %s: %w", s.dev.Name(), err)
	}
	s.installed = true

	s.logger.Debug("audio sink installed",
		"sample_rate", s.cfg.SampleRate,
		"channels", s.cfg.Channels,
		"dma", fmt.Sprintf("%dx%d", s.cfg.DMABufCount, s.cfg.DMABufLen),
		"mode", s.cfg.Mode,
	)
	return nil
}

// Start begins output. No-op if already running.
func (s *Sink) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	if !s.installed {
		return ErrNotInstalled
	}
	if s.running {
		return nil
	}
	if err := s.dev.Start(); err != nil {
		return fmt.Errorf("start %s: %w", s.dev.Name(), err)
	}
	s.running = true
	return nil
}

// Stop halts output and zeroes queued audio so nothing stale reaches the
// next session. No-op if not running.
func (s *Sink) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}
	s.running = false
	if err := s.dev.Stop(); err != nil {
		return fmt.Errorf("stop %s: %w", s.dev.Name(), err)
	}
	return nil
}

// Uninstall releases the peripheral, stopping it first if needed.
// No-op if not installed.
func (s *Sink) Uninstall() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.uninstallLocked()
}

func (s *Sink) uninstallLocked() error {
	if !s.installed {
		return nil
	}
	if s.running {
		s.running = false
		if err := s.dev.Stop(); err != nil {
			s.logger.Warn("stop before uninstall failed", "error", err)
		}
	}
	s.installed = false
	if err := s.dev.Uninstall(); err != nil {
		return fmt.Errorf("uninstall %s: %w", s.dev.Name(), err)
	}
	s.logger.Debug("audio sink uninstalled")
	return nil
}

// Write sends s16le mono PCM to the device, blocking up to timeout.
// It returns the number of bytes of p accepted; callers advance by that
// count and retry the rest. A timeout returns ErrWriteTimeout with the
// count already accepted.
func (s *Sink) Write(p []byte, timeout time.Duration) (int, error) {
	s.mu.Lock()
	running := s.running
	s.mu.Unlock()

	if !running {
		return 0, ErrNotRunning
	}

	out := p
	if s.cfg.Mode == ModeDAC {
		if cap(s.scratch) < len(p) {
			s.scratch = make([]byte, len(p))
		}
		out = s.scratch[:len(p)]
		copy(out, p)
		audio.ToDAC8(out)
	}

	n, err := s.dev.Write(out, timeout)
	s.writes.Add(1)
	s.bytesWritten.Add(int64(n))
	if errors.Is(err, ErrWriteTimeout) {
		s.timeouts.Add(1)
	}
	return n, err
}

// Running reports whether the sink is started.
func (s *Sink) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Installed reports whether the peripheral is claimed.
func (s *Sink) Installed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.installed
}

// Config returns the audio configuration.
func (s *Sink) Config() Config {
	return s.cfg
}

// Name returns the backend name.
func (s *Sink) Name() string {
	return s.dev.Name()
}

// Device returns the wrapped backend.
func (s *Sink) Device() Device {
	return s.dev
}

// Stats returns sink statistics.
func (s *Sink) Stats() SinkStats {
	s.mu.Lock()
	installed, running := s.installed, s.running
	s.mu.Unlock()

	return SinkStats{
		BytesWritten: s.bytesWritten.Load(),
		Writes:       s.writes.Load(),
		Timeouts:     s.timeouts.Load(),
		Installed:    installed,
		Running:      running,
		Backend:      s.dev.Name(),
	}
}

// Close uninstalls the peripheral. After Close, the sink cannot be reinstalled.
func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	return s.uninstallLocked()
}
