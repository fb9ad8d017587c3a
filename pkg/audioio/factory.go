package audioio

import (
	"fmt"
	"log/slog"
)

// NewSink creates a new audio sink with the given configuration.
// If cfg.Backend is BackendAuto, the best available backend is selected.
func NewSink(cfg Config, logger *slog.Logger) (*Sink, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	if logger == nil {
		logger = slog.Default()
	}

	backend := cfg.Backend
	if backend == BackendAuto {
		backend = detectBestBackend()
	}

	logger.Info("creating audio sink",
		"backend", backend,
		"sample_rate", cfg.SampleRate,
		"channels", cfg.Channels,
		"mode", cfg.Mode,
		"queue_ms", cfg.QueueDuration().Milliseconds(),
	)

	var dev Device
	switch backend {
	case BackendMock:
		dev = NewMockDevice()
	case BackendWAV:
		dev = NewWAVDevice(cfg.CaptureDir, logger)
	case BackendOto:
		d, err := newOtoDevice(logger)
		if err != nil {
			return nil, err
		}
		dev = d
	default:
		return nil, fmt.Errorf("unsupported backend: %s", backend)
	}

	cfg.Backend = backend
	return NewSinkWithDevice(cfg, dev, logger), nil
}

// detectBestBackend returns the best available backend for this build.
func detectBestBackend() Backend {
	if otoAvailable() {
		return BackendOto
	}
	return BackendMock
}

// AvailableBackends returns the list of backends available in this build.
func AvailableBackends() []Backend {
	backends := []Backend{BackendMock, BackendWAV}
	if otoAvailable() {
		backends = append(backends, BackendOto)
	}
	return backends
}
