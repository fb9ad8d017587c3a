package audioio

import (
	"sync"
	"time"
)

// Lifecycle events recorded by MockDevice.
const (
	EventInstall   = "install"
	EventStart     = "start"
	EventStop      = "stop"
	EventUninstall = "uninstall"
)

// MockDevice is an in-memory output backend for testing.
// It records every accepted byte and every lifecycle call.
type MockDevice struct {
	mu      sync.Mutex
	cfg     Config
	data    []byte
	queued  int
	events  []string
	cleared int

	// OnEvent, if set, is called after each lifecycle event.
	OnEvent func(event string)

	// AcceptLimit caps the bytes accepted per Write. A capped write reports
	// ErrWriteTimeout with the partial count. Zero means unlimited.
	AcceptLimit int

	// FailWrites makes the next N writes accept nothing and time out.
	FailWrites int

	// WriteDelay is slept on every Write to simulate a draining DMA queue.
	WriteDelay time.Duration
}

// NewMockDevice creates a new mock output device.
func NewMockDevice() *MockDevice {
	return &MockDevice{}
}

func (m *MockDevice) event(name string) {
	m.mu.Lock()
	m.events = append(m.events, name)
	hook := m.OnEvent
	m.mu.Unlock()

	if hook != nil {
		hook(name)
	}
}

// Install records the configuration.
func (m *MockDevice) Install(cfg Config) error {
	m.mu.Lock()
	m.cfg = cfg
	m.mu.Unlock()
	m.event(EventInstall)
	return nil
}

// Start records a start event.
func (m *MockDevice) Start() error {
	m.event(EventStart)
	return nil
}

// Stop zeroes the queued byte count.
func (m *MockDevice) Stop() error {
	m.mu.Lock()
	if m.queued > 0 {
		m.cleared += m.queued
	}
	m.queued = 0
	m.mu.Unlock()
	m.event(EventStop)
	return nil
}

// Uninstall records an uninstall event.
func (m *MockDevice) Uninstall() error {
	m.event(EventUninstall)
	return nil
}

// Write accepts p, subject to AcceptLimit and FailWrites.
func (m *MockDevice) Write(p []byte, timeout time.Duration) (int, error) {
	m.mu.Lock()
	delay := m.WriteDelay
	if m.FailWrites > 0 {
		m.FailWrites--
		m.mu.Unlock()
		if delay > 0 {
			time.Sleep(delay)
		}
		return 0, ErrWriteTimeout
	}

	n := len(p)
	var err error
	if m.AcceptLimit > 0 && n > m.AcceptLimit {
		n = m.AcceptLimit
		err = ErrWriteTimeout
	}
	m.data = append(m.data, p[:n]...)
	m.queued += n
	m.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}
	return n, err
}

// Name returns "mock".
func (m *MockDevice) Name() string {
	return "mock"
}

// Data returns a copy of every byte accepted so far.
func (m *MockDevice) Data() []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]byte(nil), m.data...)
}

// Events returns a copy of the lifecycle event log.
func (m *MockDevice) Events() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.events...)
}

// Queued returns bytes accepted since the last Stop.
func (m *MockDevice) Queued() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.queued
}

// Cleared returns the total bytes discarded by Stop.
func (m *MockDevice) Cleared() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cleared
}

// InstalledConfig returns the configuration passed to the last Install.
func (m *MockDevice) InstalledConfig() Config {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cfg
}

// Reset clears recorded data and events.
func (m *MockDevice) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data = nil
	m.events = nil
	m.queued = 0
	m.cleared = 0
}

// Ensure MockDevice implements Device.
var _ Device = (*MockDevice)(nil)
