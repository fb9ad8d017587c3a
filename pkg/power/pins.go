package power

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"
)

// MockPin records every level it is driven to.
type MockPin struct {
	num int

	mu     sync.Mutex
	levels []bool

	// OnSet, if set, is called after each Set.
	OnSet func(high bool)
}

// NewMockPin creates a mock pin.
func NewMockPin(num int) *MockPin {
	return &MockPin{num: num}
}

// Set records the level.
func (p *MockPin) Set(high bool) error {
	p.mu.Lock()
	p.levels = append(p.levels, high)
	hook := p.OnSet
	p.mu.Unlock()

	if hook != nil {
		hook(high)
	}
	return nil
}

// Name returns "mock:<num>".
func (p *MockPin) Name() string {
	return "mock:" + strconv.Itoa(p.num)
}

// Levels returns a copy of the recorded levels.
func (p *MockPin) Levels() []bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]bool(nil), p.levels...)
}

// Level returns the last level driven, and false if never set.
func (p *MockPin) Level() (high bool, ok bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.levels) == 0 {
		return false, false
	}
	return p.levels[len(p.levels)-1], true
}

// NoopPin discards every level. Used when no amplifier is wired.
type NoopPin struct{}

// Set does nothing.
func (NoopPin) Set(bool) error { return nil }

// Name returns "none".
func (NoopPin) Name() string { return "none" }

// SysfsPin drives a GPIO line through the legacy sysfs interface.
type SysfsPin struct {
	num   int
	value string
}

// OpenSysfsPin exports gpio num under root and configures it as an output.
func OpenSysfsPin(root string, num int) (*SysfsPin, error) {
	dir := filepath.Join(root, "gpio"+strconv.Itoa(num))

	if _, err := os.Stat(dir); errors.Is(err, os.ErrNotExist) {
		if err := os.WriteFile(filepath.Join(root, "export"), []byte(strconv.Itoa(num)), 0o644); err != nil {
			return nil, fmt.Errorf("power: export gpio %d: %w", num, err)
		}
		// udev needs a moment to fix permissions on the new node.
		for i := 0; i < 10; i++ {
			if _, err := os.Stat(filepath.Join(dir, "direction")); err == nil {
				break
			}
			time.Sleep(10 * time.Millisecond)
		}
	}

	if err := os.WriteFile(filepath.Join(dir, "direction"), []byte("out"), 0o644); err != nil {
		return nil, fmt.Errorf("power: configure gpio %d: %w", num, err)
	}
	return &SysfsPin{num: num, value: filepath.Join(dir, "value")}, nil
}

// Set writes "1" or "0" to the value file.
func (p *SysfsPin) Set(high bool) error {
	v := []byte("0")
	if high {
		v = []byte("1")
	}
	return os.WriteFile(p.value, v, 0o644)
}

// Name returns "gpio<num>".
func (p *SysfsPin) Name() string {
	return "gpio" + strconv.Itoa(p.num)
}
