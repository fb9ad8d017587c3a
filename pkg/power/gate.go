// Package power sequences the amplifier enable line around playback.
package power

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// ErrUnknownBackend is returned by NewPin for unsupported pin backends.
var ErrUnknownBackend = errors.New("power: unknown pin backend")

// Pin is a single digital output line.
type Pin interface {
	// Set drives the line high or low.
	Set(high bool) error

	// Name identifies the line in logs.
	Name() string
}

// Config holds amplifier gate configuration.
type Config struct {
	// Backend is "mock", "sysfs" or "none".
	Backend string `yaml:"backend" json:"backend" mapstructure:"backend"`

	// Pin is the GPIO number of the enable line.
	Pin int `yaml:"pin" json:"pin" mapstructure:"pin"`

	// ActiveLow inverts the line: low means on.
	ActiveLow bool `yaml:"active_low" json:"active_low" mapstructure:"active_low"`

	// SettleDelay is waited after the sink starts and before the amplifier
	// is switched on.
	SettleDelay time.Duration `yaml:"settle" json:"settle" mapstructure:"settle"`

	// SysfsRoot is the GPIO class directory for the sysfs backend.
	SysfsRoot string `yaml:"sysfs_root" json:"sysfs_root" mapstructure:"sysfs_root"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Backend:     "none",
		Pin:         21,
		SettleDelay: 50 * time.Millisecond,
		SysfsRoot:   "/sys/class/gpio",
	}
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	switch c.Backend {
	case "mock", "sysfs", "none":
	default:
		return fmt.Errorf("%w: %q", ErrUnknownBackend, c.Backend)
	}
	if c.Pin < 0 {
		return fmt.Errorf("pin must be non-negative, got %d", c.Pin)
	}
	if c.SettleDelay < 0 {
		return fmt.Errorf("settle must be non-negative, got %v", c.SettleDelay)
	}
	return nil
}

// NewPin builds the pin backend named in cfg.
func NewPin(cfg Config) (Pin, error) {
	switch cfg.Backend {
	case "mock":
		return NewMockPin(cfg.Pin), nil
	case "sysfs":
		return OpenSysfsPin(cfg.SysfsRoot, cfg.Pin)
	case "none", "":
		return NoopPin{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, cfg.Backend)
	}
}

// Gate drives the amplifier enable pin. It keeps no state beyond polarity,
// so Enable and Disable are safe to repeat.
type Gate struct {
	pin       Pin
	activeLow bool
	settle    time.Duration
	logger    *slog.Logger
}

// NewGate wraps pin and immediately drives it to the off level.
func NewGate(pin Pin, cfg Config, logger *slog.Logger) (*Gate, error) {
	if logger == nil {
		logger = slog.Default()
	}
	g := &Gate{
		pin:       pin,
		activeLow: cfg.ActiveLow,
		settle:    cfg.SettleDelay,
		logger:    logger.With("pin", pin.Name()),
	}
	if err := g.Disable(); err != nil {
		return nil, err
	}
	return g, nil
}

// Enable waits the settle delay and then switches the amplifier on.
// It returns ctx.Err() without touching the pin if ctx ends first.
func (g *Gate) Enable(ctx context.Context) error {
	if g.settle > 0 {
		t := time.NewTimer(g.settle)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
	}
	if err := g.pin.Set(!g.activeLow); err != nil {
		return fmt.Errorf("power: enable: %w", err)
	}
	g.logger.Debug("amplifier on")
	return nil
}

// Disable switches the amplifier off.
func (g *Gate) Disable() error {
	if err := g.pin.Set(g.activeLow); err != nil {
		return fmt.Errorf("power: disable: %w", err)
	}
	g.logger.Debug("amplifier off")
	return nil
}

// SettleDelay returns the configured settle delay.
func (g *Gate) SettleDelay() time.Duration {
	return g.settle
}
