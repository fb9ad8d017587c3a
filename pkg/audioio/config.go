// Package audioio drives the node's single digital audio output peripheral.
//
// This package supports multiple backends:
//   - Mock - CI/Testing without hardware, records everything written
//   - WAV - captures each playback period to a file for inspection
//   - Oto - host speaker output for development (build with -tags oto)
//
// The backend is selected from configuration. All backends sit behind the
// same Sink, which owns the install/start/stop/uninstall lifecycle.
package audioio

import (
	"fmt"
	"time"
)

// Backend represents the audio backend type.
type Backend string

const (
	// BackendAuto selects oto when compiled in, mock otherwise.
	BackendAuto Backend = "auto"
	// BackendMock records output in memory.
	BackendMock Backend = "mock"
	// BackendWAV writes output to WAV files.
	BackendWAV Backend = "wav"
	// BackendOto plays through the host sound card.
	BackendOto Backend = "oto"
)

// Channels selects which slot of the serial frame carries the mono stream.
// Stereo duplicates it into both slots.
type Channels string

const (
	ChannelsLeft   Channels = "left"
	ChannelsRight  Channels = "right"
	ChannelsStereo Channels = "stereo"
)

// Mode selects the output path.
type Mode string

const (
	// ModeI2S sends samples unchanged to an external codec.
	ModeI2S Mode = "i2s"
	// ModeDAC converts samples to 8-bit words for the built-in DAC.
	ModeDAC Mode = "dac"
)

// Pins maps the serial audio lines to GPIO numbers.
type Pins struct {
	BCK  int `yaml:"bck" json:"bck" mapstructure:"bck"`
	WS   int `yaml:"ws" json:"ws" mapstructure:"ws"`
	DOUT int `yaml:"dout" json:"dout" mapstructure:"dout"`
}

// Config holds audio output configuration.
type Config struct {
	// Backend specifies which audio backend to use.
	// Default: "auto"
	Backend Backend `yaml:"backend" json:"backend" mapstructure:"backend"`

	// SampleRate is the audio sample rate in Hz.
	// Default: 22050
	SampleRate int `yaml:"sample_rate" json:"sample_rate" mapstructure:"sample_rate"`

	// BitsPerSample is the sample width. Only 16 is supported.
	BitsPerSample int `yaml:"bits_per_sample" json:"bits_per_sample" mapstructure:"bits_per_sample"`

	// Channels is the channel layout of the output frame.
	// Default: "left"
	Channels Channels `yaml:"channels" json:"channels" mapstructure:"channels"`

	// DMABufCount and DMABufLen size the output queue: count descriptors of
	// len frames each. Default: 8 x 512
	DMABufCount int `yaml:"dma_buf_count" json:"dma_buf_count" mapstructure:"dma_buf_count"`
	DMABufLen   int `yaml:"dma_buf_len" json:"dma_buf_len" mapstructure:"dma_buf_len"`

	// Mode selects codec or built-in DAC output.
	// Default: "i2s"
	Mode Mode `yaml:"mode" json:"mode" mapstructure:"mode"`

	// Pins is the serial line mapping.
	Pins Pins `yaml:"pins" json:"pins" mapstructure:"pins"`

	// CaptureDir is where the wav backend writes its files.
	CaptureDir string `yaml:"capture_dir" json:"capture_dir" mapstructure:"capture_dir"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Backend:       BackendAuto,
		SampleRate:    22050,
		BitsPerSample: 16,
		Channels:      ChannelsLeft,
		DMABufCount:   8,
		DMABufLen:     512,
		Mode:          ModeI2S,
		Pins:          Pins{BCK: 26, WS: 25, DOUT: 22},
		CaptureDir:    "capture",
	}
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	switch c.Backend {
	case BackendAuto, BackendMock, BackendWAV, BackendOto:
	default:
		return fmt.Errorf("backend %q not supported", c.Backend)
	}
	if c.SampleRate <= 0 {
		return fmt.Errorf("sample_rate must be positive, got %d", c.SampleRate)
	}
	if c.BitsPerSample != 16 {
		return fmt.Errorf("bits_per_sample must be 16, got %d", c.BitsPerSample)
	}
	switch c.Channels {
	case ChannelsLeft, ChannelsRight, ChannelsStereo:
	default:
		return fmt.Errorf("channels %q not supported", c.Channels)
	}
	if c.DMABufCount < 2 {
		return fmt.Errorf("dma_buf_count must be at least 2, got %d", c.DMABufCount)
	}
	if c.DMABufLen < 8 {
		return fmt.Errorf("dma_buf_len must be at least 8, got %d", c.DMABufLen)
	}
	switch c.Mode {
	case ModeI2S, ModeDAC:
	default:
		return fmt.Errorf("mode %q not supported", c.Mode)
	}
	if c.Backend == BackendWAV && c.CaptureDir == "" {
		return fmt.Errorf("capture_dir required for wav backend")
	}
	return nil
}

// FrameBytes returns the size of one input frame in bytes. Input is always
// mono; the channel layout only decides where the device puts it.
func (c *Config) FrameBytes() int {
	return c.BitsPerSample / 8
}

// QueueBytes returns the total capacity of the output queue.
func (c *Config) QueueBytes() int {
	return c.DMABufCount * c.DMABufLen * c.FrameBytes()
}

// QueueDuration returns how much audio the output queue holds when full.
func (c *Config) QueueDuration() time.Duration {
	frames := c.DMABufCount * c.DMABufLen
	return time.Duration(frames) * time.Second / time.Duration(c.SampleRate)
}
