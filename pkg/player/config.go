package player

import (
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/teslashibe/go-soundnode/pkg/source"
)

// Config holds playback tuning.
type Config struct {
	// Volume is the initial volume in [0, 1].
	Volume float64 `yaml:"volume" json:"volume" mapstructure:"volume"`

	// ChunkSize is the most bytes forwarded to the sink per write.
	ChunkSize int `yaml:"chunk_size" json:"chunk_size" mapstructure:"chunk_size"`

	// WriteTimeout bounds a single sink write.
	WriteTimeout time.Duration `yaml:"write_timeout" json:"write_timeout" mapstructure:"write_timeout"`

	// StopTimeout bounds how long Stop waits for a session to end.
	StopTimeout time.Duration `yaml:"stop_timeout" json:"stop_timeout" mapstructure:"stop_timeout"`

	// Drain is how long a session that reached end of data waits for the
	// output queue to play out before stopping the sink.
	Drain time.Duration `yaml:"drain" json:"drain" mapstructure:"drain"`

	// PoolBytes caps memory held by session buffers.
	PoolBytes int `yaml:"pool_bytes" json:"pool_bytes" mapstructure:"pool_bytes"`

	// HeaderMode is the WAV header policy for sources that don't set one.
	HeaderMode source.HeaderMode `yaml:"header_mode" json:"header_mode" mapstructure:"header_mode"`

	// PollInterval bounds each network read so stop requests are seen.
	PollInterval time.Duration `yaml:"poll_interval" json:"poll_interval" mapstructure:"poll_interval"`

	// IdleTimeout ends an RTP stream after this long without packets.
	IdleTimeout time.Duration `yaml:"idle_timeout" json:"idle_timeout" mapstructure:"idle_timeout"`

	// SampleRate is used to synthesize test tones.
	SampleRate int `yaml:"-" json:"-" mapstructure:"-"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Volume:       1.0,
		ChunkSize:    2048,
		WriteTimeout: 100 * time.Millisecond,
		StopTimeout:  2 * time.Second,
		Drain:        200 * time.Millisecond,
		PoolBytes:    4 << 20,
		HeaderMode:   source.HeaderSkip,
		PollInterval: source.DefaultPollInterval,
		IdleTimeout:  source.DefaultRTPIdleTimeout,
		SampleRate:   22050,
	}
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	if c.Volume < 0 || c.Volume > 1 {
		return fmt.Errorf("volume must be within [0,1], got %v", c.Volume)
	}
	if c.ChunkSize < 2 || c.ChunkSize%2 != 0 {
		return fmt.Errorf("chunk_size must be a positive even number, got %d", c.ChunkSize)
	}
	if c.WriteTimeout <= 0 {
		return fmt.Errorf("write_timeout must be positive, got %v", c.WriteTimeout)
	}
	if c.StopTimeout <= 0 {
		return fmt.Errorf("stop_timeout must be positive, got %v", c.StopTimeout)
	}
	if c.Drain < 0 {
		return fmt.Errorf("drain must be non-negative, got %v", c.Drain)
	}
	if c.PoolBytes < c.ChunkSize {
		return fmt.Errorf("pool_bytes must hold at least one chunk, got %d", c.PoolBytes)
	}
	if _, err := source.ParseHeaderMode(string(c.HeaderMode)); err != nil {
		return err
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("poll_interval must be positive, got %v", c.PollInterval)
	}
	if c.SampleRate <= 0 {
		return fmt.Errorf("sample_rate must be positive, got %d", c.SampleRate)
	}
	return nil
}

// Option configures a Controller.
type Option func(*Controller)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Controller) {
		c.logger = logger
	}
}

// WithMedia sets the filesystem PlayFile and PlayRandom read from.
func WithMedia(fsys fs.FS) Option {
	return func(c *Controller) {
		c.media = fsys
	}
}

// WithHTTPClient sets the client used by pull streams.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Controller) {
		c.httpClient = client
	}
}

// WithDialer sets the websocket dialer used by websocket streams.
func WithDialer(dialer *websocket.Dialer) Option {
	return func(c *Controller) {
		c.dialer = dialer
	}
}

// WithPicker replaces the random index picker used by PlayRandom.
func WithPicker(pick func(n int) int) Option {
	return func(c *Controller) {
		c.pick = pick
	}
}

// WithStateHook registers a callback fired after every state change.
// It runs on the goroutine that changed state and must not block.
func WithStateHook(fn func(Status)) Option {
	return func(c *Controller) {
		c.onState = fn
	}
}
