// Package config loads go-soundnode configuration.
//
// Values come from, in increasing priority: built-in defaults, a YAML file
// (soundnode.yaml), and SOUNDNODE_* environment variables. Nested keys map
// to environment names by replacing dots with underscores, so player.volume
// is SOUNDNODE_PLAYER_VOLUME.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"github.com/teslashibe/go-soundnode/pkg/audioio"
	"github.com/teslashibe/go-soundnode/pkg/player"
	"github.com/teslashibe/go-soundnode/pkg/power"
)

const (
	// DefaultConfigName is the file name searched for without an explicit path.
	DefaultConfigName = "soundnode"

	// EnvPrefix prefixes every environment override.
	EnvPrefix = "SOUNDNODE"

	configType = "yaml"
)

// LogConfig selects log verbosity and encoding.
type LogConfig struct {
	Level  string `yaml:"level" json:"level" mapstructure:"level"`
	Format string `yaml:"format" json:"format" mapstructure:"format"`
}

// HTTPConfig configures the control API.
type HTTPConfig struct {
	Listen string `yaml:"listen" json:"listen" mapstructure:"listen"`
}

// PushConfig configures the raw TCP push listener. An empty address
// disables it.
type PushConfig struct {
	Listen string `yaml:"listen" json:"listen" mapstructure:"listen"`
}

// MediaConfig points at the directory served to PlayFile and PlayRandom.
type MediaConfig struct {
	Root      string `yaml:"root" json:"root" mapstructure:"root"`
	RandomDir string `yaml:"random_dir" json:"random_dir" mapstructure:"random_dir"`
}

// Node is the complete node configuration.
type Node struct {
	Log    LogConfig      `yaml:"log" json:"log" mapstructure:"log"`
	HTTP   HTTPConfig     `yaml:"http" json:"http" mapstructure:"http"`
	Push   PushConfig     `yaml:"push" json:"push" mapstructure:"push"`
	Media  MediaConfig    `yaml:"media" json:"media" mapstructure:"media"`
	Audio  audioio.Config `yaml:"audio" json:"audio" mapstructure:"audio"`
	Power  power.Config   `yaml:"power" json:"power" mapstructure:"power"`
	Player player.Config  `yaml:"player" json:"player" mapstructure:"player"`
}

// Default returns the built-in configuration.
func Default() Node {
	n := Node{
		Log:    LogConfig{Level: "info", Format: "text"},
		HTTP:   HTTPConfig{Listen: ":8080"},
		Push:   PushConfig{Listen: ":8081"},
		Media:  MediaConfig{Root: "media", RandomDir: "."},
		Audio:  audioio.DefaultConfig(),
		Power:  power.DefaultConfig(),
		Player: player.DefaultConfig(),
	}
	n.Player.SampleRate = n.Audio.SampleRate
	return n
}

// Validate reports the first invalid field.
func (n *Node) Validate() error {
	if n.HTTP.Listen == "" {
		return errors.New("http.listen is required")
	}
	if n.Media.Root == "" {
		return errors.New("media.root is required")
	}
	if err := n.Audio.Validate(); err != nil {
		return fmt.Errorf("audio: %w", err)
	}
	if err := n.Power.Validate(); err != nil {
		return fmt.Errorf("power: %w", err)
	}
	if err := n.Player.Validate(); err != nil {
		return fmt.Errorf("player: %w", err)
	}
	return nil
}

// Loader reads a Node from viper and can follow later edits of the file.
type Loader struct {
	v      *viper.Viper
	logger *slog.Logger

	mu      sync.Mutex
	current Node
}

// NewLoader prepares a loader. With an empty path, soundnode.yaml is looked
// up in the working directory and /etc/soundnode, and a missing file is not
// an error. An explicit path must exist.
func NewLoader(path string, logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}

	v := viper.New()
	setDefaults(v, Default())

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(DefaultConfigName)
		v.SetConfigType(configType)
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/soundnode")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return &Loader{v: v, logger: logger.With("component", "config")}
}

// Load reads the file (if any) and environment, then validates the result.
func (l *Loader) Load() (Node, error) {
	if err := l.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Node{}, fmt.Errorf("read config: %w", err)
		}
		l.logger.Info("no config file found, using defaults and environment")
	}

	n, err := l.decode()
	if err != nil {
		return Node{}, err
	}

	l.mu.Lock()
	l.current = n
	l.mu.Unlock()

	l.logger.Debug("configuration loaded", "file", l.v.ConfigFileUsed())
	return n, nil
}

func (l *Loader) decode() (Node, error) {
	var n Node
	if err := l.v.Unmarshal(&n); err != nil {
		return Node{}, fmt.Errorf("decode config: %w", err)
	}
	n.Player.SampleRate = n.Audio.SampleRate
	if err := n.Validate(); err != nil {
		return Node{}, fmt.Errorf("invalid config: %w", err)
	}
	return n, nil
}

// Current returns the last successfully loaded configuration.
func (l *Loader) Current() Node {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.current
}

// File returns the config file in use, or "" when running on defaults.
func (l *Loader) File() string {
	return l.v.ConfigFileUsed()
}

// Watch calls onChange with the new configuration each time the config
// file is rewritten with valid content. Invalid edits are logged and
// ignored. It returns false when there is no file to watch.
func (l *Loader) Watch(onChange func(Node)) bool {
	if l.v.ConfigFileUsed() == "" {
		return false
	}

	l.v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		n, err := l.decode()
		if err != nil {
			l.logger.Warn("ignoring config change", "file", e.Name, "error", err)
			return
		}

		l.mu.Lock()
		l.current = n
		l.mu.Unlock()

		l.logger.Info("config reloaded", "file", e.Name)
		onChange(n)
	})
	l.v.WatchConfig()
	return true
}

func setDefaults(v *viper.Viper, n Node) {
	v.SetDefault("log.level", n.Log.Level)
	v.SetDefault("log.format", n.Log.Format)

	v.SetDefault("http.listen", n.HTTP.Listen)
	v.SetDefault("push.listen", n.Push.Listen)

	v.SetDefault("media.root", n.Media.Root)
	v.SetDefault("media.random_dir", n.Media.RandomDir)

	v.SetDefault("audio.backend", string(n.Audio.Backend))
	v.SetDefault("audio.sample_rate", n.Audio.SampleRate)
	v.SetDefault("audio.bits_per_sample", n.Audio.BitsPerSample)
	v.SetDefault("audio.channels", string(n.Audio.Channels))
	v.SetDefault("audio.dma_buf_count", n.Audio.DMABufCount)
	v.SetDefault("audio.dma_buf_len", n.Audio.DMABufLen)
	v.SetDefault("audio.mode", string(n.Audio.Mode))
	v.SetDefault("audio.capture_dir", n.Audio.CaptureDir)
	v.SetDefault("audio.pins.bck", n.Audio.Pins.BCK)
	v.SetDefault("audio.pins.ws", n.Audio.Pins.WS)
	v.SetDefault("audio.pins.dout", n.Audio.Pins.DOUT)

	v.SetDefault("power.backend", n.Power.Backend)
	v.SetDefault("power.pin", n.Power.Pin)
	v.SetDefault("power.active_low", n.Power.ActiveLow)
	v.SetDefault("power.settle", n.Power.SettleDelay)
	v.SetDefault("power.sysfs_root", n.Power.SysfsRoot)

	v.SetDefault("player.volume", n.Player.Volume)
	v.SetDefault("player.chunk_size", n.Player.ChunkSize)
	v.SetDefault("player.write_timeout", n.Player.WriteTimeout)
	v.SetDefault("player.stop_timeout", n.Player.StopTimeout)
	v.SetDefault("player.drain", n.Player.Drain)
	v.SetDefault("player.pool_bytes", n.Player.PoolBytes)
	v.SetDefault("player.header_mode", string(n.Player.HeaderMode))
	v.SetDefault("player.poll_interval", n.Player.PollInterval)
	v.SetDefault("player.idle_timeout", n.Player.IdleTimeout)
}
