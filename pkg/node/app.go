// Package node assembles a sound node: audio sink, amplifier gate,
// playback controller, HTTP API and TCP push listener.
package node

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"time"

	"github.com/gorilla/websocket"

	"github.com/teslashibe/go-soundnode/internal/config"
	"github.com/teslashibe/go-soundnode/internal/httpc"
	"github.com/teslashibe/go-soundnode/pkg/audioio"
	"github.com/teslashibe/go-soundnode/pkg/hub"
	"github.com/teslashibe/go-soundnode/pkg/player"
	"github.com/teslashibe/go-soundnode/pkg/power"
	"github.com/teslashibe/go-soundnode/pkg/push"
	"github.com/teslashibe/go-soundnode/pkg/web"
)

const wsHandshakeTimeout = 10 * time.Second

// App is a running sound node.
type App struct {
	config config.Node
	logger *slog.Logger

	sink      *audioio.Sink
	gate      *power.Gate
	player    *player.Controller
	statusHub *hub.Hub
	webServer *web.Server
	pushSrv   *push.Server

	httpLn net.Listener
}

// New creates an application from a validated configuration.
func New(cfg config.Node, logger *slog.Logger) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &App{config: cfg, logger: logger}, nil
}

// Init builds every component and binds the listeners.
// Call this after New() and before Run().
func (a *App) Init() error {
	cfg := a.config

	sink, err := audioio.NewSink(cfg.Audio, a.logger.With("component", "audio"))
	if err != nil {
		return fmt.Errorf("audio sink: %w", err)
	}
	a.sink = sink

	pin, err := power.NewPin(cfg.Power)
	if err != nil {
		return fmt.Errorf("amplifier pin: %w", err)
	}
	gate, err := power.NewGate(pin, cfg.Power, a.logger.With("component", "power"))
	if err != nil {
		return fmt.Errorf("amplifier gate: %w", err)
	}
	a.gate = gate

	a.statusHub = hub.New("status", a.logger)

	if _, err := os.Stat(cfg.Media.Root); err != nil {
		a.logger.Warn("media root not readable", "root", cfg.Media.Root, "error", err)
	}
	dialer := &websocket.Dialer{
		Proxy:            websocket.DefaultDialer.Proxy,
		HandshakeTimeout: wsHandshakeTimeout,
	}
	ctrl, err := player.New(cfg.Player, sink, gate,
		player.WithLogger(a.logger.With("component", "player")),
		player.WithMedia(os.DirFS(cfg.Media.Root)),
		player.WithHTTPClient(httpc.Stream),
		player.WithDialer(dialer),
		player.WithStateHook(a.publishStatus),
	)
	if err != nil {
		return fmt.Errorf("player: %w", err)
	}
	a.player = ctrl

	a.webServer = web.NewServer(ctrl, a.statusHub, web.Options{
		Addr:      cfg.HTTP.Listen,
		RandomDir: cfg.Media.RandomDir,
		Logger:    a.logger,
	})
	a.httpLn, err = net.Listen("tcp", cfg.HTTP.Listen)
	if err != nil {
		return fmt.Errorf("http listen: %w", err)
	}

	if cfg.Push.Listen != "" {
		a.pushSrv, err = push.Listen(cfg.Push.Listen, ctrl, a.logger)
		if err != nil {
			a.httpLn.Close()
			return err
		}
	}

	a.logger.Info("node initialized",
		"backend", sink.Name(),
		"amplifier", pin.Name(),
		"media", cfg.Media.Root,
		"http", a.httpLn.Addr().String(),
	)
	return nil
}

func (a *App) publishStatus(st player.Status) {
	if err := a.statusHub.Publish("status", st); err != nil {
		a.logger.Debug("status publish failed", "error", err)
	}
}

// Run serves until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	go a.statusHub.Run(ctx)

	errc := make(chan error, 2)
	go func() {
		errc <- a.webServer.Serve(a.httpLn)
	}()
	if a.pushSrv != nil {
		go func() {
			errc <- a.pushSrv.Serve(ctx)
		}()
	}

	select {
	case <-ctx.Done():
		return nil
	case err := <-errc:
		if err == nil || errors.Is(err, net.ErrClosed) {
			return nil
		}
		return err
	}
}

// ApplyConfig hot-applies the settings that can change at runtime.
// Currently only the volume.
func (a *App) ApplyConfig(cfg config.Node) {
	if cfg.Player.Volume != a.config.Player.Volume {
		v := a.player.SetVolume(cfg.Player.Volume)
		a.logger.Info("volume updated from config", "volume", v)
	}
	a.config.Player.Volume = cfg.Player.Volume
}

// Player returns the playback controller.
func (a *App) Player() *player.Controller {
	return a.player
}

// HTTPAddr returns the bound HTTP address.
func (a *App) HTTPAddr() net.Addr {
	return a.httpLn.Addr()
}

// PushAddr returns the bound push address, or nil when disabled.
func (a *App) PushAddr() net.Addr {
	if a.pushSrv == nil {
		return nil
	}
	return a.pushSrv.Addr()
}

// Shutdown stops playback, closes listeners and switches the amplifier off.
func (a *App) Shutdown() {
	if a.pushSrv != nil {
		a.pushSrv.Close()
	}
	if a.webServer != nil {
		if err := a.webServer.Shutdown(); err != nil {
			a.logger.Warn("http shutdown failed", "error", err)
		}
	}
	if a.player != nil {
		if err := a.player.Close(); err != nil {
			a.logger.Warn("player close failed", "error", err)
		}
	}
	a.logger.Info("node stopped")
}
