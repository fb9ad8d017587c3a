// Package web serves the node's HTTP control API and websocket endpoints.
package web

import (
	"log/slog"
	"net"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"

	"github.com/teslashibe/go-soundnode/pkg/hub"
	"github.com/teslashibe/go-soundnode/pkg/player"
)

// DefaultBodyLimit caps buffered request bodies (PlayBuffer).
const DefaultBodyLimit = 16 << 20

// Options configures a Server.
type Options struct {
	// Addr is the listen address, e.g. ":8080".
	Addr string

	// RandomDir is used by /api/play/random when no dir is given.
	RandomDir string

	// BodyLimit caps request bodies. Zero means DefaultBodyLimit.
	BodyLimit int

	Logger *slog.Logger
}

// Server is the HTTP front end of a player.Controller.
type Server struct {
	app       *fiber.App
	addr      string
	randomDir string

	player    *player.Controller
	statusHub *hub.Hub
	logger    *slog.Logger
}

// NewServer wires routes for ctrl. statusHub feeds /ws/status and must be
// running for status clients to connect.
func NewServer(ctrl *player.Controller, statusHub *hub.Hub, opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.BodyLimit <= 0 {
		opts.BodyLimit = DefaultBodyLimit
	}
	if opts.RandomDir == "" {
		opts.RandomDir = "."
	}

	s := &Server{
		addr:      opts.Addr,
		randomDir: opts.RandomDir,
		player:    ctrl,
		statusHub: statusHub,
		logger:    opts.Logger.With("component", "web"),
	}

	app := fiber.New(fiber.Config{
		AppName:               "soundnode",
		DisableStartupMessage: true,
		BodyLimit:             opts.BodyLimit,
		StreamRequestBody:     true,
	})
	app.Use(recover.New())
	app.Use(cors.New())

	app.Get("/ping", s.handlePing)

	api := app.Group("/api")
	api.Get("/status", s.handleStatus)
	api.Post("/play", s.handlePlayFile)
	api.Post("/play/random", s.handlePlayRandom)
	api.Post("/play/buffer", s.handlePlayBuffer)
	api.Post("/play/url", s.handlePlayURL)
	api.Post("/play/tone", s.handlePlayTone)
	api.Post("/stream/direct", s.handleStreamDirect)
	api.Post("/stream/upload", s.handleStreamUpload)
	api.Post("/stop", s.handleStop)
	api.Post("/volume", s.handleVolume)

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/status", websocket.New(s.handleStatusWS))
	app.Get("/ws/stream", websocket.New(s.handleStreamWS))

	s.app = app
	return s
}

// App exposes the fiber app, mainly for tests.
func (s *Server) App() *fiber.App {
	return s.app
}

// Start listens on the configured address and blocks.
func (s *Server) Start() error {
	s.logger.Info("http api listening", "addr", s.addr)
	return s.app.Listen(s.addr)
}

// Serve serves on an existing listener and blocks.
func (s *Server) Serve(ln net.Listener) error {
	s.logger.Info("http api listening", "addr", ln.Addr().String())
	return s.app.Listener(ln)
}

// StartAsync starts the server in a goroutine.
func (s *Server) StartAsync() {
	go func() {
		if err := s.Start(); err != nil {
			s.logger.Error("http server failed", "error", err)
		}
	}()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}
