// soundnode - networked audio playback node
// Plays WAV/PCM audio from local files, HTTP, websocket, RTP and raw TCP
// pushes through a single audio output with amplifier power sequencing.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/teslashibe/go-soundnode/internal/config"
	"github.com/teslashibe/go-soundnode/internal/log"
	"github.com/teslashibe/go-soundnode/pkg/audioio"
	"github.com/teslashibe/go-soundnode/pkg/node"
)

func main() {
	configPath := flag.String("config", "", "Path to soundnode.yaml (default: ./soundnode.yaml or /etc/soundnode)")
	envFile := flag.String("env", ".env", "Dotenv file with SOUNDNODE_* overrides")
	debug := flag.Bool("debug", false, "Enable debug logging (overrides log.level)")
	listBackends := flag.Bool("list-backends", false, "Print audio backends compiled into this binary and exit")
	flag.Parse()

	if *listBackends {
		for _, b := range audioio.AvailableBackends() {
			fmt.Println(b)
		}
		return
	}

	// A missing .env is normal on a deployed node.
	if err := godotenv.Load(*envFile); err != nil && !os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "soundnode: %s: %v\n", *envFile, err)
		os.Exit(1)
	}

	loader := config.NewLoader(*configPath, nil)
	cfg, err := loader.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "soundnode: %v\n", err)
		os.Exit(1)
	}

	level := cfg.Log.Level
	if *debug {
		level = "debug"
	}
	log.Init(level, cfg.Log.Format)
	logger := log.L()

	app, err := node.New(cfg, logger)
	if err != nil {
		logger.Error("configuration error", "error", err)
		os.Exit(1)
	}
	if err := app.Init(); err != nil {
		logger.Error("initialization failed", "error", err)
		os.Exit(1)
	}
	defer app.Shutdown()

	if loader.Watch(app.ApplyConfig) {
		logger.Info("watching config for changes", "file", loader.File())
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := app.Run(ctx); err != nil {
		logger.Error("runtime error", "error", err)
		app.Shutdown()
		os.Exit(1)
	}
}
