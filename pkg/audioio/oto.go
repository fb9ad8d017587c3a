//go:build oto

package audioio

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"
)

// oto allows a single context per process.
var (
	otoOnce sync.Once
	otoCtx  *oto.Context
	otoErr  error
	otoRate int
)

func otoContext(sampleRate, bufferFrames int) (*oto.Context, error) {
	otoOnce.Do(func() {
		op := &oto.NewContextOptions{
			SampleRate:   sampleRate,
			ChannelCount: 1,
			Format:       oto.FormatSignedInt16LE,
			BufferSize:   time.Duration(bufferFrames) * time.Second / time.Duration(sampleRate),
		}
		ctx, ready, err := oto.NewContext(op)
		if err != nil {
			otoErr = fmt.Errorf("create oto context: %w", err)
			return
		}
		<-ready
		otoCtx = ctx
		otoRate = sampleRate
	})
	if otoErr != nil {
		return nil, otoErr
	}
	if otoRate != sampleRate {
		return nil, fmt.Errorf("oto context already running at %d Hz", otoRate)
	}
	return otoCtx, nil
}

// otoDevice plays through the host sound card. The player pulls from a
// bounded ring sized like the configured DMA chain.
type otoDevice struct {
	logger *slog.Logger

	mu     sync.Mutex
	ring   *dmaRing
	player *oto.Player
}

func newOtoDevice(logger *slog.Logger) (Device, error) {
	if logger == nil {
		logger = slog.Default()
	}
	return &otoDevice{logger: logger}, nil
}

func otoAvailable() bool { return true }

func (d *otoDevice) Install(cfg Config) error {
	ctx, err := otoContext(cfg.SampleRate, cfg.DMABufLen)
	if err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.ring = newDMARing(cfg.QueueBytes())
	d.player = ctx.NewPlayer(d.ring)
	return nil
}

func (d *otoDevice) Start() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.player == nil {
		return ErrNotInstalled
	}
	d.player.Play()
	return nil
}

func (d *otoDevice) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.player == nil {
		return nil
	}
	d.player.Pause()
	d.ring.Reset()
	return nil
}

func (d *otoDevice) Uninstall() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.player == nil {
		return nil
	}
	d.player.Pause()
	d.ring.Close()
	if u := d.ring.Underruns(); u > 0 {
		d.logger.Debug("oto underruns", "count", u)
	}
	d.player, d.ring = nil, nil
	return nil
}

func (d *otoDevice) Write(p []byte, timeout time.Duration) (int, error) {
	d.mu.Lock()
	ring := d.ring
	d.mu.Unlock()
	if ring == nil {
		return 0, ErrNotInstalled
	}
	return ring.Write(p, timeout)
}

func (d *otoDevice) Name() string {
	return "oto"
}
