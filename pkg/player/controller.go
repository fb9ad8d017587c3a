// Package player implements the playback controller: a state machine that
// owns at most one playback session and mediates between a frame source,
// the audio sink and the amplifier gate.
package player

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"math"
	"math/rand"
	"net/http"
	"path"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/teslashibe/go-soundnode/pkg/audio"
	"github.com/teslashibe/go-soundnode/pkg/audioio"
	"github.com/teslashibe/go-soundnode/pkg/power"
	"github.com/teslashibe/go-soundnode/pkg/source"
)

// maxWriteMisses is how many consecutive writes may accept nothing before
// the rest of a chunk is dropped.
const maxWriteMisses = 3

// Controller owns the audio sink and power gate and runs one session at a time.
type Controller struct {
	cfg  Config
	sink *audioio.Sink
	gate *power.Gate
	pool *BufferPool

	media      fs.FS
	httpClient *http.Client
	dialer     *websocket.Dialer
	pick       func(n int) int
	onState    func(Status)
	logger     *slog.Logger

	volume atomic.Uint64

	mu      sync.Mutex
	state   State
	sess    *Session
	last    *SessionInfo
	closed  bool
	dropped bool // an upload was stopped; its remaining calls are no-ops
}

// New creates a controller driving sink and gate. A nil gate means no
// amplifier is wired.
func New(cfg Config, sink *audioio.Sink, gate *power.Gate, opts ...Option) (*Controller, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if sink == nil {
		return nil, fmt.Errorf("%w: nil sink", ErrInvalidArgument)
	}

	c := &Controller{
		cfg:  cfg,
		sink: sink,
		gate: gate,
		pool: NewBufferPool(cfg.PoolBytes),
		pick: rand.Intn,
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.logger == nil {
		c.logger = slog.Default()
	}
	if c.gate == nil {
		g, err := power.NewGate(power.NoopPin{}, power.Config{}, c.logger)
		if err != nil {
			return nil, err
		}
		c.gate = g
	}
	c.volume.Store(math.Float64bits(audio.ClampVolume(cfg.Volume)))

	return c, nil
}

// SetVolume clamps v to [0, 1] and applies it from the next chunk on.
// It returns the value actually set.
func (c *Controller) SetVolume(v float64) float64 {
	v = audio.ClampVolume(v)
	c.volume.Store(math.Float64bits(v))
	c.logger.Debug("volume set", "volume", v)
	return v
}

// Volume returns the current volume.
func (c *Controller) Volume() float64 {
	return math.Float64frombits(c.volume.Load())
}

// IsPlaying reports whether a session is active in any phase.
func (c *Controller) IsPlaying() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state != StateIdle
}

// State returns the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Pool returns the session buffer pool.
func (c *Controller) Pool() *BufferPool {
	return c.pool
}

// PlayFile plays name from the media filesystem.
func (c *Controller) PlayFile(name string) (*Session, error) {
	if c.media == nil {
		return nil, &LoadError{Kind: source.KindFile, Name: name, Err: ErrNoMedia}
	}
	clean, ok := cleanName(name)
	if !ok {
		return nil, &LoadError{Kind: source.KindFile, Name: name, Err: fs.ErrInvalid}
	}
	return c.Play(source.NewFile(c.media, clean), clean)
}

// PlayRandom plays a uniformly chosen .wav file from dir. The suffix match
// is case-sensitive and subdirectories are skipped.
func (c *Controller) PlayRandom(dir string) (*Session, error) {
	if c.media == nil {
		return nil, &DirectoryError{Dir: dir, Err: ErrNoMedia}
	}
	clean, ok := cleanName(dir)
	if !ok {
		return nil, &DirectoryError{Dir: dir, Err: fs.ErrInvalid}
	}

	info, err := fs.Stat(c.media, clean)
	if err != nil {
		return nil, &DirectoryError{Dir: dir, Err: err}
	}
	if !info.IsDir() {
		return nil, &DirectoryError{Dir: dir, Err: ErrNotDirectory}
	}

	entries, err := fs.ReadDir(c.media, clean)
	if err != nil {
		return nil, &DirectoryError{Dir: dir, Err: err}
	}
	var matches []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".wav") {
			continue
		}
		matches = append(matches, path.Join(clean, e.Name()))
	}
	if len(matches) == 0 {
		return nil, &DirectoryError{Dir: dir, Err: ErrNoMatchingFiles}
	}

	choice := matches[c.pick(len(matches))]
	c.logger.Info("random pick", "dir", clean, "file", choice, "candidates", len(matches))
	return c.PlayFile(choice)
}

// PlayBuffer plays a copy of b. b is staged before PlayBuffer returns, so
// the caller may reuse it immediately.
func (c *Controller) PlayBuffer(b []byte) (*Session, error) {
	return c.Play(source.NewMemory(b), fmt.Sprintf("%d bytes", len(b)))
}

// PlayFromURL streams from an http(s), ws(s) or rtp URL.
func (c *Controller) PlayFromURL(rawURL string) (*Session, error) {
	src, err := source.FromURL(rawURL, source.URLOptions{
		HTTPClient:   c.httpClient,
		Dialer:       c.dialer,
		PollInterval: c.cfg.PollInterval,
		IdleTimeout:  c.cfg.IdleTimeout,
	})
	if err != nil {
		return nil, &LoadError{Kind: "url", Name: rawURL, Err: err}
	}
	return c.Play(src, rawURL)
}

// StreamDirect plays total bytes read from r, such as an accepted socket
// or a request body. Zero total reads until r ends. The returned session's
// Done channel closes once r is no longer in use.
func (c *Controller) StreamDirect(r io.Reader, total int64) (*Session, error) {
	return c.Play(source.NewPush(r, total, c.cfg.PollInterval), fmt.Sprintf("%d bytes", total))
}

// PlayTone plays a sine wave of freq Hz for d.
func (c *Controller) PlayTone(freq float64, d time.Duration) (*Session, error) {
	nyquist := float64(c.cfg.SampleRate) / 2
	if freq <= 0 || freq >= nyquist {
		return nil, fmt.Errorf("%w: tone frequency %v outside (0, %v)", ErrInvalidArgument, freq, nyquist)
	}
	if d <= 0 || d > time.Minute {
		return nil, fmt.Errorf("%w: tone duration %v", ErrInvalidArgument, d)
	}
	label := fmt.Sprintf("%gHz %v", freq, d)
	return c.Play(source.NewTone(freq, d, c.cfg.SampleRate), label)
}

// Play starts a session for src. Loading runs in the caller: if the source
// cannot be opened or no buffer is available, Play returns a LoadError and
// no hardware is touched. Otherwise the hardware is armed and a goroutine
// drains src until it ends or Stop is called.
func (c *Controller) Play(src source.Source, label string) (*Session, error) {
	s, err := c.begin(src.Kind(), label, c.headerMode(src))
	if err != nil {
		return nil, err
	}
	s.src = src
	log := c.logger.With("session", s.ID, "kind", s.Kind)

	if err := c.load(s); err != nil {
		stopped := s.stop.Load()
		c.finish(s, false)
		if stopped {
			return nil, ErrStopped
		}
		log.Warn("load failed", "label", label, "error", err)
		return nil, err
	}
	if s.stop.Load() {
		c.finish(s, false)
		return nil, ErrStopped
	}
	if err := c.arm(s); err != nil {
		stopped := s.stop.Load()
		c.finish(s, false)
		if stopped {
			return nil, ErrStopped
		}
		log.Error("arm output failed", "error", err)
		return nil, fmt.Errorf("player: arm output: %w", err)
	}

	c.setState(s, StatePlaying)
	log.Info("playback started", "label", label)

	go c.run(s)
	return s, nil
}

func (c *Controller) headerMode(src source.Source) source.HeaderMode {
	if hm, ok := src.(source.HeaderModer); ok {
		return hm.HeaderMode()
	}
	return c.cfg.HeaderMode
}

// begin claims the controller for a new session.
func (c *Controller) begin(kind source.Kind, label string, mode source.HeaderMode) (*Session, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClosed
	}
	if c.state != StateIdle {
		c.mu.Unlock()
		return nil, ErrBusy
	}
	s := newSession(kind, label, mode)
	if kind == source.KindUpload {
		s.uploadSem <- struct{}{}
	}
	c.state = StateLoading
	c.sess = s
	c.dropped = false
	c.mu.Unlock()

	c.notify()
	return s, nil
}

// load allocates the session buffer and opens the source.
func (c *Controller) load(s *Session) error {
	size := c.cfg.ChunkSize
	if sz, ok := s.src.(source.Sizer); ok && sz.Size() > size {
		size = sz.Size()
	}

	buf, err := c.pool.Allocate(size)
	if err != nil {
		return &LoadError{Kind: s.Kind, Name: s.Label, Err: err}
	}
	s.buf = buf

	if err := s.src.Open(s.ctx, buf.Bytes()); err != nil {
		return &LoadError{Kind: s.Kind, Name: s.Label, Err: err}
	}
	return nil
}

// arm brings the output up: install, start, settle, amplifier on.
func (c *Controller) arm(s *Session) error {
	s.armed = true
	if err := c.sink.Install(); err != nil {
		return err
	}
	if err := c.sink.Start(); err != nil {
		return err
	}
	return c.gate.Enable(s.ctx)
}

// run is the session goroutine.
func (c *Controller) run(s *Session) {
	drain := true
	for !s.stop.Load() {
		chunk, err := s.src.Next(s.ctx, c.cfg.ChunkSize)
		if len(chunk) > 0 {
			c.forward(s, chunk)
		}
		if err == nil {
			continue
		}
		if !errors.Is(err, io.EOF) {
			c.logger.Warn("source read failed", "session", s.ID, "error", err)
			drain = false
		}
		break
	}

	if !s.stop.Load() {
		if tail := s.skip.Flush(); len(tail) > 0 {
			c.write(s, tail)
		}
	}
	c.finish(s, drain)
}

// forward runs one chunk through header skip, alignment, volume and the sink.
func (c *Controller) forward(s *Session, chunk []byte) {
	p := s.skip.Process(chunk)
	s.skipped.Store(int64(s.skip.Skipped()))
	if len(p) == 0 {
		return
	}
	c.write(s, p)
}

func (c *Controller) write(s *Session, p []byte) {
	p = s.align(p)
	if len(p) == 0 {
		return
	}
	audio.ApplyVolume(p, c.Volume())
	c.writeAll(s, p)
}

// writeAll feeds p to the sink, advancing by what each write accepted.
// Errors are logged and playback continues; a chunk the sink refuses
// outright several times in a row is dropped.
func (c *Controller) writeAll(s *Session, p []byte) {
	misses := 0
	for len(p) > 0 && !s.stop.Load() {
		n, err := c.sink.Write(p, c.cfg.WriteTimeout)
		p = p[n:]
		s.forwarded.Add(int64(n))

		if err != nil {
			s.writeErrs.Add(1)
			werr := &WriteError{Session: s.ID, Accepted: n, Err: err}
			c.logger.Warn("sink write failed", "session", s.ID, "error", werr)
		}
		if n > 0 {
			misses = 0
			continue
		}
		if misses++; misses >= maxWriteMisses {
			c.logger.Warn("dropping chunk remainder", "session", s.ID, "bytes", len(p))
			return
		}
	}
}

// finish tears the session down exactly once and returns to Idle.
func (c *Controller) finish(s *Session, drain bool) {
	s.finishOnce.Do(func() {
		c.setState(s, StateDraining)

		if drain && s.armed && c.cfg.Drain > 0 && !s.stop.Load() {
			t := time.NewTimer(c.cfg.Drain)
			select {
			case <-t.C:
			case <-s.ctx.Done():
			}
			t.Stop()
		}

		c.teardown(s)
		s.cancel()

		info := s.Info()
		c.mu.Lock()
		if c.sess == s {
			c.sess = nil
			c.state = StateIdle
		}
		c.last = &info
		c.mu.Unlock()

		c.logger.Info("playback ended",
			"session", s.ID,
			"kind", s.Kind,
			"forwarded", info.Forwarded,
			"skipped", info.Skipped,
			"write_errors", info.WriteErrors,
			"stopped", s.stop.Load(),
		)
		c.notify()
		close(s.done)
	})
}

// teardown releases everything the session holds. Hardware goes down in a
// fixed order: sink stop, amplifier off, sink uninstall, buffer release.
func (c *Controller) teardown(s *Session) {
	if s.src != nil {
		if err := s.src.Close(); err != nil {
			c.logger.Debug("source close failed", "session", s.ID, "error", err)
		}
	}
	if s.armed {
		if err := c.sink.Stop(); err != nil {
			c.logger.Warn("sink stop failed", "session", s.ID, "error", err)
		}
		if err := c.gate.Disable(); err != nil {
			c.logger.Warn("amplifier disable failed", "session", s.ID, "error", err)
		}
		if err := c.sink.Uninstall(); err != nil {
			c.logger.Warn("sink uninstall failed", "session", s.ID, "error", err)
		}
	}
	if s.buf != nil {
		if err := c.pool.Release(s.buf); err != nil {
			c.logger.Error("buffer release failed", "session", s.ID, "error", err)
		}
	}
}

// Stop ends the active session and waits, up to the configured stop
// timeout, for it to reach Idle. It returns nil when nothing is playing.
func (c *Controller) Stop() error {
	c.mu.Lock()
	s := c.sess
	if s != nil && s.Kind == source.KindUpload {
		c.dropped = true
	}
	c.mu.Unlock()

	if s == nil {
		return nil
	}

	s.requestStop()
	c.logger.Info("stop requested", "session", s.ID, "kind", s.Kind)

	if s.Kind == source.KindUpload {
		return c.stopUpload(s)
	}

	t := time.NewTimer(c.cfg.StopTimeout)
	defer t.Stop()
	select {
	case <-s.done:
		return nil
	case <-t.C:
		c.logger.Error("stop timed out", "session", s.ID, "timeout", c.cfg.StopTimeout)
		return ErrStopTimeout
	}
}

// Close stops any session and releases the sink. The controller cannot be
// used afterwards.
func (c *Controller) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	stopErr := c.Stop()
	if err := c.sink.Close(); err != nil {
		return err
	}
	if err := c.gate.Disable(); err != nil {
		return err
	}
	return stopErr
}

func (c *Controller) setState(s *Session, st State) {
	c.mu.Lock()
	if c.sess != s {
		c.mu.Unlock()
		return
	}
	c.state = st
	c.mu.Unlock()
	c.notify()
}

func (c *Controller) notify() {
	if c.onState != nil {
		c.onState(c.Status())
	}
}

// cleanName turns a request path into an fs.FS name.
func cleanName(name string) (string, bool) {
	name = strings.TrimPrefix(path.Clean("/"+name), "/")
	if name == "" {
		name = "."
	}
	return name, fs.ValidPath(name)
}
