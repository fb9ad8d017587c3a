package source

import (
	"context"
	"io"
	"time"

	"github.com/teslashibe/go-soundnode/pkg/audio"
)

// Tone synthesizes a sine wave for a fixed duration. Used to check the
// output chain without any media.
type Tone struct {
	gen       *audio.Tone
	remaining int
	buf       []byte
}

// NewTone returns a freq Hz tone lasting d at sampleRate.
func NewTone(freq float64, d time.Duration, sampleRate int) *Tone {
	return &Tone{
		gen:       audio.NewTone(freq, sampleRate),
		remaining: audio.DurationBytes(sampleRate, int(d.Milliseconds())),
	}
}

func (s *Tone) Kind() Kind { return KindTone }

// HeaderMode is HeaderNone: generated audio has no header.
func (s *Tone) HeaderMode() HeaderMode { return HeaderNone }

func (s *Tone) Open(ctx context.Context, buf []byte) error {
	s.buf = buf
	return nil
}

func (s *Tone) Next(ctx context.Context, max int) ([]byte, error) {
	if s.buf == nil {
		return nil, ErrNotOpen
	}
	k := min(max, len(s.buf), s.remaining) &^ 1
	if k == 0 {
		return nil, io.EOF
	}
	n := s.gen.Fill(s.buf[:k])
	s.remaining -= n
	return s.buf[:n], nil
}

func (s *Tone) Close() error {
	return nil
}
