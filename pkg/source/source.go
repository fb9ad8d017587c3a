// Package source provides the frame sources a playback session pulls PCM from.
//
// A Source is opened once with the session's DMA buffer as working storage,
// then drained with Next until it reports io.EOF. Network sources normalize
// disconnects to io.EOF: an early end of stream is not an error.
package source

import (
	"context"
	"errors"
	"fmt"
)

// Kind identifies a source variant.
type Kind string

const (
	KindFile      Kind = "file"
	KindMemory    Kind = "memory"
	KindHTTP      Kind = "http"
	KindWebSocket Kind = "websocket"
	KindPush      Kind = "push"
	KindRTP       Kind = "rtp"
	KindTone      Kind = "tone"
	KindUpload    Kind = "upload"
)

// Source errors.
var (
	ErrBufferTooSmall    = errors.New("source: buffer too small")
	ErrUnsupportedScheme = errors.New("source: unsupported url scheme")
	ErrNotOpen           = errors.New("source: not open")
)

// StatusError reports a non-2xx reply from a pull stream.
type StatusError struct {
	URL  string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("source: %s returned status %d", e.URL, e.Code)
}

// Source produces PCM for one playback session.
type Source interface {
	// Kind identifies the variant in logs and status.
	Kind() Kind

	// Open prepares the source. buf is the session's buffer and stays
	// valid until Close. Failures here abort the session before any
	// hardware is touched.
	Open(ctx context.Context, buf []byte) error

	// Next returns up to max bytes. The slice is only valid until the next
	// call, and the caller may modify it in place. An empty slice with a
	// nil error means nothing is available yet; io.EOF means end of data.
	Next(ctx context.Context, max int) ([]byte, error)

	// Close releases the source. Safe to call more than once.
	Close() error
}

// Sizer is implemented by sources that need a buffer larger than one chunk.
type Sizer interface {
	Size() int
}

// HeaderModer is implemented by sources whose data never carries a WAV
// header, or that need a specific policy.
type HeaderModer interface {
	HeaderMode() HeaderMode
}
