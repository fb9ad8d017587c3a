package source

import (
	"bytes"
	"fmt"
)

// WAVHeaderSize is the length of a canonical PCM WAV header.
const WAVHeaderSize = 44

var riffTag = []byte("RIFF")

// HeaderMode selects how the leading WAV header is handled.
type HeaderMode string

const (
	// HeaderSkip discards the first 44 bytes unconditionally.
	HeaderSkip HeaderMode = "skip"
	// HeaderSkipIfRIFF discards 44 bytes only when the stream starts with "RIFF".
	HeaderSkipIfRIFF HeaderMode = "riff"
	// HeaderNone forwards everything.
	HeaderNone HeaderMode = "none"
)

// ParseHeaderMode validates a mode name. Empty means HeaderSkip.
func ParseHeaderMode(s string) (HeaderMode, error) {
	switch HeaderMode(s) {
	case "", HeaderSkip:
		return HeaderSkip, nil
	case HeaderSkipIfRIFF, HeaderNone:
		return HeaderMode(s), nil
	default:
		return "", fmt.Errorf("source: unknown header mode %q", s)
	}
}

// HeaderSkipper strips the WAV header from a stream delivered in fragments
// of any size, including single bytes.
type HeaderSkipper struct {
	mode    HeaderMode
	skipped int
	done    bool

	// riff mode holds up to four bytes until the tag is decided
	probe   []byte
	decided bool
}

// NewHeaderSkipper returns a skipper for mode.
func NewHeaderSkipper(mode HeaderMode) *HeaderSkipper {
	h := &HeaderSkipper{mode: mode}
	h.Reset()
	return h
}

// Reset rearms the skipper for a new stream.
func (h *HeaderSkipper) Reset() {
	h.skipped = 0
	h.probe = h.probe[:0]
	h.decided = h.mode != HeaderSkipIfRIFF
	h.done = h.mode == HeaderNone
}

// Process consumes chunk and returns the part to forward. The result may
// alias chunk.
func (h *HeaderSkipper) Process(chunk []byte) []byte {
	if h.done {
		return chunk
	}

	if !h.decided {
		need := len(riffTag) - len(h.probe)
		take := min(need, len(chunk))
		h.probe = append(h.probe, chunk[:take]...)
		chunk = chunk[take:]

		if !bytes.HasPrefix(riffTag, h.probe) {
			h.decided, h.done = true, true
			out := append([]byte(nil), h.probe...)
			h.probe = h.probe[:0]
			return append(out, chunk...)
		}
		if len(h.probe) < len(riffTag) {
			return nil
		}
		h.decided = true
		h.skipped = len(riffTag)
		h.probe = h.probe[:0]
	}

	need := WAVHeaderSize - h.skipped
	if len(chunk) < need {
		h.skipped += len(chunk)
		return nil
	}
	h.skipped = WAVHeaderSize
	h.done = true
	return chunk[need:]
}

// Flush returns bytes still held back when the stream ends early. Only riff
// mode ever holds bytes back.
func (h *HeaderSkipper) Flush() []byte {
	if h.decided || len(h.probe) == 0 {
		return nil
	}
	out := append([]byte(nil), h.probe...)
	h.probe = h.probe[:0]
	h.decided, h.done = true, true
	return out
}

// Skipped returns the number of header bytes discarded so far.
func (h *HeaderSkipper) Skipped() int {
	return h.skipped
}

// Done reports whether the header decision is complete and all further
// bytes are forwarded verbatim.
func (h *HeaderSkipper) Done() bool {
	return h.done
}

// Mode returns the configured mode.
func (h *HeaderSkipper) Mode() HeaderMode {
	return h.mode
}
