package source

import (
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/gorilla/websocket"
)

// URLOptions carries the collaborators FromURL hands to network sources.
type URLOptions struct {
	HTTPClient   *http.Client
	Dialer       *websocket.Dialer
	PollInterval time.Duration
	IdleTimeout  time.Duration
}

// FromURL picks a source by scheme: http and https pull the body, ws and
// wss read binary messages, rtp listens on the given host:port.
func FromURL(raw string, opts URLOptions) (Source, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("source: parse url: %w", err)
	}

	switch u.Scheme {
	case "http", "https":
		return NewPull(raw, opts.HTTPClient), nil
	case "ws", "wss":
		return NewWebSocket(raw, opts.Dialer), nil
	case "rtp":
		if u.Port() == "" {
			return nil, fmt.Errorf("source: rtp url needs a port: %s", raw)
		}
		return NewRTP(u.Host, opts.IdleTimeout, opts.PollInterval), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedScheme, u.Scheme)
	}
}
