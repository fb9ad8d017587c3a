// Package httpc provides the shared HTTP clients used by the node.
// Use these instead of http.DefaultClient to ensure timeouts are set.
package httpc

import (
	"net"
	"net/http"
	"time"
)

// Default timeouts for HTTP operations.
const (
	DefaultTimeout               = 30 * time.Second
	DefaultConnectTimeout        = 10 * time.Second
	DefaultKeepAlive             = 30 * time.Second
	DefaultIdleConnTimeout       = 90 * time.Second
	DefaultResponseHeaderTimeout = 10 * time.Second
)

// Client is a shared HTTP client for short request/response calls.
var Client = NewClient(DefaultTimeout)

// Stream is a shared HTTP client for long-lived audio streams.
// It has no overall timeout: a stream lasts as long as the audio does.
// Cancel the request context to end it.
var Stream = NewStreamClient(DefaultResponseHeaderTimeout)

func newTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   DefaultConnectTimeout,
			KeepAlive: DefaultKeepAlive,
		}).DialContext,
		MaxIdleConns:          16,
		MaxIdleConnsPerHost:   4,
		IdleConnTimeout:       DefaultIdleConnTimeout,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
}

// NewClient creates a new HTTP client with the specified timeout.
func NewClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout:   timeout,
		Transport: newTransport(),
	}
}

// NewStreamClient creates a client that bounds only the wait for response headers.
func NewStreamClient(headerTimeout time.Duration) *http.Client {
	t := newTransport()
	t.ResponseHeaderTimeout = headerTimeout
	// PCM is incompressible; asking for gzip only costs CPU on the device.
	t.DisableCompression = true
	return &http.Client{Transport: t}
}
