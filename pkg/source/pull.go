package source

import (
	"context"
	"fmt"
	"io"
	"net/http"
)

// Pull streams PCM from an HTTP GET response body.
type Pull struct {
	url    string
	client *http.Client

	resp *http.Response
	buf  []byte
}

// NewPull returns a source for url. A nil client uses http.DefaultClient.
func NewPull(url string, client *http.Client) *Pull {
	if client == nil {
		client = http.DefaultClient
	}
	return &Pull{url: url, client: client}
}

func (s *Pull) Kind() Kind { return KindHTTP }

// URL returns the stream address.
func (s *Pull) URL() string { return s.url }

// Open issues the request. ctx bounds the whole stream, not just the
// request: cancelling it ends the body read.
func (s *Pull) Open(ctx context.Context, buf []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("get %s: %w", s.url, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 512))
		resp.Body.Close()
		return &StatusError{URL: s.url, Code: resp.StatusCode}
	}
	s.resp = resp
	s.buf = buf
	return nil
}

// Next reads whatever the body has ready. Any read error, including a
// dropped connection or cancellation, ends the stream.
func (s *Pull) Next(ctx context.Context, max int) ([]byte, error) {
	if s.resp == nil {
		return nil, ErrNotOpen
	}
	max = min(max, len(s.buf))
	n, err := s.resp.Body.Read(s.buf[:max])
	if n > 0 {
		return s.buf[:n], nil
	}
	if err != nil {
		return nil, io.EOF
	}
	return nil, nil
}

func (s *Pull) Close() error {
	if s.resp == nil {
		return nil
	}
	err := s.resp.Body.Close()
	s.resp = nil
	return err
}
