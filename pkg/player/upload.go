package player

import (
	"time"

	"github.com/teslashibe/go-soundnode/pkg/source"
)

// The chunked upload protocol inverts control: the caller's I/O callback
// pushes bytes in with StreamUploadWrite instead of a goroutine pulling
// them from a source.

// StreamUploadStart arms the output for an upload of about totalHint bytes.
// It fails with ErrBusy while any session, including one still tearing
// down, is active.
func (c *Controller) StreamUploadStart(totalHint int64) error {
	s, err := c.begin(source.KindUpload, "upload", c.cfg.HeaderMode)
	if err != nil {
		return err
	}
	s.total.Store(totalHint)
	log := c.logger.With("session", s.ID, "kind", s.Kind)

	// begin handed us the write slot; a concurrent Stop waits for arming.
	defer func() { <-s.uploadSem }()

	buf, err := c.pool.Allocate(c.cfg.ChunkSize)
	if err != nil {
		c.finish(s, false)
		return &LoadError{Kind: source.KindUpload, Err: err}
	}
	s.buf = buf

	if err := c.arm(s); err != nil {
		stopped := s.stop.Load()
		c.finish(s, false)
		if stopped {
			return ErrStopped
		}
		log.Error("arm output failed", "error", err)
		return err
	}

	c.setState(s, StatePlaying)
	log.Info("upload started", "total", totalHint)
	return nil
}

// StreamUploadWrite forwards one piece of the upload. p is not modified.
// Pieces must arrive in order. Once Stop has been called, writes are
// dropped and report success so the uploader can finish normally.
func (c *Controller) StreamUploadWrite(p []byte) error {
	s, err := c.uploadSession()
	if s == nil {
		return err
	}
	c.writeUpload(s, p)
	return nil
}

// writeUpload forwards p for s. The session may have ended between
// uploadSession and taking the slot; then p is dropped.
func (c *Controller) writeUpload(s *Session, p []byte) {
	s.uploadSem <- struct{}{}
	defer c.releaseUpload(s)

	if s.stop.Load() || s.finished() {
		return
	}
	s.received.Add(int64(len(p)))

	staging := s.buf.Bytes()
	if len(staging) == 0 {
		return
	}
	for len(p) > 0 && !s.stop.Load() {
		k := copy(staging, p)
		p = p[k:]
		c.forward(s, staging[:k])
	}
}

// StreamUploadEnd completes the upload, lets queued audio play out, and
// tears the output down.
func (c *Controller) StreamUploadEnd() error {
	return c.endUpload(true)
}

// StreamUploadAbort tears the output down immediately. Used when the
// upload transport itself fails.
func (c *Controller) StreamUploadAbort() error {
	return c.endUpload(false)
}

func (c *Controller) endUpload(complete bool) error {
	s, err := c.uploadSession()
	if s == nil {
		c.mu.Lock()
		c.dropped = false
		c.mu.Unlock()
		return err
	}

	s.uploadSem <- struct{}{}
	defer func() { <-s.uploadSem }()

	if s.finished() {
		return nil
	}
	if complete && !s.stop.Load() {
		if tail := s.skip.Flush(); len(tail) > 0 {
			c.write(s, tail)
		}
	}
	if !complete {
		c.logger.Warn("upload aborted", "session", s.ID, "received", s.received.Load())
		s.requestStop()
	}
	c.finish(s, complete)
	return nil
}

// uploadSession returns the active upload. When an upload was stopped the
// session is gone but the uploader is still sending; that returns
// (nil, nil) so its calls succeed as no-ops.
func (c *Controller) uploadSession() (*Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch {
	case c.sess != nil && c.sess.Kind == source.KindUpload:
		return c.sess, nil
	case c.sess != nil:
		return nil, ErrBusy
	case c.dropped:
		return nil, nil
	default:
		return nil, ErrNoSession
	}
}

// releaseUpload frees the write slot. If a stop landed while the write was
// in flight and Stop gave up waiting, the writer finishes the teardown.
func (c *Controller) releaseUpload(s *Session) {
	stopped := s.stop.Load()
	<-s.uploadSem
	if stopped {
		c.finish(s, false)
	}
}

// stopUpload waits for any in-flight write, then tears the upload down
// from the caller's goroutine.
func (c *Controller) stopUpload(s *Session) error {
	t := time.NewTimer(c.cfg.StopTimeout)
	defer t.Stop()

	select {
	case s.uploadSem <- struct{}{}:
	case <-s.done:
		return nil
	case <-t.C:
		c.logger.Error("stop timed out waiting for upload write", "session", s.ID)
		return ErrStopTimeout
	}
	defer func() { <-s.uploadSem }()

	c.finish(s, false)
	return nil
}
