package web

import (
	"bytes"
	"errors"
	"io"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"github.com/teslashibe/go-soundnode/pkg/hub"
	"github.com/teslashibe/go-soundnode/pkg/player"
	"github.com/teslashibe/go-soundnode/pkg/source"
)

const (
	uploadReadSize = 4096

	defaultToneFreq = 440
	defaultToneMS   = 1000
)

// statusFor maps controller errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, player.ErrBusy):
		return fiber.StatusConflict
	case errors.Is(err, player.ErrStopTimeout):
		return fiber.StatusGatewayTimeout
	case errors.Is(err, player.ErrClosed):
		return fiber.StatusServiceUnavailable
	case errors.Is(err, player.ErrNoSession), errors.Is(err, player.ErrStopped):
		return fiber.StatusConflict
	case player.IsDirectoryError(err):
		return fiber.StatusNotFound
	case errors.Is(err, player.ErrInvalidArgument), errors.Is(err, source.ErrUnsupportedScheme):
		return fiber.StatusBadRequest
	case player.IsLoadError(err):
		return fiber.StatusUnprocessableEntity
	default:
		return fiber.StatusInternalServerError
	}
}

func (s *Server) fail(c *fiber.Ctx, err error) error {
	code := statusFor(err)
	if code >= fiber.StatusInternalServerError {
		s.logger.Error("request failed", "path", c.Path(), "error", err)
	} else {
		s.logger.Debug("request rejected", "path", c.Path(), "status", code, "error", err)
	}
	return c.Status(code).JSON(fiber.Map{"error": err.Error()})
}

func badRequest(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": msg})
}

func started(c *fiber.Ctx, sess *player.Session) error {
	return c.Status(fiber.StatusAccepted).JSON(sess.Info())
}

func (s *Server) handlePing(c *fiber.Ctx) error {
	return c.SendString("OK")
}

func (s *Server) handleStatus(c *fiber.Ctx) error {
	return c.JSON(s.player.Status())
}

func (s *Server) handlePlayFile(c *fiber.Ctx) error {
	name := c.Query("file")
	if name == "" {
		return badRequest(c, "file parameter required")
	}
	sess, err := s.player.PlayFile(name)
	if err != nil {
		return s.fail(c, err)
	}
	return started(c, sess)
}

func (s *Server) handlePlayRandom(c *fiber.Ctx) error {
	sess, err := s.player.PlayRandom(c.Query("dir", s.randomDir))
	if err != nil {
		return s.fail(c, err)
	}
	return started(c, sess)
}

func (s *Server) handlePlayBuffer(c *fiber.Ctx) error {
	body := c.Body()
	if len(body) == 0 {
		return badRequest(c, "empty body")
	}
	// PlayBuffer copies before returning, so the request buffer may be reused.
	sess, err := s.player.PlayBuffer(body)
	if err != nil {
		return s.fail(c, err)
	}
	return started(c, sess)
}

// PlayURLRequest is the body of POST /api/play/url.
type PlayURLRequest struct {
	URL string `json:"url"`
}

func (s *Server) handlePlayURL(c *fiber.Ctx) error {
	var req PlayURLRequest
	if err := c.BodyParser(&req); err != nil || req.URL == "" {
		return badRequest(c, "body must be {\"url\": \"...\"}")
	}
	sess, err := s.player.PlayFromURL(req.URL)
	if err != nil {
		return s.fail(c, err)
	}
	return started(c, sess)
}

func (s *Server) handlePlayTone(c *fiber.Ctx) error {
	freq := c.QueryFloat("freq", defaultToneFreq)
	ms := c.QueryInt("ms", defaultToneMS)
	sess, err := s.player.PlayTone(freq, time.Duration(ms)*time.Millisecond)
	if err != nil {
		return s.fail(c, err)
	}
	return started(c, sess)
}

// bodyReader returns the request body as a stream when fasthttp is
// streaming it, or a reader over the buffered body otherwise.
func bodyReader(c *fiber.Ctx) io.Reader {
	if r := c.Context().RequestBodyStream(); r != nil {
		return r
	}
	return bytes.NewReader(c.Body())
}

func contentLength(c *fiber.Ctx) int64 {
	if n := c.Request().Header.ContentLength(); n > 0 {
		return int64(n)
	}
	return 0
}

// handleStreamDirect plays the request body as it arrives and responds once
// the session has ended.
func (s *Server) handleStreamDirect(c *fiber.Ctx) error {
	sess, err := s.player.StreamDirect(bodyReader(c), contentLength(c))
	if err != nil {
		return s.fail(c, err)
	}
	<-sess.Done()
	return c.JSON(sess.Info())
}

// handleStreamUpload feeds the request body through the chunked upload
// protocol.
func (s *Server) handleStreamUpload(c *fiber.Ctx) error {
	if err := s.player.StreamUploadStart(contentLength(c)); err != nil {
		return s.fail(c, err)
	}

	r := bodyReader(c)
	buf := make([]byte, uploadReadSize)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			if werr := s.player.StreamUploadWrite(buf[:n]); werr != nil {
				s.player.StreamUploadAbort()
				return s.fail(c, werr)
			}
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			s.logger.Warn("upload body read failed", "error", err)
			s.player.StreamUploadAbort()
			return badRequest(c, "upload interrupted")
		}
	}

	if err := s.player.StreamUploadEnd(); err != nil {
		return s.fail(c, err)
	}
	return c.JSON(s.player.Status().LastSession)
}

func (s *Server) handleStop(c *fiber.Ctx) error {
	if err := s.player.Stop(); err != nil {
		return s.fail(c, err)
	}
	return c.JSON(fiber.Map{"stopped": true})
}

func (s *Server) handleVolume(c *fiber.Ctx) error {
	v, err := strconv.ParseFloat(c.Query("v"), 64)
	if err != nil {
		return badRequest(c, "v must be a number in [0,1]")
	}
	return c.JSON(fiber.Map{"volume": s.player.SetVolume(v)})
}

// handleStatusWS subscribes the connection to state broadcasts.
func (s *Server) handleStatusWS(c *websocket.Conn) {
	hub.NewClient(s.statusHub, c).Run()
}

// handleStreamWS runs the upload protocol over websocket: binary frames
// carry audio, a text "end" frame completes the upload, and closing the
// socket early aborts it. The server answers "OK" or "ERR <reason>".
func (s *Server) handleStreamWS(c *websocket.Conn) {
	reply := func(msg string) {
		c.WriteMessage(websocket.TextMessage, []byte(msg))
	}

	if err := s.player.StreamUploadStart(0); err != nil {
		reply("ERR " + err.Error())
		return
	}

	for {
		kind, data, err := c.ReadMessage()
		if err != nil {
			s.logger.Warn("stream socket closed before end", "error", err)
			s.player.StreamUploadAbort()
			return
		}

		switch kind {
		case websocket.BinaryMessage:
			if err := s.player.StreamUploadWrite(data); err != nil {
				s.player.StreamUploadAbort()
				reply("ERR " + err.Error())
				return
			}
		case websocket.TextMessage:
			if string(data) != "end" {
				continue
			}
			if err := s.player.StreamUploadEnd(); err != nil {
				reply("ERR " + err.Error())
				return
			}
			reply("OK")
			return
		}
	}
}
