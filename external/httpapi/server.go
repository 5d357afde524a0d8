// Package httpapi exposes the transcription and annotation services over
// HTTP. The handlers are thin: validation, service call, and mapping the
// error taxonomy onto the response contract.
package httpapi

import (
	"errors"
	"io"
	"log/slog"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/kotonoha-lab/kikitori/internal/annotator"
	"github.com/kotonoha-lab/kikitori/internal/apperr"
	"github.com/kotonoha-lab/kikitori/internal/transcriber"
)

const requestBodyLimit = 25 << 20 // whisper-style upload cap

type Server struct {
	app  *fiber.App
	addr string
	stt  transcriber.Transcriber
	ann  annotator.Annotator
}

func NewServer(addr string, stt transcriber.Transcriber, ann annotator.Annotator) *Server {
	app := fiber.New(fiber.Config{
		BodyLimit:             requestBodyLimit,
		DisableStartupMessage: true,
	})
	s := &Server{app: app, addr: addr, stt: stt, ann: ann}

	app.Get("/healthz", s.handleHealthz)
	app.Post("/api/transcribe", s.handleTranscribe)
	app.Post("/api/annotate", s.handleAnnotate)
	return s
}

func (s *Server) Listen() error {
	slog.Info("http api listening", "addr", s.addr)
	return s.app.Listen(s.addr)
}

func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}

func (s *Server) ShutdownWithTimeout(grace time.Duration) error {
	return s.app.ShutdownWithTimeout(grace)
}

// App exposes the fiber app for tests.
func (s *Server) App() *fiber.App {
	return s.app
}

func (s *Server) handleHealthz(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"ok": true})
}

func (s *Server) handleTranscribe(c *fiber.Ctx) error {
	fileHeader, err := c.FormFile("audio")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "audio file is required"})
	}

	file, err := fileHeader.Open()
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "audio file is unreadable"})
	}
	defer func() {
		_ = file.Close()
	}()
	data, err := io.ReadAll(file)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "audio file is unreadable"})
	}

	text, err := s.stt.Transcribe(c.Context(), transcriber.Chunk{
		Data: data,
		MIME: fileHeader.Header.Get("Content-Type"),
	})
	if err != nil {
		return s.renderTranscribeError(c, err)
	}
	return c.JSON(fiber.Map{"text": text})
}

func (s *Server) renderTranscribeError(c *fiber.Ctx, err error) error {
	var (
		validation *apperr.ValidationError
		busy       *apperr.BusyError
		rate       *apperr.RateLimitedError
		server     *apperr.UpstreamServerError
		client     *apperr.UpstreamClientError
	)
	switch {
	case errors.As(err, &validation):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": validation.Msg})
	case errors.As(err, &busy):
		retryAfter := int(busy.RetryAfter / time.Second)
		setRetryAfter(c, retryAfter)
		return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
			"error":      "transcription in progress",
			"retryAfter": retryAfter,
			"details":    "another transcription call is in flight",
		})
	case errors.As(err, &rate):
		setRetryAfter(c, rate.RetryAfterSeconds)
		return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
			"error":      "transcription service rate limited",
			"retryAfter": rate.RetryAfterSeconds,
			"details":    "upstream rate limit persisted across retries",
		})
	case errors.As(err, &server):
		return c.Status(server.Status).JSON(fiber.Map{
			"error":   "transcription service error",
			"status":  server.Status,
			"details": server.Body,
		})
	case errors.As(err, &client):
		return c.Status(client.Status).JSON(fiber.Map{
			"error":   "transcription request rejected",
			"status":  client.Status,
			"details": client.Body,
		})
	default:
		slog.Error("transcription failed", "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error":   "transcription failed",
			"details": err.Error(),
		})
	}
}

type annotateRequest struct {
	Text string `json:"text"`
}

func (s *Server) handleAnnotate(c *fiber.Ctx) error {
	var req annotateRequest
	if err := c.BodyParser(&req); err != nil || req.Text == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":       "text is required",
			"annotations": []annotator.Entry{},
		})
	}

	result, err := s.ann.Annotate(c.Context(), req.Text)
	if err != nil {
		return s.renderAnnotateError(c, err)
	}
	entries := result.Entries
	if entries == nil {
		entries = []annotator.Entry{}
	}
	return c.JSON(fiber.Map{"annotations": entries})
}

func (s *Server) renderAnnotateError(c *fiber.Ctx, err error) error {
	var (
		busy *apperr.BusyError
		rate *apperr.RateLimitedError
	)
	switch {
	case errors.As(err, &busy):
		retryAfter := int(busy.RetryAfter / time.Second)
		setRetryAfter(c, retryAfter)
		return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
			"annotations":  []annotator.Entry{},
			"wait_seconds": retryAfter,
		})
	case errors.As(err, &rate):
		setRetryAfter(c, rate.RetryAfterSeconds)
		return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
			"annotations":  []annotator.Entry{},
			"wait_seconds": rate.RetryAfterSeconds,
		})
	default:
		slog.Error("annotation failed", "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error":       "annotation failed",
			"annotations": []annotator.Entry{},
		})
	}
}

func setRetryAfter(c *fiber.Ctx, seconds int) {
	c.Set("Retry-After", strconv.Itoa(seconds))
}
