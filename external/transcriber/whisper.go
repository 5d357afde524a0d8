package transcriber

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/kotonoha-lab/kikitori/internal/apperr"
	"github.com/kotonoha-lab/kikitori/internal/retry"
	"github.com/kotonoha-lab/kikitori/internal/transcriber"
)

const (
	transcriptionsPath    = "/audio/transcriptions"
	defaultWaitSeconds    = 5
	transcribeLanguage    = "en"
	transcribeTemperature = "0"
)

type WhisperConfig struct {
	BaseURL string
	APIKey  string
	Model   string
	Client  *http.Client
	Policy  retry.Policy
}

// WhisperTranscriber calls an OpenAI-compatible audio/transcriptions endpoint
// through the retrying caller. One gate per instance: at most one
// transcription call is in flight per process.
type WhisperTranscriber struct {
	baseURL string
	apiKey  string
	model   string
	caller  *retry.Caller
}

func NewWhisperTranscriber(cfg WhisperConfig) transcriber.Transcriber {
	return &WhisperTranscriber{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		model:   cfg.Model,
		caller:  retry.NewCaller("transcription", cfg.Client, retry.NewGate(), cfg.Policy),
	}
}

func (t *WhisperTranscriber) Transcribe(ctx context.Context, chunk transcriber.Chunk) (string, error) {
	if len(chunk.Data) < transcriber.MinUploadBytes {
		return "", &apperr.ValidationError{Msg: fmt.Sprintf("audio file too small: %d bytes", len(chunk.Data))}
	}
	if t.apiKey == "" {
		return "", &apperr.ConfigError{Msg: "upstream API key is not configured"}
	}

	resp, err := t.caller.Do(ctx, func(ctx context.Context) (*http.Request, error) {
		return t.buildRequest(ctx, chunk)
	})
	if err != nil {
		return "", err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &apperr.TransportError{Err: err}
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		var parsed struct {
			Text string `json:"text"`
		}
		if err := json.Unmarshal(body, &parsed); err != nil {
			return "", fmt.Errorf("decode transcription response: %w", err)
		}
		return strings.TrimSpace(parsed.Text), nil
	case resp.StatusCode == http.StatusTooManyRequests:
		wait := retry.RetryAfterSeconds(resp)
		if wait == 0 {
			wait = defaultWaitSeconds
		}
		slog.Warn("transcription rate limited after retries", "wait_seconds", wait)
		return "", &apperr.RateLimitedError{RetryAfterSeconds: wait}
	case resp.StatusCode >= http.StatusInternalServerError:
		return "", &apperr.UpstreamServerError{Status: resp.StatusCode, Body: string(body)}
	default:
		return "", &apperr.UpstreamClientError{Status: resp.StatusCode, Body: string(body)}
	}
}

// buildRequest assembles a fresh multipart payload for every attempt: the
// body is consumed on send and cannot be replayed.
func (t *WhisperTranscriber) buildRequest(ctx context.Context, chunk transcriber.Chunk) (*http.Request, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	if err := mw.WriteField("model", t.model); err != nil {
		return nil, err
	}
	if err := mw.WriteField("language", transcribeLanguage); err != nil {
		return nil, err
	}
	if err := mw.WriteField("temperature", transcribeTemperature); err != nil {
		return nil, err
	}
	if err := mw.WriteField("response_format", "json"); err != nil {
		return nil, err
	}
	fw, err := mw.CreateFormFile("file", fmt.Sprintf("chunk-%d.wav", chunk.Seq))
	if err != nil {
		return nil, err
	}
	if _, err := fw.Write(chunk.Data); err != nil {
		return nil, err
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+transcriptionsPath, bytes.NewReader(body.Bytes()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+t.apiKey)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req, nil
}
