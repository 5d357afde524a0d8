package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/kotonoha-lab/kikitori/internal/annotator"
	"github.com/kotonoha-lab/kikitori/internal/apperr"
	"github.com/kotonoha-lab/kikitori/internal/transcriber"
)

type stubTranscriber struct {
	text string
	err  error
	got  transcriber.Chunk
}

func (s *stubTranscriber) Transcribe(_ context.Context, chunk transcriber.Chunk) (string, error) {
	s.got = chunk
	return s.text, s.err
}

type stubAnnotator struct {
	result annotator.Result
	err    error
	got    string
}

func (s *stubAnnotator) Annotate(_ context.Context, text string) (annotator.Result, error) {
	s.got = text
	return s.result, s.err
}

func multipartAudio(t *testing.T, payload []byte) (*bytes.Buffer, string) {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("audio", "chunk.wav")
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	if _, err := fw.Write(payload); err != nil {
		t.Fatalf("write form file: %v", err)
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}
	return &body, mw.FormDataContentType()
}

func decodeBody(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	var parsed map[string]any
	if err := json.Unmarshal(raw, &parsed); err != nil {
		t.Fatalf("body not JSON: %v (%s)", err, raw)
	}
	return parsed
}

func TestTranscribeEndpoint_Success(t *testing.T) {
	stt := &stubTranscriber{text: "hello world"}
	server := NewServer(":0", stt, &stubAnnotator{})

	body, contentType := multipartAudio(t, make([]byte, 6000))
	req := httptest.NewRequest(http.MethodPost, "/api/transcribe", body)
	req.Header.Set("Content-Type", contentType)

	resp, err := server.App().Test(req, int(5*time.Second/time.Millisecond))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	parsed := decodeBody(t, resp)
	if parsed["text"] != "hello world" {
		t.Fatalf("unexpected body: %v", parsed)
	}
	if len(stt.got.Data) != 6000 {
		t.Fatalf("transcriber got %d bytes", len(stt.got.Data))
	}
}

func TestTranscribeEndpoint_MissingFile(t *testing.T) {
	server := NewServer(":0", &stubTranscriber{}, &stubAnnotator{})
	req := httptest.NewRequest(http.MethodPost, "/api/transcribe", strings.NewReader(""))

	resp, err := server.App().Test(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
	parsed := decodeBody(t, resp)
	if parsed["error"] == nil {
		t.Fatalf("expected error field, got %v", parsed)
	}
}

func TestTranscribeEndpoint_TooSmall(t *testing.T) {
	stt := &stubTranscriber{err: &apperr.ValidationError{Msg: "audio file too small: 10 bytes"}}
	server := NewServer(":0", stt, &stubAnnotator{})

	body, contentType := multipartAudio(t, make([]byte, 10))
	req := httptest.NewRequest(http.MethodPost, "/api/transcribe", body)
	req.Header.Set("Content-Type", contentType)

	resp, err := server.App().Test(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestTranscribeEndpoint_BusyAndRateLimit(t *testing.T) {
	cases := []struct {
		name       string
		err        error
		wantRetry  string
		wantStatus int
	}{
		{"busy", &apperr.BusyError{RetryAfter: 2 * time.Second}, "2", http.StatusTooManyRequests},
		{"rate limited", &apperr.RateLimitedError{RetryAfterSeconds: 9}, "9", http.StatusTooManyRequests},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			server := NewServer(":0", &stubTranscriber{err: tc.err}, &stubAnnotator{})
			body, contentType := multipartAudio(t, make([]byte, 6000))
			req := httptest.NewRequest(http.MethodPost, "/api/transcribe", body)
			req.Header.Set("Content-Type", contentType)

			resp, err := server.App().Test(req)
			if err != nil {
				t.Fatalf("request failed: %v", err)
			}
			if resp.StatusCode != tc.wantStatus {
				t.Fatalf("expected %d, got %d", tc.wantStatus, resp.StatusCode)
			}
			if got := resp.Header.Get("Retry-After"); got != tc.wantRetry {
				t.Fatalf("expected Retry-After %s, got %q", tc.wantRetry, got)
			}
			parsed := decodeBody(t, resp)
			if parsed["retryAfter"] == nil {
				t.Fatalf("expected retryAfter in body, got %v", parsed)
			}
		})
	}
}

func TestTranscribeEndpoint_UpstreamServerErrorPassthrough(t *testing.T) {
	stt := &stubTranscriber{err: &apperr.UpstreamServerError{Status: http.StatusBadGateway, Body: "bad gateway"}}
	server := NewServer(":0", stt, &stubAnnotator{})

	body, contentType := multipartAudio(t, make([]byte, 6000))
	req := httptest.NewRequest(http.MethodPost, "/api/transcribe", body)
	req.Header.Set("Content-Type", contentType)

	resp, err := server.App().Test(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != http.StatusBadGateway {
		t.Fatalf("expected 502 passthrough, got %d", resp.StatusCode)
	}
	parsed := decodeBody(t, resp)
	if parsed["status"] != float64(http.StatusBadGateway) {
		t.Fatalf("expected status echoed in body, got %v", parsed)
	}
}

func TestTranscribeEndpoint_TransportError500(t *testing.T) {
	stt := &stubTranscriber{err: &apperr.TransportError{Err: io.ErrUnexpectedEOF}}
	server := NewServer(":0", stt, &stubAnnotator{})

	body, contentType := multipartAudio(t, make([]byte, 6000))
	req := httptest.NewRequest(http.MethodPost, "/api/transcribe", body)
	req.Header.Set("Content-Type", contentType)

	resp, err := server.App().Test(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", resp.StatusCode)
	}
}

func TestAnnotateEndpoint_Success(t *testing.T) {
	ann := &stubAnnotator{result: annotator.Result{Entries: []annotator.Entry{
		{Surface: "sophisticated", Reading: "ソフィ", Gloss: "洗練"},
	}}}
	server := NewServer(":0", &stubTranscriber{}, ann)

	req := httptest.NewRequest(http.MethodPost, "/api/annotate", strings.NewReader(`{"text":"a sophisticated example"}`))
	req.Header.Set("Content-Type", "application/json")

	resp, err := server.App().Test(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	parsed := decodeBody(t, resp)
	annotations, ok := parsed["annotations"].([]any)
	if !ok || len(annotations) != 1 {
		t.Fatalf("unexpected annotations: %v", parsed)
	}
	first := annotations[0].(map[string]any)
	if first["surface"] != "sophisticated" || first["katakana"] != "ソフィ" {
		t.Fatalf("unexpected entry shape: %v", first)
	}
	if ann.got != "a sophisticated example" {
		t.Fatalf("annotator got %q", ann.got)
	}
}

func TestAnnotateEndpoint_MissingText(t *testing.T) {
	server := NewServer(":0", &stubTranscriber{}, &stubAnnotator{})
	req := httptest.NewRequest(http.MethodPost, "/api/annotate", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "application/json")

	resp, err := server.App().Test(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
	parsed := decodeBody(t, resp)
	if _, ok := parsed["annotations"].([]any); !ok {
		t.Fatalf("400 must still carry an empty annotations array, got %v", parsed)
	}
}

func TestAnnotateEndpoint_RateLimited(t *testing.T) {
	ann := &stubAnnotator{err: &apperr.RateLimitedError{RetryAfterSeconds: 4}}
	server := NewServer(":0", &stubTranscriber{}, ann)

	req := httptest.NewRequest(http.MethodPost, "/api/annotate", strings.NewReader(`{"text":"sophisticated"}`))
	req.Header.Set("Content-Type", "application/json")

	resp, err := server.App().Test(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", resp.StatusCode)
	}
	if got := resp.Header.Get("Retry-After"); got != "4" {
		t.Fatalf("expected Retry-After 4, got %q", got)
	}
	parsed := decodeBody(t, resp)
	if parsed["wait_seconds"] != float64(4) {
		t.Fatalf("expected wait_seconds 4, got %v", parsed)
	}
}

func TestAnnotateEndpoint_InternalError(t *testing.T) {
	ann := &stubAnnotator{err: &apperr.ConfigError{Msg: "upstream API key is not configured"}}
	server := NewServer(":0", &stubTranscriber{}, ann)

	req := httptest.NewRequest(http.MethodPost, "/api/annotate", strings.NewReader(`{"text":"sophisticated"}`))
	req.Header.Set("Content-Type", "application/json")

	resp, err := server.App().Test(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("missing credential must surface as 500 at first use, got %d", resp.StatusCode)
	}
	parsed := decodeBody(t, resp)
	if _, ok := parsed["annotations"].([]any); !ok {
		t.Fatalf("500 must still carry an empty annotations array, got %v", parsed)
	}
}

func TestHealthz(t *testing.T) {
	server := NewServer(":0", &stubTranscriber{}, &stubAnnotator{})
	resp, err := server.App().Test(httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	parsed := decodeBody(t, resp)
	if parsed["ok"] != true {
		t.Fatalf("unexpected body: %v", parsed)
	}
}
