package annotator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/kotonoha-lab/kikitori/internal/annotator"
	"github.com/kotonoha-lab/kikitori/internal/apperr"
	"github.com/kotonoha-lab/kikitori/internal/retry"
)

const difficultText = "The sophisticated algorithm demonstrates remarkable efficiency"

func fastPolicy() retry.Policy {
	return retry.Policy{MaxRetries: 2, BaseDelay: time.Millisecond, Jitter: func() time.Duration { return 0 }}
}

func completionBody(t *testing.T, content string) []byte {
	t.Helper()
	body, err := json.Marshal(map[string]any{
		"choices": []map[string]any{
			{"message": map[string]any{"role": "assistant", "content": content}},
		},
	})
	if err != nil {
		t.Fatalf("marshal completion: %v", err)
	}
	return body
}

func newTestAnnotator(serverURL string, client *http.Client, cache *annotator.Cache) annotator.Annotator {
	return NewOpenAIAnnotator(OpenAIConfig{
		BaseURL: serverURL,
		APIKey:  "sk-test",
		Model:   "gpt-4o-mini",
		Client:  client,
		Policy:  fastPolicy(),
		Cache:   cache,
	})
}

func TestAnnotate_NoCandidatesShortCircuits(t *testing.T) {
	var upstreamCalls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		upstreamCalls++
	}))
	defer server.Close()

	cache := annotator.NewCache(10 * time.Minute)
	ann := newTestAnnotator(server.URL, server.Client(), cache)

	result, err := ann.Annotate(context.Background(), "short words only here")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Entries) != 0 {
		t.Fatalf("expected empty result, got %+v", result)
	}
	if upstreamCalls != 0 {
		t.Fatal("no candidates must mean no network call")
	}
	// The empty result is cached like any other success.
	if _, ok := cache.Get(annotator.CacheKey("short words only here")); !ok {
		t.Fatal("empty short-circuit result must be cached")
	}
}

func TestAnnotate_SuccessValidatesItems(t *testing.T) {
	content := `{"annotations":[` +
		`{"surface":"sophisticated","katakana":"ソフィスティケイテッド","gloss":"とても洗練されている表現"},` +
		`{"surface":"","katakana":"ナシ","gloss":"x"},` +
		`{"surface":"algorithm","katakana":"","gloss":"x"},` +
		`{"surface":"remarkable","katakana":"リマーカブル","gloss":"顕著"}]}`
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Temperature float32 `json:"temperature"`
			MaxTokens   int     `json:"max_tokens"`
			Messages    []struct {
				Content string `json:"content"`
			} `json:"messages"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.Temperature > 0.001 {
			t.Fatalf("expected effectively-zero temperature, got %v", req.Temperature)
		}
		if req.MaxTokens == 0 {
			t.Fatal("expected a bounded output budget")
		}
		if len(req.Messages) != 1 || !strings.Contains(req.Messages[0].Content, "sophisticated") {
			t.Fatal("prompt must carry the candidate list")
		}
		_, _ = w.Write(completionBody(t, content))
	}))
	defer server.Close()

	ann := newTestAnnotator(server.URL, server.Client(), nil)
	result, err := ann.Annotate(context.Background(), difficultText)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Entries) != 2 {
		t.Fatalf("malformed items must be dropped without discarding the batch, got %+v", result.Entries)
	}
	first := result.Entries[0]
	if first.Surface != "sophisticated" {
		t.Fatalf("unexpected first entry: %+v", first)
	}
	if got := len([]rune(first.Gloss)); got != annotator.MaxGlossRunes {
		t.Fatalf("expected gloss truncated to exactly %d runes, got %d (%q)", annotator.MaxGlossRunes, got, first.Gloss)
	}
}

func TestAnnotate_CacheAvoidsSecondUpstreamCall(t *testing.T) {
	var upstreamCalls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		upstreamCalls++
		_, _ = w.Write(completionBody(t, `{"annotations":[{"surface":"sophisticated","katakana":"ソフィ","gloss":"洗練"}]}`))
	}))
	defer server.Close()

	current := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	cache := annotator.NewCacheWithClock(10*time.Minute, func() time.Time { return current })
	ann := newTestAnnotator(server.URL, server.Client(), cache)

	for i := 0; i < 2; i++ {
		if _, err := ann.Annotate(context.Background(), difficultText); err != nil {
			t.Fatalf("call %d failed: %v", i+1, err)
		}
	}
	if upstreamCalls != 1 {
		t.Fatalf("expected a single upstream call for identical prefixes, got %d", upstreamCalls)
	}

	current = current.Add(11 * time.Minute)
	if _, err := ann.Annotate(context.Background(), difficultText); err != nil {
		t.Fatalf("post-TTL call failed: %v", err)
	}
	if upstreamCalls != 2 {
		t.Fatalf("expected a fresh upstream call after TTL, got %d", upstreamCalls)
	}
}

func TestAnnotate_ProseWrappedOutputStillParses(t *testing.T) {
	content := "Here you go!\n" + `{"annotations":[{"surface":"sophisticated","katakana":"ソフィ","gloss":"洗練"}]}` + "\nHope that helps."
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(completionBody(t, content))
	}))
	defer server.Close()

	ann := newTestAnnotator(server.URL, server.Client(), nil)
	result, err := ann.Annotate(context.Background(), difficultText)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Entries) != 1 {
		t.Fatalf("expected one entry, got %+v", result.Entries)
	}
}

func TestAnnotate_MalformedOutputDegradesToEmpty(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(completionBody(t, "I could not find any difficult words."))
	}))
	defer server.Close()

	ann := newTestAnnotator(server.URL, server.Client(), nil)
	result, err := ann.Annotate(context.Background(), difficultText)
	if err != nil {
		t.Fatalf("parse failure must never surface as an error, got %v", err)
	}
	if len(result.Entries) != 0 {
		t.Fatalf("expected empty result, got %+v", result.Entries)
	}
}

func TestAnnotate_RateLimitedNeverCached(t *testing.T) {
	var upstreamCalls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		upstreamCalls++
		if upstreamCalls == 3 {
			// Hint only on the final response so the backoff never waits on it.
			w.Header().Set("Retry-After", "3")
		}
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	cache := annotator.NewCache(10 * time.Minute)
	ann := newTestAnnotator(server.URL, server.Client(), cache)

	result, err := ann.Annotate(context.Background(), difficultText)
	var rate *apperr.RateLimitedError
	if !errors.As(err, &rate) {
		t.Fatalf("expected RateLimitedError, got %v", err)
	}
	if rate.RetryAfterSeconds != 3 {
		t.Fatalf("expected upstream hint 3, got %d", rate.RetryAfterSeconds)
	}
	if len(result.Entries) != 0 {
		t.Fatalf("rate limit must come with an empty result, got %+v", result.Entries)
	}
	if cache.Len() != 0 {
		t.Fatal("rate-limited results must never be cached")
	}
	if upstreamCalls != 3 {
		t.Fatalf("expected 3 attempts before giving up, got %d", upstreamCalls)
	}
}

func TestAnnotate_TransportFailureDegradesToEmpty(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close()

	ann := NewOpenAIAnnotator(OpenAIConfig{
		BaseURL: server.URL,
		APIKey:  "sk-test",
		Model:   "gpt-4o-mini",
		Policy:  fastPolicy(),
	})
	result, err := ann.Annotate(context.Background(), difficultText)
	if err != nil {
		t.Fatalf("transport failure must degrade silently, got %v", err)
	}
	if len(result.Entries) != 0 {
		t.Fatalf("expected empty result, got %+v", result.Entries)
	}
}

func TestAnnotate_MissingAPIKey(t *testing.T) {
	ann := NewOpenAIAnnotator(OpenAIConfig{BaseURL: "http://localhost:0", Model: "gpt-4o-mini", Policy: fastPolicy()})
	_, err := ann.Annotate(context.Background(), difficultText)
	var cfgErr *apperr.ConfigError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected ConfigError, got %v", err)
	}
}

func TestBuildPrompt_Deterministic(t *testing.T) {
	candidates := []string{"sophisticated", "algorithm"}
	a := buildPrompt(difficultText, candidates)
	b := buildPrompt(difficultText, candidates)
	if a != b {
		t.Fatal("prompt must be deterministic for identical input")
	}
	for _, want := range []string{difficultText, "sophisticated, algorithm", fmt.Sprintf("up to %d words", annotator.MaxPicks), "single JSON object"} {
		if !strings.Contains(a, want) {
			t.Fatalf("prompt missing %q:\n%s", want, a)
		}
	}
}
