package annotator

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"strings"

	"github.com/kotonoha-lab/kikitori/internal/annotator"
	"github.com/kotonoha-lab/kikitori/internal/apperr"
	"github.com/kotonoha-lab/kikitori/internal/retry"
	"github.com/kotonoha-lab/kikitori/internal/vocab"
	openai "github.com/sashabaranov/go-openai"
)

const (
	chatCompletionsPath = "/chat/completions"
	defaultWaitSeconds  = 5
	maxOutputTokens     = 600
)

type OpenAIConfig struct {
	BaseURL string
	APIKey  string
	Model   string
	Client  *http.Client
	Policy  retry.Policy
	Cache   *annotator.Cache
}

// OpenAIAnnotator glosses difficult vocabulary through a chat-completions
// endpoint. The request and response payloads use go-openai's wire types,
// but the call itself goes through the retrying caller so the admission
// gate and Retry-After handling stay in one place. Its gate is independent
// of the transcription client's.
type OpenAIAnnotator struct {
	baseURL string
	apiKey  string
	model   string
	caller  *retry.Caller
	cache   *annotator.Cache
}

func NewOpenAIAnnotator(cfg OpenAIConfig) annotator.Annotator {
	cache := cfg.Cache
	if cache == nil {
		cache = annotator.NewCache(annotator.DefaultCacheTTL)
	}
	return &OpenAIAnnotator{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		model:   cfg.Model,
		caller:  retry.NewCaller("annotation", cfg.Client, retry.NewGate(), cfg.Policy),
		cache:   cache,
	}
}

func (a *OpenAIAnnotator) Annotate(ctx context.Context, text string) (annotator.Result, error) {
	key := annotator.CacheKey(text)
	if cached, ok := a.cache.Get(key); ok {
		slog.Debug("annotation cache hit", "key_runes", len([]rune(key)))
		return cached, nil
	}

	candidates := vocab.Candidates(text)
	if len(candidates) == 0 {
		// A transcript with nothing hard in it is a real, cacheable answer.
		empty := annotator.Result{}
		a.cache.Put(key, empty)
		return empty, nil
	}

	if a.apiKey == "" {
		return annotator.Result{}, &apperr.ConfigError{Msg: "upstream API key is not configured"}
	}

	result, err := a.callModel(ctx, text, candidates)
	if err != nil {
		return annotator.Result{}, err
	}
	a.cache.Put(key, result)
	return result, nil
}

func (a *OpenAIAnnotator) callModel(ctx context.Context, text string, candidates []string) (annotator.Result, error) {
	payload, err := json.Marshal(openai.ChatCompletionRequest{
		Model: a.model,
		// Temperature 0 would be dropped by omitempty and fall back to the
		// upstream default; the smallest nonzero float is the documented way
		// to request effectively-zero temperature.
		Temperature: math.SmallestNonzeroFloat32,
		MaxTokens:   maxOutputTokens,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: buildPrompt(text, candidates)},
		},
	})
	if err != nil {
		return annotator.Result{}, fmt.Errorf("marshal annotation request: %w", err)
	}

	resp, err := a.caller.Do(ctx, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+chatCompletionsPath, bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+a.apiKey)
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	})
	if err != nil {
		var transport *apperr.TransportError
		if errors.As(err, &transport) {
			// Annotation is best-effort: a dead network degrades to
			// "no annotations yet", never to a failed caller.
			slog.Warn("annotation transport failure, degrading to empty result", "error", transport.Err)
			return annotator.Result{}, nil
		}
		return annotator.Result{}, err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		slog.Warn("annotation response read failed, degrading to empty result", "error", err)
		return annotator.Result{}, nil
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return parseModelOutput(body), nil
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError:
		wait := retry.RetryAfterSeconds(resp)
		if wait == 0 {
			wait = defaultWaitSeconds
		}
		slog.Warn("annotation rate limited after retries", "status", resp.StatusCode, "wait_seconds", wait)
		return annotator.Result{}, &apperr.RateLimitedError{RetryAfterSeconds: wait}
	default:
		return annotator.Result{}, &apperr.UpstreamClientError{Status: resp.StatusCode, Body: string(body)}
	}
}

// parseModelOutput is deliberately forgiving: a model that ignored the
// format instructions produces an empty result, never an error.
func parseModelOutput(body []byte) annotator.Result {
	var completion openai.ChatCompletionResponse
	if err := json.Unmarshal(body, &completion); err != nil || len(completion.Choices) == 0 {
		slog.Warn("annotation completion undecodable, degrading to empty result")
		return annotator.Result{}
	}

	raw, ok := annotator.ExtractJSONObject(completion.Choices[0].Message.Content)
	if !ok {
		slog.Warn("no JSON object in model output, degrading to empty result")
		return annotator.Result{}
	}

	var parsed struct {
		Annotations []annotator.Entry `json:"annotations"`
	}
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		slog.Warn("model JSON unparseable, degrading to empty result", "error", err)
		return annotator.Result{}
	}

	entries := make([]annotator.Entry, 0, len(parsed.Annotations))
	for _, item := range parsed.Annotations {
		item.Surface = strings.TrimSpace(item.Surface)
		item.Reading = strings.TrimSpace(item.Reading)
		if item.Surface == "" || item.Reading == "" {
			// Drop the malformed item, keep the rest of the batch.
			continue
		}
		item.Gloss = annotator.TruncateGloss(strings.TrimSpace(item.Gloss))
		entries = append(entries, item)
	}
	return annotator.Result{Entries: entries}
}
