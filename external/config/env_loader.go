package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
	internalconfig "github.com/kotonoha-lab/kikitori/internal/config"
)

type envConfig struct {
	Env                  string `env:"ENV" envDefault:"production"`
	HTTPAddr             string `env:"HTTP_ADDR" envDefault:":8080"`
	UpstreamBaseURL      string `env:"UPSTREAM_BASE_URL" envDefault:"https://api.openai.com/v1"`
	UpstreamAPIKey       string `env:"UPSTREAM_API_KEY"`
	TranscribeModel      string `env:"TRANSCRIBE_MODEL" envDefault:"whisper-1"`
	AnnotateModel        string `env:"ANNOTATE_MODEL" envDefault:"gpt-4o-mini"`
	ChunkIntervalSeconds int    `env:"CHUNK_INTERVAL_SECONDS" envDefault:"4"`
	MaxRetries           int    `env:"MAX_RETRIES" envDefault:"2"`
	RetryBaseDelayMS     int    `env:"RETRY_BASE_DELAY_MS" envDefault:"1000"`
	CacheTTLMinutes      int    `env:"ANNOTATION_CACHE_TTL_MIN" envDefault:"10"`
	CaptureDeviceName    string `env:"CAPTURE_DEVICE_NAME"`
}

func Load() (*internalconfig.Config, error) {
	var raw envConfig
	if err := env.Parse(&raw); err != nil {
		return nil, fmt.Errorf("environment variables are invalid or missing: %w", err)
	}

	cfg := &internalconfig.Config{
		Env:                  raw.Env,
		HTTPAddr:             raw.HTTPAddr,
		UpstreamBaseURL:      raw.UpstreamBaseURL,
		UpstreamAPIKey:       raw.UpstreamAPIKey,
		TranscribeModel:      raw.TranscribeModel,
		AnnotateModel:        raw.AnnotateModel,
		ChunkIntervalSeconds: raw.ChunkIntervalSeconds,
		MaxRetries:           raw.MaxRetries,
		RetryBaseDelayMS:     raw.RetryBaseDelayMS,
		CacheTTLMinutes:      raw.CacheTTLMinutes,
		CaptureDeviceName:    raw.CaptureDeviceName,
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
