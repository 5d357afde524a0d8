package config

import (
	"fmt"
	"time"
)

// AllowedChunkIntervalSeconds enumerates the selectable recording chunk
// intervals.
var AllowedChunkIntervalSeconds = []int{2, 4, 6, 8}

type Config struct {
	Env                  string
	HTTPAddr             string
	UpstreamBaseURL      string
	UpstreamAPIKey       string
	TranscribeModel      string
	AnnotateModel        string
	ChunkIntervalSeconds int
	MaxRetries           int
	RetryBaseDelayMS     int
	CacheTTLMinutes      int
	CaptureDeviceName    string
}

func (c *Config) Validate() error {
	for _, req := range c.requiredFieldChecks() {
		if req.value == "" {
			return fmt.Errorf("%s is required", req.name)
		}
	}
	if !c.chunkIntervalAllowed() {
		return fmt.Errorf("CHUNK_INTERVAL_SECONDS must be one of %v, got %d", AllowedChunkIntervalSeconds, c.ChunkIntervalSeconds)
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("MAX_RETRIES must not be negative, got %d", c.MaxRetries)
	}
	if c.RetryBaseDelayMS <= 0 {
		return fmt.Errorf("RETRY_BASE_DELAY_MS must be positive, got %d", c.RetryBaseDelayMS)
	}
	if c.CacheTTLMinutes <= 0 {
		return fmt.Errorf("ANNOTATION_CACHE_TTL_MIN must be positive, got %d", c.CacheTTLMinutes)
	}
	return nil
}

type requiredEnvField struct {
	name  string
	value string
}

// UPSTREAM_API_KEY is deliberately absent here: a missing credential is a
// runtime error at first use, not a startup failure.
func (c *Config) requiredFieldChecks() []requiredEnvField {
	return []requiredEnvField{
		{name: "HTTP_ADDR", value: c.HTTPAddr},
		{name: "UPSTREAM_BASE_URL", value: c.UpstreamBaseURL},
		{name: "TRANSCRIBE_MODEL", value: c.TranscribeModel},
		{name: "ANNOTATE_MODEL", value: c.AnnotateModel},
	}
}

func (c *Config) chunkIntervalAllowed() bool {
	for _, v := range AllowedChunkIntervalSeconds {
		if c.ChunkIntervalSeconds == v {
			return true
		}
	}
	return false
}

func (c *Config) ChunkInterval() time.Duration {
	return time.Duration(c.ChunkIntervalSeconds) * time.Second
}

func (c *Config) RetryBaseDelay() time.Duration {
	return time.Duration(c.RetryBaseDelayMS) * time.Millisecond
}

func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLMinutes) * time.Minute
}

func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}
