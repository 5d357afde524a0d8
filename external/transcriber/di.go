package transcriber

import (
	"github.com/kotonoha-lab/kikitori/internal/config"
	"github.com/kotonoha-lab/kikitori/internal/retry"
	"github.com/kotonoha-lab/kikitori/internal/transcriber"
	"github.com/samber/do/v2"
)

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (transcriber.Transcriber, error) {
		c := do.MustInvoke[*config.Config](i)
		return NewWhisperTranscriber(WhisperConfig{
			BaseURL: c.UpstreamBaseURL,
			APIKey:  c.UpstreamAPIKey,
			Model:   c.TranscribeModel,
			Policy: retry.Policy{
				MaxRetries: c.MaxRetries,
				BaseDelay:  c.RetryBaseDelay(),
			},
		}), nil
	})
}
