package annotator

import (
	internalannotator "github.com/kotonoha-lab/kikitori/internal/annotator"
	"github.com/kotonoha-lab/kikitori/internal/config"
	"github.com/kotonoha-lab/kikitori/internal/retry"
	"github.com/samber/do/v2"
)

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (internalannotator.Annotator, error) {
		c := do.MustInvoke[*config.Config](i)
		return NewOpenAIAnnotator(OpenAIConfig{
			BaseURL: c.UpstreamBaseURL,
			APIKey:  c.UpstreamAPIKey,
			Model:   c.AnnotateModel,
			Policy: retry.Policy{
				MaxRetries: c.MaxRetries,
				BaseDelay:  c.RetryBaseDelay(),
			},
			Cache: internalannotator.NewCache(c.CacheTTL()),
		}), nil
	})
}
