// Package annotator defines the gloss-annotation domain: the entry and
// result types, the annotator interface, the TTL cache, and the tolerant
// JSON extraction used on model output.
package annotator

import "context"

const (
	// MaxGlossRunes caps the gloss length; longer model output is truncated.
	MaxGlossRunes = 8

	// MaxPicks is how many candidates the model is asked to select at most.
	MaxPicks = 8

	// CacheKeyRunes is how much of the transcript prefix identifies a cache
	// entry.
	CacheKeyRunes = 500
)

// Entry is one annotated word. Surface keeps the original casing from the
// transcript; identity for merging is the lowercase surface.
type Entry struct {
	Surface string `json:"surface"`
	Reading string `json:"katakana"`
	Gloss   string `json:"gloss,omitempty"`
}

// Result is a batch of annotations for one transcript snapshot. An empty
// result is a valid outcome, not an error.
type Result struct {
	Entries []Entry
}

// Annotator produces glosses for the difficult vocabulary in text. It must
// never fail the caller on upstream trouble: soft failures return an empty
// Result, rate limiting returns an empty Result plus *apperr.RateLimitedError
// so the caller can show a countdown.
type Annotator interface {
	Annotate(ctx context.Context, text string) (Result, error)
}

// TruncateGloss trims a gloss to MaxGlossRunes runes.
func TruncateGloss(gloss string) string {
	runes := []rune(gloss)
	if len(runes) <= MaxGlossRunes {
		return gloss
	}
	return string(runes[:MaxGlossRunes])
}
