package annotator

import (
	"fmt"
	"strings"

	"github.com/kotonoha-lab/kikitori/internal/annotator"
)

// buildPrompt assembles the deterministic instruction prompt. Same transcript
// and candidates always produce the same prompt, which keeps the upstream
// call cache-friendly at temperature 0.
func buildPrompt(text string, candidates []string) string {
	var b strings.Builder
	b.WriteString("You help Japanese professionals follow spoken English in real time.\n\n")
	b.WriteString("Transcript:\n")
	b.WriteString(text)
	b.WriteString("\n\nCandidate words:\n")
	b.WriteString(strings.Join(candidates, ", "))
	b.WriteString("\n\n")
	fmt.Fprintf(&b, "From the candidates, select up to %d words at or above CEFR C1 difficulty, ", annotator.MaxPicks)
	b.WriteString("prioritizing terms a professional adult Japanese reader is unlikely to know. ")
	b.WriteString("For each selected word provide: \"surface\" — the exact surface form as it appears in the transcript, ")
	b.WriteString("\"katakana\" — a short katakana reading, ")
	fmt.Fprintf(&b, "and \"gloss\" — a Japanese gloss of at most %d characters.\n\n", annotator.MaxGlossRunes)
	b.WriteString("Respond with a single JSON object and no other text, exactly in this form:\n")
	b.WriteString(`{"annotations":[{"surface":"...","katakana":"...","gloss":"..."}]}`)
	return b.String()
}
