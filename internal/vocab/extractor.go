// Package vocab extracts vocabulary candidates from transcript text. It is
// pure string analysis: no IO, no state, never fails.
package vocab

import (
	"sort"
	"strings"
	"unicode"
)

const (
	minCandidateLength = 7
	maxCandidates      = 25
)

// Common long function and filler words that look like candidates by length
// but are useless as vocabulary. Matched case-insensitively.
var stopwords = map[string]struct{}{
	"because":    {},
	"through":    {},
	"without":    {},
	"between":    {},
	"against":    {},
	"however":    {},
	"therefore":  {},
	"although":   {},
	"whatever":   {},
	"whenever":   {},
	"wherever":   {},
	"whoever":    {},
	"something":  {},
	"anything":   {},
	"everything": {},
	"nothing":    {},
	"someone":    {},
	"anyone":     {},
	"everyone":   {},
	"somebody":   {},
	"anybody":    {},
	"everybody":  {},
	"somewhere":  {},
	"anywhere":   {},
	"everywhere": {},
	"another":    {},
	"together":   {},
	"already":    {},
	"instead":    {},
	"probably":   {},
	"actually":   {},
	"basically":  {},
	"usually":    {},
	"really":     {},
	"getting":    {},
	"going":      {},
	"thinking":   {},
	"talking":    {},
	"looking":    {},
	"morning":    {},
	"evening":    {},
	"tonight":    {},
	"tomorrow":   {},
	"yesterday":  {},
}

// Candidates returns up to 25 difficult-looking tokens from text, longest
// first. Tokens are maximal runs of letters plus internal apostrophes and
// hyphens; anything else separates tokens. Comparison is case-insensitive
// throughout, the returned casing is the first occurrence's.
func Candidates(text string) []string {
	tokens := tokenize(text)

	seen := make(map[string]struct{}, len(tokens))
	candidates := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		if len([]rune(tok)) < minCandidateLength {
			continue
		}
		lower := strings.ToLower(tok)
		if _, stop := stopwords[lower]; stop {
			continue
		}
		if _, dup := seen[lower]; dup {
			continue
		}
		seen[lower] = struct{}{}
		candidates = append(candidates, tok)
	}

	// Longer words are the cheap proxy for specialized vocabulary. The sort
	// must be stable so equal lengths keep extraction order.
	sort.SliceStable(candidates, func(i, j int) bool {
		return len([]rune(candidates[i])) > len([]rune(candidates[j]))
	})

	if len(candidates) > maxCandidates {
		candidates = candidates[:maxCandidates]
	}
	return candidates
}

// tokenize splits text into words. Apostrophes and hyphens are kept only when
// they sit between letters, so "o'clock" and "state-of-the-art" survive while
// leading and trailing punctuation is stripped.
func tokenize(text string) []string {
	runes := []rune(text)
	tokens := make([]string, 0, 16)
	var current []rune

	flush := func() {
		if len(current) > 0 {
			tokens = append(tokens, string(current))
			current = nil
		}
	}

	for i, r := range runes {
		switch {
		case unicode.IsLetter(r):
			current = append(current, r)
		case (r == '\'' || r == '-') && len(current) > 0 && i+1 < len(runes) && unicode.IsLetter(runes[i+1]):
			current = append(current, r)
		default:
			flush()
		}
	}
	flush()
	return tokens
}
