package session

import "unicode"

// Token is one rendering unit of the transcript. Concatenating the Text of
// every token reproduces the transcript exactly; Annotated tokens carry the
// reading and gloss to display.
type Token struct {
	Text      string
	Annotated bool
	Reading   string
	Gloss     string
}

// Overlay renders the transcript against the merged annotations. Matching is
// case-insensitive exact string equality on word tokens; an entry without a
// gloss never marks a token.
func Overlay(text string, merged *Merger) []Token {
	parts := splitTokens(text)
	tokens := make([]Token, 0, len(parts))
	for _, part := range parts {
		tok := Token{Text: part.text}
		if part.word {
			if entry, ok := merged.lookup(part.text); ok && entry.Gloss != "" {
				tok.Annotated = true
				tok.Reading = entry.Reading
				tok.Gloss = entry.Gloss
			}
		}
		tokens = append(tokens, tok)
	}
	return tokens
}

type tokenPart struct {
	text string
	word bool
}

// splitTokens cuts text into word tokens and separator tokens, dropping
// nothing: whitespace and punctuation become their own tokens. Word tokens
// follow the extractor's rule (letters plus internal apostrophes/hyphens)
// so overlay matching sees the same surfaces the extractor proposed.
func splitTokens(text string) []tokenPart {
	runes := []rune(text)
	parts := make([]tokenPart, 0, 16)
	i := 0
	for i < len(runes) {
		if unicode.IsLetter(runes[i]) {
			start := i
			i++
			for i < len(runes) {
				if unicode.IsLetter(runes[i]) {
					i++
					continue
				}
				if (runes[i] == '\'' || runes[i] == '-') && i+1 < len(runes) && unicode.IsLetter(runes[i+1]) {
					i++
					continue
				}
				break
			}
			parts = append(parts, tokenPart{text: string(runes[start:i]), word: true})
			continue
		}
		start := i
		for i < len(runes) && !unicode.IsLetter(runes[i]) {
			i++
		}
		parts = append(parts, tokenPart{text: string(runes[start:i])})
	}
	return parts
}
