package annotator

// ExtractJSONObject finds the first balanced brace-delimited JSON object
// anywhere in raw, ignoring surrounding prose. Models sometimes wrap their
// JSON in explanation text despite being told not to; this is the tolerant
// side of that contract. Returns false when no balanced object exists.
func ExtractJSONObject(raw string) (string, bool) {
	for start := 0; start < len(raw); start++ {
		if raw[start] != '{' {
			continue
		}
		if end, ok := scanBalanced(raw, start); ok {
			return raw[start : end+1], true
		}
	}
	return "", false
}

// scanBalanced walks raw from the opening brace at start, tracking string
// literals and escapes, and returns the index of the matching closing brace.
func scanBalanced(raw string, start int) (int, bool) {
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(raw); i++ {
		ch := raw[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i, true
			}
		}
	}
	return 0, false
}
