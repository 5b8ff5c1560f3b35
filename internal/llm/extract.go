package llm

import "strings"

// ExtractJSONObject returns the first balanced top-level JSON object found in
// text, or "" when none exists. Models frequently wrap JSON in prose or
// markdown fences; a depth-counted brace scan recovers it without caring
// about the wrapping. Braces inside JSON strings are skipped.
func ExtractJSONObject(text string) string {
	start := strings.IndexByte(text, '{')
	if start < 0 {
		return ""
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return text[start : i+1]
			}
		}
	}
	return ""
}

// StripJSONBlock removes the span from the first '{' through the last '}'
// from text, used to clean extraction payloads out of a user-facing reply.
func StripJSONBlock(text string) string {
	start := strings.IndexByte(text, '{')
	end := strings.LastIndexByte(text, '}')
	if start < 0 || end < start {
		return strings.TrimSpace(text)
	}
	left := strings.TrimSpace(text[:start])
	right := strings.TrimSpace(text[end+1:])
	switch {
	case left == "":
		return right
	case right == "":
		return left
	}
	return left + " " + right
}
