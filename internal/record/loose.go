package record

import "strings"

// ParseLoose extracts a record from free-form model output. It tries each
// opening brace in turn, takes the balanced block that starts there and
// returns the first one that decodes as an object. Text with no such block
// yields an empty record.
func ParseLoose(text string) Record {
	for start := strings.IndexByte(text, '{'); start >= 0; {
		if end := matchBrace(text, start); end > start {
			if r, err := Decode([]byte(text[start : end+1])); err == nil {
				return r
			}
		}
		next := strings.IndexByte(text[start+1:], '{')
		if next < 0 {
			break
		}
		start += next + 1
	}
	return Record{}
}

// matchBrace returns the index of the brace closing the one at start, or -1.
// Braces inside JSON strings are ignored.
func matchBrace(text string, start int) int {
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
				return i
			}
		}
	}
	return -1
}
