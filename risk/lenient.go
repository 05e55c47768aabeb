package risk

import "strings"

// normalizeLenient rewrites the two relaxations local models emit most
// often — trailing commas and unquoted keys — into strict JSON. It is a
// best-effort textual normalization; the result still goes through the
// strict parser.
func normalizeLenient(text string) string {
	text = dropTrailingCommas(text)
	return quoteBarewordKeys(text)
}

func dropTrailingCommas(text string) string {
	var b strings.Builder
	b.Grow(len(text))

	inString := false
	escaped := false
	runes := []rune(text)

	for i := 0; i < len(runes); i++ {
		r := runes[i]
		if inString {
			b.WriteRune(r)
			switch {
			case escaped:
				escaped = false
			case r == '\\':
				escaped = true
			case r == '"':
				inString = false
			}
			continue
		}

		if r == '"' {
			inString = true
			b.WriteRune(r)
			continue
		}

		if r == ',' {
			// drop the comma when the next non-space rune closes a
			// structure
			j := i + 1
			for j < len(runes) && isJSONSpace(runes[j]) {
				j++
			}
			if j < len(runes) && (runes[j] == '}' || runes[j] == ']') {
				continue
			}
		}

		b.WriteRune(r)
	}
	return b.String()
}

func quoteBarewordKeys(text string) string {
	var b strings.Builder
	b.Grow(len(text) + 16)

	inString := false
	escaped := false
	runes := []rune(text)

	for i := 0; i < len(runes); i++ {
		r := runes[i]
		if inString {
			b.WriteRune(r)
			switch {
			case escaped:
				escaped = false
			case r == '\\':
				escaped = true
			case r == '"':
				inString = false
			}
			continue
		}

		switch r {
		case '"':
			inString = true
			b.WriteRune(r)
		case '{', ',':
			b.WriteRune(r)
			// a bareword followed by a colon after an opener or comma
			// is an unquoted key
			j := i + 1
			for j < len(runes) && isJSONSpace(runes[j]) {
				j++
			}
			start := j
			for j < len(runes) && isIdentRune(runes[j]) {
				j++
			}
			k := j
			for k < len(runes) && isJSONSpace(runes[k]) {
				k++
			}
			if j > start && k < len(runes) && runes[k] == ':' {
				b.WriteString(string(runes[i+1 : start]))
				b.WriteRune('"')
				b.WriteString(string(runes[start:j]))
				b.WriteRune('"')
				i = j - 1
			}
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

func isJSONSpace(r rune) bool {
	return r == ' ' || r == '\t' || r == '\n' || r == '\r'
}
