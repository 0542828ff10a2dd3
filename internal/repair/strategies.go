package repair

import (
	"strings"
)

// stripWrappers removes markdown code fences and any commentary before or
// after the structured payload, returning just the outermost JSON region.
func stripWrappers(raw string) (string, bool) {
	s := strings.TrimSpace(raw)

	// Unwrap the first fenced block when present.
	if idx := strings.Index(s, "```"); idx >= 0 {
		rest := s[idx+3:]
		// Skip a language tag such as "json" up to the first newline.
		if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
			tag := strings.TrimSpace(rest[:nl])
			if tag == "" || isIdentifier(tag) {
				rest = rest[nl+1:]
			}
		}
		if end := strings.Index(rest, "```"); end >= 0 {
			rest = rest[:end]
		}
		s = strings.TrimSpace(rest)
	}

	region, ok := structuralRegion(s)
	if !ok {
		return "", false
	}
	return region, true
}

// structuralRegion returns the substring from the first opening brace or
// bracket through its matching close, honoring string literals. When the
// close is never found the region runs to the end of input.
func structuralRegion(s string) (string, bool) {
	start := strings.IndexAny(s, "{[")
	if start < 0 {
		return "", false
	}

	var stack []byte
	inStr, esc := false, false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inStr {
			switch {
			case esc:
				esc = false
			case c == '\\':
				esc = true
			case c == '"':
				inStr = false
			}
			continue
		}
		switch c {
		case '"':
			inStr = true
		case '{', '[':
			stack = append(stack, c)
		case '}', ']':
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
			if len(stack) == 0 {
				return s[start : i+1], true
			}
		}
	}
	return s[start:], true
}

func isIdentifier(s string) bool {
	for _, r := range s {
		if !isIdentRune(byte(r)) {
			return false
		}
	}
	return s != ""
}

func isIdentRune(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}

// Parser expectation states for the punctuation repair pass.
const (
	expKey = iota
	expColon
	expValue
	expCommaOrEnd
)

// repairPunctuation rewrites common near-miss punctuation: missing
// separators between adjacent values, trailing separators, curly quotes,
// and unquoted identifier keys. It never alters string contents.
func repairPunctuation(raw string) (string, bool) {
	region, ok := structuralRegion(normalizeQuotes(raw))
	if !ok {
		return "", false
	}
	return fixPunctuation(region), true
}

var quoteReplacer = strings.NewReplacer(
	"“", `"`, // left double quotation mark
	"”", `"`, // right double quotation mark
	"„", `"`,
	"‘", "'",
	"’", "'",
)

func normalizeQuotes(s string) string {
	return quoteReplacer.Replace(s)
}

// fixPunctuation walks the region with a small expectation machine,
// inserting missing commas, dropping trailing or duplicate commas, and
// quoting bare identifier keys.
func fixPunctuation(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 16)

	var stack []byte
	expect := expValue

	i := 0
	for i < len(s) {
		c := s[i]

		// Copy whitespace through unchanged.
		if c == ' ' || c == '\t' || c == '\n' || c == '\r' {
			b.WriteByte(c)
			i++
			continue
		}

		// A new token where a separator was expected means the model
		// omitted a comma.
		if expect == expCommaOrEnd && c != ',' && c != '}' && c != ']' {
			b.WriteByte(',')
			if topIs(stack, '{') {
				expect = expKey
			} else {
				expect = expValue
			}
			continue
		}

		switch {
		case c == '"':
			j := consumeString(s, i)
			b.WriteString(s[i:j])
			i = j
			if expect == expKey {
				expect = expColon
			} else {
				expect = expCommaOrEnd
			}

		case c == '{':
			stack = append(stack, '{')
			b.WriteByte(c)
			i++
			expect = expKey

		case c == '[':
			stack = append(stack, '[')
			b.WriteByte(c)
			i++
			expect = expValue

		case c == '}' || c == ']':
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
			b.WriteByte(c)
			i++
			expect = expCommaOrEnd

		case c == ',':
			// Trailing comma before a close is dropped; a comma in value
			// or key position is a duplicate and also dropped.
			if expect == expCommaOrEnd {
				if next, ok := nextNonSpace(s, i+1); ok && (next == '}' || next == ']') {
					i++
					continue
				}
				b.WriteByte(c)
				if topIs(stack, '{') {
					expect = expKey
				} else {
					expect = expValue
				}
			}
			i++

		case c == ':':
			b.WriteByte(c)
			i++
			if expect == expColon || expect == expKey {
				expect = expValue
			}

		case expect == expKey && isIdentRune(c):
			// Bare identifier key: quote it.
			j := i
			for j < len(s) && isIdentRune(s[j]) {
				j++
			}
			b.WriteByte('"')
			b.WriteString(s[i:j])
			b.WriteByte('"')
			i = j
			expect = expColon

		default:
			// Literal value: number, true, false, null.
			j := i
			for j < len(s) && !isDelimiter(s[j]) {
				j++
			}
			b.WriteString(s[i:j])
			if j == i {
				b.WriteByte(c)
				j = i + 1
			}
			i = j
			if expect == expValue {
				expect = expCommaOrEnd
			}
		}
	}

	return b.String()
}

// repairTruncation applies when the text does not end with a properly
// closed structure: it cuts back to the last structurally complete entry
// and synthesizes the minimum closing tokens needed to balance it.
// Everything after the cut point is discarded.
func repairTruncation(raw string) (string, bool) {
	region, ok := structuralRegion(normalizeQuotes(raw))
	if !ok {
		return "", false
	}

	var stack []byte
	inStr, esc := false, false

	lastComplete := -1
	var lastStack []byte

	snapshot := func(end int) {
		lastComplete = end
		lastStack = append(lastStack[:0], stack...)
	}

	for i := 0; i < len(region); i++ {
		c := region[i]
		if inStr {
			switch {
			case esc:
				esc = false
			case c == '\\':
				esc = true
			case c == '"':
				inStr = false
			}
			continue
		}
		switch c {
		case '"':
			inStr = true
		case '{', '[':
			stack = append(stack, c)
		case '}', ']':
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
			if len(stack) == 0 {
				// Balanced document: truncation repair does not apply.
				return "", false
			}
			snapshot(i + 1)
		case ',':
			if len(stack) > 0 {
				// Cut before the comma keeps the preceding entry whole.
				snapshot(i)
			}
		}
	}

	if len(stack) == 0 && !inStr {
		return "", false
	}
	if lastComplete < 0 {
		return "", false
	}

	repaired := strings.TrimRight(region[:lastComplete], ", \t\n\r")
	for j := len(lastStack) - 1; j >= 0; j-- {
		if lastStack[j] == '{' {
			repaired += "}"
		} else {
			repaired += "]"
		}
	}
	return repaired, true
}

func consumeString(s string, start int) int {
	esc := false
	for i := start + 1; i < len(s); i++ {
		switch {
		case esc:
			esc = false
		case s[i] == '\\':
			esc = true
		case s[i] == '"':
			return i + 1
		}
	}
	return len(s)
}

func nextNonSpace(s string, from int) (byte, bool) {
	for i := from; i < len(s); i++ {
		c := s[i]
		if c != ' ' && c != '\t' && c != '\n' && c != '\r' {
			return c, true
		}
	}
	return 0, false
}

func topIs(stack []byte, c byte) bool {
	return len(stack) > 0 && stack[len(stack)-1] == c
}

func isDelimiter(c byte) bool {
	switch c {
	case ' ', '\t', '\n', '\r', ',', ':', '{', '}', '[', ']', '"':
		return true
	}
	return false
}
