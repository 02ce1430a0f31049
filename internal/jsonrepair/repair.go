package jsonrepair

import (
	"strings"
)

// repairPass rewrites near-JSON text into something closer to strict JSON.
type repairPass func(string) string

// repairPasses run cumulatively; a parse is attempted after each one.
var repairPasses = []repairPass{
	normalizeQuotes,
	stripComments,
	stripTrailingCommas,
	quoteBareKeys,
	insertMissingCommas,
	collapseWhitespace,
}

func repair(candidate string, expect Expect) (any, bool) {
	s := candidate
	for _, pass := range repairPasses {
		s = pass(s)
		if v, ok := tryDecode(s, expect); ok {
			return v, true
		}
	}
	// Several top-level objects separated by commas read as a list.
	if strings.HasPrefix(s, "{") && strings.HasSuffix(s, "}") {
		if v, ok := tryDecode("["+s+"]", expect); ok {
			return v, true
		}
	}
	return nil, false
}

// balancedSpans returns every top-level {...} span followed by every top-level
// [...] span, tracking double-quoted string state so brackets inside strings
// do not count.
func balancedSpans(s string) []string {
	var spans []string
	for _, pair := range [][2]byte{{'{', '}'}, {'[', ']'}} {
		opener, closer := pair[0], pair[1]
		depth, start := 0, -1
		inString, escaped := false, false
		for i := 0; i < len(s); i++ {
			c := s[i]
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
			case opener:
				if depth == 0 {
					start = i
				}
				depth++
			case closer:
				if depth == 0 {
					continue
				}
				depth--
				if depth == 0 {
					spans = append(spans, s[start:i+1])
					start = -1
				}
			}
		}
	}
	return spans
}

// walkOutsideStrings calls fn for every byte outside a double-quoted string.
// Bytes inside strings, quotes included, are copied through unchanged. fn
// returns how many bytes it consumed; zero means copy the byte as is.
func walkOutsideStrings(s string, fn func(b *strings.Builder, s string, i int) int) string {
	var b strings.Builder
	b.Grow(len(s))
	inString, escaped := false, false
	for i := 0; i < len(s); {
		c := s[i]
		if inString {
			b.WriteByte(c)
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			i++
			continue
		}
		if c == '"' {
			inString = true
			b.WriteByte(c)
			i++
			continue
		}
		if n := fn(&b, s, i); n > 0 {
			i += n
			continue
		}
		b.WriteByte(c)
		i++
	}
	return b.String()
}

func prevNonSpace(s string, i int) byte {
	for j := i - 1; j >= 0; j-- {
		if !isSpace(s[j]) {
			return s[j]
		}
	}
	return 0
}

func nextNonSpace(s string, i int) (byte, int) {
	for j := i; j < len(s); j++ {
		if !isSpace(s[j]) {
			return s[j], j
		}
	}
	return 0, len(s)
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}

func isIdentStart(c byte) bool {
	return c == '_' || c == '$' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentPart(c byte) bool {
	return isIdentStart(c) || c == '-' || (c >= '0' && c <= '9')
}

// normalizeQuotes rewrites single-quoted strings as double-quoted ones. A quote
// next to a structural token (: , { [ } ] or the text boundary) is a delimiter;
// a quote next to a letter is an apostrophe. A doubled quote inside a string is
// one apostrophe.
func normalizeQuotes(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	const (
		outside = iota
		inDouble
		inSingle
	)
	state, escaped := outside, false
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch state {
		case inDouble:
			b.WriteByte(c)
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				state = outside
			}
		case inSingle:
			switch {
			case c == '\\' && i+1 < len(s):
				if s[i+1] == '\'' {
					b.WriteByte('\'')
				} else {
					b.WriteByte(c)
					b.WriteByte(s[i+1])
				}
				i++
			case c == '"':
				b.WriteString(`\"`)
			case c == '\'' && i+1 < len(s) && s[i+1] == '\'':
				b.WriteByte('\'')
				i++
			case c == '\'':
				next, _ := nextNonSpace(s, i+1)
				if next == 0 || strings.IndexByte(":,}]", next) >= 0 {
					b.WriteByte('"')
					state = outside
				} else {
					b.WriteByte('\'')
				}
			default:
				b.WriteByte(c)
			}
		default:
			switch {
			case c == '"':
				b.WriteByte(c)
				state = inDouble
			case c == '\'':
				prev := prevNonSpace(s, i)
				if prev == 0 || strings.IndexByte("{[:,", prev) >= 0 {
					b.WriteByte('"')
					state = inSingle
				} else {
					b.WriteByte(c)
				}
			default:
				b.WriteByte(c)
			}
		}
	}
	return b.String()
}

func stripComments(s string) string {
	return walkOutsideStrings(s, func(_ *strings.Builder, s string, i int) int {
		if s[i] != '/' || i+1 >= len(s) {
			return 0
		}
		switch s[i+1] {
		case '/':
			end := strings.IndexByte(s[i:], '\n')
			if end < 0 {
				return len(s) - i
			}
			return end
		case '*':
			end := strings.Index(s[i+2:], "*/")
			if end < 0 {
				return len(s) - i
			}
			return end + 4
		}
		return 0
	})
}

func stripTrailingCommas(s string) string {
	return walkOutsideStrings(s, func(_ *strings.Builder, s string, i int) int {
		if s[i] != ',' {
			return 0
		}
		if next, _ := nextNonSpace(s, i+1); next == '}' || next == ']' {
			return 1
		}
		return 0
	})
}

func quoteBareKeys(s string) string {
	return walkOutsideStrings(s, func(b *strings.Builder, s string, i int) int {
		if !isIdentStart(s[i]) {
			return 0
		}
		if prev := prevNonSpace(s, i); prev != '{' && prev != ',' {
			return 0
		}
		j := i + 1
		for j < len(s) && isIdentPart(s[j]) {
			j++
		}
		if next, _ := nextNonSpace(s, j); next != ':' {
			return 0
		}
		b.WriteByte('"')
		b.WriteString(s[i:j])
		b.WriteByte('"')
		return j - i
	})
}

func insertMissingCommas(s string) string {
	return walkOutsideStrings(s, func(b *strings.Builder, s string, i int) int {
		if s[i] != '}' && s[i] != ']' {
			return 0
		}
		if next, _ := nextNonSpace(s, i+1); next == '{' || next == '[' {
			b.WriteByte(s[i])
			b.WriteByte(',')
			return 1
		}
		return 0
	})
}

// collapseWhitespace squeezes whitespace runs between tokens and escapes raw
// control characters that appear inside strings.
func collapseWhitespace(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	inString, escaped, lastSpace := false, false, false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
				b.WriteByte(c)
			case c == '\\':
				escaped = true
				b.WriteByte(c)
			case c == '"':
				inString = false
				b.WriteByte(c)
			case c == '\n':
				b.WriteString(`\n`)
			case c == '\r':
				b.WriteString(`\r`)
			case c == '\t':
				b.WriteString(`\t`)
			default:
				b.WriteByte(c)
			}
			continue
		}
		if isSpace(c) {
			if !lastSpace {
				b.WriteByte(' ')
			}
			lastSpace = true
			continue
		}
		lastSpace = false
		if c == '"' {
			inString = true
		}
		b.WriteByte(c)
	}
	return strings.TrimSpace(b.String())
}
