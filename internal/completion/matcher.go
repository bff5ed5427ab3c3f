package completion

import (
	"unicode"
	"unicode/utf8"
)

// Matcher decides whether a candidate label fits what the user typed.
type Matcher interface {
	Prefix() string
	Matches(label string) bool
}

// AcceptAll matches every label. Contributors that already know their
// candidates fit the cursor context use it through Sink.WithMatcher.
var AcceptAll Matcher = acceptAll{}

type acceptAll struct{}

func (acceptAll) Prefix() string      { return "" }
func (acceptAll) Matches(string) bool { return true }

// PrefixMatcher matches labels that start with the prefix, ignoring case,
// or whose word boundaries spell it out ("nPE" matches
// "NullPointerException", "gv" matches "get_value").
type PrefixMatcher struct {
	prefix  string
	pattern []rune
}

func NewPrefixMatcher(prefix string) *PrefixMatcher {
	return &PrefixMatcher{prefix: prefix, pattern: []rune(prefix)}
}

func (m *PrefixMatcher) Prefix() string { return m.prefix }

func (m *PrefixMatcher) Matches(label string) bool {
	if m.prefix == "" {
		return true
	}
	if hasPrefixFold(label, m.prefix) {
		return true
	}
	return matchHumps([]rune(label), 0, m.pattern, 0)
}

func hasPrefixFold(s, prefix string) bool {
	for prefix != "" {
		if s == "" {
			return false
		}
		a, n := utf8.DecodeRuneInString(s)
		b, m := utf8.DecodeRuneInString(prefix)
		if unicode.ToLower(a) != unicode.ToLower(b) {
			return false
		}
		s, prefix = s[n:], prefix[m:]
	}
	return true
}

// matchHumps reports whether pattern[pi:] can be matched starting exactly at
// name[ni], either by consuming the following rune or by jumping to a later
// word boundary.
func matchHumps(name []rune, ni int, pattern []rune, pi int) bool {
	if pi == len(pattern) {
		return true
	}
	if ni >= len(name) || unicode.ToLower(name[ni]) != unicode.ToLower(pattern[pi]) {
		return false
	}
	if matchHumps(name, ni+1, pattern, pi+1) {
		return true
	}
	for j := ni + 2; j < len(name); j++ {
		if isBoundary(name, j) && matchHumps(name, j, pattern, pi+1) {
			return true
		}
	}
	return false
}

func isBoundary(name []rune, i int) bool {
	cur, prev := name[i], name[i-1]
	switch {
	case cur == '_' || cur == '$':
		return false
	case prev == '_' || prev == '$':
		return true
	case unicode.IsUpper(cur) && !unicode.IsUpper(prev):
		return true
	case unicode.IsDigit(cur) && !unicode.IsDigit(prev):
		return true
	}
	return false
}

// identifierPrefix returns the identifier characters right before offset.
func identifierPrefix(content []byte, offset int) string {
	if offset > len(content) {
		offset = len(content)
	}
	start := offset
	for start > 0 {
		r, size := utf8.DecodeLastRune(content[:start])
		if !isIdentRune(r) {
			break
		}
		start -= size
	}
	return string(content[start:offset])
}

func isIdentRune(r rune) bool {
	return r == '_' || r == '$' || unicode.IsLetter(r) || unicode.IsDigit(r)
}
