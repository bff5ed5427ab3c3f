package completion_test

import (
	"testing"

	"lspadapter/internal/completion"

	"github.com/stretchr/testify/assert"
)

func TestPrefixMatcher(t *testing.T) {
	tests := []struct {
		prefix string
		label  string
		want   bool
	}{
		{"", "anything", true},
		{"pri", "println", true},
		{"pri", "private", true},
		{"pri", "protected", false},
		{"PRI", "private", true},
		{"nPE", "NullPointerException", true},
		{"npe", "NullPointerException", true},
		{"nPx", "NullPointerException", false},
		{"gv", "get_value", true},
		{"sb", "StringBuilder", true},
		{"sbu", "StringBuilder", true},
		{"bu", "StringBuilder", false},
		{"h2", "parseHttp2", false},
		{"ph2", "parseHttp2", true},
		{"longer", "long", false},
	}
	for _, tt := range tests {
		m := completion.NewPrefixMatcher(tt.prefix)
		assert.Equal(t, tt.want, m.Matches(tt.label), "%q vs %q", tt.prefix, tt.label)
		assert.Equal(t, tt.prefix, m.Prefix())
	}
}

func TestAcceptAll(t *testing.T) {
	assert.True(t, completion.AcceptAll.Matches("whatever"))
	assert.Equal(t, "", completion.AcceptAll.Prefix())
}

func TestParametersPrefix(t *testing.T) {
	p := params("foo.barBaz")
	assert.Equal(t, "barBaz", p.Prefix)
	assert.Equal(t, len("foo.barBaz"), p.Offset)
	assert.Equal(t, '.', p.PrecedingRune())

	p = params("int x = ")
	assert.Equal(t, "", p.Prefix)
	assert.Equal(t, '=', p.PrecedingRune())

	p = params("")
	assert.Equal(t, rune(0), p.PrecedingRune())
}
