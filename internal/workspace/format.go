package workspace

import (
	"bytes"
	"context"
	"strings"

	"lspadapter/internal/engine"
	"lspadapter/internal/sitteradapter"

	protocol "github.com/tliron/glsp/protocol_3_16"
)

// lexState is what carries over from one line to the next while
// formatting.
type lexState struct {
	depth int
	// blockComment and rawString are set while inside a construct that
	// spans lines. Such lines keep their text untouched.
	blockComment bool
	rawString    bool
	rawDelim     string
}

func (s *lexState) verbatim() bool { return s.blockComment || s.rawString }

// Format re-indents every line by bracket depth and trims trailing
// whitespace. Lines inside block comments or raw strings are kept as they
// are.
func (e *Engine) Format(ctx context.Context, d engine.Document, opts engine.FormatOptions, rng *protocol.Range) ([]protocol.TextEdit, error) {
	doc, err := asDocument(d)
	if err != nil {
		return nil, err
	}
	lines := sitteradapter.NewLineIndex(doc.Content())
	first, last := 0, lines.LineCount()-1
	if rng != nil {
		first, last = int(rng.Start.Line), int(rng.End.Line)
		if rng.End.Character == 0 && last > first {
			last--
		}
		last = min(last, lines.LineCount()-1)
	}

	unit := "\t"
	if opts.InsertSpaces {
		size := opts.TabSize
		if size <= 0 {
			size = 4
		}
		unit = strings.Repeat(" ", size)
	}
	dedentCase := false
	if g := grammarFor(doc.lang); g != nil {
		dedentCase = g.dedentCase
	}

	var edits []protocol.TextEdit
	var state lexState
	for i := 0; i <= last; i++ {
		if i%256 == 0 {
			if err := engine.CheckCancelled(ctx); err != nil {
				return nil, err
			}
		}
		line := lines.Line(i)
		verbatim := state.verbatim()
		indent := state.depth
		scanLine(line, &state)
		if i < first || verbatim {
			continue
		}

		text := bytes.TrimSpace(line)
		indent -= leadingClosers(text)
		if dedentCase && isCaseLabel(text) {
			indent--
		}
		var formatted string
		if len(text) > 0 {
			formatted = strings.Repeat(unit, max(indent, 0)) + string(text)
		}
		if formatted == string(line) {
			continue
		}
		edits = append(edits, protocol.TextEdit{
			Range: protocol.Range{
				Start: protocol.Position{Line: protocol.UInteger(i)},
				End:   protocol.Position{Line: protocol.UInteger(i), Character: sitteradapter.UTF16Len(line)},
			},
			NewText: formatted,
		})
	}

	for l, r := 0, len(edits)-1; l < r; l, r = l+1, r-1 {
		edits[l], edits[r] = edits[r], edits[l]
	}
	return edits, nil
}

// leadingClosers counts the closing brackets a line starts with.
func leadingClosers(text []byte) int {
	n := 0
	for _, c := range text {
		switch c {
		case '}', ')', ']':
			n++
		case ' ', '\t':
		default:
			return n
		}
	}
	return n
}

func isCaseLabel(text []byte) bool {
	return bytes.HasPrefix(text, []byte("case ")) ||
		bytes.HasPrefix(text, []byte("case\t")) ||
		bytes.HasPrefix(text, []byte("default:")) ||
		bytes.HasPrefix(text, []byte("default :"))
}

// scanLine advances state over one line, counting brackets outside of
// strings and comments.
func scanLine(line []byte, s *lexState) {
	for i := 0; i < len(line); i++ {
		switch {
		case s.blockComment:
			if j := bytes.Index(line[i:], []byte("*/")); j >= 0 {
				s.blockComment = false
				i += j + 1
				continue
			}
			return
		case s.rawString:
			if j := bytes.Index(line[i:], []byte(s.rawDelim)); j >= 0 {
				s.rawString = false
				i += j + len(s.rawDelim) - 1
				continue
			}
			return
		}

		c := line[i]
		switch {
		case c == '/' && i+1 < len(line) && line[i+1] == '/':
			return
		case c == '/' && i+1 < len(line) && line[i+1] == '*':
			s.blockComment = true
			i++
		case c == '`':
			s.rawString, s.rawDelim = true, "`"
		case bytes.HasPrefix(line[i:], []byte(`"""`)):
			s.rawString, s.rawDelim = true, `"""`
			i += 2
		case c == '"' || c == '\'':
			i = skipQuoted(line, i)
		case c == '{' || c == '(' || c == '[':
			s.depth++
		case c == '}' || c == ')' || c == ']':
			s.depth = max(s.depth-1, 0)
		}
	}
}

// skipQuoted returns the index of the quote closing the literal opened at
// line[start], or the last index when the literal is unterminated.
func skipQuoted(line []byte, start int) int {
	quote := line[start]
	for i := start + 1; i < len(line); i++ {
		switch line[i] {
		case '\\':
			i++
		case quote:
			return i
		}
	}
	return len(line) - 1
}
