// Package sitteradapter converts between LSP positions, which count UTF-16
// code units, and the byte offsets and points tree-sitter works with.
package sitteradapter

import (
	"sort"
	"unicode/utf8"

	sitter "github.com/smacker/go-tree-sitter"
	protocol "github.com/tliron/glsp/protocol_3_16"
)

// LineIndex maps positions in one immutable document snapshot.
type LineIndex struct {
	src    []byte
	starts []int
}

func NewLineIndex(src []byte) *LineIndex {
	starts := []int{0}
	for i, b := range src {
		if b == '\n' {
			starts = append(starts, i+1)
		}
	}
	return &LineIndex{src: src, starts: starts}
}

// LineCount returns the number of lines, counting a trailing empty line.
func (li *LineIndex) LineCount() int { return len(li.starts) }

// Line returns the text of line i without its line terminator.
func (li *LineIndex) Line(i int) []byte {
	if i < 0 || i >= len(li.starts) {
		return nil
	}
	return li.src[li.starts[i]:li.lineEnd(i)]
}

// lineEnd is the offset of the line terminator of line i, excluding a
// "\r" before the "\n".
func (li *LineIndex) lineEnd(i int) int {
	if i+1 >= len(li.starts) {
		return len(li.src)
	}
	end := li.starts[i+1] - 1
	if end > li.starts[i] && li.src[end-1] == '\r' {
		end--
	}
	return end
}

// Offset returns the byte offset of pos. A line past the end clamps to the
// last line and a character past the end of a line clamps to its end.
func (li *LineIndex) Offset(pos protocol.Position) int {
	line := int(pos.Line)
	if line >= len(li.starts) {
		line = len(li.starts) - 1
	}
	off, end := li.starts[line], li.lineEnd(line)
	var units uint32
	for off < end {
		r, size := utf8.DecodeRune(li.src[off:end])
		n := utf16Len(r)
		if units+n > pos.Character {
			break
		}
		units += n
		off += size
	}
	return off
}

// Position returns the LSP position of a byte offset.
func (li *LineIndex) Position(offset int) protocol.Position {
	offset = max(0, min(offset, len(li.src)))
	line := sort.Search(len(li.starts), func(i int) bool { return li.starts[i] > offset }) - 1
	var units uint32
	for i := li.starts[line]; i < offset; {
		r, size := utf8.DecodeRune(li.src[i:offset])
		units += utf16Len(r)
		i += size
	}
	return protocol.Position{Line: protocol.UInteger(line), Character: units}
}

// Point returns the tree-sitter point of a byte offset.
func (li *LineIndex) Point(offset int) sitter.Point {
	offset = max(0, min(offset, len(li.src)))
	line := sort.Search(len(li.starts), func(i int) bool { return li.starts[i] > offset }) - 1
	return sitter.Point{Row: uint32(line), Column: uint32(offset - li.starts[line])}
}

// Range converts a node's byte span.
func (li *LineIndex) Range(n *sitter.Node) protocol.Range {
	return protocol.Range{
		Start: li.Position(int(n.StartByte())),
		End:   li.Position(int(n.EndByte())),
	}
}

// EditInput describes edit for tree.Edit.
func (li *LineIndex) EditInput(edit protocol.TextEdit) sitter.EditInput {
	start := li.Offset(edit.Range.Start)
	end := max(start, li.Offset(edit.Range.End))
	startPoint := li.Point(start)
	return sitter.EditInput{
		StartIndex:  uint32(start),
		OldEndIndex: uint32(end),
		NewEndIndex: uint32(start + len(edit.NewText)),
		StartPoint:  startPoint,
		OldEndPoint: li.Point(end),
		NewEndPoint: newEndPoint(startPoint, edit.NewText),
	}
}

// newEndPoint computes the point right after inserting text at start.
func newEndPoint(start sitter.Point, text string) sitter.Point {
	row, col := start.Row, start.Column
	for i := 0; i < len(text); i++ {
		if text[i] == '\n' {
			row++
			col = 0
			continue
		}
		col++
	}
	return sitter.Point{Row: row, Column: col}
}

// ApplyTextEdit splices edit into src. It returns the new content and the
// matching tree-sitter edit.
func ApplyTextEdit(src []byte, edit protocol.TextEdit) ([]byte, sitter.EditInput) {
	input := NewLineIndex(src).EditInput(edit)
	out := make([]byte, 0, len(src)-int(input.OldEndIndex-input.StartIndex)+len(edit.NewText))
	out = append(out, src[:input.StartIndex]...)
	out = append(out, edit.NewText...)
	out = append(out, src[input.OldEndIndex:]...)
	return out, input
}

// UTF16Len counts the UTF-16 code units of s.
func UTF16Len(s []byte) uint32 {
	var n uint32
	for len(s) > 0 {
		r, size := utf8.DecodeRune(s)
		n += utf16Len(r)
		s = s[size:]
	}
	return n
}

func utf16Len(r rune) uint32 {
	if r > 0xFFFF {
		return 2
	}
	return 1
}
