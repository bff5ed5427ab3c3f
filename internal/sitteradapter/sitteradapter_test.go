package sitteradapter_test

import (
	"testing"

	"lspadapter/internal/sitteradapter"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/stretchr/testify/assert"
	protocol "github.com/tliron/glsp/protocol_3_16"
)

func pos(line, char uint32) protocol.Position {
	return protocol.Position{Line: line, Character: char}
}

func TestOffsetCountsUTF16Units(t *testing.T) {
	// "😀" is one rune, four bytes and two UTF-16 units.
	li := sitteradapter.NewLineIndex([]byte("ab\n😀x\r\nlast"))

	assert.Equal(t, 0, li.Offset(pos(0, 0)))
	assert.Equal(t, 2, li.Offset(pos(0, 9)), "clamps to line end")
	assert.Equal(t, 7, li.Offset(pos(1, 2)))
	assert.Equal(t, 8, li.Offset(pos(1, 3)))
	assert.Equal(t, 8, li.Offset(pos(1, 10)), "stops before \\r\\n")
	assert.Equal(t, 10, li.Offset(pos(2, 0)))
	assert.Equal(t, 12, li.Offset(pos(7, 2)), "clamps to last line")
}

func TestPositionRoundTrips(t *testing.T) {
	li := sitteradapter.NewLineIndex([]byte("ab\n😀x\nlast"))

	assert.Equal(t, pos(1, 2), li.Position(7))
	assert.Equal(t, pos(2, 4), li.Position(100))
	for _, p := range []protocol.Position{pos(0, 1), pos(1, 0), pos(1, 3), pos(2, 2)} {
		assert.Equal(t, p, li.Position(li.Offset(p)))
	}
}

func TestPointUsesByteColumns(t *testing.T) {
	li := sitteradapter.NewLineIndex([]byte("ab\n😀x"))
	assert.Equal(t, sitter.Point{Row: 1, Column: 4}, li.Point(7))
}

func TestApplyTextEdit(t *testing.T) {
	src := []byte("func main() {\n}\n")
	out, input := sitteradapter.ApplyTextEdit(src, protocol.TextEdit{
		Range:   protocol.Range{Start: pos(0, 13), End: pos(1, 0)},
		NewText: "\n\tprintln()\n",
	})

	assert.Equal(t, "func main() {\n\tprintln()\n}\n", string(out))
	assert.Equal(t, uint32(13), input.StartIndex)
	assert.Equal(t, uint32(14), input.OldEndIndex)
	assert.Equal(t, uint32(13+12), input.NewEndIndex)
	assert.Equal(t, sitter.Point{Row: 2, Column: 0}, input.NewEndPoint)
	assert.Equal(t, sitter.Point{Row: 1, Column: 0}, input.OldEndPoint)
}

func TestLineAndUTF16Len(t *testing.T) {
	li := sitteradapter.NewLineIndex([]byte("one\r\ntwo😀"))
	assert.Equal(t, 2, li.LineCount())
	assert.Equal(t, "one", string(li.Line(0)))
	assert.Equal(t, uint32(5), sitteradapter.UTF16Len(li.Line(1)))
	assert.Nil(t, li.Line(5))
}
