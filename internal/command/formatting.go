package command

import (
	"sort"

	"lspadapter/internal/engine"

	protocol "github.com/tliron/glsp/protocol_3_16"
)

// Formatting reformats a document, or only Range when set, with temporary
// indentation settings. It needs write access because the engine's code
// style is switched for the duration of the request.
type Formatting struct {
	Formatter engine.Formatter
	Options   engine.FormatOptions
	Range     *protocol.Range
}

func (c *Formatting) Name() string {
	if c.Range != nil {
		return "rangeFormatting"
	}
	return "formatting"
}

func (c *Formatting) Access() Access { return Write }

func (c *Formatting) Execute(ec *ExecutionContext) ([]protocol.TextEdit, error) {
	edits, err := c.Formatter.Format(ec.Ctx, ec.Document, c.Options, c.Range)
	if err != nil {
		return nil, err
	}
	SortEdits(edits)
	return edits, nil
}

// ApplyChanges applies text edits to an open document.
type ApplyChanges struct {
	Engine engine.Engine
	Edits  []protocol.TextEdit
}

func (c *ApplyChanges) Name() string   { return "applyChanges" }
func (c *ApplyChanges) Access() Access { return Write }

func (c *ApplyChanges) Execute(ec *ExecutionContext) (struct{}, error) {
	return struct{}{}, c.Engine.ApplyTextEdits(ec.Ctx, ec.Document, c.Edits)
}

// SortEdits orders edits from the end of the document to its start, so
// each can be applied without shifting the ones after it.
func SortEdits(edits []protocol.TextEdit) {
	sort.SliceStable(edits, func(i, j int) bool {
		return after(edits[i].Range.Start, edits[j].Range.Start)
	})
}

func after(a, b protocol.Position) bool {
	if a.Line != b.Line {
		return a.Line > b.Line
	}
	return a.Character > b.Character
}
