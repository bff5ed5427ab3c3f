package command

import (
	"lspadapter/internal/engine"

	protocol "github.com/tliron/glsp/protocol_3_16"
)

// Diagnostics collects the problems the engine finds in a document.
type Diagnostics struct {
	Diagnoser engine.Diagnoser
}

func (c *Diagnostics) Name() string   { return "diagnostics" }
func (c *Diagnostics) Access() Access { return Read }

func (c *Diagnostics) Execute(ec *ExecutionContext) ([]protocol.Diagnostic, error) {
	return c.Diagnoser.Diagnostics(ec.Ctx, ec.Document)
}
