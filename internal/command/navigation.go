package command

import (
	"lspadapter/internal/engine"

	protocol "github.com/tliron/glsp/protocol_3_16"
)

// FindImplementation lists implementations of the type or method at a
// position.
type FindImplementation struct {
	Navigator engine.Navigator
	Position  protocol.Position
}

func (c *FindImplementation) Name() string   { return "implementation" }
func (c *FindImplementation) Access() Access { return Read }

func (c *FindImplementation) Execute(ec *ExecutionContext) ([]protocol.Location, error) {
	return c.Navigator.FindImplementations(ec.Ctx, ec.Document, c.Position)
}

// FindTypeDefinition locates the declaration of the type of the symbol at
// a position.
type FindTypeDefinition struct {
	Navigator engine.Navigator
	Position  protocol.Position
}

func (c *FindTypeDefinition) Name() string   { return "typeDefinition" }
func (c *FindTypeDefinition) Access() Access { return Read }

func (c *FindTypeDefinition) Execute(ec *ExecutionContext) ([]protocol.Location, error) {
	return c.Navigator.FindTypeDefinition(ec.Ctx, ec.Document, c.Position)
}

// DocumentHighlight marks occurrences of the symbol at a position.
type DocumentHighlight struct {
	Navigator engine.Navigator
	Position  protocol.Position
}

func (c *DocumentHighlight) Name() string   { return "documentHighlight" }
func (c *DocumentHighlight) Access() Access { return Read }

func (c *DocumentHighlight) Execute(ec *ExecutionContext) ([]protocol.DocumentHighlight, error) {
	return c.Navigator.Highlights(ec.Ctx, ec.Document, c.Position)
}
