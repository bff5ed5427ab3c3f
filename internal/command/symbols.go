package command

import (
	"lspadapter/internal/engine"
	"lspadapter/internal/symbols"

	protocol "github.com/tliron/glsp/protocol_3_16"
)

// DocumentSymbols lists the symbols of a document by position.
type DocumentSymbols struct {
	Syntax engine.Syntax
}

func (c *DocumentSymbols) Name() string   { return "documentSymbol" }
func (c *DocumentSymbols) Access() Access { return Read }

func (c *DocumentSymbols) Execute(ec *ExecutionContext) ([]protocol.SymbolInformation, error) {
	root, classifier, err := c.Syntax.SyntaxTree(ec.Ctx, ec.Document)
	if err != nil {
		return nil, err
	}
	syms, err := symbols.Extract(ec.Ctx, root, classifier)
	if err != nil {
		return nil, err
	}
	return symbols.ToSymbolInformation(ec.Document.URI(), syms), nil
}

// WorkspaceSymbols searches the project's declaration index.
type WorkspaceSymbols struct {
	Search engine.SymbolSearch
	Query  string
	Limit  int
}

func (c *WorkspaceSymbols) Name() string   { return "workspaceSymbol" }
func (c *WorkspaceSymbols) Access() Access { return Read }

func (c *WorkspaceSymbols) Execute(ec *ExecutionContext) ([]protocol.SymbolInformation, error) {
	return c.Search.WorkspaceSymbols(ec.Ctx, ec.Project, c.Query, c.Limit)
}
