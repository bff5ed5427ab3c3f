// Package engine declares the narrow surface through which request
// handling reaches a code-intelligence engine, plus the error taxonomy
// shared by every layer above it.
package engine

import (
	"context"

	protocol "github.com/tliron/glsp/protocol_3_16"
)

// Project is a loaded workspace keyed by its canonical root path.
type Project interface {
	Root() string
	Disposed() bool
	Dispose() error

	// Indexing reports whether the engine is rebuilding its indexes.
	Indexing() bool
	// OnIndexingChange subscribes to indexing state transitions. The
	// returned func removes the subscription.
	OnIndexingChange(fn func(indexing bool)) (unsubscribe func())
}

// Document is an open file inside a Project.
type Document interface {
	URI() protocol.DocumentUri
	RelativePath() string
	Language() string
	Content() []byte
}

// Node is one element of a document's syntax tree.
type Node interface {
	// Parent returns nil at the root.
	Parent() Node
	ChildCount() int
	Child(i int) Node
	StartOffset() int
	Range() protocol.Range
}

// Classifier decides which syntax nodes are symbols.
type Classifier interface {
	ClassifyNode(n Node) (protocol.SymbolKind, bool)
	NodeName(n Node) string
}

// Engine loads projects and opens their documents.
type Engine interface {
	LoadProject(ctx context.Context, root string) (Project, error)
	// FindOpenProject returns a project the engine already has open for
	// root, if any.
	FindOpenProject(root string) (Project, bool)
	IsProjectInitialized(p Project) bool
	// OpenDocument fails with ErrNotFound when relPath does not exist.
	OpenDocument(ctx context.Context, p Project, relPath string) (Document, error)
	ApplyTextEdits(ctx context.Context, d Document, edits []protocol.TextEdit) error
}

// Syntax gives access to parsed documents.
type Syntax interface {
	SyntaxTree(ctx context.Context, d Document) (root Node, c Classifier, err error)
}

// Navigator answers position-based navigation queries.
type Navigator interface {
	FindImplementations(ctx context.Context, d Document, pos protocol.Position) ([]protocol.Location, error)
	FindTypeDefinition(ctx context.Context, d Document, pos protocol.Position) ([]protocol.Location, error)
	Highlights(ctx context.Context, d Document, pos protocol.Position) ([]protocol.DocumentHighlight, error)
}

// FormatOptions are the temporary code style settings of one formatting
// request.
type FormatOptions struct {
	TabSize      int
	InsertSpaces bool
}

// Formatter computes edits that reformat a document, optionally limited to
// a range. Edits are ordered from the end of the document towards its start
// so they can be applied one after another without re-offsetting.
type Formatter interface {
	Format(ctx context.Context, d Document, opts FormatOptions, rng *protocol.Range) ([]protocol.TextEdit, error)
}

// SymbolSearch queries the engine's workspace-wide declaration index.
type SymbolSearch interface {
	WorkspaceSymbols(ctx context.Context, p Project, query string, limit int) ([]protocol.SymbolInformation, error)
}

// Diagnoser reports problems in a document.
type Diagnoser interface {
	Diagnostics(ctx context.Context, d Document) ([]protocol.Diagnostic, error)
}
