package workspace

import (
	"context"

	"lspadapter/internal/engine"

	sitter "github.com/smacker/go-tree-sitter"
	protocol "github.com/tliron/glsp/protocol_3_16"
)

const maxDiagnostics = 100

var diagnosticSource = "lspadapter"

// Diagnostics reports the syntax errors of a document.
func (e *Engine) Diagnostics(ctx context.Context, d engine.Document) ([]protocol.Diagnostic, error) {
	doc, err := asDocument(d)
	if err != nil {
		return nil, err
	}
	t, err := doc.syntax(ctx, e.pool)
	if err != nil {
		return nil, err
	}
	t.guard.Lock()
	defer t.guard.Unlock()

	severity := protocol.DiagnosticSeverityError
	out := []protocol.Diagnostic{}
	walk(t.root, func(n *sitter.Node) bool {
		if len(out) >= maxDiagnostics || !n.HasError() && !n.IsMissing() {
			return false
		}
		var message string
		switch {
		case n.IsMissing():
			message = "missing " + n.Type()
		case n.Type() == "ERROR":
			message = "syntax error"
		default:
			return true
		}
		out = append(out, protocol.Diagnostic{
			Range:    t.lines.Range(n),
			Severity: &severity,
			Source:   &diagnosticSource,
			Message:  message,
		})
		return false
	})
	return out, engine.CheckCancelled(ctx)
}
