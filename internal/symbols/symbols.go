// Package symbols extracts a flat, position-ordered symbol list from a
// syntax tree.
package symbols

import (
	"context"
	"sort"

	"lspadapter/internal/engine"

	protocol "github.com/tliron/glsp/protocol_3_16"
)

// Symbol is one extracted declaration. ContainerName is nil when no
// enclosing node is itself a symbol.
type Symbol struct {
	Name          string
	Kind          protocol.SymbolKind
	Range         protocol.Range
	ContainerName *string

	node engine.Node
}

// Node returns the syntax node the symbol was taken from.
func (s Symbol) Node() engine.Node { return s.node }

// Extract walks every node below root in pre-order and returns the
// classifiable, named ones sorted by start offset. The root itself is never
// visited. ctx is polled at every node; on cancellation no symbols are
// returned.
func Extract(ctx context.Context, root engine.Node, c engine.Classifier) ([]Symbol, error) {
	var out []Symbol

	var visit func(n engine.Node) error
	visit = func(n engine.Node) error {
		if err := engine.CheckCancelled(ctx); err != nil {
			return err
		}
		if kind, ok := c.ClassifyNode(n); ok {
			if name := c.NodeName(n); name != "" {
				out = append(out, Symbol{Name: name, Kind: kind, Range: n.Range(), node: n})
			}
		}
		for i := 0; i < n.ChildCount(); i++ {
			if err := visit(n.Child(i)); err != nil {
				return err
			}
		}
		return nil
	}

	for i := 0; i < root.ChildCount(); i++ {
		if err := visit(root.Child(i)); err != nil {
			return nil, err
		}
	}

	for i := range out {
		out[i].ContainerName = containerName(out[i].node, c)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].node.StartOffset() < out[j].node.StartOffset()
	})
	return out, nil
}

// containerName returns the name of the nearest strict ancestor below the
// document root that is a symbol itself.
func containerName(n engine.Node, c engine.Classifier) *string {
	for p := n.Parent(); p != nil && p.Parent() != nil; p = p.Parent() {
		if _, ok := c.ClassifyNode(p); !ok {
			continue
		}
		if name := c.NodeName(p); name != "" {
			return &name
		}
	}
	return nil
}

// ToSymbolInformation converts extracted symbols into protocol form.
func ToSymbolInformation(uri protocol.DocumentUri, syms []Symbol) []protocol.SymbolInformation {
	out := make([]protocol.SymbolInformation, len(syms))
	for i, s := range syms {
		out[i] = protocol.SymbolInformation{
			Name:          s.Name,
			Kind:          s.Kind,
			Location:      protocol.Location{URI: uri, Range: s.Range},
			ContainerName: s.ContainerName,
		}
	}
	return out
}
