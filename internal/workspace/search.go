package workspace

import (
	"context"

	"lspadapter/internal/engine"

	"github.com/pkg/errors"
	protocol "github.com/tliron/glsp/protocol_3_16"
)

// WorkspaceSymbols searches the declaration index of p. Names starting
// with query come first.
func (e *Engine) WorkspaceSymbols(ctx context.Context, p engine.Project, query string, limit int) ([]protocol.SymbolInformation, error) {
	wp, ok := p.(*Project)
	if !ok {
		return nil, errors.Errorf("project %s does not belong to the workspace engine", p.Root())
	}
	if err := engine.CheckCancelled(ctx); err != nil {
		return nil, err
	}
	decls, err := wp.store.Search(query, limit)
	if err != nil {
		return nil, err
	}
	out := make([]protocol.SymbolInformation, 0, len(decls))
	for _, d := range decls {
		info := protocol.SymbolInformation{
			Name:     d.Name,
			Kind:     d.Kind,
			Location: wp.location(d),
		}
		if d.Container != "" {
			container := d.Container
			info.ContainerName = &container
		}
		out = append(out, info)
	}
	return out, nil
}
