package server

import (
	"context"
	"encoding/json"

	"lspadapter/internal/command"
	"lspadapter/internal/engine"

	"github.com/sourcegraph/jsonrpc2"
	protocol "github.com/tliron/glsp/protocol_3_16"
)

// workspaceSymbolLimit caps a workspace/symbol response across all roots.
const workspaceSymbolLimit = 128

// route answers one request method. Unlike the protocol handler table it
// receives the request context, so cancellation reaches the command.
type route func(ctx context.Context, params json.RawMessage) (any, error)

// handle decodes the params of a route into P.
func handle[P any](fn func(ctx context.Context, params *P) (any, error)) route {
	return func(ctx context.Context, raw json.RawMessage) (any, error) {
		var params P
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &params); err != nil {
				return nil, &jsonrpc2.Error{Code: jsonrpc2.CodeInvalidParams, Message: err.Error()}
			}
		}
		return fn(ctx, &params)
	}
}

func (s *Server) newRoutes() map[string]route {
	return map[string]route{
		protocol.MethodTextDocumentCompletion:        handle(s.textDocumentCompletion),
		protocol.MethodCompletionItemResolve:         handle(s.completionItemResolve),
		protocol.MethodTextDocumentDocumentSymbol:    handle(s.textDocumentDocumentSymbol),
		protocol.MethodTextDocumentImplementation:    handle(s.textDocumentImplementation),
		protocol.MethodTextDocumentTypeDefinition:    handle(s.textDocumentTypeDefinition),
		protocol.MethodTextDocumentDocumentHighlight: handle(s.textDocumentDocumentHighlight),
		protocol.MethodTextDocumentFormatting:        handle(s.textDocumentFormatting),
		protocol.MethodTextDocumentRangeFormatting:   handle(s.textDocumentRangeFormatting),
		protocol.MethodWorkspaceSymbol:               handle(s.workspaceSymbol),
		protocol.MethodWorkspaceExecuteCommand:       handle(s.workspaceExecuteCommand),
	}
}

func (s *Server) textDocumentCompletion(
	ctx context.Context,
	params *protocol.CompletionParams,
) (any, error) {
	return command.Run(ctx, s.executor, params.TextDocument.URI, &command.Completion{
		Engine:   s.completion,
		Position: params.Position,
		Snippets: s.snippets.Load(),
	})
}

func (s *Server) completionItemResolve(
	ctx context.Context,
	params *protocol.CompletionItem,
) (any, error) {
	return command.RunUnbound(ctx, s.executor, &command.ResolveCompletion{
		Engine: s.completion,
		Item:   params,
	})
}

func (s *Server) textDocumentDocumentSymbol(
	ctx context.Context,
	params *protocol.DocumentSymbolParams,
) (any, error) {
	return command.Run(ctx, s.executor, params.TextDocument.URI, &command.DocumentSymbols{
		Syntax: s.backend,
	})
}

func (s *Server) textDocumentImplementation(
	ctx context.Context,
	params *protocol.ImplementationParams,
) (any, error) {
	return command.Run(ctx, s.executor, params.TextDocument.URI, &command.FindImplementation{
		Navigator: s.backend,
		Position:  params.Position,
	})
}

func (s *Server) textDocumentTypeDefinition(
	ctx context.Context,
	params *protocol.TypeDefinitionParams,
) (any, error) {
	return command.Run(ctx, s.executor, params.TextDocument.URI, &command.FindTypeDefinition{
		Navigator: s.backend,
		Position:  params.Position,
	})
}

func (s *Server) textDocumentDocumentHighlight(
	ctx context.Context,
	params *protocol.DocumentHighlightParams,
) (any, error) {
	return command.Run(ctx, s.executor, params.TextDocument.URI, &command.DocumentHighlight{
		Navigator: s.backend,
		Position:  params.Position,
	})
}

func (s *Server) textDocumentFormatting(
	ctx context.Context,
	params *protocol.DocumentFormattingParams,
) (any, error) {
	return command.Run(ctx, s.executor, params.TextDocument.URI, &command.Formatting{
		Formatter: s.backend,
		Options:   formatOptions(params.Options),
	})
}

func (s *Server) textDocumentRangeFormatting(
	ctx context.Context,
	params *protocol.DocumentRangeFormattingParams,
) (any, error) {
	return command.Run(ctx, s.executor, params.TextDocument.URI, &command.Formatting{
		Formatter: s.backend,
		Options:   formatOptions(params.Options),
		Range:     &params.Range,
	})
}

// formatOptions reads the indentation settings of a formatting request.
// Numbers arrive as float64 from the JSON decoder.
func formatOptions(opts protocol.FormattingOptions) engine.FormatOptions {
	out := engine.FormatOptions{TabSize: 4}
	if v, ok := opts[protocol.FormattingOptionTabSize].(float64); ok && v > 0 {
		out.TabSize = int(v)
	}
	if v, ok := opts[protocol.FormattingOptionInsertSpaces].(bool); ok {
		out.InsertSpaces = v
	}
	return out
}

// workspaceSymbol searches every workspace root. Roots whose project
// cannot be loaded are skipped.
func (s *Server) workspaceSymbol(
	ctx context.Context,
	params *protocol.WorkspaceSymbolParams,
) (any, error) {
	out := []protocol.SymbolInformation{}
	for _, root := range s.executor.Builder().Roots() {
		if len(out) >= workspaceSymbolLimit {
			break
		}
		found, err := command.RunInProject(ctx, s.executor, root, &command.WorkspaceSymbols{
			Search: s.backend,
			Query:  params.Query,
			Limit:  workspaceSymbolLimit - len(out),
		})
		switch {
		case err == nil:
			out = append(out, found...)
		case engine.Classify(err) == engine.ErrNotFound:
			log.Debugf("workspace symbols in %s: %s", root, err.Error())
		default:
			return nil, err
		}
	}
	return out, nil
}
