package server

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"lspadapter/internal/command"

	"github.com/sourcegraph/jsonrpc2"
	protocol "github.com/tliron/glsp/protocol_3_16"
)

const (
	// commandApplyEdits applies text edits to an open document:
	// [uri, edits].
	commandApplyEdits = "lspadapter.applyEdits"
	// commandCompleteAfter resumes a completion chain one past the named
	// contributor: [textDocumentPositionParams, contributor].
	commandCompleteAfter = "lspadapter.completeAfter"
	// commandReloadProject drops a loaded project so that the next request
	// loads it again: [rootUri].
	commandReloadProject = "lspadapter.reloadProject"
)

type executeCommandFunc func(s *Server, ctx context.Context, args []any) (any, error)

var executeCommands = map[string]executeCommandFunc{
	commandApplyEdits:    (*Server).applyEdits,
	commandCompleteAfter: (*Server).completeAfter,
	commandReloadProject: (*Server).reloadProject,
}

func executeCommandNames() []string {
	names := make([]string, 0, len(executeCommands))
	for name := range executeCommands {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (s *Server) workspaceExecuteCommand(
	ctx context.Context,
	params *protocol.ExecuteCommandParams,
) (any, error) {
	fn, ok := executeCommands[params.Command]
	if !ok {
		return nil, &jsonrpc2.Error{
			Code:    jsonrpc2.CodeInvalidParams,
			Message: fmt.Sprintf("unknown command %q", params.Command),
		}
	}
	return fn(s, ctx, params.Arguments)
}

func (s *Server) applyEdits(ctx context.Context, args []any) (any, error) {
	var (
		docURI protocol.DocumentUri
		edits  []protocol.TextEdit
	)
	if err := decodeArguments(args, &docURI, &edits); err != nil {
		return nil, err
	}
	if _, err := command.Run(ctx, s.executor, docURI, &command.ApplyChanges{
		Engine: s.backend,
		Edits:  edits,
	}); err != nil {
		return nil, err
	}
	s.publishDiagnostics(docURI)
	return nil, nil
}

func (s *Server) completeAfter(ctx context.Context, args []any) (any, error) {
	var (
		position protocol.TextDocumentPositionParams
		after    string
	)
	if err := decodeArguments(args, &position, &after); err != nil {
		return nil, err
	}
	return command.Run(ctx, s.executor, position.TextDocument.URI, &command.Completion{
		Engine:   s.completion,
		Position: position.Position,
		Snippets: s.snippets.Load(),
		After:    after,
	})
}

func (s *Server) reloadProject(ctx context.Context, args []any) (any, error) {
	var root protocol.DocumentUri
	if err := decodeArguments(args, &root); err != nil {
		return nil, err
	}
	s.projects.Invalidate(root)
	return nil, nil
}

// decodeArguments converts the positional arguments of a command into
// targets.
func decodeArguments(args []any, targets ...any) error {
	if len(args) != len(targets) {
		return &jsonrpc2.Error{
			Code:    jsonrpc2.CodeInvalidParams,
			Message: fmt.Sprintf("expected %d arguments, got %d", len(targets), len(args)),
		}
	}
	for i, target := range targets {
		data, err := json.Marshal(args[i])
		if err == nil {
			err = json.Unmarshal(data, target)
		}
		if err != nil {
			return &jsonrpc2.Error{
				Code:    jsonrpc2.CodeInvalidParams,
				Message: fmt.Sprintf("argument %d: %s", i, err.Error()),
			}
		}
	}
	return nil
}
