package server

import (
	contextpkg "context"

	"lspadapter/internal/command"
	"lspadapter/internal/engine"
	"lspadapter/internal/manager"
	"lspadapter/internal/uri"

	"github.com/pkg/errors"
	"github.com/tliron/glsp"
	protocol "github.com/tliron/glsp/protocol_3_16"
)

// bufferUpdate changes an editor buffer. It runs as a write command so
// that no command observes a half-applied change.
type bufferUpdate struct {
	name  string
	apply func(ctx contextpkg.Context, docs *manager.DocumentManager) error
	docs  *manager.DocumentManager
}

func (u *bufferUpdate) Name() string           { return u.name }
func (u *bufferUpdate) Access() command.Access { return command.Write }

func (u *bufferUpdate) Execute(ec *command.ExecutionContext) (struct{}, error) {
	return struct{}{}, u.apply(ec.Ctx, u.docs)
}

func (s *Server) updateBuffer(name string, apply func(ctx contextpkg.Context, docs *manager.DocumentManager) error) error {
	_, err := command.RunUnbound(s.ctx, s.executor, &bufferUpdate{
		name:  name,
		apply: apply,
		docs:  s.backend.Documents(),
	})
	return err
}

func (s *Server) textDocumentDidOpen(
	context *glsp.Context,
	params *protocol.DidOpenTextDocumentParams,
) error {
	doc := params.TextDocument
	path := uri.ToFilesystemPath(doc.URI)
	err := s.updateBuffer("didOpen", func(ctx contextpkg.Context, docs *manager.DocumentManager) error {
		return docs.Open(ctx, path, doc.Version, []byte(doc.Text))
	})
	if err != nil {
		return err
	}
	s.publishDiagnostics(doc.URI)
	return nil
}

func (s *Server) textDocumentDidChange(
	context *glsp.Context,
	params *protocol.DidChangeTextDocumentParams,
) error {
	doc := params.TextDocument
	path := uri.ToFilesystemPath(doc.URI)
	err := s.updateBuffer("didChange", func(ctx contextpkg.Context, docs *manager.DocumentManager) error {
		return applyContentChanges(ctx, docs, path, doc.Version, params.ContentChanges)
	})
	if errors.Is(err, manager.ErrNotOpen) {
		log.Warningf("change for unopened document %s", doc.URI)
		return nil
	}
	if err != nil {
		return err
	}
	s.publishDiagnostics(doc.URI)
	return nil
}

// applyContentChanges applies changes in order. Consecutive range changes
// are applied in one incremental reparse.
func applyContentChanges(
	ctx contextpkg.Context,
	docs *manager.DocumentManager,
	path string,
	version protocol.Integer,
	changes []any,
) error {
	var edits []protocol.TextEdit
	flush := func() error {
		if len(edits) == 0 {
			return nil
		}
		err := docs.ApplyEdits(ctx, path, version, edits)
		edits = nil
		return err
	}

	for _, raw := range changes {
		switch change := raw.(type) {
		case protocol.TextDocumentContentChangeEvent:
			edits = append(edits, protocol.TextEdit{Range: *change.Range, NewText: change.Text})
		case protocol.TextDocumentContentChangeEventWhole:
			if err := flush(); err != nil {
				return err
			}
			if err := docs.Replace(ctx, path, version, []byte(change.Text)); err != nil {
				return err
			}
		default:
			return errors.Errorf("unexpected change event type %T", raw)
		}
	}
	return flush()
}

func (s *Server) textDocumentDidSave(
	context *glsp.Context,
	params *protocol.DidSaveTextDocumentParams,
) error {
	docURI := params.TextDocument.URI
	if params.Text != nil {
		path := uri.ToFilesystemPath(docURI)
		err := s.updateBuffer("didSave", func(ctx contextpkg.Context, docs *manager.DocumentManager) error {
			snap, ok := docs.Get(path)
			if !ok {
				return nil
			}
			return docs.Replace(ctx, path, snap.Version, []byte(*params.Text))
		})
		if err != nil {
			return err
		}
	}
	s.publishDiagnostics(docURI)
	return nil
}

func (s *Server) textDocumentDidClose(
	context *glsp.Context,
	params *protocol.DidCloseTextDocumentParams,
) error {
	docURI := params.TextDocument.URI
	path := uri.ToFilesystemPath(docURI)
	err := s.updateBuffer("didClose", func(ctx contextpkg.Context, docs *manager.DocumentManager) error {
		docs.Release(path)
		return nil
	})
	if err != nil {
		return err
	}
	s.completion.Cache().Forget(docURI)
	s.cancelDiagnostics(docURI)
	s.notify(protocol.ServerTextDocumentPublishDiagnostics, protocol.PublishDiagnosticsParams{
		URI:         docURI,
		Diagnostics: []protocol.Diagnostic{},
	})
	return nil
}

// publishDiagnostics computes and sends the diagnostics of a document in
// the background, superseding a run still pending for it.
func (s *Server) publishDiagnostics(docURI protocol.DocumentUri) {
	key := uri.Normalize(docURI)
	ctx, cancel := contextpkg.WithCancel(s.ctx)

	s.mu.Lock()
	if prev, ok := s.diagnosing[key]; ok {
		prev()
	}
	s.diagnosing[key] = cancel
	s.mu.Unlock()

	go func() {
		defer cancel()
		diagnostics, err := command.Run(ctx, s.executor, docURI, &command.Diagnostics{Diagnoser: s.backend})

		s.mu.Lock()
		current := ctx.Err() == nil
		if current {
			delete(s.diagnosing, key)
		}
		s.mu.Unlock()

		switch {
		case !current:
			return
		case err != nil:
			if engine.Classify(err) != engine.ErrNotFound {
				log.Warningf("diagnostics for %s: %s", docURI, err.Error())
			}
			return
		}
		s.notify(protocol.ServerTextDocumentPublishDiagnostics, protocol.PublishDiagnosticsParams{
			URI:         docURI,
			Diagnostics: diagnostics,
		})
	}()
}

func (s *Server) cancelDiagnostics(docURI protocol.DocumentUri) {
	key := uri.Normalize(docURI)
	s.mu.Lock()
	defer s.mu.Unlock()
	if cancel, ok := s.diagnosing[key]; ok {
		cancel()
		delete(s.diagnosing, key)
	}
}
