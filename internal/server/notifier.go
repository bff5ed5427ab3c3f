package server

import (
	"lspadapter/internal/engine"
	"lspadapter/internal/project"
	"lspadapter/internal/uri"
)

const (
	notifyIndexStarted  = "lspadapter/indexStarted"
	notifyIndexFinished = "lspadapter/indexFinished"
)

// IndexParams are the params of the index notifications.
type IndexParams struct {
	Root string `json:"root"`
}

// registerIndexNotifier forwards the indexing state of p to the client.
// When indexing ends, diagnostics of the documents open in p are
// recomputed.
func (s *Server) registerIndexNotifier(p engine.Project) {
	root := p.Root()
	params := IndexParams{Root: uri.FromPath(root)}
	err := s.projects.RegisterIndexNotifier(p, project.IndexListener{
		Started: func() {
			log.Infof("indexing %s", root)
			s.notify(notifyIndexStarted, params)
		},
		Finished: func() {
			log.Infof("finished indexing %s", root)
			s.notify(notifyIndexFinished, params)
		},
		RecomputeDiagnostics: func() {
			s.recomputeDiagnostics(root)
		},
	})
	if err != nil {
		log.Debugf("index notifier for %s: %s", root, err.Error())
	}
}

// recomputeDiagnostics republishes the diagnostics of the open documents
// below root.
func (s *Server) recomputeDiagnostics(root string) {
	caseInsensitive := uri.CaseInsensitiveFS()
	for _, path := range s.backend.Documents().Paths() {
		if _, ok := uri.RelativePath(root, path, caseInsensitive); ok {
			s.publishDiagnostics(uri.FromPath(path))
		}
	}
}
