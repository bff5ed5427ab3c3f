package server

import (
	"lspadapter/internal/command"
	"lspadapter/internal/completion"
	"lspadapter/internal/config"
	"lspadapter/internal/project"
	"lspadapter/internal/uri"

	"github.com/sourcegraph/jsonrpc2"
	"github.com/tliron/glsp"
	protocol "github.com/tliron/glsp/protocol_3_16"
)

func (s *Server) initialize(
	context *glsp.Context,
	params *protocol.InitializeParams,
) (any, error) {
	if s.executor != nil {
		return nil, &jsonrpc2.Error{Code: jsonrpc2.CodeInvalidRequest, Message: "initialize was already called"}
	}

	// Config
	cfg, err := s.cfg.Overlay(params.InitializationOptions)
	if err != nil {
		return nil, &jsonrpc2.Error{Code: jsonrpc2.CodeInvalidParams, Message: err.Error()}
	}
	s.mu.Lock()
	s.cfg = cfg
	s.mu.Unlock()
	log.Infof("initializing for %s", clientName(params))

	// Projects
	caseInsensitive := uri.CaseInsensitiveFS()
	projects, err := project.New(s.backend, project.Options{
		InitTimeout:     cfg.Project.InitTimeout.Std(),
		PollInterval:    cfg.Project.PollInterval.Std(),
		CaseInsensitive: caseInsensitive,
		Watch:           cfg.Index.Watch,
	})
	if err != nil {
		return nil, err
	}
	builder := command.NewBuilder(projects, s.backend, caseInsensitive)
	builder.OnProject = s.registerIndexNotifier
	for _, root := range workspaceRoots(params) {
		log.Infof("workspace root %s", root)
		builder.AddRoot(root)
	}

	s.projects = projects
	s.executor = command.NewExecutor(builder)
	s.completion = completion.NewEngine(
		completion.NewResolveCache(cfg.Completion.CacheSize),
		s.backend.Contributors()...,
	)
	s.clientSnippets = snippetSupport(params.Capabilities)
	s.snippets.Store(cfg.Completion.Snippets && s.clientSnippets)

	syncKind := protocol.TextDocumentSyncKindIncremental

	capabilities := s.handler.CreateServerCapabilities()
	capabilities.TextDocumentSync = &protocol.TextDocumentSyncOptions{
		OpenClose: &protocol.True,
		Change:    &syncKind,
		Save:      &protocol.SaveOptions{IncludeText: &protocol.True},
	}
	capabilities.CompletionProvider = &protocol.CompletionOptions{
		TriggerCharacters: []string{"."},
		ResolveProvider:   &protocol.True,
	}
	capabilities.DocumentSymbolProvider = true
	capabilities.ImplementationProvider = true
	capabilities.TypeDefinitionProvider = true
	capabilities.DocumentHighlightProvider = true
	capabilities.DocumentFormattingProvider = true
	capabilities.DocumentRangeFormattingProvider = true
	capabilities.WorkspaceSymbolProvider = true
	capabilities.ExecuteCommandProvider = &protocol.ExecuteCommandOptions{
		Commands: executeCommandNames(),
	}
	capabilities.Workspace = &protocol.ServerCapabilitiesWorkspace{
		WorkspaceFolders: &protocol.WorkspaceFoldersServerCapabilities{
			Supported:           &protocol.True,
			ChangeNotifications: &protocol.BoolOrString{Value: true},
		},
	}

	return protocol.InitializeResult{
		Capabilities: capabilities,
		ServerInfo: &protocol.InitializeResultServerInfo{
			Name:    serverName,
			Version: &s.version,
		},
	}, nil
}

func (s *Server) initialized(
	context *glsp.Context,
	params *protocol.InitializedParams,
) error {
	log.Info("client initialized")
	return nil
}

func (s *Server) shutdown(context *glsp.Context) error {
	log.Info("shutting down")
	s.cancelAll()
	if s.projects != nil {
		return s.projects.Close()
	}
	return nil
}

func (s *Server) exit(context *glsp.Context) error {
	s.stop()
	return nil
}

func (s *Server) setTrace(
	context *glsp.Context,
	params *protocol.SetTraceParams,
) error {
	protocol.SetTraceValue(params.Value)
	return nil
}

func (s *Server) workspaceDidChangeWorkspaceFolders(
	context *glsp.Context,
	params *protocol.DidChangeWorkspaceFoldersParams,
) error {
	builder := s.executor.Builder()
	for _, folder := range params.Event.Removed {
		log.Infof("removing workspace root %s", folder.URI)
		builder.RemoveRoot(folder.URI)
	}
	for _, folder := range params.Event.Added {
		log.Infof("adding workspace root %s", folder.URI)
		builder.AddRoot(folder.URI)
	}
	return nil
}

func (s *Server) workspaceDidChangeConfiguration(
	context *glsp.Context,
	params *protocol.DidChangeConfigurationParams,
) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cfg, err := s.cfg.Overlay(params.Settings)
	if err != nil {
		return err
	}
	s.cfg = cfg
	s.snippets.Store(cfg.Completion.Snippets && s.clientSnippets)
	return nil
}

// config returns the settings currently in effect.
func (s *Server) config() config.Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg
}

// workspaceRoots lists the roots a client announced, preferring workspace
// folders over the deprecated root fields.
func workspaceRoots(params *protocol.InitializeParams) []string {
	var roots []string
	for _, folder := range params.WorkspaceFolders {
		roots = append(roots, folder.URI)
	}
	switch {
	case len(roots) > 0:
	case params.RootURI != nil && *params.RootURI != "":
		roots = append(roots, *params.RootURI)
	case params.RootPath != nil && *params.RootPath != "":
		roots = append(roots, uri.FromPath(*params.RootPath))
	}
	return roots
}

func snippetSupport(caps protocol.ClientCapabilities) bool {
	td := caps.TextDocument
	if td == nil || td.Completion == nil || td.Completion.CompletionItem == nil {
		return false
	}
	support := td.Completion.CompletionItem.SnippetSupport
	return support != nil && *support
}

func clientName(params *protocol.InitializeParams) string {
	if params.ClientInfo == nil {
		return "unknown client"
	}
	if params.ClientInfo.Version != nil {
		return params.ClientInfo.Name + " " + *params.ClientInfo.Version
	}
	return params.ClientInfo.Name
}
