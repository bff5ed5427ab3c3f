// Package server exposes the command executor over the language server
// protocol.
package server

import (
	"context"
	"sync"
	"sync/atomic"

	"lspadapter/internal/command"
	"lspadapter/internal/completion"
	"lspadapter/internal/config"
	"lspadapter/internal/engine"
	"lspadapter/internal/manager"
	"lspadapter/internal/project"

	"github.com/sourcegraph/jsonrpc2"
	"github.com/tliron/commonlog"
	protocol "github.com/tliron/glsp/protocol_3_16"
)

var log = commonlog.GetLogger("lspadapter.server")

const serverName = "lspadapter"

// Backend is the code-intelligence engine a server runs commands against.
type Backend interface {
	engine.Engine
	engine.Syntax
	engine.Navigator
	engine.Formatter
	engine.SymbolSearch
	engine.Diagnoser

	// Documents holds the editor buffers the engine reads.
	Documents() *manager.DocumentManager
	// Contributors is the completion chain in priority order.
	Contributors() []completion.Contributor
}

// Server serves one client connection.
type Server struct {
	cfg     config.Config
	backend Backend
	version string
	handler *protocol.Handler
	routes  map[string]route

	// Set by initialize.
	projects       *project.Cache
	executor       *command.Executor
	completion     *completion.Engine
	clientSnippets bool
	snippets       atomic.Bool

	conn  atomic.Pointer[jsonrpc2.Conn]
	ctx   context.Context
	stop  context.CancelFunc
	queue *syncQueue

	mu       sync.Mutex
	inflight map[string]context.CancelFunc
	// diagnosing holds the pending diagnostics run per document.
	diagnosing map[string]context.CancelFunc
}

func NewServer(cfg config.Config, backend Backend, version string) *Server {
	ctx, stop := context.WithCancel(context.Background())
	s := &Server{
		cfg:        cfg,
		backend:    backend,
		version:    version,
		ctx:        ctx,
		stop:       stop,
		queue:      newSyncQueue(),
		inflight:   make(map[string]context.CancelFunc),
		diagnosing: make(map[string]context.CancelFunc),
	}
	s.handler = &protocol.Handler{
		Initialize:                         s.initialize,
		Initialized:                        s.initialized,
		Shutdown:                           s.shutdown,
		Exit:                               s.exit,
		SetTrace:                           s.setTrace,
		TextDocumentDidOpen:                s.textDocumentDidOpen,
		TextDocumentDidChange:              s.textDocumentDidChange,
		TextDocumentDidSave:                s.textDocumentDidSave,
		TextDocumentDidClose:               s.textDocumentDidClose,
		WorkspaceDidChangeWorkspaceFolders: s.workspaceDidChangeWorkspaceFolders,
		WorkspaceDidChangeConfiguration:    s.workspaceDidChangeConfiguration,
	}
	s.routes = s.newRoutes()
	return s
}

// Close cancels every request in flight and releases the projects the
// connection loaded. The backend stays open.
func (s *Server) Close() error {
	s.stop()
	s.queue.close()
	s.cancelAll()
	if s.projects != nil {
		return s.projects.Close()
	}
	return nil
}

// bind remembers the connection notifications are sent on.
func (s *Server) bind(conn *jsonrpc2.Conn) {
	s.conn.CompareAndSwap(nil, conn)
}

// notify sends a notification to the client if one is connected.
func (s *Server) notify(method string, params any) {
	conn := s.conn.Load()
	if conn == nil {
		return
	}
	if err := conn.Notify(s.ctx, method, params); err != nil {
		log.Debugf("notify %s: %s", method, err.Error())
	}
}
