package server

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/sourcegraph/jsonrpc2"
	"github.com/tliron/glsp"
	protocol "github.com/tliron/glsp/protocol_3_16"
)

// codeServerNotInitialized is sent for requests that arrive before
// initialize.
const codeServerNotInitialized = -32002

// Handle implements jsonrpc2.Handler. It runs on the read loop of the
// connection: notifications are ordered through the sync queue and every
// request other than initialize and shutdown gets its own goroutine.
func (s *Server) Handle(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request) {
	s.bind(conn)

	if req.Notif {
		s.handleNotification(conn, req)
		return
	}

	switch req.Method {
	case protocol.MethodInitialize, protocol.MethodShutdown:
		result, err := s.call(ctx, req)
		s.reply(ctx, conn, req, result, err)
		return
	}

	if !s.handler.IsInitialized() {
		s.reply(ctx, conn, req, nil, &jsonrpc2.Error{
			Code:    codeServerNotInitialized,
			Message: "server not initialized",
		})
		return
	}

	reqCtx, cancel := context.WithCancel(s.ctx)
	id := s.track(req.ID, cancel)
	barrier := s.queue.barrier()
	go func() {
		defer s.untrack(id)
		// Requests see every document change that arrived before them.
		select {
		case <-barrier:
		case <-reqCtx.Done():
		}
		result, err := s.call(reqCtx, req)
		s.reply(ctx, conn, req, result, err)
	}()
}

func (s *Server) handleNotification(conn *jsonrpc2.Conn, req *jsonrpc2.Request) {
	switch req.Method {
	case protocol.MethodCancelRequest:
		var params struct {
			ID jsonrpc2.ID `json:"id"`
		}
		if req.Params == nil || json.Unmarshal(*req.Params, &params) != nil {
			log.Debugf("malformed cancel request")
			return
		}
		s.cancel(params.ID)

	case protocol.MethodExit:
		s.dispatchGLSP(req)
		if err := conn.Close(); err != nil && err != jsonrpc2.ErrClosed {
			log.Warningf("close connection: %s", err.Error())
		}

	default:
		s.queue.push(func() {
			if _, err := s.dispatchGLSP(req); err != nil {
				log.Warningf("%s: %s", req.Method, err.Error())
			}
		})
	}
}

// call runs one request through its route, or through the protocol
// handler table for methods without one.
func (s *Server) call(ctx context.Context, req *jsonrpc2.Request) (any, error) {
	if r, ok := s.routes[req.Method]; ok {
		var params json.RawMessage
		if req.Params != nil {
			params = *req.Params
		}
		return r(ctx, params)
	}
	return s.dispatchGLSP(req)
}

func (s *Server) dispatchGLSP(req *jsonrpc2.Request) (any, error) {
	context := glsp.Context{
		Method: req.Method,
		Notify: s.notify,
		Call: func(method string, params any, result any) {
			if conn := s.conn.Load(); conn != nil {
				if err := conn.Call(s.ctx, method, params, result); err != nil {
					log.Errorf("call %s: %s", method, err.Error())
				}
			}
		},
	}
	if req.Params != nil {
		context.Params = *req.Params
	}

	r, validMethod, validParams, err := s.handler.Handle(&context)
	switch {
	case !validMethod:
		return nil, &jsonrpc2.Error{
			Code:    jsonrpc2.CodeMethodNotFound,
			Message: fmt.Sprintf("method not supported: %s", req.Method),
		}
	case !validParams:
		e := &jsonrpc2.Error{Code: jsonrpc2.CodeInvalidParams}
		if err != nil {
			e.Message = err.Error()
		}
		return nil, e
	case err != nil:
		return nil, err
	}
	return r, nil
}

func (s *Server) reply(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request, result any, err error) {
	if err != nil {
		if rpcErr := toRPCError(req.Method, err); rpcErr != nil {
			if err := conn.ReplyWithError(ctx, req.ID, rpcErr); err != nil && err != jsonrpc2.ErrClosed {
				log.Errorf("reply to %s: %s", req.Method, err.Error())
			}
			return
		}
		result = nil
	}
	if err := conn.Reply(ctx, req.ID, result); err != nil && err != jsonrpc2.ErrClosed {
		log.Errorf("reply to %s: %s", req.Method, err.Error())
	}
}

func (s *Server) track(id jsonrpc2.ID, cancel context.CancelFunc) string {
	key := id.String()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inflight[key] = cancel
	return key
}

func (s *Server) untrack(key string) {
	s.mu.Lock()
	cancel := s.inflight[key]
	delete(s.inflight, key)
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// cancel aborts the request with the given id. Unknown ids are ignored:
// the request may have completed already.
func (s *Server) cancel(id jsonrpc2.ID) {
	s.mu.Lock()
	cancel := s.inflight[id.String()]
	s.mu.Unlock()
	if cancel != nil {
		log.Debugf("cancelling request %s", id.String())
		cancel()
	}
}

func (s *Server) cancelAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, cancel := range s.inflight {
		cancel()
	}
}

// syncQueue runs notifications one at a time in arrival order, off the
// read loop.
type syncQueue struct {
	jobs chan func()

	mu     sync.Mutex
	tail   chan struct{}
	closed bool
}

func newSyncQueue() *syncQueue {
	tail := make(chan struct{})
	close(tail)
	q := &syncQueue{jobs: make(chan func(), 256), tail: tail}
	go q.run()
	return q
}

func (q *syncQueue) run() {
	for job := range q.jobs {
		job()
	}
}

func (q *syncQueue) push(job func()) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	done := make(chan struct{})
	q.tail = done
	q.jobs <- func() {
		defer close(done)
		job()
	}
}

// barrier is closed once every job pushed so far has run.
func (q *syncQueue) barrier() <-chan struct{} {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.tail
}

func (q *syncQueue) close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.closed {
		q.closed = true
		close(q.jobs)
	}
}
