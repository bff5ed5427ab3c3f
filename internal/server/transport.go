package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/sourcegraph/jsonrpc2"
	wsjsonrpc2 "github.com/sourcegraph/jsonrpc2/websocket"
	"github.com/tliron/commonlog"
)

// Factory creates the server for a new connection.
type Factory func() *Server

// rpcLogger routes jsonrpc2 logging to commonlog.
type rpcLogger struct {
	log commonlog.Logger
}

func (l *rpcLogger) Printf(format string, v ...any) {
	l.log.Debugf(strings.TrimSuffix(format, "\n"), v...)
}

func (s *Server) connOptions() []jsonrpc2.ConnOpt {
	logger := &rpcLogger{log: commonlog.GetLogger("lspadapter.rpc")}
	opts := []jsonrpc2.ConnOpt{jsonrpc2.SetLogger(logger)}
	if s.cfg.Log.Verbosity >= 3 {
		opts = append(opts, jsonrpc2.LogMessages(logger))
	}
	return opts
}

// ServeStream serves one connection until the peer disconnects or ctx
// ends, then closes s.
func ServeStream(ctx context.Context, s *Server, stream jsonrpc2.ObjectStream) error {
	conn := jsonrpc2.NewConn(ctx, stream, s, s.connOptions()...)
	select {
	case <-conn.DisconnectNotify():
	case <-ctx.Done():
		if err := conn.Close(); err != nil && err != jsonrpc2.ErrClosed {
			log.Warningf("close connection: %s", err.Error())
		}
	}
	return s.Close()
}

// RunStdio serves a single client on stdin and stdout.
func RunStdio(ctx context.Context, newServer Factory) error {
	log.Info("reading from stdin, writing to stdout")
	err := ServeStream(ctx, newServer(), jsonrpc2.NewBufferedStream(stdrwc{}, jsonrpc2.VSCodeObjectCodec{}))
	log.Info("stdin/stdout connection closed")
	return err
}

type stdrwc struct{}

func (stdrwc) Read(p []byte) (int, error) {
	return os.Stdin.Read(p)
}

func (stdrwc) Write(p []byte) (int, error) {
	return os.Stdout.Write(p)
}

func (stdrwc) Close() error {
	if err := os.Stdin.Close(); err != nil {
		return err
	}
	return os.Stdout.Close()
}

// RunTCP accepts connections on address until ctx ends. Every connection
// gets its own server.
func RunTCP(ctx context.Context, address string, newServer Factory) error {
	listener, err := net.Listen("tcp", address)
	if err != nil {
		return errors.Wrapf(err, "listen on %s", address)
	}
	return ServeTCP(ctx, listener, newServer)
}

// ServeTCP accepts connections on listener until ctx ends.
func ServeTCP(ctx context.Context, listener net.Listener, newServer Factory) error {
	log.Infof("listening for TCP connections on %s", listener.Addr())
	stop := context.AfterFunc(ctx, func() { listener.Close() })
	defer stop()

	var wg sync.WaitGroup
	defer wg.Wait()

	var count int
	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return errors.Wrap(err, "accept")
		}
		count++
		id := count
		log.Infof("received incoming TCP connection #%d", id)

		wg.Add(1)
		go func() {
			defer wg.Done()
			stream := jsonrpc2.NewBufferedStream(conn, jsonrpc2.VSCodeObjectCodec{})
			if err := ServeStream(ctx, newServer(), stream); err != nil {
				log.Warningf("connection #%d: %s", id, err.Error())
			}
			log.Infof("TCP connection #%d closed", id)
		}()
	}
}

// RunWebSocket serves clients over websocket on address until ctx ends.
func RunWebSocket(ctx context.Context, address string, newServer Factory) error {
	listener, err := net.Listen("tcp", address)
	if err != nil {
		return errors.Wrapf(err, "listen on %s", address)
	}
	return ServeWebSocket(ctx, listener, newServer)
}

// ServeWebSocket upgrades every HTTP request on listener to a websocket
// connection with its own server.
func ServeWebSocket(ctx context.Context, listener net.Listener, newServer Factory) error {
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	var count atomic.Int64

	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		socket, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Infof("error upgrading HTTP to WebSocket: %s", err.Error())
			http.Error(w, errors.Wrap(err, "could not upgrade to WebSocket").Error(), http.StatusBadRequest)
			return
		}
		defer socket.Close()

		id := count.Add(1)
		log.Infof("received incoming WebSocket connection #%d", id)
		if err := ServeStream(ctx, newServer(), wsjsonrpc2.NewObjectStream(socket)); err != nil {
			log.Warningf("connection #%d: %s", id, err.Error())
		}
		log.Infof("WebSocket connection #%d closed", id)
	})

	server := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	stop := context.AfterFunc(ctx, func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	})
	defer stop()

	log.Infof("listening for WebSocket connections on %s", listener.Addr())
	if err := server.Serve(listener); err != nil && err != http.ErrServerClosed {
		return errors.Wrap(err, "WebSocket")
	}
	return nil
}

// Address formats the listen address for port.
func Address(port int) string {
	return fmt.Sprintf(":%d", port)
}
