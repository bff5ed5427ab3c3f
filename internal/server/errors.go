package server

import (
	"lspadapter/internal/engine"

	"github.com/pkg/errors"
	"github.com/sourcegraph/jsonrpc2"
	protocol "github.com/tliron/glsp/protocol_3_16"
)

// codeRequestCancelled is the protocol's RequestCancelled error code.
const codeRequestCancelled = -32800

// toRPCError maps a command error to the error response of method. A nil
// result means the request is answered with a null result.
func toRPCError(method string, err error) *jsonrpc2.Error {
	var rpcErr *jsonrpc2.Error
	if errors.As(err, &rpcErr) {
		return rpcErr
	}

	switch engine.Classify(err) {
	case engine.ErrNotFound:
		if method == protocol.MethodCompletionItemResolve {
			return &jsonrpc2.Error{Code: jsonrpc2.CodeInvalidParams, Message: err.Error()}
		}
		return nil
	case engine.ErrCancelled:
		return &jsonrpc2.Error{Code: codeRequestCancelled, Message: "request cancelled"}
	default:
		return &jsonrpc2.Error{Code: jsonrpc2.CodeInternalError, Message: err.Error()}
	}
}
