// Package rpcsocket is a thin, intentionally partial local JSON-RPC socket
// surface (spec.md's Non-goals exclude a full JSON-RPC server: this
// exists only so an operator's tooling can probe eth_estimateGas and
// debug_traceTransaction against a running refiner without requiring a
// full node). Grounded on the gorilla/websocket upgrade-and-serve shape
// seen in zeta-chain-evm/rpc/websockets_test.go, generalized to the two
// read-only methods this module actually needs to expose.
package rpcsocket

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gorilla/websocket"

	gethlog "github.com/ethereum/go-ethereum/log"
)

// Request is a minimal JSON-RPC 2.0 request envelope.
type Request struct {
	ID     json.RawMessage `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
}

// Response is a minimal JSON-RPC 2.0 response envelope.
type Response struct {
	ID     json.RawMessage `json:"id"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *RPCError       `json:"error,omitempty"`
}

// RPCError is a JSON-RPC 2.0 error object.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Handler answers one JSON-RPC method call with a raw JSON result.
type Handler func(params json.RawMessage) (json.RawMessage, error)

// Server upgrades incoming HTTP connections to WebSocket and dispatches
// each request line to a registered Handler. Only eth_estimateGas and
// debug_traceTransaction are wired by NewServer; any other method returns
// a method-not-found error rather than being silently accepted, so
// callers don't mistake this for a general-purpose JSON-RPC node.
type Server struct {
	upgrader websocket.Upgrader
	handlers map[string]Handler
	log      gethlog.Logger
}

// NewServer builds a Server with the given method handlers. estimateGas
// and traceTransaction may be nil, in which case that method answers
// method-not-found.
func NewServer(estimateGas, traceTransaction Handler, logger gethlog.Logger) *Server {
	if logger == nil {
		logger = gethlog.Root()
	}
	handlers := map[string]Handler{}
	if estimateGas != nil {
		handlers["eth_estimateGas"] = estimateGas
	}
	if traceTransaction != nil {
		handlers["debug_traceTransaction"] = traceTransaction
	}
	return &Server{
		upgrader: websocket.Upgrader{ReadBufferSize: 1024, WriteBufferSize: 1024},
		handlers: handlers,
		log:      logger,
	}
}

// ServeHTTP upgrades the connection and serves requests until the client
// disconnects or sends a message the connection can't decode.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("rpcsocket: upgrade failed", "err", err)
		return
	}
	defer conn.Close()

	for {
		var req Request
		if err := conn.ReadJSON(&req); err != nil {
			return
		}
		resp := s.dispatch(req)
		if err := conn.WriteJSON(resp); err != nil {
			return
		}
	}
}

func (s *Server) dispatch(req Request) Response {
	handler, ok := s.handlers[req.Method]
	if !ok {
		return Response{ID: req.ID, Error: &RPCError{Code: -32601, Message: fmt.Sprintf("method not found: %s", req.Method)}}
	}
	result, err := handler(req.Params)
	if err != nil {
		return Response{ID: req.ID, Error: &RPCError{Code: -32000, Message: err.Error()}}
	}
	return Response{ID: req.ID, Result: result}
}
