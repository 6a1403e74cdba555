package rpc

import (
	"encoding/json"
	"fmt"
	"net"
	"net/http"

	"github.com/rs/zerolog"
	"github.com/witmesh/witnode/pkg/chain"
	"github.com/witmesh/witnode/pkg/drpool"
	"github.com/witmesh/witnode/pkg/events"
	"github.com/witmesh/witnode/pkg/logging"
	"github.com/witmesh/witnode/pkg/metrics"
	"github.com/witmesh/witnode/pkg/peer"
	"github.com/witmesh/witnode/pkg/session"
)

// Config holds the RPC surface's per-transport addresses and the
// sensitive-method gate, taken verbatim from node configuration.
type Config struct {
	TCPAddress             string
	HTTPAddress            string
	WSAddress              string
	EnableSensitiveMethods bool
}

// HandlerFunc answers one JSON-RPC method call. connID identifies the
// connection the call arrived on (used only by subscribe/unsubscribe
// to attribute subscriptions); it is empty for one-shot HTTP calls.
// sensitive marks methods hidden unless Config.EnableSensitiveMethods
// is set (e.g. sendRequest, which spends funds).
type HandlerFunc func(s *Server, connID string, params json.RawMessage) (any, *Error)

type method struct {
	fn        HandlerFunc
	sensitive bool
}

// Server multiplexes the node's control methods and the subscription
// broker over TCP, HTTP, and WebSocket transports, per spec.md §4.8.
type Server struct {
	cfg Config

	chain   *chain.Manager
	pool    *drpool.Pool
	peers   *peer.Book
	session *session.Manager
	broker  *events.Broker

	methods map[string]method
	subs    *subscriptions

	httpServer *http.Server
	tcpLn      net.Listener
	wsLn       net.Listener

	log zerolog.Logger
}

// NewServer wires a Server to its collaborators. None of the
// collaborators are owned by the server: it only ever reads from them
// through the methods they already expose.
func NewServer(cfg Config, chainMgr *chain.Manager, pool *drpool.Pool, peers *peer.Book, sess *session.Manager, broker *events.Broker) *Server {
	s := &Server{
		cfg:     cfg,
		chain:   chainMgr,
		pool:    pool,
		peers:   peers,
		session: sess,
		broker:  broker,
		subs:    newSubscriptions(broker),
		log:     logging.WithComponent("rpc"),
	}
	s.registerMethods()
	return s
}

func (s *Server) registerMethods() {
	s.methods = map[string]method{
		"inventory":     {fn: handleInventory},
		"getBlock":      {fn: handleGetBlock},
		"getBlockChain": {fn: handleGetBlockChain},
		"getOutput":     {fn: handleGetOutput},
		"sendRequest":   {fn: handleSendRequest, sensitive: true},
		"subscribe":     {fn: handleSubscribe},
		"unsubscribe":   {fn: handleUnsubscribe},
	}
}

// Dispatch decodes, routes, and answers a single JSON-RPC request.
// conn identifies the connection the request arrived on, used to
// attribute subscriptions so unsubscribe and connection teardown can
// find them again; it may be empty for one-shot HTTP calls.
func (s *Server) Dispatch(connID string, raw []byte) []byte {
	var req Request
	if err := json.Unmarshal(raw, &req); err != nil {
		return encode(errorResponse(nil, CodeParseError, "invalid JSON", err.Error()))
	}
	return encode(s.dispatchOne(connID, req))
}

func (s *Server) dispatchOne(connID string, req Request) *Response {
	timer := metrics.NewTimer()
	status := "ok"
	defer func() {
		metrics.RPCRequestsTotal.WithLabelValues(req.Method, status).Inc()
		timer.ObserveDurationVec(metrics.RPCRequestDuration, req.Method)
	}()

	if req.JSONRPC != "2.0" || req.Method == "" {
		status = "invalid_request"
		return errorResponse(req.ID, CodeInvalidRequest, "malformed JSON-RPC 2.0 request", nil)
	}

	m, ok := s.methods[req.Method]
	if !ok {
		status = "method_not_found"
		return errorResponse(req.ID, CodeMethodNotFound, fmt.Sprintf("unknown method %q", req.Method), nil)
	}
	if m.sensitive && !s.cfg.EnableSensitiveMethods {
		status = "sensitive_disabled"
		return errorResponse(req.ID, CodeSensitiveMethod, fmt.Sprintf("method %q is disabled (enable_sensitive_methods=false)", req.Method), nil)
	}

	result, rpcErr := m.fn(s, connID, req.Params)
	if rpcErr != nil {
		status = "error"
		return errorResponse(req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
	}
	return resultResponse(req.ID, result)
}

func encode(resp *Response) []byte {
	out, err := json.Marshal(resp)
	if err != nil {
		// marshaling a Response built entirely from our own fields
		// cannot fail in practice; fall back to a bare internal error.
		out, _ = json.Marshal(errorResponse(resp.ID, CodeInternalError, "encode response", nil))
	}
	return out
}
