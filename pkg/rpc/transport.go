package rpc

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/witmesh/witnode/pkg/metrics"
)

// Start opens every transport whose address is configured. Each
// transport decodes/encodes the same Request/Response pair and
// dispatches through the shared method table, per spec.md §4.8's
// "single JSON-RPC handler multiplexed over TCP, HTTP, and
// WebSockets".
func (s *Server) Start() error {
	if s.cfg.TCPAddress != "" {
		ln, err := net.Listen("tcp", s.cfg.TCPAddress)
		if err != nil {
			return err
		}
		s.tcpLn = ln
		go s.acceptTCP(ln)
		s.log.Info().Str("addr", s.cfg.TCPAddress).Msg("rpc tcp transport listening")
	}

	if s.cfg.WSAddress != "" {
		ln, err := net.Listen("tcp", s.cfg.WSAddress)
		if err != nil {
			return err
		}
		s.wsLn = ln
		mux := http.NewServeMux()
		mux.HandleFunc("/", s.serveWS)
		go func() {
			if err := http.Serve(ln, mux); err != nil && !errors.Is(err, net.ErrClosed) {
				s.log.Warn().Err(err).Msg("rpc ws transport stopped")
			}
		}()
		s.log.Info().Str("addr", s.cfg.WSAddress).Msg("rpc ws transport listening")
	}

	if s.cfg.HTTPAddress != "" {
		mux := http.NewServeMux()
		mux.HandleFunc("/", s.serveHTTP)
		mux.Handle("/metrics", metrics.Handler())
		s.httpServer = &http.Server{Addr: s.cfg.HTTPAddress, Handler: mux}
		go func() {
			if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				s.log.Warn().Err(err).Msg("rpc http transport stopped")
			}
		}()
		s.log.Info().Str("addr", s.cfg.HTTPAddress).Msg("rpc http transport listening")
	}
	return nil
}

// Stop closes every transport's listener. Only the HTTP transport waits,
// at most until ctx's deadline, for in-flight requests to drain (per the
// shutdown-grace-window contract in spec.md §5); TCP and WebSocket
// connections already accepted are not closed by Stop.
func (s *Server) Stop(ctx context.Context) error {
	if s.tcpLn != nil {
		_ = s.tcpLn.Close()
	}
	if s.wsLn != nil {
		_ = s.wsLn.Close()
	}
	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}

func (s *Server) acceptTCP(ln net.Listener) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			s.log.Warn().Err(err).Msg("rpc tcp accept")
			continue
		}
		go s.serveTCPConn(conn)
	}
}

// serveTCPConn decodes newline-delimited JSON-RPC requests and writes
// newline-delimited responses, keeping one subscription registry
// entry alive for the lifetime of the connection.
func (s *Server) serveTCPConn(conn net.Conn) {
	connID := uuid.NewString()
	writeMu := make(chan struct{}, 1)
	writeMu <- struct{}{}

	send := func(b []byte) {
		<-writeMu
		defer func() { writeMu <- struct{}{} }()
		_, _ = conn.Write(append(b, '\n'))
	}
	s.subs.OpenConn(connID, send)
	defer s.subs.CloseConn(connID)
	defer conn.Close()

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		resp := s.Dispatch(connID, line)
		send(resp)
	}
}

func (s *Server) serveHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "only POST is supported", http.StatusMethodNotAllowed)
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		http.Error(w, "request too large or unreadable", http.StatusBadRequest)
		return
	}
	// HTTP requests are stateless: connID is empty, so subscribe will
	// fail with errNoConnection, matching the documented contract that
	// subscriptions require TCP or WebSocket.
	resp := s.Dispatch("", body)
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(resp)
}

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

func (s *Server) serveWS(w http.ResponseWriter, r *http.Request) {
	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn().Err(err).Msg("rpc ws upgrade")
		return
	}
	defer conn.Close()

	connID := uuid.NewString()
	writeMu := make(chan struct{}, 1)
	writeMu <- struct{}{}
	send := func(b []byte) {
		<-writeMu
		defer func() { writeMu <- struct{}{} }()
		_ = conn.WriteMessage(websocket.TextMessage, b)
	}
	s.subs.OpenConn(connID, send)
	defer s.subs.CloseConn(connID)

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		resp := s.Dispatch(connID, msg)
		send(resp)
	}
}
