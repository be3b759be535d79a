// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"sync"
	"time"

	"github.com/bureau-foundation/lockvault/lib/calltoken"
	"github.com/bureau-foundation/lockvault/lib/codec"
)

// ActionFunc processes a socket request for a specific action. The raw
// parameter is the full CBOR request (including the "action" field).
//
// Return a value to include in the success response, or an error for
// a failure response. If the returned value is nil, the response
// contains only {ok: true}.
type ActionFunc func(ctx context.Context, raw []byte) (any, error)

// AuthActionFunc is an ActionFunc that runs only after the request's
// caller token verified. The token's Subject is the caller.
type AuthActionFunc func(ctx context.Context, token *calltoken.Token, raw []byte) (any, error)

// Response is the wire-format envelope for all socket responses.
type Response struct {
	OK    bool             `cbor:"ok"`
	Error string           `cbor:"error,omitempty"`
	Kind  string           `cbor:"kind,omitempty"`
	Data  codec.RawMessage `cbor:"data,omitempty"`
}

// KindUnauthenticated is the response kind for token failures.
const KindUnauthenticated = "unauthenticated"

// SocketServer serves the request-response protocol on a Unix socket.
//
// Actions are registered with Handle or HandleAuth before calling
// Serve. Unknown actions receive an error response.
type SocketServer struct {
	socketPath string
	handlers   map[string]ActionFunc
	verifier   *calltoken.Verifier
	logger     *slog.Logger

	// ErrorKind, when set, classifies handler errors into the
	// response's Kind field.
	ErrorKind func(error) string

	activeConnections sync.WaitGroup
}

// NewSocketServer creates a server that will listen on socketPath.
// verifier may be nil if no action requires authentication.
func NewSocketServer(socketPath string, logger *slog.Logger, verifier *calltoken.Verifier) *SocketServer {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &SocketServer{
		socketPath: socketPath,
		handlers:   make(map[string]ActionFunc),
		verifier:   verifier,
		logger:     logger,
	}
}

// Handle registers a handler for the given action name. Panics if the
// action is already registered.
func (s *SocketServer) Handle(action string, handler ActionFunc) {
	if _, exists := s.handlers[action]; exists {
		panic(fmt.Sprintf("service.SocketServer: duplicate handler for action %q", action))
	}
	s.handlers[action] = handler
}

// HandleAuth registers a handler that requires a valid caller token.
// Panics if the server has no verifier or the action is already
// registered.
func (s *SocketServer) HandleAuth(action string, handler AuthActionFunc) {
	if s.verifier == nil {
		panic(fmt.Sprintf("service.SocketServer: HandleAuth(%q) without a token verifier", action))
	}
	s.Handle(action, func(ctx context.Context, raw []byte) (any, error) {
		var envelope struct {
			Token []byte `cbor:"token"`
		}
		if err := codec.Unmarshal(raw, &envelope); err != nil {
			return nil, &authError{err: fmt.Errorf("invalid request: %w", err)}
		}
		if len(envelope.Token) == 0 {
			return nil, &authError{err: errors.New("missing caller token")}
		}
		token, err := s.verifier.Verify(envelope.Token)
		if err != nil {
			return nil, &authError{err: err}
		}
		return handler(ctx, token, raw)
	})
}

type authError struct{ err error }

func (e *authError) Error() string { return "authentication failed: " + e.err.Error() }
func (e *authError) Unwrap() error { return e.err }

// Serve starts accepting connections on the Unix socket and dispatches
// requests to registered action handlers. Blocks until ctx is
// cancelled, then stops accepting new connections and waits for active
// handlers to complete.
//
// Any existing socket file at the configured path is removed before
// listening. The socket file is removed on return.
func (s *SocketServer) Serve(ctx context.Context) error {
	if err := os.Remove(s.socketPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing stale socket %s: %w", s.socketPath, err)
	}

	listener, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.socketPath, err)
	}
	defer func() {
		listener.Close()
		os.Remove(s.socketPath)
	}()

	go func() {
		<-ctx.Done()
		listener.Close()
	}()

	s.logger.Info("socket server listening", "path", s.socketPath)

	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				break
			}
			s.logger.Error("accept failed", "error", err)
			continue
		}

		s.activeConnections.Add(1)
		go func() {
			defer s.activeConnections.Done()
			s.handleConnection(ctx, conn)
		}()
	}

	s.activeConnections.Wait()
	return nil
}

const (
	readTimeout    = 30 * time.Second
	writeTimeout   = 10 * time.Second
	maxRequestSize = 1024 * 1024
)

func (s *SocketServer) handleConnection(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(readTimeout))

	// CBOR is self-delimiting, so one Decode reads exactly one request.
	var raw codec.RawMessage
	if err := codec.NewDecoder(io.LimitReader(conn, maxRequestSize)).Decode(&raw); err != nil {
		if errors.Is(err, io.EOF) {
			return
		}
		s.writeError(conn, fmt.Sprintf("invalid request: %v", err), "")
		return
	}

	var header struct {
		Action string `cbor:"action"`
	}
	if err := codec.Unmarshal(raw, &header); err != nil {
		s.writeError(conn, fmt.Sprintf("invalid request: %v", err), "")
		return
	}
	if header.Action == "" {
		s.writeError(conn, "missing required field: action", "")
		return
	}

	handler, exists := s.handlers[header.Action]
	if !exists {
		s.writeError(conn, fmt.Sprintf("unknown action %q", header.Action), "")
		return
	}

	result, err := handler(ctx, []byte(raw))
	if err != nil {
		s.logger.Debug("action failed",
			"action", header.Action,
			"error", err,
		)
		s.writeError(conn, err.Error(), s.kindOf(err))
		return
	}

	s.writeSuccess(conn, result)
}

func (s *SocketServer) kindOf(err error) string {
	var auth *authError
	if errors.As(err, &auth) {
		return KindUnauthenticated
	}
	if s.ErrorKind != nil {
		return s.ErrorKind(err)
	}
	return ""
}

func (s *SocketServer) writeError(conn net.Conn, message, kind string) {
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := codec.NewEncoder(conn).Encode(Response{
		OK:    false,
		Error: message,
		Kind:  kind,
	}); err != nil {
		s.logger.Debug("failed to write error response", "error", err)
	}
}

func (s *SocketServer) writeSuccess(conn net.Conn, result any) {
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))

	response := Response{OK: true}
	if result != nil {
		data, err := codec.Marshal(result)
		if err != nil {
			s.writeError(conn, fmt.Sprintf("internal: marshaling response: %v", err), "internal")
			return
		}
		response.Data = data
	}

	if err := codec.NewEncoder(conn).Encode(response); err != nil {
		s.logger.Debug("failed to write success response", "error", err)
	}
}
