// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package service

import (
	"context"
	"crypto/ed25519"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/bureau-foundation/lockvault/lib/calltoken"
	"github.com/bureau-foundation/lockvault/lib/clock"
	"github.com/bureau-foundation/lockvault/lib/codec"
)

const (
	dialTimeout = 5 * time.Second

	// responseReadTimeout covers the server's read and write timeouts
	// plus handler execution.
	responseReadTimeout = 45 * time.Second

	maxResponseSize = 1024 * 1024
)

// TokenTTL is the lifetime of tokens minted by a signing client.
const TokenTTL = time.Minute

// ServiceError is returned by Call when the server responds with
// ok=false.
type ServiceError struct {
	Action  string
	Message string
	Kind    string
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("service error on %q: %s", e.Action, e.Message)
}

// Reason returns the server's message.
func (e *ServiceError) Reason() string { return e.Message }

// ServiceClient sends CBOR requests to a service socket. Each Call
// opens a new connection.
type ServiceClient struct {
	socketPath string
	tokenFor   func() ([]byte, error)
}

// NewServiceClientFromToken creates a client that sends tokenBytes with
// every request. A nil token sends unauthenticated requests.
func NewServiceClientFromToken(socketPath string, tokenBytes []byte) *ServiceClient {
	return &ServiceClient{
		socketPath: socketPath,
		tokenFor: func() ([]byte, error) {
			return tokenBytes, nil
		},
	}
}

// NewSigningClient creates a client that mints a fresh caller token for
// every request, signed by privateKey.
func NewSigningClient(socketPath string, privateKey ed25519.PrivateKey, clk clock.Clock) *ServiceClient {
	return &ServiceClient{
		socketPath: socketPath,
		tokenFor: func() ([]byte, error) {
			return calltoken.Issue(privateKey, calltoken.Audience, TokenTTL, clk.Now())
		},
	}
}

// SocketPath returns the socket this client dials.
func (c *ServiceClient) SocketPath() string { return c.socketPath }

// Call sends a request and decodes the response's data into result.
//
// fields may be nil; the client adds "action" and "token". On ok=false
// Call returns a *ServiceError. Connection and encoding errors are
// returned as plain errors.
func (c *ServiceClient) Call(ctx context.Context, action string, fields map[string]any, result any) error {
	request, err := c.buildRequest(action, fields)
	if err != nil {
		return err
	}

	response, err := c.send(ctx, request)
	if err != nil {
		return fmt.Errorf("calling %q on %s: %w", action, c.socketPath, err)
	}

	if !response.OK {
		return &ServiceError{
			Action:  action,
			Message: response.Error,
			Kind:    response.Kind,
		}
	}

	if result != nil && len(response.Data) > 0 {
		if err := codec.Unmarshal(response.Data, result); err != nil {
			return fmt.Errorf("decoding response data for %q: %w", action, err)
		}
	}

	return nil
}

func (c *ServiceClient) buildRequest(action string, fields map[string]any) (map[string]any, error) {
	request := make(map[string]any, len(fields)+2)
	for key, value := range fields {
		request[key] = value
	}

	request["action"] = action
	tokenBytes, err := c.tokenFor()
	if err != nil {
		return nil, fmt.Errorf("minting caller token for %q: %w", action, err)
	}
	if tokenBytes != nil {
		request["token"] = tokenBytes
	}
	return request, nil
}

func (c *ServiceClient) send(ctx context.Context, request any) (*Response, error) {
	dialer := net.Dialer{Timeout: dialTimeout}
	conn, err := dialer.DialContext(ctx, "unix", c.socketPath)
	if err != nil {
		return nil, fmt.Errorf("connecting: %w", err)
	}
	defer conn.Close()

	// A context deadline bounds the whole exchange.
	deadline := time.Now().Add(responseReadTimeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}
	conn.SetDeadline(deadline)

	stop := context.AfterFunc(ctx, func() { conn.SetDeadline(time.Now()) })
	defer stop()

	if err := codec.NewEncoder(conn).Encode(request); err != nil {
		return nil, fmt.Errorf("writing request: %w", err)
	}
	if unixConn, ok := conn.(*net.UnixConn); ok {
		unixConn.CloseWrite()
	}

	var response Response
	if err := codec.NewDecoder(io.LimitReader(conn, maxResponseSize)).Decode(&response); err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("reading response: %w", ctx.Err())
		}
		return nil, fmt.Errorf("reading response: %w", err)
	}

	return &response, nil
}
