// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package service

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"log/slog"
	"net"
	"os"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/bureau-foundation/lockvault/lib/calltoken"
	"github.com/bureau-foundation/lockvault/lib/clock"
	"github.com/bureau-foundation/lockvault/lib/codec"
	"github.com/bureau-foundation/lockvault/lib/identity"
	"github.com/bureau-foundation/lockvault/lib/testutil"
)

// testClockEpoch is the fixed time used by the fake clock in auth
// tests. Token timestamps are relative to this epoch.
var testClockEpoch = time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)

// sendRequest connects to a Unix socket, sends a CBOR request, and
// returns the decoded response envelope.
func sendRequest(t *testing.T, socketPath string, request any) Response {
	t.Helper()

	conn, err := net.DialTimeout("unix", socketPath, 5*time.Second)
	if err != nil {
		t.Fatalf("connecting to socket: %v", err)
	}
	defer conn.Close()

	if err := codec.NewEncoder(conn).Encode(request); err != nil {
		t.Fatalf("writing request: %v", err)
	}
	conn.(*net.UnixConn).CloseWrite()

	var response Response
	if err := codec.NewDecoder(conn).Decode(&response); err != nil {
		t.Fatalf("reading response: %v", err)
	}
	return response
}

func decodeData(t *testing.T, response Response, target any) {
	t.Helper()
	if err := codec.Unmarshal(response.Data, target); err != nil {
		t.Fatalf("decoding response data: %v", err)
	}
}

func testSocketPath(t *testing.T) string {
	t.Helper()
	return testutil.SocketPath(t, "test.sock")
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelError,
	}))
}

func testKeypair(t *testing.T) ed25519.PrivateKey {
	t.Helper()
	_, private, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	return private
}

func testVerifier() (*calltoken.Verifier, *clock.FakeClock) {
	fake := clock.Fake(testClockEpoch)
	return calltoken.NewVerifier(fake), fake
}

// waitForSocket polls until the socket file exists.
func waitForSocket(t *testing.T, path string) {
	t.Helper()
	for {
		if _, err := os.Stat(path); err == nil {
			return
		}
		if t.Context().Err() != nil {
			t.Fatalf("socket %s did not appear before test context expired", path)
		}
		runtime.Gosched()
	}
}

// startServer runs server.Serve until the test ends.
func startServer(t *testing.T, server *SocketServer, socketPath string) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := server.Serve(ctx); err != nil {
			t.Errorf("Serve: %v", err)
		}
	}()
	t.Cleanup(func() {
		cancel()
		wg.Wait()
	})
	waitForSocket(t, socketPath)
}

func TestSocketServerStatus(t *testing.T) {
	socketPath := testSocketPath(t)
	server := NewSocketServer(socketPath, testLogger(), nil)
	server.Handle("status", func(ctx context.Context, raw []byte) (any, error) {
		return map[string]any{"locks": 3}, nil
	})
	startServer(t, server, socketPath)

	response := sendRequest(t, socketPath, map[string]string{"action": "status"})
	if !response.OK {
		t.Fatalf("expected ok=true, got error %q", response.Error)
	}
	var data map[string]any
	decodeData(t, response, &data)
	if data["locks"] != uint64(3) {
		t.Errorf("expected locks=3, got %v (%T)", data["locks"], data["locks"])
	}
}

func TestSocketServerProtocolErrors(t *testing.T) {
	socketPath := testSocketPath(t)
	server := NewSocketServer(socketPath, testLogger(), nil)
	server.Handle("status", func(ctx context.Context, raw []byte) (any, error) {
		return nil, nil
	})
	startServer(t, server, socketPath)

	tests := []struct {
		name    string
		request any
		want    string
	}{
		{"unknown action", map[string]string{"action": "nope"}, `unknown action "nope"`},
		{"missing action", map[string]string{"other": "x"}, "missing required field: action"},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			response := sendRequest(t, socketPath, test.request)
			if response.OK {
				t.Fatal("expected ok=false")
			}
			if response.Error != test.want {
				t.Errorf("error = %q, want %q", response.Error, test.want)
			}
		})
	}
}

func TestSocketServerHandlerErrorKind(t *testing.T) {
	errBoom := errors.New("boom")
	socketPath := testSocketPath(t)
	server := NewSocketServer(socketPath, testLogger(), nil)
	server.ErrorKind = func(err error) string {
		if errors.Is(err, errBoom) {
			return "boom"
		}
		return "internal"
	}
	server.Handle("fail", func(ctx context.Context, raw []byte) (any, error) {
		return nil, errBoom
	})
	startServer(t, server, socketPath)

	response := sendRequest(t, socketPath, map[string]string{"action": "fail"})
	if response.OK {
		t.Fatal("expected ok=false")
	}
	if response.Error != "boom" || response.Kind != "boom" {
		t.Errorf("response = %+v, want error boom kind boom", response)
	}
}

func TestSocketServerNilResult(t *testing.T) {
	socketPath := testSocketPath(t)
	server := NewSocketServer(socketPath, testLogger(), nil)
	server.Handle("ping", func(ctx context.Context, raw []byte) (any, error) {
		return nil, nil
	})
	startServer(t, server, socketPath)

	response := sendRequest(t, socketPath, map[string]string{"action": "ping"})
	if !response.OK {
		t.Fatalf("expected ok=true, got %q", response.Error)
	}
	if len(response.Data) != 0 {
		t.Errorf("expected no data, got %d bytes", len(response.Data))
	}
}

func TestSocketServerDuplicateHandlerPanics(t *testing.T) {
	server := NewSocketServer("/unused.sock", testLogger(), nil)
	server.Handle("a", func(ctx context.Context, raw []byte) (any, error) { return nil, nil })

	defer func() {
		if recover() == nil {
			t.Error("expected panic on duplicate action")
		}
	}()
	server.Handle("a", func(ctx context.Context, raw []byte) (any, error) { return nil, nil })
}

func TestSocketServerHandleAuthPanicsWithoutVerifier(t *testing.T) {
	server := NewSocketServer("/unused.sock", testLogger(), nil)
	defer func() {
		if recover() == nil {
			t.Error("expected panic for HandleAuth without verifier")
		}
	}()
	server.HandleAuth("a", func(ctx context.Context, token *calltoken.Token, raw []byte) (any, error) {
		return nil, nil
	})
}

func TestSocketServerHandleAuth(t *testing.T) {
	socketPath := testSocketPath(t)
	verifier, fake := testVerifier()
	server := NewSocketServer(socketPath, testLogger(), verifier)

	privateKey := testKeypair(t)
	want := identity.FromPublicKey(privateKey.Public().(ed25519.PublicKey))

	server.HandleAuth("whoami", func(ctx context.Context, token *calltoken.Token, raw []byte) (any, error) {
		return map[string]any{"subject": token.Subject}, nil
	})
	startServer(t, server, socketPath)

	tokenBytes, err := calltoken.Issue(privateKey, calltoken.Audience, time.Minute, fake.Now())
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	response := sendRequest(t, socketPath, map[string]any{"action": "whoami", "token": tokenBytes})
	if !response.OK {
		t.Fatalf("expected ok=true, got %q", response.Error)
	}
	var data struct {
		Subject identity.Address `cbor:"subject"`
	}
	decodeData(t, response, &data)
	if data.Subject != want {
		t.Errorf("subject = %s, want %s", data.Subject, want)
	}

	// The same token is rejected the second time.
	replay := sendRequest(t, socketPath, map[string]any{"action": "whoami", "token": tokenBytes})
	if replay.OK {
		t.Fatal("replayed token accepted")
	}
	if replay.Kind != KindUnauthenticated {
		t.Errorf("replay kind = %q, want %q", replay.Kind, KindUnauthenticated)
	}
}

func TestSocketServerAuthFailures(t *testing.T) {
	socketPath := testSocketPath(t)
	verifier, fake := testVerifier()
	server := NewSocketServer(socketPath, testLogger(), verifier)
	server.HandleAuth("query", func(ctx context.Context, token *calltoken.Token, raw []byte) (any, error) {
		t.Error("handler called despite failed authentication")
		return nil, nil
	})
	startServer(t, server, socketPath)

	privateKey := testKeypair(t)
	expired, err := calltoken.Issue(privateKey, calltoken.Audience, time.Minute, fake.Now().Add(-time.Hour))
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	wrongAudience, err := calltoken.Issue(privateKey, "other", time.Minute, fake.Now())
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	tampered, err := calltoken.Issue(privateKey, calltoken.Audience, time.Minute, fake.Now())
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	tampered[len(tampered)-1] ^= 0xff

	tests := []struct {
		name  string
		token []byte
	}{
		{"missing", nil},
		{"expired", expired},
		{"wrong audience", wrongAudience},
		{"bad signature", tampered},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			request := map[string]any{"action": "query"}
			if test.token != nil {
				request["token"] = test.token
			}
			response := sendRequest(t, socketPath, request)
			if response.OK {
				t.Fatal("expected ok=false")
			}
			if response.Kind != KindUnauthenticated {
				t.Errorf("kind = %q, want %q", response.Kind, KindUnauthenticated)
			}
		})
	}
}

func TestSocketServerGracefulShutdown(t *testing.T) {
	socketPath := testSocketPath(t)
	server := NewSocketServer(socketPath, testLogger(), nil)

	started := make(chan struct{})
	release := make(chan struct{})
	server.Handle("slow", func(ctx context.Context, raw []byte) (any, error) {
		close(started)
		<-release
		return map[string]any{"done": true}, nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	served := make(chan error, 1)
	go func() { served <- server.Serve(ctx) }()
	waitForSocket(t, socketPath)

	client := NewServiceClientFromToken(socketPath, nil)
	results := make(chan error, 1)
	go func() { results <- client.Call(context.Background(), "slow", nil, nil) }()
	testutil.RequireClosed(t, started, 5*time.Second, "handler started")

	cancel()
	close(release)

	if err := testutil.RequireReceive(t, results, 5*time.Second, "in-flight response"); err != nil {
		t.Errorf("in-flight request failed: %v", err)
	}
	if err := testutil.RequireReceive(t, served, 5*time.Second, "Serve return"); err != nil {
		t.Errorf("Serve: %v", err)
	}
	if _, err := os.Stat(socketPath); !os.IsNotExist(err) {
		t.Errorf("socket file still exists after shutdown: %v", err)
	}
}
