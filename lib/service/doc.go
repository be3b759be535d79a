// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package service provides the CBOR-over-Unix-socket request protocol
// used by the lockvault daemon, its CLI, rage-quit hook services, and
// remote signature validators.
//
// Each connection carries exactly one request and one response. A
// request is a CBOR map with an "action" field, an optional "token"
// field (a [calltoken] caller token), and action-specific fields. A
// response is a [Response] envelope.
//
// Actions registered with [SocketServer.Handle] run for anyone who can
// reach the socket. Actions registered with [SocketServer.HandleAuth]
// first verify the caller token and pass the verified token to the
// handler; a token is accepted at most once.
//
// [ServiceClient.Call] is the client side. Failures reported by the
// server come back as [*ServiceError], whose Reason method exposes the
// server's message. Transport failures come back as plain errors.
package service
