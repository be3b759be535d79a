// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package vaultapi defines the socket actions served by lockvaultd and
// the CBOR shapes of their responses.
//
// Requests are CBOR maps built by the caller; the field names are
// listed beside each action. Every action except [ActionStatus]
// requires a call token, and the token's subject is the caller the
// vault authorizes. Responses carry JSON tags as well so the command
// line can print them with --json.
package vaultapi
