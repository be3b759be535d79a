// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec provides the CBOR encoding configuration shared by every
// lockvault component.
//
// CBOR is used for everything that crosses a process boundary or is
// signed: socket requests and responses, caller tokens, threshold
// signature bundles, and the argument block of outbound call payloads.
// The encoder uses Core Deterministic Encoding (RFC 8949 §4.2) so the
// same logical value always produces identical bytes, which matters
// wherever bytes are hashed or signed.
//
// Two decoders are provided. [Unmarshal] ignores unknown fields for
// forward compatibility and is used for protocol envelopes.
// [UnmarshalStrict] rejects unknown fields and is used for call
// payload arguments, where a field the callee does not understand must
// not be silently dropped.
//
// Struct tags: types that only ever travel as CBOR use `cbor` tags;
// types that are also printed as JSON by the CLI use `json` tags
// (fxamacker/cbor falls back to them). Never both on one field.
package codec
