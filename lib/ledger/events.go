// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package ledger

import (
	"context"
	"log/slog"

	"github.com/bureau-foundation/lockvault/lib/custody"
	"github.com/bureau-foundation/lockvault/lib/identity"
)

// Event is a committed vault state change.
type Event interface {
	// Name is a stable event name.
	Name() string
	// LogAttrs renders the event for structured logging.
	LogAttrs() []slog.Attr
}

// Locked is emitted after a successful Lock.
type Locked struct {
	Delegate identity.Address
	Token    identity.Address
	Amount   uint64
	Balance  uint64
	Nonce    uint64
}

func (Locked) Name() string { return "locked" }

func (e Locked) LogAttrs() []slog.Attr {
	return []slog.Attr{
		slog.String("delegate", e.Delegate.String()),
		slog.String("token", e.Token.String()),
		slog.Uint64("amount", e.Amount),
		slog.Uint64("balance", e.Balance),
		slog.Uint64("nonce", e.Nonce),
	}
}

// Unlocked is emitted after a successful Unlock. Remaining is zero
// when the lock was removed.
type Unlocked struct {
	Delegate  identity.Address
	Token     identity.Address
	Amount    uint64
	Remaining uint64
	Nonce     uint64
}

func (Unlocked) Name() string { return "unlocked" }

func (e Unlocked) LogAttrs() []slog.Attr {
	return []slog.Attr{
		slog.String("delegate", e.Delegate.String()),
		slog.String("token", e.Token.String()),
		slog.Uint64("amount", e.Amount),
		slog.Uint64("remaining", e.Remaining),
		slog.Uint64("nonce", e.Nonce),
	}
}

// RageQuit is emitted after a forced release, once the hook outcome is
// known.
type RageQuit struct {
	Result RageQuitResult
}

func (RageQuit) Name() string { return "rage_quit" }

func (e RageQuit) LogAttrs() []slog.Attr {
	attrs := []slog.Attr{
		slog.String("delegate", e.Result.Delegate.String()),
		slog.String("token", e.Result.Token.String()),
		slog.Uint64("released", e.Result.Released),
		slog.Bool("has_hook", e.Result.HasHook),
		slog.Bool("notified", e.Result.Notified),
	}
	if e.Result.Reason != "" {
		attrs = append(attrs, slog.String("reason", e.Result.Reason))
	}
	return attrs
}

// ExternalCalled is emitted after a committed external call. Selector
// is zero for plain value transfers.
type ExternalCalled struct {
	Target   identity.Address
	Value    uint64
	Selector custody.Selector
	Result   int
}

func (ExternalCalled) Name() string { return "external_call" }

func (e ExternalCalled) LogAttrs() []slog.Attr {
	return []slog.Attr{
		slog.String("target", e.Target.String()),
		slog.Uint64("value", e.Value),
		slog.String("selector", e.Selector.String()),
		slog.Int("result_bytes", e.Result),
	}
}

// EventSink receives committed events. Emit must not block for long;
// it runs on the operation's goroutine after commit.
type EventSink interface {
	Emit(ctx context.Context, event Event)
}

// LogSink writes events to a structured logger.
type LogSink struct {
	Logger *slog.Logger
}

// Emit logs event at Info.
func (s LogSink) Emit(ctx context.Context, event Event) {
	s.Logger.LogAttrs(ctx, slog.LevelInfo, event.Name(), event.LogAttrs()...)
}

// EventLog is an EventSink that records events in memory.
type EventLog struct {
	events []Event
}

// Emit appends event.
func (l *EventLog) Emit(_ context.Context, event Event) {
	l.events = append(l.events, event)
}

// Events returns the recorded events in emission order.
func (l *EventLog) Events() []Event {
	return l.events
}
