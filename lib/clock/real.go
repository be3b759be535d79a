// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import "time"

// Real returns the wall clock the daemon runs on.
func Real() Clock { return wall{} }

type wall struct{}

func (wall) Now() time.Time { return time.Now() }

func (wall) After(d time.Duration) <-chan time.Time { return time.After(d) }

// NewTicker hands out the runtime ticker's channel; Ticker.Stop stops
// the runtime ticker.
func (wall) NewTicker(d time.Duration) *Ticker {
	runtimeTicker := time.NewTicker(d)
	return &Ticker{C: runtimeTicker.C, stopFunc: runtimeTicker.Stop}
}
