// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package calltoken

import (
	"sync"
	"time"

	"github.com/bureau-foundation/lockvault/lib/clock"
)

// ReplayCache is a thread-safe set of accepted token IDs. Entries are
// dropped by Cleanup once the token they belong to has expired, since
// an expired token is rejected regardless.
type ReplayCache struct {
	mu      sync.Mutex
	entries map[string]time.Time
}

// NewReplayCache creates an empty cache.
func NewReplayCache() *ReplayCache {
	return &ReplayCache{entries: make(map[string]time.Time)}
}

// Observe records tokenID and reports whether it was new.
func (c *ReplayCache) Observe(tokenID string, tokenExpiresAt time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, seen := c.entries[tokenID]; seen {
		return false
	}
	c.entries[tokenID] = tokenExpiresAt
	return true
}

// Cleanup removes entries whose token has expired at now and returns
// how many were removed.
func (c *ReplayCache) Cleanup(now time.Time) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for tokenID, expiresAt := range c.entries {
		if !now.Before(expiresAt) {
			delete(c.entries, tokenID)
			removed++
		}
	}
	return removed
}

// Len returns the number of remembered token IDs.
func (c *ReplayCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Verifier verifies tokens for one audience and rejects reuse.
type Verifier struct {
	Audience string
	Cache    *ReplayCache
	Clock    clock.Clock
}

// NewVerifier returns a Verifier for the lockvault audience.
func NewVerifier(c clock.Clock) *Verifier {
	return &Verifier{Audience: Audience, Cache: NewReplayCache(), Clock: c}
}

// Verify checks tokenBytes and consumes its ID.
func (v *Verifier) Verify(tokenBytes []byte) (*Token, error) {
	token, err := VerifyAt(tokenBytes, v.Audience, v.Clock.Now())
	if err != nil {
		return nil, err
	}
	if !v.Cache.Observe(token.ID, time.Unix(token.ExpiresAt, 0)) {
		return nil, ErrTokenReplayed
	}
	return token, nil
}
