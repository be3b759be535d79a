// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package ledger

import (
	"slices"
	"sync"

	"github.com/bureau-foundation/lockvault/lib/custody"
)

// SelectorDenyList is the set of call selectors ExternalCall refuses.
// It always contains the token approve selector: an approval would let
// a third party pull collateral out later with transferFrom, outside
// the post-call balance check.
type SelectorDenyList struct {
	mu        sync.RWMutex
	selectors map[custody.Selector]struct{}
}

// NewSelectorDenyList returns a deny list holding approve plus extra.
func NewSelectorDenyList(extra ...custody.Selector) *SelectorDenyList {
	list := &SelectorDenyList{selectors: map[custody.Selector]struct{}{
		custody.SelectorApprove: {},
	}}
	for _, selector := range extra {
		list.selectors[selector] = struct{}{}
	}
	return list
}

// Add denies selector.
func (l *SelectorDenyList) Add(selector custody.Selector) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.selectors[selector] = struct{}{}
}

// Denies reports whether selector is refused.
func (l *SelectorDenyList) Denies(selector custody.Selector) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, denied := l.selectors[selector]
	return denied
}

// Selectors returns the denied selectors in byte order.
func (l *SelectorDenyList) Selectors() []custody.Selector {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]custody.Selector, 0, len(l.selectors))
	for selector := range l.selectors {
		out = append(out, selector)
	}
	slices.SortFunc(out, func(a, b custody.Selector) int {
		return slices.Compare(a[:], b[:])
	})
	return out
}
