// Package completion records which mappings have already been
// transferred for a given channel pair. It is the resumability
// mechanism: re-running a job against the same pair skips everything
// recorded here. Scope is the process lifetime.
package completion

import (
	"sync"
)

type key struct {
	source  string
	dest    string
	oldName string
}

// Tracker is a concurrency-safe in-memory completion store.
type Tracker struct {
	mu   sync.RWMutex
	done map[key]struct{}
}

// NewTracker returns an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{done: make(map[key]struct{})}
}

// Done reports whether the mapping has already completed for the pair.
func (t *Tracker) Done(source, dest, oldName string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.done[key{source, dest, oldName}]
	return ok
}

// MarkDone records a completed mapping.
func (t *Tracker) MarkDone(source, dest, oldName string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.done[key{source, dest, oldName}] = struct{}{}
}

// Count returns the number of recorded completions for a pair.
func (t *Tracker) Count(source, dest string) int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	n := 0
	for k := range t.done {
		if k.source == source && k.dest == dest {
			n++
		}
	}
	return n
}
