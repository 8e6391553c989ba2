// Package events fans out a job's ordered event stream to any number of
// subscribers. The engine is the single producer; transports (the
// WebSocket push loop, tests) subscribe and unsubscribe freely.
package events

import (
	"sync"

	"github.com/renameflux/renameflux/pkg/protocol"
)

const subscriberBuffer = 256

type subscriber struct {
	ch     chan protocol.Envelope
	closed bool
}

// Hub manages per-job subscribers in a thread-safe manner. Events are
// delivered to each subscriber in publish order. A subscriber that
// falls so far behind its buffer fills is disconnected rather than ever
// observing a gapped or reordered stream.
type Hub struct {
	mu   sync.RWMutex
	jobs map[string]map[int]*subscriber // jobID -> subID -> subscriber
	next int
}

// NewHub creates a new event hub.
func NewHub() *Hub {
	return &Hub{jobs: make(map[string]map[int]*subscriber)}
}

// Subscribe registers a subscriber for a job's events and returns the
// receive channel plus a cancel function. The channel is closed on
// cancel, on job close, or on overflow disconnect.
func (h *Hub) Subscribe(jobID string) (<-chan protocol.Envelope, func()) {
	sub := &subscriber{ch: make(chan protocol.Envelope, subscriberBuffer)}

	h.mu.Lock()
	if h.jobs[jobID] == nil {
		h.jobs[jobID] = make(map[int]*subscriber)
	}
	id := h.next
	h.next++
	h.jobs[jobID][id] = sub
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		h.dropLocked(jobID, id)
	}
	return sub.ch, cancel
}

// Publish delivers an envelope to every subscriber of the job, in
// order. Never blocks on a slow subscriber.
func (h *Hub) Publish(jobID string, env protocol.Envelope) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for id, sub := range h.jobs[jobID] {
		if sub.closed {
			continue
		}
		select {
		case sub.ch <- env:
		default:
			// Buffer full: disconnect rather than skip, so the
			// subscriber never sees a gap in the stream.
			h.dropLocked(jobID, id)
		}
	}
}

// CloseJob closes all subscriber channels for a job after its final
// event has been published, and forgets the job.
func (h *Hub) CloseJob(jobID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for id := range h.jobs[jobID] {
		h.dropLocked(jobID, id)
	}
	delete(h.jobs, jobID)
}

// SubscriberCount returns the number of live subscribers for a job.
func (h *Hub) SubscriberCount(jobID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.jobs[jobID])
}

func (h *Hub) dropLocked(jobID string, id int) {
	subs := h.jobs[jobID]
	if subs == nil {
		return
	}
	sub, ok := subs[id]
	if !ok {
		return
	}
	if !sub.closed {
		sub.closed = true
		close(sub.ch)
	}
	delete(subs, id)
	if len(subs) == 0 {
		delete(h.jobs, jobID)
	}
}
