package notify

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// Hub is an in-process Bus for single-instance deployments and tests
type Hub struct {
	mu     sync.Mutex
	subs   map[uuid.UUID]map[chan Event]struct{}
	closed bool
}

// NewHub creates an empty Hub
func NewHub() *Hub {
	return &Hub{subs: make(map[uuid.UUID]map[chan Event]struct{})}
}

// Publish delivers ev to every current subscriber of ev.JobID
func (h *Hub) Publish(_ context.Context, ev Event) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs[ev.JobID] {
		offer(ch, ev)
	}
	return nil
}

// Subscribe registers for events of jobID until ctx is done
func (h *Hub) Subscribe(ctx context.Context, jobID uuid.UUID) (<-chan Event, error) {
	ch := make(chan Event, subscriberBuffer)

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		close(ch)
		return ch, nil
	}
	if h.subs[jobID] == nil {
		h.subs[jobID] = make(map[chan Event]struct{})
	}
	h.subs[jobID][ch] = struct{}{}
	h.mu.Unlock()

	go func() {
		<-ctx.Done()
		h.remove(jobID, ch)
	}()
	return ch, nil
}

func (h *Hub) remove(jobID uuid.UUID, ch chan Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.subs[jobID]
	if !ok {
		return
	}
	if _, ok := set[ch]; !ok {
		return
	}
	delete(set, ch)
	close(ch)
	if len(set) == 0 {
		delete(h.subs, jobID)
	}
}

// Subscribers returns the number of live subscriptions for jobID
func (h *Hub) Subscribers(jobID uuid.UUID) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[jobID])
}

// Close ends every subscription
func (h *Hub) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	for jobID, set := range h.subs {
		for ch := range set {
			close(ch)
		}
		delete(h.subs, jobID)
	}
	h.closed = true
	return nil
}
