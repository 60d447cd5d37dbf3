package session

import "sync"

// Hub fans out change notifications per conversation so push transports
// (SSE, websocket) can wake up without polling the store. Notifications
// are edge-triggered: a subscriber that misses intermediate signals still
// sees the latest state on its next read.
type Hub struct {
	mu   sync.Mutex
	subs map[string]map[chan struct{}]struct{}
}

// NewHub returns an empty hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[string]map[chan struct{}]struct{})}
}

// Subscribe registers for change signals on one conversation. The cancel
// function must be called when the subscriber goes away.
func (h *Hub) Subscribe(conversationID string) (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)
	h.mu.Lock()
	set, ok := h.subs[conversationID]
	if !ok {
		set = make(map[chan struct{}]struct{})
		h.subs[conversationID] = set
	}
	set[ch] = struct{}{}
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		if set, ok := h.subs[conversationID]; ok {
			delete(set, ch)
			if len(set) == 0 {
				delete(h.subs, conversationID)
			}
		}
		h.mu.Unlock()
	}
	return ch, cancel
}

// Notify signals every subscriber of the conversation without blocking.
func (h *Hub) Notify(conversationID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs[conversationID] {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}
