package triage

import "sync"

// Feed fans out escalation-queue change signals to clinician dashboards.
// Edge-triggered, non-blocking; late subscribers read the queue directly.
type Feed struct {
	mu   sync.Mutex
	subs map[chan struct{}]struct{}
}

// NewFeed returns an empty feed.
func NewFeed() *Feed {
	return &Feed{subs: make(map[chan struct{}]struct{})}
}

// Subscribe registers for queue-change signals. The cancel function must
// be called when the subscriber disconnects.
func (f *Feed) Subscribe() (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)
	f.mu.Lock()
	f.subs[ch] = struct{}{}
	f.mu.Unlock()

	cancel := func() {
		f.mu.Lock()
		delete(f.subs, ch)
		f.mu.Unlock()
	}
	return ch, cancel
}

// Notify signals all subscribers without blocking.
func (f *Feed) Notify() {
	f.mu.Lock()
	defer f.mu.Unlock()
	for ch := range f.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}
