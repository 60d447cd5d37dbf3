package store

import "sync"

// ConversationLocks hands out one exclusive lock per conversation id.
// Message appends, profile merges and escalation transitions for a single
// conversation all run inside its lock; operations on different
// conversations proceed in parallel.
type ConversationLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewConversationLocks returns an empty lock table.
func NewConversationLocks() *ConversationLocks {
	return &ConversationLocks{locks: make(map[string]*sync.Mutex)}
}

// Lock acquires the conversation's exclusive lock and returns its unlock
// function. Lock entries are never reclaimed; the table grows with the set
// of conversations, which are themselves never deleted.
func (l *ConversationLocks) Lock(conversationID string) func() {
	l.mu.Lock()
	m, ok := l.locks[conversationID]
	if !ok {
		m = &sync.Mutex{}
		l.locks[conversationID] = m
	}
	l.mu.Unlock()

	m.Lock()
	return m.Unlock
}
