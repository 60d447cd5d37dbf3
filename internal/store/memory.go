package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/nightingale-health/backend/internal/model/chat"
	"github.com/nightingale-health/backend/internal/model/profile"
	"github.com/nightingale-health/backend/internal/model/triage"
)

// Memory is the in-process Store, suitable for tests and deployments
// without a database. All reads return copies so callers can never alias
// live state.
type Memory struct {
	mu            sync.RWMutex
	conversations map[string]chat.Conversation
	messages      map[string][]chat.Message
	profiles      map[string]profile.Profile
	escalations   map[string]triage.Escalation
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		conversations: make(map[string]chat.Conversation),
		messages:      make(map[string][]chat.Message),
		profiles:      make(map[string]profile.Profile),
		escalations:   make(map[string]triage.Escalation),
	}
}

func (m *Memory) CreateConversation(_ context.Context, conv chat.Conversation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.conversations[conv.ID] = conv
	m.messages[conv.ID] = make([]chat.Message, 0, 16)
	return nil
}

func (m *Memory) GetConversation(_ context.Context, id string) (chat.Conversation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	conv, ok := m.conversations[id]
	if !ok {
		return chat.Conversation{}, ErrConversationNotFound
	}
	return conv, nil
}

func (m *Memory) ListConversations(_ context.Context) ([]chat.Conversation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]chat.Conversation, 0, len(m.conversations))
	for _, conv := range m.conversations {
		out = append(out, conv)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].LastMessageAt.After(out[j].LastMessageAt)
	})
	return out, nil
}

func (m *Memory) ConversationsByPatient(_ context.Context, patientID string) ([]chat.Conversation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []chat.Conversation
	for _, conv := range m.conversations {
		if conv.PatientID == patientID {
			out = append(out, conv)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (m *Memory) AppendMessage(_ context.Context, msg chat.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	conv, ok := m.conversations[msg.ConversationID]
	if !ok {
		return ErrConversationNotFound
	}
	m.messages[msg.ConversationID] = append(m.messages[msg.ConversationID], msg)
	conv.LastSequence = msg.Sequence
	conv.LastMessageAt = msg.CreatedAt
	conv.Version++
	m.conversations[msg.ConversationID] = conv
	return nil
}

func (m *Memory) Messages(_ context.Context, conversationID string) ([]chat.Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	msgs, ok := m.messages[conversationID]
	if !ok {
		return nil, ErrConversationNotFound
	}
	copied := make([]chat.Message, len(msgs))
	copy(copied, msgs)
	return copied, nil
}

func (m *Memory) SetMessageRisk(_ context.Context, conversationID, messageID string, risk *chat.RiskAnnotation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	conv, ok := m.conversations[conversationID]
	if !ok {
		return ErrConversationNotFound
	}
	msgs := m.messages[conversationID]
	for i := range msgs {
		if msgs[i].ID == messageID {
			annotation := *risk
			msgs[i].Risk = &annotation
			conv.Version++
			m.conversations[conversationID] = conv
			return nil
		}
	}
	return ErrMessageNotFound
}

func (m *Memory) Profile(_ context.Context, conversationID string) (profile.Profile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.profiles[conversationID].Clone(), nil
}

func (m *Memory) UpsertProfileItem(_ context.Context, conversationID string, item profile.Item) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	conv, ok := m.conversations[conversationID]
	if !ok {
		return ErrConversationNotFound
	}

	prof := m.profiles[conversationID]
	if prof == nil {
		prof = profile.Profile{}
		m.profiles[conversationID] = prof
	}

	items := prof[item.Category]
	replaced := false
	for i := range items {
		if items[i].Value == item.Value {
			items[i] = item
			replaced = true
			break
		}
	}
	if !replaced {
		items = append(items, item)
	}
	prof[item.Category] = items

	conv.Version++
	m.conversations[conversationID] = conv
	return nil
}

func (m *Memory) CreateEscalation(_ context.Context, esc triage.Escalation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.escalations[esc.ID] = esc
	return nil
}

func (m *Memory) GetEscalation(_ context.Context, id string) (triage.Escalation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	esc, ok := m.escalations[id]
	if !ok {
		return triage.Escalation{}, ErrEscalationNotFound
	}
	esc.ProfileSnapshot = esc.ProfileSnapshot.Clone()
	return esc, nil
}

func (m *Memory) UpdateEscalation(_ context.Context, esc triage.Escalation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.escalations[esc.ID]; !ok {
		return ErrEscalationNotFound
	}
	m.escalations[esc.ID] = esc
	return nil
}

func (m *Memory) PendingEscalations(_ context.Context) ([]triage.Escalation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []triage.Escalation
	for _, esc := range m.escalations {
		if esc.Status == triage.StatusPending {
			esc.ProfileSnapshot = esc.ProfileSnapshot.Clone()
			out = append(out, esc)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (m *Memory) PendingByConversation(_ context.Context, conversationID string) (triage.Escalation, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var (
		found  triage.Escalation
		newest time.Time
		ok     bool
	)
	for _, esc := range m.escalations {
		if esc.ConversationID == conversationID && esc.Status == triage.StatusPending {
			if !ok || esc.CreatedAt.After(newest) {
				found = esc
				newest = esc.CreatedAt
				ok = true
			}
		}
	}
	if ok {
		found.ProfileSnapshot = found.ProfileSnapshot.Clone()
	}
	return found, ok, nil
}
