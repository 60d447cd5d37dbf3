// Package store persists conversations, messages, profile items and
// escalations with read-after-write consistency scoped per conversation.
// Two implementations exist: Memory for tests and credential-less runs,
// Postgres for durable deployments.
package store

import (
	"context"
	"errors"

	"github.com/nightingale-health/backend/internal/model/chat"
	"github.com/nightingale-health/backend/internal/model/profile"
	"github.com/nightingale-health/backend/internal/model/triage"
)

var (
	ErrConversationNotFound = errors.New("conversation not found")
	ErrMessageNotFound      = errors.New("message not found")
	ErrEscalationNotFound   = errors.New("escalation not found")
)

// Store is the durable-state boundary. Callers serialize writes per
// conversation via ConversationLocks; implementations only guarantee
// structural safety and read-after-write visibility.
type Store interface {
	CreateConversation(ctx context.Context, conv chat.Conversation) error
	GetConversation(ctx context.Context, id string) (chat.Conversation, error)
	ListConversations(ctx context.Context) ([]chat.Conversation, error)
	ConversationsByPatient(ctx context.Context, patientID string) ([]chat.Conversation, error)

	// AppendMessage persists msg and advances the owning conversation's
	// last-sequence, version and last-activity in one step.
	AppendMessage(ctx context.Context, msg chat.Message) error
	Messages(ctx context.Context, conversationID string) ([]chat.Message, error)
	// SetMessageRisk attaches the async risk annotation to an already
	// persisted patient turn and bumps the conversation version.
	SetMessageRisk(ctx context.Context, conversationID, messageID string, risk *chat.RiskAnnotation) error

	Profile(ctx context.Context, conversationID string) (profile.Profile, error)
	// UpsertProfileItem inserts or replaces the item keyed by
	// (conversation, category, normalized value).
	UpsertProfileItem(ctx context.Context, conversationID string, item profile.Item) error

	CreateEscalation(ctx context.Context, esc triage.Escalation) error
	GetEscalation(ctx context.Context, id string) (triage.Escalation, error)
	UpdateEscalation(ctx context.Context, esc triage.Escalation) error
	PendingEscalations(ctx context.Context) ([]triage.Escalation, error)
	PendingByConversation(ctx context.Context, conversationID string) (triage.Escalation, bool, error)
}
