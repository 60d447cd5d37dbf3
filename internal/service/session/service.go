package session

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/nightingale-health/backend/internal/analysis/redact"
	"github.com/nightingale-health/backend/internal/model/chat"
	"github.com/nightingale-health/backend/internal/store"
)

var (
	ErrEmptyMessage         = errors.New("message content is empty")
	ErrConversationNotFound = errors.New("conversation not found")
)

// Service owns ordered message history per conversation and assigns
// sequence identity. Every method that writes must run inside Serialize
// for its conversation; reads are lock-free snapshot reads.
type Service struct {
	store  store.Store
	locks  *store.ConversationLocks
	hub    *Hub
	logger zerolog.Logger
}

// NewService wires the session manager over a store and lock table.
func NewService(st store.Store, locks *store.ConversationLocks, logger zerolog.Logger) *Service {
	return &Service{
		store:  st,
		locks:  locks,
		hub:    NewHub(),
		logger: logger.With().Str("component", "session").Logger(),
	}
}

// Hub exposes the change-notification hub for push-style readers.
func (s *Service) Hub() *Hub { return s.hub }

// Serialize runs fn while holding the conversation's exclusive critical
// section. All appends, profile merges and escalation transitions for one
// conversation flow through here; fn must not call Serialize again for
// the same conversation.
func (s *Service) Serialize(conversationID string, fn func() error) error {
	unlock := s.locks.Lock(conversationID)
	defer unlock()
	return fn()
}

// StartConversation creates an empty conversation for a patient. The id is
// unpublished until this returns, so no lock is needed.
func (s *Service) StartConversation(ctx context.Context, patientID string) (chat.Conversation, error) {
	if patientID == "" {
		patientID = uuid.NewString()
	}
	now := time.Now().UTC()
	conv := chat.Conversation{
		ID:            uuid.NewString(),
		PatientID:     patientID,
		LastMessageAt: now,
		CreatedAt:     now,
	}
	if err := s.store.CreateConversation(ctx, conv); err != nil {
		return chat.Conversation{}, err
	}
	s.logger.Info().Str("conversation_id", conv.ID).Msg("conversation started")
	return conv, nil
}

// AppendPatientMessage appends a patient turn with the next sequence
// number. Must run inside Serialize(conversationID).
func (s *Service) AppendPatientMessage(ctx context.Context, conversationID, text string) (chat.Message, error) {
	return s.append(ctx, conversationID, chat.SenderPatient, text, nil, false)
}

// AppendAssistantMessage appends an assistant turn, optionally carrying
// the risk annotation produced for it. Must run inside Serialize.
func (s *Service) AppendAssistantMessage(ctx context.Context, conversationID, text string, risk *chat.RiskAnnotation) (chat.Message, error) {
	return s.append(ctx, conversationID, chat.SenderAI, text, risk, false)
}

// AppendClinicianMessage injects a verified clinician reply. Used
// exclusively by escalation resolution. Must run inside Serialize.
func (s *Service) AppendClinicianMessage(ctx context.Context, conversationID, text string) (chat.Message, error) {
	return s.append(ctx, conversationID, chat.SenderClinician, text, nil, true)
}

func (s *Service) append(ctx context.Context, conversationID string, sender chat.Sender, text string, risk *chat.RiskAnnotation, verified bool) (chat.Message, error) {
	if text == "" {
		return chat.Message{}, ErrEmptyMessage
	}
	conv, err := s.store.GetConversation(ctx, conversationID)
	if err != nil {
		if errors.Is(err, store.ErrConversationNotFound) {
			return chat.Message{}, ErrConversationNotFound
		}
		return chat.Message{}, err
	}

	msg := chat.Message{
		ID:              uuid.NewString(),
		ConversationID:  conversationID,
		Sender:          sender,
		Content:         text,
		ContentRedacted: redact.Scrub(text),
		Sequence:        conv.LastSequence + 1,
		Risk:            risk,
		Verified:        verified,
		CreatedAt:       time.Now().UTC(),
	}
	if err := s.store.AppendMessage(ctx, msg); err != nil {
		return chat.Message{}, err
	}

	s.logger.Debug().
		Str("conversation_id", conversationID).
		Str("sender", string(sender)).
		Int64("sequence", msg.Sequence).
		Msg("message appended")
	s.hub.Notify(conversationID)
	return msg, nil
}

// AnnotateRisk attaches the async risk result to an already persisted
// patient turn. Must run inside Serialize.
func (s *Service) AnnotateRisk(ctx context.Context, conversationID, messageID string, risk *chat.RiskAnnotation) error {
	if err := s.store.SetMessageRisk(ctx, conversationID, messageID, risk); err != nil {
		return err
	}
	s.hub.Notify(conversationID)
	return nil
}

// History is the ordered transcript plus the conversation's monotonic
// version token. Lock-free; never blocks writers.
type History struct {
	Version  int64          `json:"version"`
	Messages []chat.Message `json:"messages"`
}

// GetHistory returns the transcript, optionally only messages with
// sequence greater than afterSeq.
func (s *Service) GetHistory(ctx context.Context, conversationID string, afterSeq int64) (History, error) {
	msgs, err := s.store.Messages(ctx, conversationID)
	if err != nil {
		if errors.Is(err, store.ErrConversationNotFound) {
			return History{}, ErrConversationNotFound
		}
		return History{}, err
	}
	conv, err := s.store.GetConversation(ctx, conversationID)
	if err != nil {
		return History{}, err
	}

	if afterSeq > 0 {
		filtered := msgs[:0]
		for _, m := range msgs {
			if m.Sequence > afterSeq {
				filtered = append(filtered, m)
			}
		}
		msgs = filtered
	}
	return History{Version: conv.Version, Messages: msgs}, nil
}

// GetConversation returns the conversation record.
func (s *Service) GetConversation(ctx context.Context, conversationID string) (chat.Conversation, error) {
	conv, err := s.store.GetConversation(ctx, conversationID)
	if errors.Is(err, store.ErrConversationNotFound) {
		return chat.Conversation{}, ErrConversationNotFound
	}
	return conv, err
}
