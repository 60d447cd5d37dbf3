package triage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/nightingale-health/backend/internal/model/profile"
	"github.com/nightingale-health/backend/internal/model/triage"
	"github.com/nightingale-health/backend/internal/service/session"
	"github.com/nightingale-health/backend/internal/store"
)

var (
	ErrNotFound        = errors.New("escalation not found")
	ErrAlreadyResolved = errors.New("escalation already resolved")
	ErrEmptyReply      = errors.New("resolution reply is empty")
)

// Service triggers, coalesces and resolves triage tickets. Trigger must
// run inside the conversation's Serialize section (the care pipeline's
// atomic apply); Resolve takes the section itself.
type Service struct {
	store    store.Store
	sessions *session.Service
	feed     *Feed
	logger   zerolog.Logger
}

// NewService wires the escalation manager.
func NewService(st store.Store, sessions *session.Service, logger zerolog.Logger) *Service {
	return &Service{
		store:    st,
		sessions: sessions,
		feed:     NewFeed(),
		logger:   logger.With().Str("component", "triage").Logger(),
	}
}

// Feed exposes the queue-change feed for clinician push transports.
func (s *Service) Feed() *Feed { return s.feed }

// Trigger opens a PENDING ticket for a HIGH-risk message, capturing the
// triage summary and an immutable snapshot of the current profile. If the
// conversation already has a PENDING ticket the new signal is folded into
// that ticket's summary instead of spawning a duplicate. Must run inside
// Serialize(conversationID).
func (s *Service) Trigger(ctx context.Context, conversationID, triggerMessageID, summary, reason string, snapshot profile.Profile) (triage.Escalation, bool, error) {
	existing, pending, err := s.store.PendingByConversation(ctx, conversationID)
	if err != nil {
		return triage.Escalation{}, false, err
	}
	if pending {
		existing.TriageSummary += fmt.Sprintf("\nalso flagged: %s (message %s)", reason, triggerMessageID)
		if err := s.store.UpdateEscalation(ctx, existing); err != nil {
			return triage.Escalation{}, false, err
		}
		s.logger.Info().
			Str("conversation_id", conversationID).
			Str("escalation_id", existing.ID).
			Msg("high-risk signal coalesced into open ticket")
		s.feed.Notify()
		return existing, false, nil
	}

	if summary == "" {
		summary = "High risk detected via automated analysis."
	}
	esc := triage.Escalation{
		ID:               uuid.NewString(),
		ConversationID:   conversationID,
		TriggerMessageID: triggerMessageID,
		Status:           triage.StatusPending,
		TriageSummary:    summary,
		ProfileSnapshot:  snapshot.Clone(),
		CreatedAt:        time.Now().UTC(),
	}
	if err := s.store.CreateEscalation(ctx, esc); err != nil {
		return triage.Escalation{}, false, err
	}
	s.logger.Warn().
		Str("conversation_id", conversationID).
		Str("escalation_id", esc.ID).
		Str("trigger_message_id", triggerMessageID).
		Msg("escalation opened")
	s.feed.Notify()
	return esc, true, nil
}

// Resolve transitions a ticket PENDING -> RESOLVED, injecting the
// clinician's reply into the originating conversation. Exactly one
// resolve succeeds per ticket; racing and repeated calls get
// ErrAlreadyResolved and inject nothing.
func (s *Service) Resolve(ctx context.Context, escalationID, clinicianID, reply string) (triage.Escalation, error) {
	if reply == "" {
		return triage.Escalation{}, ErrEmptyReply
	}
	esc, err := s.store.GetEscalation(ctx, escalationID)
	if err != nil {
		if errors.Is(err, store.ErrEscalationNotFound) {
			return triage.Escalation{}, ErrNotFound
		}
		return triage.Escalation{}, err
	}

	var resolved triage.Escalation
	err = s.sessions.Serialize(esc.ConversationID, func() error {
		// Re-read inside the critical section so concurrent resolvers
		// serialize on the status check.
		current, err := s.store.GetEscalation(ctx, escalationID)
		if err != nil {
			return err
		}
		if current.Status == triage.StatusResolved {
			return ErrAlreadyResolved
		}

		if _, err := s.sessions.AppendClinicianMessage(ctx, current.ConversationID, reply); err != nil {
			return err
		}

		now := time.Now().UTC()
		current.Status = triage.StatusResolved
		current.ResolutionReply = reply
		current.ResolvedBy = clinicianID
		current.ResolvedAt = &now
		if err := s.store.UpdateEscalation(ctx, current); err != nil {
			return err
		}
		resolved = current
		return nil
	})
	if err != nil {
		return triage.Escalation{}, err
	}

	s.logger.Info().
		Str("escalation_id", escalationID).
		Str("resolved_by", clinicianID).
		Msg("escalation resolved")
	s.feed.Notify()
	return resolved, nil
}

// Pending lists all PENDING tickets, most recent first.
func (s *Service) Pending(ctx context.Context) ([]triage.Escalation, error) {
	return s.store.PendingEscalations(ctx)
}

// Get returns one ticket by id.
func (s *Service) Get(ctx context.Context, escalationID string) (triage.Escalation, error) {
	esc, err := s.store.GetEscalation(ctx, escalationID)
	if errors.Is(err, store.ErrEscalationNotFound) {
		return triage.Escalation{}, ErrNotFound
	}
	return esc, err
}
