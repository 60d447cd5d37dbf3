package clinician

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/nightingale-health/backend/internal/model/chat"
	"github.com/nightingale-health/backend/internal/model/profile"
	"github.com/nightingale-health/backend/internal/model/triage"
	"github.com/nightingale-health/backend/internal/store"
)

var ErrPatientNotFound = errors.New("patient not found")

// Service derives the clinician-facing read model. Every view is
// recomputed on query from lock-free snapshot reads; nothing here
// mutates state or blocks writers.
type Service struct {
	store store.Store
}

// NewService wires the aggregator over a store.
func NewService(st store.Store) *Service {
	return &Service{store: st}
}

// PatientRow is one entry in the clinician's patient list.
type PatientRow struct {
	PatientID      string    `json:"patientId"`
	ConversationID string    `json:"conversationId"`
	LastActive     time.Time `json:"lastActive"`
	// RiskStatus is "escalated" while any PENDING escalation exists for
	// the patient's conversations, "normal" otherwise.
	RiskStatus string `json:"riskStatus"`
	// UnreadCount is reserved in the payload shape; no update rule is
	// defined yet, so it is always zero.
	UnreadCount int `json:"unreadCount"`
}

// PatientList returns one row per patient, most recently active first.
func (s *Service) PatientList(ctx context.Context) ([]PatientRow, error) {
	convs, err := s.store.ListConversations(ctx)
	if err != nil {
		return nil, err
	}

	rows := make(map[string]*PatientRow)
	for _, conv := range convs {
		_, pending, err := s.store.PendingByConversation(ctx, conv.ID)
		if err != nil {
			return nil, err
		}
		row, ok := rows[conv.PatientID]
		if !ok {
			row = &PatientRow{PatientID: conv.PatientID, RiskStatus: "normal"}
			rows[conv.PatientID] = row
		}
		if conv.LastMessageAt.After(row.LastActive) {
			row.LastActive = conv.LastMessageAt
			row.ConversationID = conv.ID
		}
		if pending {
			row.RiskStatus = "escalated"
		}
	}

	out := make([]PatientRow, 0, len(rows))
	for _, row := range rows {
		out = append(out, *row)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].LastActive.After(out[j].LastActive)
	})
	return out, nil
}

// PendingEscalations is the triage queue, most recent first.
func (s *Service) PendingEscalations(ctx context.Context) ([]triage.Escalation, error) {
	return s.store.PendingEscalations(ctx)
}

// PatientProfile merges the patient's profile items across all their
// conversations, category by category.
func (s *Service) PatientProfile(ctx context.Context, patientID string) (profile.Profile, error) {
	convs, err := s.store.ConversationsByPatient(ctx, patientID)
	if err != nil {
		return nil, err
	}
	if len(convs) == 0 {
		return nil, ErrPatientNotFound
	}

	merged := profile.Profile{}
	for _, conv := range convs {
		prof, err := s.store.Profile(ctx, conv.ID)
		if err != nil {
			return nil, err
		}
		for cat, items := range prof {
			merged[cat] = append(merged[cat], items...)
		}
	}
	return merged, nil
}

// PatientMessages is the patient's full message log with risk and
// confidence columns, ordered per conversation by sequence.
func (s *Service) PatientMessages(ctx context.Context, patientID string) ([]chat.Message, error) {
	convs, err := s.store.ConversationsByPatient(ctx, patientID)
	if err != nil {
		return nil, err
	}
	if len(convs) == 0 {
		return nil, ErrPatientNotFound
	}

	var out []chat.Message
	for _, conv := range convs {
		msgs, err := s.store.Messages(ctx, conv.ID)
		if err != nil {
			return nil, err
		}
		out = append(out, msgs...)
	}
	return out, nil
}
