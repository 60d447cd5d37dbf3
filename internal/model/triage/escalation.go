package triage

import (
	"time"

	"github.com/nightingale-health/backend/internal/model/profile"
)

// Status is an escalation ticket's lifecycle state. PENDING -> RESOLVED is
// the only transition; RESOLVED is terminal.
type Status string

const (
	StatusPending  Status = "PENDING"
	StatusResolved Status = "RESOLVED"
)

// Escalation is a triage ticket opened when a patient turn scores HIGH
// risk, tracked until a clinician resolves it. At most one PENDING ticket
// exists per conversation; later HIGH signals fold into it.
type Escalation struct {
	ID               string `json:"id"`
	ConversationID   string `json:"conversationId"`
	TriggerMessageID string `json:"triggerMessageId"`
	Status           Status `json:"status"`
	TriageSummary    string `json:"triageSummary"`
	// ProfileSnapshot is a value copy of the profile at trigger time,
	// unaffected by later mutations to the live profile.
	ProfileSnapshot profile.Profile `json:"profileSnapshot"`
	ResolutionReply string          `json:"resolutionReply,omitempty"`
	ResolvedBy      string          `json:"resolvedBy,omitempty"`
	CreatedAt       time.Time       `json:"createdAt"`
	ResolvedAt      *time.Time      `json:"resolvedAt,omitempty"`
}
