package chat

import "time"

// Sender tags who authored a message. The set is closed: patients type,
// the assistant answers, clinicians reply through escalation resolution.
type Sender string

const (
	SenderPatient   Sender = "patient"
	SenderAI        Sender = "ai"
	SenderClinician Sender = "clinician"
)

// Valid reports whether s is one of the known sender tags.
func (s Sender) Valid() bool {
	switch s {
	case SenderPatient, SenderAI, SenderClinician:
		return true
	}
	return false
}

// RiskLevel buckets the severity assigned to an analyzed patient turn.
type RiskLevel string

const (
	RiskLow    RiskLevel = "LOW"
	RiskMedium RiskLevel = "MEDIUM"
	RiskHigh   RiskLevel = "HIGH"
)

// ConfidenceLevel buckets the assessor's certainty about its own call.
type ConfidenceLevel string

const (
	ConfidenceLow    ConfidenceLevel = "low"
	ConfidenceMedium ConfidenceLevel = "medium"
	ConfidenceHigh   ConfidenceLevel = "high"
)

// BucketConfidence maps a 0-100 score onto a ConfidenceLevel.
func BucketConfidence(score int) ConfidenceLevel {
	switch {
	case score >= 75:
		return ConfidenceHigh
	case score >= 40:
		return ConfidenceMedium
	default:
		return ConfidenceLow
	}
}

// RiskAnnotation is attached to AI-analyzed patient turns only.
type RiskAnnotation struct {
	Level           RiskLevel       `json:"riskLevel"`
	Reason          string          `json:"riskReason,omitempty"`
	ConfidenceScore int             `json:"confidenceScore"`
	ConfidenceLevel ConfidenceLevel `json:"confidenceLevel"`
}

// Message is a single immutable turn in a conversation. Sequence numbers
// are strictly increasing within the owning conversation and never reused.
type Message struct {
	ID             string `json:"id"`
	ConversationID string `json:"conversationId"`
	Sender         Sender `json:"sender"`
	Content        string `json:"content"`
	// ContentRedacted is the PII-scrubbed copy, the only form that may
	// appear in logs.
	ContentRedacted string          `json:"-"`
	Sequence        int64           `json:"sequence"`
	Risk            *RiskAnnotation `json:"risk,omitempty"`
	// Verified marks clinician replies for display.
	Verified  bool      `json:"verified,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}
