package chat

import "time"

// Conversation is one patient's message thread. Created on the first
// patient message and never deleted; it is the unit of serialization for
// every mutation that touches its messages, profile, or escalations.
type Conversation struct {
	ID        string    `json:"id"`
	PatientID string    `json:"patientId"`
	// Version is a monotonic token bumped on every mutation, used by
	// pollers and push feeds to detect change.
	Version int64 `json:"version"`
	// LastSequence is the sequence number of the newest message; the next
	// append takes LastSequence+1.
	LastSequence  int64     `json:"-"`
	LastMessageAt time.Time `json:"lastMessageAt"`
	CreatedAt     time.Time `json:"createdAt"`
}
