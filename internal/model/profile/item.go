package profile

import (
	"strings"
	"time"
)

// Category is the variant tag over a single clinical fact shape.
type Category string

const (
	ChiefComplaint Category = "chief_complaint"
	Medications    Category = "medications"
	Symptoms       Category = "symptoms"
	Allergies      Category = "allergies"
)

// Categories lists all categories in display order.
func Categories() []Category {
	return []Category{ChiefComplaint, Medications, Symptoms, Allergies}
}

// Valid reports whether c is a known category.
func (c Category) Valid() bool {
	switch c {
	case ChiefComplaint, Medications, Symptoms, Allergies:
		return true
	}
	return false
}

// Status is a fact's lifecycle state. Items are never deleted; status
// transitions preserve the full audit history.
type Status string

const (
	StatusActive    Status = "active"
	StatusStopped   Status = "stopped"
	StatusResolved  Status = "resolved"
	StatusIncorrect Status = "incorrect"
)

// Action is what an extracted candidate fact asks of the state machine.
type Action string

const (
	ActionAssert  Action = "assert"
	ActionRefute  Action = "refute"
	ActionResolve Action = "resolve"
)

// Fact is one candidate clinical fact produced by the extraction adapter.
type Fact struct {
	Category Category `json:"category"`
	Value    string   `json:"value"`
	Action   Action   `json:"action"`
}

// Normalize trims and case-folds a raw fact value; items are keyed on the
// normalized form.
func Normalize(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}

// Item is one structured clinical fact with status and audit provenance.
// Unique key: (conversation, category, normalized value).
type Item struct {
	Category Category `json:"category"`
	Value    string   `json:"value"`
	Status   Status   `json:"status"`
	// SourceMessageID points at the message that last changed the status.
	SourceMessageID string    `json:"sourceMessageId"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

// Profile groups a conversation's items by category.
type Profile map[Category][]Item

// Clone returns a deep value copy, safe to hold across later mutations.
func (p Profile) Clone() Profile {
	if p == nil {
		return Profile{}
	}
	out := make(Profile, len(p))
	for cat, items := range p {
		copied := make([]Item, len(items))
		copy(copied, items)
		out[cat] = copied
	}
	return out
}

// Find returns the item with the given normalized value, if present.
func (p Profile) Find(cat Category, normalized string) (Item, bool) {
	for _, item := range p[cat] {
		if item.Value == normalized {
			return item, true
		}
	}
	return Item{}, false
}
