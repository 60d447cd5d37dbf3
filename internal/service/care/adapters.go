package care

import (
	"context"

	"github.com/nightingale-health/backend/internal/model/chat"
	"github.com/nightingale-health/backend/internal/model/profile"
)

// Assessment is the risk assessor's verdict for one patient turn.
type Assessment struct {
	Annotation chat.RiskAnnotation
	// Summary is the 1-5 bullet triage synopsis used as the escalation's
	// triage summary when the turn scores HIGH.
	Summary string
}

// FactExtractor turns message text into candidate clinical facts. A
// failure or timeout means "no facts this turn".
type FactExtractor interface {
	Extract(ctx context.Context, history []chat.Message, current profile.Profile, text string) ([]profile.Fact, error)
}

// RiskAssessor scores a patient turn. A failure or timeout means "no
// annotation this turn".
type RiskAssessor interface {
	Assess(ctx context.Context, history []chat.Message, text string) (Assessment, error)
}

// ReplyGenerator produces the assistant's conversational reply for
// non-HIGH turns.
type ReplyGenerator interface {
	Reply(ctx context.Context, history []chat.Message, current profile.Profile, text string) (string, error)
}
