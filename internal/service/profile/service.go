package profile

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/nightingale-health/backend/internal/model/profile"
	"github.com/nightingale-health/backend/internal/store"
)

// Service is the profile state machine: it merges candidate facts from
// the extraction adapter into per-category items with status and
// provenance. Apply must run inside the conversation's Serialize section;
// Get is a lock-free snapshot read.
type Service struct {
	store  store.Store
	logger zerolog.Logger
}

// NewService wires the state machine over a store.
func NewService(st store.Store, logger zerolog.Logger) *Service {
	return &Service{
		store:  st,
		logger: logger.With().Str("component", "profile").Logger(),
	}
}

// Result reports what one merge pass changed.
type Result struct {
	// Changed holds items created or transitioned this pass.
	Changed []profile.Item
	// Skipped holds refute/resolve candidates that matched nothing; not
	// an error, surfaced for auditing.
	Skipped []profile.Fact
}

// Apply merges candidate facts against the conversation's profile.
// Per candidate: normalize the value, look up (category, value); an
// assert activates or creates, a refute marks incorrect, a resolve marks
// stopped (medications) or resolved. Duplicate asserts are idempotent, so
// at most one active item exists per normalized value per category.
func (s *Service) Apply(ctx context.Context, conversationID, triggerMessageID string, facts []profile.Fact) (Result, error) {
	prof, err := s.store.Profile(ctx, conversationID)
	if err != nil {
		return Result{}, err
	}

	var res Result
	now := time.Now().UTC()
	for _, fact := range facts {
		normalized := profile.Normalize(fact.Value)
		if normalized == "" || !fact.Category.Valid() {
			res.Skipped = append(res.Skipped, fact)
			continue
		}

		existing, found := prof.Find(fact.Category, normalized)
		if !found {
			if fact.Action != profile.ActionAssert {
				// Cannot refute or resolve a fact never asserted.
				res.Skipped = append(res.Skipped, fact)
				continue
			}
			item := profile.Item{
				Category:        fact.Category,
				Value:           normalized,
				Status:          profile.StatusActive,
				SourceMessageID: triggerMessageID,
				CreatedAt:       now,
				UpdatedAt:       now,
			}
			if err := s.store.UpsertProfileItem(ctx, conversationID, item); err != nil {
				return res, err
			}
			prof[fact.Category] = append(prof[fact.Category], item)
			res.Changed = append(res.Changed, item)
			continue
		}

		next := nextStatus(existing.Status, fact.Action, fact.Category)
		if next == existing.Status {
			continue
		}
		existing.Status = next
		existing.SourceMessageID = triggerMessageID
		existing.UpdatedAt = now
		if err := s.store.UpsertProfileItem(ctx, conversationID, existing); err != nil {
			return res, err
		}
		replaceItem(prof, existing)
		res.Changed = append(res.Changed, existing)
	}

	if len(res.Changed) > 0 {
		s.logger.Info().
			Str("conversation_id", conversationID).
			Int("changed", len(res.Changed)).
			Int("skipped", len(res.Skipped)).
			Msg("profile updated")
	}
	return res, nil
}

// nextStatus is the transition table. Last write wins; an assert always
// reactivates.
func nextStatus(current profile.Status, action profile.Action, cat profile.Category) profile.Status {
	switch action {
	case profile.ActionAssert:
		return profile.StatusActive
	case profile.ActionRefute:
		return profile.StatusIncorrect
	case profile.ActionResolve:
		// A resolved medication reads better as "stopped".
		if cat == profile.Medications {
			return profile.StatusStopped
		}
		return profile.StatusResolved
	}
	return current
}

func replaceItem(prof profile.Profile, item profile.Item) {
	items := prof[item.Category]
	for i := range items {
		if items[i].Value == item.Value {
			items[i] = item
			return
		}
	}
}

// Get returns a deep copy of the conversation's current profile.
func (s *Service) Get(ctx context.Context, conversationID string) (profile.Profile, error) {
	return s.store.Profile(ctx, conversationID)
}
