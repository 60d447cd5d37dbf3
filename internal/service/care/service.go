package care

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/nightingale-health/backend/internal/model/chat"
	profilemodel "github.com/nightingale-health/backend/internal/model/profile"
	profileservice "github.com/nightingale-health/backend/internal/service/profile"
	"github.com/nightingale-health/backend/internal/service/session"
	"github.com/nightingale-health/backend/internal/service/triage"
)

const (
	// escalationNotice replaces the generated reply on HIGH-risk turns.
	escalationNotice = "Thank you for telling me. This needs attention from a clinician - I have notified the care team and someone will reply here shortly. If this is an emergency, call 911 now."
	// fallbackReply keeps the conversation moving when reply generation
	// fails; the patient is never left without a response.
	fallbackReply = "I understand. Could you tell me more about how you are feeling?"
)

// Service orchestrates the patient message flow: persist the turn
// synchronously, run the extraction/risk adapters off the critical path,
// then apply profile, risk and escalation effects atomically under the
// conversation's critical section.
type Service struct {
	sessions  *session.Service
	profiles  *profileservice.Service
	triage    *triage.Service
	extractor FactExtractor
	assessor  RiskAssessor
	replier   ReplyGenerator

	adapterTimeout time.Duration
	logger         zerolog.Logger

	// wg tracks in-flight analysis goroutines so tests and shutdown can
	// wait for them.
	wg sync.WaitGroup

	// tails chains analysis work per conversation: each turn waits for the
	// previous turn's analysis to finish, so profile and escalation
	// transitions land in append order.
	mu    sync.Mutex
	tails map[string]chan struct{}
}

// NewService wires the pipeline. Any adapter may be nil, in which case
// that stage is skipped for every turn.
func NewService(sessions *session.Service, profiles *profileservice.Service, triageSvc *triage.Service,
	extractor FactExtractor, assessor RiskAssessor, replier ReplyGenerator,
	adapterTimeout time.Duration, logger zerolog.Logger) *Service {
	if adapterTimeout <= 0 {
		adapterTimeout = 30 * time.Second
	}
	return &Service{
		sessions:       sessions,
		profiles:       profiles,
		triage:         triageSvc,
		extractor:      extractor,
		assessor:       assessor,
		replier:        replier,
		adapterTimeout: adapterTimeout,
		logger:         logger.With().Str("component", "care").Logger(),
		tails:          make(map[string]chan struct{}),
	}
}

// Accepted is returned to the patient as soon as their turn is persisted;
// analysis effects land asynchronously.
type Accepted struct {
	Conversation chat.Conversation `json:"conversation"`
	Message      chat.Message      `json:"message"`
}

// HandlePatientMessage persists the patient turn and schedules analysis.
// With an empty conversationID a new conversation is created for the
// patient. The message is visible to readers before any adapter returns.
func (s *Service) HandlePatientMessage(ctx context.Context, conversationID, patientID, text string) (Accepted, error) {
	if text == "" {
		return Accepted{}, session.ErrEmptyMessage
	}

	if conversationID == "" {
		conv, err := s.sessions.StartConversation(ctx, patientID)
		if err != nil {
			return Accepted{}, err
		}
		conversationID = conv.ID
	}

	var (
		msg        chat.Message
		prev, done chan struct{}
	)
	err := s.sessions.Serialize(conversationID, func() error {
		var err error
		msg, err = s.sessions.AppendPatientMessage(ctx, conversationID, text)
		if err != nil {
			return err
		}
		// Register in the analysis chain under the conversation lock so
		// chain order matches append order.
		s.mu.Lock()
		prev = s.tails[conversationID]
		done = make(chan struct{})
		s.tails[conversationID] = done
		s.mu.Unlock()
		return nil
	})
	if err != nil {
		return Accepted{}, err
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer close(done)
		if prev != nil {
			<-prev
		}
		// Detached from the request context: the patient's HTTP request
		// completes before analysis does.
		s.analyze(context.Background(), msg)

		s.mu.Lock()
		if s.tails[conversationID] == done {
			delete(s.tails, conversationID)
		}
		s.mu.Unlock()
	}()

	conv, err := s.sessions.GetConversation(ctx, conversationID)
	if err != nil {
		return Accepted{}, err
	}
	return Accepted{Conversation: conv, Message: msg}, nil
}

// Wait blocks until all scheduled analysis work has finished.
func (s *Service) Wait() { s.wg.Wait() }

// analyze runs the adapters outside the conversation's critical section,
// then applies their results atomically. Adapter failures degrade to "no
// facts / no annotation this turn"; the persisted patient message is
// never lost.
func (s *Service) analyze(ctx context.Context, msg chat.Message) {
	convID := msg.ConversationID
	log := s.logger.With().Str("conversation_id", convID).Str("message_id", msg.ID).Logger()

	history, err := s.sessions.GetHistory(ctx, convID, 0)
	if err != nil {
		log.Error().Err(err).Msg("load history for analysis")
		return
	}
	snapshot, err := s.profiles.Get(ctx, convID)
	if err != nil {
		log.Error().Err(err).Msg("load profile for analysis")
		return
	}

	adapterCtx, cancel := context.WithTimeout(ctx, s.adapterTimeout)
	defer cancel()

	facts, factsOK := s.runExtraction(adapterCtx, log, history.Messages, snapshot, msg.Content)
	assessment, assessOK := s.runAssessment(adapterCtx, log, history.Messages, msg.Content)

	high := assessOK && assessment.Annotation.Level == chat.RiskHigh
	reply := s.composeReply(adapterCtx, log, high, history.Messages, snapshot, msg.Content)

	err = s.sessions.Serialize(convID, func() error {
		if assessOK {
			if err := s.sessions.AnnotateRisk(ctx, convID, msg.ID, &assessment.Annotation); err != nil {
				return err
			}
		}
		if factsOK && len(facts) > 0 {
			if _, err := s.profiles.Apply(ctx, convID, msg.ID, facts); err != nil {
				return err
			}
		}
		if high {
			// Snapshot after this turn's facts landed, so the ticket
			// reflects the profile at trigger time.
			current, err := s.profiles.Get(ctx, convID)
			if err != nil {
				return err
			}
			if _, _, err := s.triage.Trigger(ctx, convID, msg.ID, assessment.Summary, assessment.Annotation.Reason, current); err != nil {
				return err
			}
		}
		if reply != "" {
			if _, err := s.sessions.AppendAssistantMessage(ctx, convID, reply, nil); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		log.Error().Err(err).Msg("apply analysis results")
	}
}

func (s *Service) runExtraction(ctx context.Context, log zerolog.Logger, history []chat.Message, snapshot profilemodel.Profile, text string) ([]profilemodel.Fact, bool) {
	if s.extractor == nil {
		return nil, false
	}
	facts, err := s.extractor.Extract(ctx, history, snapshot, text)
	if err != nil {
		// Recoverable: the profile stays unchanged for this turn.
		log.Warn().Err(err).Msg("fact extraction degraded, no facts this turn")
		return nil, false
	}
	return facts, true
}

func (s *Service) runAssessment(ctx context.Context, log zerolog.Logger, history []chat.Message, text string) (Assessment, bool) {
	if s.assessor == nil {
		return Assessment{}, false
	}
	assessment, err := s.assessor.Assess(ctx, history, text)
	if err != nil {
		log.Warn().Err(err).Msg("risk assessment degraded, no annotation this turn")
		return Assessment{}, false
	}
	return assessment, true
}

func (s *Service) composeReply(ctx context.Context, log zerolog.Logger, high bool, history []chat.Message, snapshot profilemodel.Profile, text string) string {
	if high {
		return escalationNotice
	}
	if s.replier == nil {
		return fallbackReply
	}
	reply, err := s.replier.Reply(ctx, history, snapshot, text)
	if err != nil || reply == "" {
		if err != nil {
			log.Warn().Err(err).Msg("reply generation degraded, using fallback")
		}
		return fallbackReply
	}
	return reply
}
