// Package ai implements the fact extraction, risk assessment and reply
// generation adapters on an Ark chat model. Each call is a single
// prompt/model round trip; malformed model output is an adapter error and
// degrades to "nothing this turn" upstream.
package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	"github.com/rs/zerolog"

	"github.com/nightingale-health/backend/internal/config"
	"github.com/nightingale-health/backend/internal/model/chat"
	"github.com/nightingale-health/backend/internal/model/profile"
	"github.com/nightingale-health/backend/internal/service/care"
)

// historyLimit caps how many prior turns each adapter sees.
const historyLimit = 10

// Service implements the care pipeline's three adapters over one
// compiled prompt/model chain.
type Service struct {
	chatModel model.ChatModel
	chain     compose.Runnable[map[string]any, *schema.Message]
	logger    zerolog.Logger
}

// NewService builds the chat model and compiles the chain.
func NewService(ctx context.Context, cfg config.AIConfig, logger zerolog.Logger) (*Service, error) {
	chatModel, err := cfg.NewChatModel(ctx)
	if err != nil {
		return nil, fmt.Errorf("create chat model: %w", err)
	}

	promptTemplate := prompt.FromMessages(
		schema.FString,
		schema.SystemMessage("{system}"),
		schema.MessagesPlaceholder("history", true),
		schema.UserMessage("{query}"),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(promptTemplate)
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("compile chain: %w", err)
	}

	return &Service{
		chatModel: chatModel,
		chain:     runnable,
		logger:    logger.With().Str("component", "ai").Logger(),
	}, nil
}

// Extract implements care.FactExtractor.
func (s *Service) Extract(ctx context.Context, history []chat.Message, current profile.Profile, text string) ([]profile.Fact, error) {
	system := extractionSystemPrompt + "\n\nKnown profile:\n" + renderProfile(current)
	response, err := s.invoke(ctx, system, history, text)
	if err != nil {
		return nil, err
	}
	facts, err := parseFacts(response)
	if err != nil {
		return nil, err
	}
	s.logger.Debug().Int("facts", len(facts)).Msg("extraction completed")
	return facts, nil
}

// Assess implements care.RiskAssessor.
func (s *Service) Assess(ctx context.Context, history []chat.Message, text string) (care.Assessment, error) {
	response, err := s.invoke(ctx, riskSystemPrompt, history, text)
	if err != nil {
		return care.Assessment{}, err
	}
	assessment, err := parseAssessment(response)
	if err != nil {
		return care.Assessment{}, err
	}
	s.logger.Debug().Str("risk_level", string(assessment.Annotation.Level)).Msg("risk assessment completed")
	return assessment, nil
}

// Reply implements care.ReplyGenerator.
func (s *Service) Reply(ctx context.Context, history []chat.Message, current profile.Profile, text string) (string, error) {
	system := replySystemPrompt + "\n\nKnown profile:\n" + renderProfile(current)
	response, err := s.invoke(ctx, system, history, text)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(response), nil
}

func (s *Service) invoke(ctx context.Context, system string, history []chat.Message, query string) (string, error) {
	input := map[string]any{
		"system":  system,
		"history": buildHistoryMessages(history),
		"query":   query,
	}
	response, err := s.chain.Invoke(ctx, input)
	if err != nil {
		return "", fmt.Errorf("run chain: %w", err)
	}
	return response.Content, nil
}

// buildHistoryMessages maps stored turns onto schema messages, dropping
// the newest turn (it is the query) and anything beyond the limit.
func buildHistoryMessages(messages []chat.Message) []*schema.Message {
	if len(messages) > 0 && messages[len(messages)-1].Sender == chat.SenderPatient {
		messages = messages[:len(messages)-1]
	}
	start := 0
	if len(messages) > historyLimit {
		start = len(messages) - historyLimit
	}

	history := make([]*schema.Message, 0, len(messages)-start)
	for _, msg := range messages[start:] {
		switch msg.Sender {
		case chat.SenderPatient:
			history = append(history, schema.UserMessage(msg.Content))
		case chat.SenderAI, chat.SenderClinician:
			history = append(history, schema.AssistantMessage(msg.Content, nil))
		}
	}
	return history
}

func renderProfile(prof profile.Profile) string {
	if len(prof) == 0 {
		return "(empty)"
	}
	var b strings.Builder
	for _, cat := range profile.Categories() {
		items := prof[cat]
		if len(items) == 0 {
			continue
		}
		fmt.Fprintf(&b, "%s:", cat)
		for _, item := range items {
			fmt.Fprintf(&b, " %s (%s);", item.Value, item.Status)
		}
		b.WriteString("\n")
	}
	return b.String()
}

// stripFences peels markdown code fences some models insist on.
func stripFences(raw string) string {
	out := strings.TrimSpace(raw)
	if strings.HasPrefix(out, "```") {
		out = strings.TrimPrefix(out, "```json")
		out = strings.TrimPrefix(out, "```")
		out = strings.TrimSuffix(strings.TrimSpace(out), "```")
	}
	return strings.TrimSpace(out)
}

func parseFacts(raw string) ([]profile.Fact, error) {
	var facts []profile.Fact
	if err := json.Unmarshal([]byte(stripFences(raw)), &facts); err != nil {
		return nil, fmt.Errorf("malformed extraction output: %w", err)
	}
	valid := facts[:0]
	for _, fact := range facts {
		if !fact.Category.Valid() || fact.Value == "" {
			continue
		}
		switch fact.Action {
		case profile.ActionAssert, profile.ActionRefute, profile.ActionResolve:
			valid = append(valid, fact)
		}
	}
	return valid, nil
}

func parseAssessment(raw string) (care.Assessment, error) {
	var payload struct {
		RiskLevel  string `json:"risk_level"`
		Reason     string `json:"reason"`
		Confidence int    `json:"confidence"`
		Summary    string `json:"summary"`
	}
	if err := json.Unmarshal([]byte(stripFences(raw)), &payload); err != nil {
		return care.Assessment{}, fmt.Errorf("malformed risk output: %w", err)
	}

	level := chat.RiskLevel(strings.ToUpper(strings.TrimSpace(payload.RiskLevel)))
	switch level {
	case chat.RiskLow, chat.RiskMedium, chat.RiskHigh:
	default:
		return care.Assessment{}, fmt.Errorf("unknown risk level %q", payload.RiskLevel)
	}
	if payload.Confidence < 0 {
		payload.Confidence = 0
	}
	if payload.Confidence > 100 {
		payload.Confidence = 100
	}

	return care.Assessment{
		Annotation: chat.RiskAnnotation{
			Level:           level,
			Reason:          payload.Reason,
			ConfidenceScore: payload.Confidence,
			ConfidenceLevel: chat.BucketConfidence(payload.Confidence),
		},
		Summary: payload.Summary,
	}, nil
}
