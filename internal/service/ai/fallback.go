package ai

import (
	"context"
	"fmt"
	"strings"

	"github.com/nightingale-health/backend/internal/model/chat"
	"github.com/nightingale-health/backend/internal/model/profile"
	"github.com/nightingale-health/backend/internal/service/care"
)

// Heuristic is the deterministic keyword adapter used when no Ark
// credentials are configured. It covers the common intake vocabulary
// well enough for local development and gives tests a stable fixture.
type Heuristic struct{}

// NewHeuristic returns the keyword adapter.
func NewHeuristic() Heuristic { return Heuristic{} }

var knownMedications = []string{
	"advil", "ibuprofen", "tylenol", "acetaminophen", "aspirin",
	"lisinopril", "metformin", "atorvastatin", "amoxicillin", "insulin",
	"omeprazole", "sertraline",
}

var knownSymptoms = []string{
	"headache", "chest pain", "fever", "nausea", "dizziness", "fatigue",
	"cough", "shortness of breath", "back pain", "rash", "sore throat",
}

var stopMarkers = []string{"stopped taking", "stopped", "no longer take", "quit taking", "off the"}
var refuteMarkers = []string{"never took", "never had", "that was wrong", "not actually"}

// Extract implements care.FactExtractor with keyword matching.
func (Heuristic) Extract(_ context.Context, _ []chat.Message, _ profile.Profile, text string) ([]profile.Fact, error) {
	lower := strings.ToLower(text)
	var facts []profile.Fact

	action := func(term string) profile.Action {
		for _, marker := range refuteMarkers {
			if strings.Contains(lower, marker+" "+term) || strings.Contains(lower, marker) && strings.Contains(lower, term) {
				return profile.ActionRefute
			}
		}
		for _, marker := range stopMarkers {
			if strings.Contains(lower, marker) {
				return profile.ActionResolve
			}
		}
		return profile.ActionAssert
	}

	for _, med := range knownMedications {
		if strings.Contains(lower, med) {
			facts = append(facts, profile.Fact{Category: profile.Medications, Value: med, Action: action(med)})
		}
	}
	for _, symptom := range knownSymptoms {
		if strings.Contains(lower, symptom) {
			act := action(symptom)
			if act == profile.ActionResolve && !strings.Contains(lower, "gone") && !strings.Contains(lower, "better") {
				// Stop markers are medication phrasing; symptoms clear
				// up via "gone"/"better".
				act = profile.ActionAssert
			}
			if strings.Contains(lower, symptom+" is gone") || strings.Contains(lower, symptom+" got better") {
				act = profile.ActionResolve
			}
			facts = append(facts, profile.Fact{Category: profile.Symptoms, Value: symptom, Action: act})
		}
	}
	if idx := strings.Index(lower, "allergic to "); idx >= 0 {
		rest := lower[idx+len("allergic to "):]
		if cut := strings.IndexAny(rest, ".,;!?\n"); cut >= 0 {
			rest = rest[:cut]
		}
		if allergen := strings.TrimSpace(rest); allergen != "" {
			facts = append(facts, profile.Fact{Category: profile.Allergies, Value: allergen, Action: profile.ActionAssert})
		}
	}
	return facts, nil
}

var highRiskMarkers = []string{
	"chest pain", "can't breathe", "cannot breathe", "suicide", "kill myself",
	"end my life", "stroke", "face drooping", "overdose", "unconscious",
}

var mediumRiskMarkers = []string{
	"severe pain", "high fever", "bleeding", "vomiting blood", "worst headache",
}

// Assess implements care.RiskAssessor with keyword matching.
func (Heuristic) Assess(_ context.Context, _ []chat.Message, text string) (care.Assessment, error) {
	lower := strings.ToLower(text)
	for _, marker := range highRiskMarkers {
		if strings.Contains(lower, marker) {
			return care.Assessment{
				Annotation: chat.RiskAnnotation{
					Level:           chat.RiskHigh,
					Reason:          fmt.Sprintf("message mentions %q", marker),
					ConfidenceScore: 80,
					ConfidenceLevel: chat.BucketConfidence(80),
				},
				Summary: fmt.Sprintf("- patient reports %s\n- flagged by keyword triage", marker),
			}, nil
		}
	}
	for _, marker := range mediumRiskMarkers {
		if strings.Contains(lower, marker) {
			return care.Assessment{
				Annotation: chat.RiskAnnotation{
					Level:           chat.RiskMedium,
					Reason:          fmt.Sprintf("message mentions %q", marker),
					ConfidenceScore: 60,
					ConfidenceLevel: chat.BucketConfidence(60),
				},
			}, nil
		}
	}
	return care.Assessment{
		Annotation: chat.RiskAnnotation{
			Level:           chat.RiskLow,
			Reason:          "no concerning markers found",
			ConfidenceScore: 50,
			ConfidenceLevel: chat.BucketConfidence(50),
		},
	}, nil
}

// Reply implements care.ReplyGenerator with a canned acknowledgement.
func (Heuristic) Reply(_ context.Context, _ []chat.Message, _ profile.Profile, _ string) (string, error) {
	return "Thank you for sharing that. I've noted it in your record - could you tell me more about how you are feeling?", nil
}
