package triage_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"github.com/nightingale-health/backend/internal/model/chat"
	profilemodel "github.com/nightingale-health/backend/internal/model/profile"
	triagemodel "github.com/nightingale-health/backend/internal/model/triage"
	"github.com/nightingale-health/backend/internal/service/session"
	"github.com/nightingale-health/backend/internal/service/triage"
	"github.com/nightingale-health/backend/internal/store"
)

type fixture struct {
	svc      *triage.Service
	sessions *session.Service
	convID   string
}

func setup(t *testing.T) fixture {
	t.Helper()
	st := store.NewMemory()
	sessions := session.NewService(st, store.NewConversationLocks(), zerolog.Nop())
	conv, err := sessions.StartConversation(context.Background(), "patient-1")
	if err != nil {
		t.Fatalf("StartConversation err: %v", err)
	}
	return fixture{
		svc:      triage.NewService(st, sessions, zerolog.Nop()),
		sessions: sessions,
		convID:   conv.ID,
	}
}

func (f fixture) trigger(t *testing.T, msgID, summary, reason string, snapshot profilemodel.Profile) (triagemodel.Escalation, bool) {
	t.Helper()
	var (
		esc     triagemodel.Escalation
		created bool
	)
	err := f.sessions.Serialize(f.convID, func() error {
		var err error
		esc, created, err = f.svc.Trigger(context.Background(), f.convID, msgID, summary, reason, snapshot)
		return err
	})
	if err != nil {
		t.Fatalf("Trigger err: %v", err)
	}
	return esc, created
}

func TestTriggerOpensPendingTicket(t *testing.T) {
	f := setup(t)
	snapshot := profilemodel.Profile{
		profilemodel.Symptoms: {{Category: profilemodel.Symptoms, Value: "chest pain", Status: profilemodel.StatusActive}},
	}

	esc, created := f.trigger(t, "msg-1", "- patient reports chest pain", "chest pain", snapshot)

	if !created {
		t.Fatal("expected a new ticket")
	}
	if esc.Status != triagemodel.StatusPending {
		t.Fatalf("expected PENDING, got %s", esc.Status)
	}
	if esc.TriageSummary == "" {
		t.Fatal("triage summary must not be empty")
	}
	if esc.TriggerMessageID != "msg-1" {
		t.Fatalf("unexpected trigger message: %s", esc.TriggerMessageID)
	}
}

func TestSnapshotIsImmutable(t *testing.T) {
	f := setup(t)
	live := profilemodel.Profile{
		profilemodel.Medications: {{Category: profilemodel.Medications, Value: "lisinopril", Status: profilemodel.StatusActive}},
	}

	esc, _ := f.trigger(t, "msg-1", "summary", "reason", live)

	// Mutate the live profile after the snapshot was captured.
	live[profilemodel.Medications][0].Status = profilemodel.StatusStopped

	stored, err := f.svc.Get(context.Background(), esc.ID)
	if err != nil {
		t.Fatalf("Get err: %v", err)
	}
	if stored.ProfileSnapshot[profilemodel.Medications][0].Status != profilemodel.StatusActive {
		t.Fatal("snapshot must be a value copy, not a live reference")
	}
}

func TestSecondHighRiskSignalCoalesces(t *testing.T) {
	f := setup(t)

	first, created := f.trigger(t, "msg-1", "- chest pain", "chest pain", nil)
	if !created {
		t.Fatal("first trigger should create")
	}
	second, created := f.trigger(t, "msg-2", "- worse now", "difficulty breathing", nil)
	if created {
		t.Fatal("second trigger must coalesce, not create")
	}
	if second.ID != first.ID {
		t.Fatalf("coalesced into wrong ticket: %s vs %s", second.ID, first.ID)
	}
	if !strings.Contains(second.TriageSummary, "also flagged") {
		t.Fatalf("new signal not folded into summary: %q", second.TriageSummary)
	}

	pending, _ := f.svc.Pending(context.Background())
	if len(pending) != 1 {
		t.Fatalf("expected exactly one PENDING ticket, got %d", len(pending))
	}
}

func TestResolveInjectsClinicianReply(t *testing.T) {
	f := setup(t)
	esc, _ := f.trigger(t, "msg-1", "summary", "reason", nil)

	resolved, err := f.svc.Resolve(context.Background(), esc.ID, "dr-lee", "Please go to the ER")
	if err != nil {
		t.Fatalf("Resolve err: %v", err)
	}
	if resolved.Status != triagemodel.StatusResolved {
		t.Fatalf("expected RESOLVED, got %s", resolved.Status)
	}
	if resolved.ResolutionReply != "Please go to the ER" || resolved.ResolvedBy != "dr-lee" {
		t.Fatalf("resolution not recorded: %+v", resolved)
	}
	if resolved.ResolvedAt == nil {
		t.Fatal("resolved_at not set")
	}

	history, _ := f.sessions.GetHistory(context.Background(), f.convID, 0)
	var clinicianMessages int
	for _, msg := range history.Messages {
		if msg.Sender == chat.SenderClinician {
			clinicianMessages++
			if msg.Content != "Please go to the ER" {
				t.Fatalf("unexpected reply content: %q", msg.Content)
			}
		}
	}
	if clinicianMessages != 1 {
		t.Fatalf("expected exactly one clinician message, got %d", clinicianMessages)
	}
}

func TestDoubleResolveConflicts(t *testing.T) {
	f := setup(t)
	esc, _ := f.trigger(t, "msg-1", "summary", "reason", nil)

	if _, err := f.svc.Resolve(context.Background(), esc.ID, "dr-lee", "first"); err != nil {
		t.Fatalf("first resolve err: %v", err)
	}
	_, err := f.svc.Resolve(context.Background(), esc.ID, "dr-kim", "second")
	if !errors.Is(err, triage.ErrAlreadyResolved) {
		t.Fatalf("expected ErrAlreadyResolved, got %v", err)
	}

	history, _ := f.sessions.GetHistory(context.Background(), f.convID, 0)
	var clinicianMessages int
	for _, msg := range history.Messages {
		if msg.Sender == chat.SenderClinician {
			clinicianMessages++
		}
	}
	if clinicianMessages != 1 {
		t.Fatalf("second resolve must not inject a message, got %d", clinicianMessages)
	}
}

func TestConcurrentResolvesExactlyOneWins(t *testing.T) {
	f := setup(t)
	esc, _ := f.trigger(t, "msg-1", "summary", "reason", nil)

	const racers = 8
	var wg sync.WaitGroup
	errs := make(chan error, racers)
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.Resolve(context.Background(), esc.ID, "dr", "reply")
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	var wins, conflicts int
	for err := range errs {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, triage.ErrAlreadyResolved):
			conflicts++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if wins != 1 || conflicts != racers-1 {
		t.Fatalf("expected 1 winner and %d conflicts, got %d/%d", racers-1, wins, conflicts)
	}
}

func TestResolveUnknownEscalation(t *testing.T) {
	f := setup(t)

	_, err := f.svc.Resolve(context.Background(), "missing", "dr", "reply")
	if !errors.Is(err, triage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	// Nothing may be mutated anywhere.
	history, _ := f.sessions.GetHistory(context.Background(), f.convID, 0)
	if len(history.Messages) != 0 {
		t.Fatalf("no message should be injected, got %d", len(history.Messages))
	}
}

func TestResolveEmptyReply(t *testing.T) {
	f := setup(t)
	esc, _ := f.trigger(t, "msg-1", "summary", "reason", nil)

	if _, err := f.svc.Resolve(context.Background(), esc.ID, "dr", ""); !errors.Is(err, triage.ErrEmptyReply) {
		t.Fatalf("expected ErrEmptyReply, got %v", err)
	}
}
