package clinician_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"

	clinicianhandler "github.com/nightingale-health/backend/internal/handler/clinician"
	chatmodel "github.com/nightingale-health/backend/internal/model/chat"
	triagemodel "github.com/nightingale-health/backend/internal/model/triage"
	"github.com/nightingale-health/backend/internal/middleware"
	clinicianservice "github.com/nightingale-health/backend/internal/service/clinician"
	"github.com/nightingale-health/backend/internal/service/session"
	"github.com/nightingale-health/backend/internal/service/triage"
	"github.com/nightingale-health/backend/internal/store"
)

const testSecret = "test-secret"

type env struct {
	server   *httptest.Server
	sessions *session.Service
	triage   *triage.Service
}

func newEnv(t *testing.T) env {
	t.Helper()
	st := store.NewMemory()
	sessions := session.NewService(st, store.NewConversationLocks(), zerolog.Nop())
	triageSvc := triage.NewService(st, sessions, zerolog.Nop())
	views := clinicianservice.NewService(st)

	r := chi.NewRouter()
	r.Route("/api/clinician", func(cr chi.Router) {
		cr.Use(middleware.RequireClinician(testSecret))
		clinicianhandler.New(views, triageSvc, zerolog.Nop()).RegisterRoutes(cr)
	})

	server := httptest.NewServer(r)
	t.Cleanup(server.Close)
	return env{server: server, sessions: sessions, triage: triageSvc}
}

func signToken(t *testing.T, secret, subject, role string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  subject,
		"role": role,
		"exp":  time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func (e env) request(t *testing.T, method, path, token string, body []byte) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, e.server.URL+path, bytes.NewReader(body))
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s err: %v", method, path, err)
	}
	return resp
}

// escalate creates a conversation with one message and a PENDING ticket.
func (e env) escalate(t *testing.T) triagemodel.Escalation {
	t.Helper()
	conv, err := e.sessions.StartConversation(context.Background(), "patient-1")
	if err != nil {
		t.Fatalf("StartConversation err: %v", err)
	}
	var esc triagemodel.Escalation
	err = e.sessions.Serialize(conv.ID, func() error {
		msg, err := e.sessions.AppendPatientMessage(context.Background(), conv.ID, "chest pain")
		if err != nil {
			return err
		}
		esc, _, err = e.triage.Trigger(context.Background(), conv.ID, msg.ID, "- chest pain", "chest pain", nil)
		return err
	})
	if err != nil {
		t.Fatalf("escalate err: %v", err)
	}
	return esc
}

func TestMissingToken(t *testing.T) {
	e := newEnv(t)
	resp := e.request(t, http.MethodGet, "/api/clinician/patients", "", nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
}

func TestWrongRole(t *testing.T) {
	e := newEnv(t)
	token := signToken(t, testSecret, "patient-1", "patient")
	resp := e.request(t, http.MethodGet, "/api/clinician/patients", token, nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", resp.StatusCode)
	}
}

func TestBadSignature(t *testing.T) {
	e := newEnv(t)
	token := signToken(t, "other-secret", "dr-lee", "clinician")
	resp := e.request(t, http.MethodGet, "/api/clinician/patients", token, nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
}

func TestEscalationQueue(t *testing.T) {
	e := newEnv(t)
	esc := e.escalate(t)
	token := signToken(t, testSecret, "dr-lee", "clinician")

	resp := e.request(t, http.MethodGet, "/api/clinician/escalations", token, nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var pending []triagemodel.Escalation
	if err := json.NewDecoder(resp.Body).Decode(&pending); err != nil {
		t.Fatalf("decode queue: %v", err)
	}
	if len(pending) != 1 || pending[0].ID != esc.ID {
		t.Fatalf("unexpected queue: %+v", pending)
	}
}

func TestResolveFlow(t *testing.T) {
	e := newEnv(t)
	esc := e.escalate(t)
	token := signToken(t, testSecret, "dr-lee", "clinician")
	body := []byte(`{"content":"Please come in today"}`)

	resp := e.request(t, http.MethodPost, "/api/clinician/escalations/"+esc.ID+"/resolve", token, body)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var resolved triagemodel.Escalation
	if err := json.NewDecoder(resp.Body).Decode(&resolved); err != nil {
		t.Fatalf("decode resolved: %v", err)
	}
	if resolved.Status != triagemodel.StatusResolved || resolved.ResolvedBy != "dr-lee" {
		t.Fatalf("unexpected resolution: %+v", resolved)
	}

	history, _ := e.sessions.GetHistory(context.Background(), esc.ConversationID, 0)
	last := history.Messages[len(history.Messages)-1]
	if last.Sender != chatmodel.SenderClinician || last.Content != "Please come in today" {
		t.Fatalf("clinician reply not injected: %+v", last)
	}

	// Resolving again conflicts.
	again := e.request(t, http.MethodPost, "/api/clinician/escalations/"+esc.ID+"/resolve", token, body)
	defer again.Body.Close()
	if again.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409, got %d", again.StatusCode)
	}
}

func TestResolveUnknownEscalation(t *testing.T) {
	e := newEnv(t)
	token := signToken(t, testSecret, "dr-lee", "clinician")

	resp := e.request(t, http.MethodPost, "/api/clinician/escalations/missing/resolve", token, []byte(`{"content":"hi"}`))
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}

func TestResolveEmptyReply(t *testing.T) {
	e := newEnv(t)
	esc := e.escalate(t)
	token := signToken(t, testSecret, "dr-lee", "clinician")

	resp := e.request(t, http.MethodPost, "/api/clinician/escalations/"+esc.ID+"/resolve", token, []byte(`{"content":""}`))
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestPatientViews(t *testing.T) {
	e := newEnv(t)
	e.escalate(t)
	token := signToken(t, testSecret, "dr-lee", "clinician")

	resp := e.request(t, http.MethodGet, "/api/clinician/patients", token, nil)
	defer resp.Body.Close()
	var rows []clinicianservice.PatientRow
	if err := json.NewDecoder(resp.Body).Decode(&rows); err != nil {
		t.Fatalf("decode patients: %v", err)
	}
	if len(rows) != 1 || rows[0].RiskStatus != "escalated" {
		t.Fatalf("unexpected rows: %+v", rows)
	}

	msgsResp := e.request(t, http.MethodGet, "/api/clinician/patients/patient-1/messages", token, nil)
	defer msgsResp.Body.Close()
	if msgsResp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", msgsResp.StatusCode)
	}

	missing := e.request(t, http.MethodGet, "/api/clinician/patients/nobody/profile", token, nil)
	defer missing.Body.Close()
	if missing.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", missing.StatusCode)
	}
}
