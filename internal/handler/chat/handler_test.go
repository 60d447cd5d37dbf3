package chat_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	chathandler "github.com/nightingale-health/backend/internal/handler/chat"
	chatmodel "github.com/nightingale-health/backend/internal/model/chat"
	"github.com/nightingale-health/backend/internal/service/care"
	profileservice "github.com/nightingale-health/backend/internal/service/profile"
	"github.com/nightingale-health/backend/internal/service/session"
	"github.com/nightingale-health/backend/internal/service/triage"
	"github.com/nightingale-health/backend/internal/store"
)

type env struct {
	server  *httptest.Server
	careSvc *care.Service
}

func newEnv(t *testing.T) env {
	t.Helper()
	st := store.NewMemory()
	sessions := session.NewService(st, store.NewConversationLocks(), zerolog.Nop())
	profiles := profileservice.NewService(st, zerolog.Nop())
	triageSvc := triage.NewService(st, sessions, zerolog.Nop())
	careSvc := care.NewService(sessions, profiles, triageSvc, nil, nil, nil, time.Second, zerolog.Nop())

	r := chi.NewRouter()
	r.Route("/api/chat", chathandler.New(careSvc, sessions, profiles).RegisterRoutes)

	server := httptest.NewServer(r)
	t.Cleanup(server.Close)
	return env{server: server, careSvc: careSvc}
}

func (e env) postMessage(t *testing.T, payload map[string]string) *http.Response {
	t.Helper()
	body, _ := json.Marshal(payload)
	resp, err := http.Post(e.server.URL+"/api/chat/messages", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("POST /messages err: %v", err)
	}
	return resp
}

func TestPostMessageAccepted(t *testing.T) {
	e := newEnv(t)

	resp := e.postMessage(t, map[string]string{"patientId": "patient-1", "content": "hello"})
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", resp.StatusCode)
	}
	var accepted care.Accepted
	if err := json.NewDecoder(resp.Body).Decode(&accepted); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if accepted.Conversation.ID == "" {
		t.Fatal("response missing conversation id")
	}
	if accepted.Message.Content != "hello" || accepted.Message.Sequence != 1 {
		t.Fatalf("unexpected message: %+v", accepted.Message)
	}
}

func TestPostEmptyMessage(t *testing.T) {
	e := newEnv(t)

	resp := e.postMessage(t, map[string]string{"patientId": "patient-1", "content": ""})
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestPostToUnknownConversation(t *testing.T) {
	e := newEnv(t)

	resp := e.postMessage(t, map[string]string{"conversationId": "missing", "patientId": "patient-1", "content": "hi"})
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}

func TestHistoryPolling(t *testing.T) {
	e := newEnv(t)

	resp := e.postMessage(t, map[string]string{"patientId": "patient-1", "content": "hello"})
	var accepted care.Accepted
	json.NewDecoder(resp.Body).Decode(&accepted)
	resp.Body.Close()
	e.careSvc.Wait()

	histResp, err := http.Get(e.server.URL + "/api/chat/" + accepted.Conversation.ID + "/history")
	if err != nil {
		t.Fatalf("GET /history err: %v", err)
	}
	defer histResp.Body.Close()
	if histResp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", histResp.StatusCode)
	}

	var history session.History
	if err := json.NewDecoder(histResp.Body).Decode(&history); err != nil {
		t.Fatalf("decode history: %v", err)
	}
	if len(history.Messages) != 2 {
		t.Fatalf("expected patient turn plus reply, got %d", len(history.Messages))
	}
	if history.Messages[1].Sender != chatmodel.SenderAI {
		t.Fatalf("expected assistant reply, got %s", history.Messages[1].Sender)
	}
	if history.Version == 0 {
		t.Fatal("version token missing")
	}

	// since=<last seq> returns only newer messages.
	lastSeq := history.Messages[len(history.Messages)-1].Sequence
	sinceResp, err := http.Get(e.server.URL + "/api/chat/" + accepted.Conversation.ID + "/history?since=" +
		strconv.FormatInt(lastSeq, 10))
	if err != nil {
		t.Fatalf("GET /history?since err: %v", err)
	}
	defer sinceResp.Body.Close()
	var tail session.History
	if err := json.NewDecoder(sinceResp.Body).Decode(&tail); err != nil {
		t.Fatalf("decode tail: %v", err)
	}
	if len(tail.Messages) != 0 {
		t.Fatalf("expected no messages past seq %d, got %d", lastSeq, len(tail.Messages))
	}
}

func TestHistoryUnknownConversation(t *testing.T) {
	e := newEnv(t)

	resp, err := http.Get(e.server.URL + "/api/chat/missing/history")
	if err != nil {
		t.Fatalf("GET /history err: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}

func TestHistoryBadSinceParameter(t *testing.T) {
	e := newEnv(t)

	resp := e.postMessage(t, map[string]string{"patientId": "patient-1", "content": "hello"})
	var accepted care.Accepted
	json.NewDecoder(resp.Body).Decode(&accepted)
	resp.Body.Close()

	badResp, err := http.Get(e.server.URL + "/api/chat/" + accepted.Conversation.ID + "/history?since=abc")
	if err != nil {
		t.Fatalf("GET err: %v", err)
	}
	defer badResp.Body.Close()
	if badResp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", badResp.StatusCode)
	}
	e.careSvc.Wait()
}

func TestProfileEndpoint(t *testing.T) {
	e := newEnv(t)

	resp := e.postMessage(t, map[string]string{"patientId": "patient-1", "content": "hello"})
	var accepted care.Accepted
	json.NewDecoder(resp.Body).Decode(&accepted)
	resp.Body.Close()
	e.careSvc.Wait()

	profResp, err := http.Get(e.server.URL + "/api/chat/" + accepted.Conversation.ID + "/profile")
	if err != nil {
		t.Fatalf("GET /profile err: %v", err)
	}
	defer profResp.Body.Close()
	if profResp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", profResp.StatusCode)
	}

	missing, err := http.Get(e.server.URL + "/api/chat/missing/profile")
	if err != nil {
		t.Fatalf("GET /profile err: %v", err)
	}
	defer missing.Body.Close()
	if missing.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", missing.StatusCode)
	}
}
