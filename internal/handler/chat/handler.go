package chat

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nightingale-health/backend/internal/service/care"
	profileservice "github.com/nightingale-health/backend/internal/service/profile"
	"github.com/nightingale-health/backend/internal/service/session"
	"github.com/nightingale-health/backend/pkg/utils"
)

// Handler serves the patient-facing chat API.
type Handler struct {
	careSvc    *care.Service
	sessions   *session.Service
	profileSvc *profileservice.Service
}

// New creates the chat handler.
func New(careSvc *care.Service, sessions *session.Service, profileSvc *profileservice.Service) *Handler {
	return &Handler{
		careSvc:    careSvc,
		sessions:   sessions,
		profileSvc: profileSvc,
	}
}

// RegisterRoutes mounts the patient chat routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/messages", h.handlePostMessage)
	r.Get("/{conversationID}/history", h.handleHistory)
	r.Get("/{conversationID}/profile", h.handleProfile)
	r.Get("/{conversationID}/stream", h.handleStream)
}

// handlePostMessage accepts a patient turn. The message is persisted and
// acknowledged immediately; risk and profile effects land asynchronously.
func (h *Handler) handlePostMessage(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		ConversationID string `json:"conversationId"`
		PatientID      string `json:"patientId"`
		Content        string `json:"content"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	accepted, err := h.careSvc.HandlePatientMessage(r.Context(), payload.ConversationID, payload.PatientID, payload.Content)
	if err != nil {
		switch {
		case errors.Is(err, session.ErrEmptyMessage):
			utils.RespondError(w, http.StatusBadRequest, "message content is required")
		case errors.Is(err, session.ErrConversationNotFound):
			utils.RespondError(w, http.StatusNotFound, "conversation not found")
		default:
			utils.RespondError(w, http.StatusInternalServerError, "failed to accept message")
		}
		return
	}
	utils.RespondJSON(w, http.StatusAccepted, accepted)
}

// handleHistory returns the transcript plus the conversation's version
// token. Pollers pass ?since=<sequence> to fetch only newer messages.
func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	conversationID := chi.URLParam(r, "conversationID")

	var afterSeq int64
	if raw := r.URL.Query().Get("since"); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			utils.RespondError(w, http.StatusBadRequest, "invalid since parameter")
			return
		}
		afterSeq = parsed
	}

	history, err := h.sessions.GetHistory(r.Context(), conversationID, afterSeq)
	if err != nil {
		if errors.Is(err, session.ErrConversationNotFound) {
			utils.RespondError(w, http.StatusNotFound, "conversation not found")
			return
		}
		utils.RespondError(w, http.StatusInternalServerError, "failed to load history")
		return
	}
	utils.RespondJSON(w, http.StatusOK, history)
}

// handleProfile returns the patient's own structured profile.
func (h *Handler) handleProfile(w http.ResponseWriter, r *http.Request) {
	conversationID := chi.URLParam(r, "conversationID")

	if _, err := h.sessions.GetConversation(r.Context(), conversationID); err != nil {
		if errors.Is(err, session.ErrConversationNotFound) {
			utils.RespondError(w, http.StatusNotFound, "conversation not found")
			return
		}
		utils.RespondError(w, http.StatusInternalServerError, "failed to load profile")
		return
	}

	prof, err := h.profileSvc.Get(r.Context(), conversationID)
	if err != nil {
		utils.RespondError(w, http.StatusInternalServerError, "failed to load profile")
		return
	}
	utils.RespondJSON(w, http.StatusOK, prof)
}

// handleStream pushes history updates over SSE whenever the conversation
// changes; heartbeats keep intermediaries from closing the stream.
func (h *Handler) handleStream(w http.ResponseWriter, r *http.Request) {
	conversationID := chi.URLParam(r, "conversationID")

	flusher, ok := w.(http.Flusher)
	if !ok {
		utils.RespondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}
	if _, err := h.sessions.GetConversation(r.Context(), conversationID); err != nil {
		utils.RespondError(w, http.StatusNotFound, "conversation not found")
		return
	}

	utils.SetupSSEHeaders(w)

	changes, cancel := h.sessions.Hub().Subscribe(conversationID)
	defer cancel()

	ctx := r.Context()
	var lastVersion int64 = -1

	send := func() {
		history, err := h.sessions.GetHistory(ctx, conversationID, 0)
		if err != nil || history.Version == lastVersion {
			return
		}
		lastVersion = history.Version
		utils.SendSSEEvent(w, flusher, "history", history)
	}
	send()

	heartbeat := time.NewTicker(15 * time.Second)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-changes:
			send()
		case <-heartbeat.C:
			utils.SendSSEEvent(w, flusher, "heartbeat", map[string]string{"status": "ok"})
		}
	}
}
