package clinician

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/nightingale-health/backend/internal/middleware"
	clinicianservice "github.com/nightingale-health/backend/internal/service/clinician"
	"github.com/nightingale-health/backend/internal/service/triage"
	"github.com/nightingale-health/backend/pkg/utils"
)

// Handler serves the clinician dashboard API: the triage queue, patient
// views and escalation resolution.
type Handler struct {
	views  *clinicianservice.Service
	triage *triage.Service
	logger zerolog.Logger
}

// New creates the clinician handler.
func New(views *clinicianservice.Service, triageSvc *triage.Service, logger zerolog.Logger) *Handler {
	return &Handler{
		views:  views,
		triage: triageSvc,
		logger: logger.With().Str("component", "clinician_handler").Logger(),
	}
}

// RegisterRoutes mounts the clinician routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/patients", h.handlePatientList)
	r.Get("/patients/{patientID}/profile", h.handlePatientProfile)
	r.Get("/patients/{patientID}/messages", h.handlePatientMessages)
	r.Get("/escalations", h.handlePendingEscalations)
	r.Post("/escalations/{escalationID}/resolve", h.handleResolve)
	r.Get("/ws", h.handleEscalationFeed)
}

func (h *Handler) handlePatientList(w http.ResponseWriter, r *http.Request) {
	rows, err := h.views.PatientList(r.Context())
	if err != nil {
		utils.RespondError(w, http.StatusInternalServerError, "failed to load patients")
		return
	}
	utils.RespondJSON(w, http.StatusOK, rows)
}

func (h *Handler) handlePatientProfile(w http.ResponseWriter, r *http.Request) {
	prof, err := h.views.PatientProfile(r.Context(), chi.URLParam(r, "patientID"))
	if err != nil {
		if errors.Is(err, clinicianservice.ErrPatientNotFound) {
			utils.RespondError(w, http.StatusNotFound, "patient not found")
			return
		}
		utils.RespondError(w, http.StatusInternalServerError, "failed to load profile")
		return
	}
	utils.RespondJSON(w, http.StatusOK, prof)
}

func (h *Handler) handlePatientMessages(w http.ResponseWriter, r *http.Request) {
	msgs, err := h.views.PatientMessages(r.Context(), chi.URLParam(r, "patientID"))
	if err != nil {
		if errors.Is(err, clinicianservice.ErrPatientNotFound) {
			utils.RespondError(w, http.StatusNotFound, "patient not found")
			return
		}
		utils.RespondError(w, http.StatusInternalServerError, "failed to load messages")
		return
	}
	utils.RespondJSON(w, http.StatusOK, msgs)
}

func (h *Handler) handlePendingEscalations(w http.ResponseWriter, r *http.Request) {
	pending, err := h.views.PendingEscalations(r.Context())
	if err != nil {
		utils.RespondError(w, http.StatusInternalServerError, "failed to load escalations")
		return
	}
	utils.RespondJSON(w, http.StatusOK, pending)
}

// handleResolve closes a ticket and injects the clinician's reply into
// the patient's conversation. Exactly one resolve wins; the rest get 409.
func (h *Handler) handleResolve(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Content string `json:"content"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	identity, _ := middleware.IdentityFromContext(r.Context())
	resolved, err := h.triage.Resolve(r.Context(), chi.URLParam(r, "escalationID"), identity.Subject, payload.Content)
	if err != nil {
		switch {
		case errors.Is(err, triage.ErrEmptyReply):
			utils.RespondError(w, http.StatusBadRequest, "reply content is required")
		case errors.Is(err, triage.ErrNotFound):
			utils.RespondError(w, http.StatusNotFound, "escalation not found")
		case errors.Is(err, triage.ErrAlreadyResolved):
			utils.RespondError(w, http.StatusConflict, "escalation already resolved")
		default:
			utils.RespondError(w, http.StatusInternalServerError, "failed to resolve escalation")
		}
		return
	}
	utils.RespondJSON(w, http.StatusOK, resolved)
}
