package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	chathandler "github.com/nightingale-health/backend/internal/handler/chat"
	clinicianhandler "github.com/nightingale-health/backend/internal/handler/clinician"
	middlewarePkg "github.com/nightingale-health/backend/internal/middleware"
	"github.com/nightingale-health/backend/internal/service/care"
	clinicianservice "github.com/nightingale-health/backend/internal/service/clinician"
	profileservice "github.com/nightingale-health/backend/internal/service/profile"
	"github.com/nightingale-health/backend/internal/service/session"
	"github.com/nightingale-health/backend/internal/service/triage"
)

// NewRouter wires HTTP routes to core services. Clinician routes sit
// behind the JWT role check; patient routes are open at this layer, the
// gateway in front owns patient authentication.
func NewRouter(careSvc *care.Service, sessions *session.Service, profiles *profileservice.Service,
	views *clinicianservice.Service, triageSvc *triage.Service, jwtSecret string, logger zerolog.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middlewarePkg.RequestLogger(logger))
	r.Use(chimw.Recoverer)
	r.Use(middlewarePkg.CORS)

	chatHandler := chathandler.New(careSvc, sessions, profiles)
	clinicianHandler := clinicianhandler.New(views, triageSvc, logger)

	r.Route("/api", func(api chi.Router) {
		api.Route("/chat", chatHandler.RegisterRoutes)
		api.Route("/clinician", func(cr chi.Router) {
			cr.Use(middlewarePkg.RequireClinician(jwtSecret))
			clinicianHandler.RegisterRoutes(cr)
		})
	})

	return r
}
