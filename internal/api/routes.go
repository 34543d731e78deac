package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/lumenmail/campaignd/internal/auth"
)

// SetupRoutes builds the admin router. Read endpoints accept any valid
// token; mutating endpoints additionally require the admin role. When
// authEnabled is false every request runs as a local admin.
func SetupRoutes(h *Handlers, tokens *auth.TokenStore, authEnabled bool) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", h.HealthCheck)

	r.Route("/api", func(r chi.Router) {
		r.Use(auth.Middleware(tokens, authEnabled))

		// Read surface
		r.Get("/campaigns", h.ListCampaigns)
		r.Get("/campaigns/{id}", h.GetCampaign)
		r.Get("/campaigns/{id}/preview", h.PreviewCampaign)
		r.Get("/campaigns/{id}/recipients", h.ListRecipients)
		r.Get("/campaigns/{id}/stats", h.CampaignStats)
		r.Get("/campaigns/{id}/timeline", h.CampaignTimeline)
		r.Get("/campaigns/{id}/stream", h.StreamCampaignStatus)
		r.Get("/analytics/best-send-time", h.BestSendTime)
		r.Get("/events/recent", h.RecentEvents)
		r.Get("/audience", h.ListAudience)
		r.Get("/audience/summary", h.AudienceSummary)
		r.Get("/audience/{id}", h.GetAudienceUser)

		// Mutations require the admin role
		r.Group(func(r chi.Router) {
			r.Use(auth.RequireAdmin)

			r.Post("/campaigns", h.CreateCampaign)
			r.Put("/campaigns/{id}", h.UpdateCampaign)
			r.Delete("/campaigns/{id}", h.DeleteCampaign)
			r.Post("/campaigns/{id}/duplicate", h.DuplicateCampaign)
			r.Post("/campaigns/{id}/test", h.TestSendCampaign)
			r.Post("/campaigns/{id}/schedule", h.ScheduleCampaign)
			r.Post("/campaigns/{id}/unschedule", h.UnscheduleCampaign)
			r.Post("/campaigns/{id}/send", h.SendCampaign)
			r.Post("/campaigns/{id}/pause", h.PauseCampaign)
			r.Post("/campaigns/{id}/resume", h.ResumeCampaign)
			r.Post("/campaigns/{id}/cancel", h.CancelCampaign)

			r.Post("/audience", h.CreateAudienceUser)
			r.Post("/audience/{id}/tags", h.AddAudienceTag)
			r.Delete("/audience/{id}/tags/{tag}", h.RemoveAudienceTag)
			r.Post("/audience/{id}/unsubscribe", h.UnsubscribeAudienceUser)
		})
	})

	return r
}
