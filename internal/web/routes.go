package web

import (
	"github.com/go-chi/chi/v5"

	"github.com/kozaktomas/face-id/internal/web/handlers"
)

func (s *Server) setupRoutes() {
	recognitionHandler := handlers.NewRecognitionHandler(s.service, s.logger)
	galleryHandler := handlers.NewGalleryHandler(s.service, s.logger)
	attemptsHandler := handlers.NewAttemptsHandler(s.attempts, s.logger)

	s.router.Get("/api/v1/health", handlers.HealthCheck)

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Post("/enroll", recognitionHandler.Enroll)
		r.Post("/identify", recognitionHandler.Identify)
		r.Post("/verify", recognitionHandler.Verify)

		r.Route("/gallery", func(r chi.Router) {
			r.Get("/stats", galleryHandler.Stats)
			r.Get("/entries", galleryHandler.Entries)
			r.Delete("/identities/{id}", galleryHandler.RemoveIdentity)
		})

		r.Get("/attempts", attemptsHandler.List)
		r.Get("/attempts/stats", attemptsHandler.Stats)
	})
}
