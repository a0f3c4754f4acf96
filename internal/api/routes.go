// Package api exposes the campaign pipeline over HTTP.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// Handlers bundles the per-resource handler groups that SetupRoutes mounts.
type Handlers struct {
	Segments    *SegmentAPI
	Campaigns   *CampaignAPI
	Receipts    *ReceiptAPI
	AI          *AIAPI
	Personalize *PersonalizeAPI
}

// SetupRoutes configures the router: middleware, CORS, health and the
// /api/v1 resource groups.
func SetupRoutes(h *Handlers) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
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

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api/v1", func(r chi.Router) {
		h.Segments.RegisterRoutes(r)
		h.Campaigns.RegisterRoutes(r)
		h.Receipts.RegisterRoutes(r)
		h.AI.RegisterRoutes(r)
		h.Personalize.RegisterRoutes(r)
	})

	return r
}
