package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/pulsecrm/engage/internal/ai"
	"github.com/pulsecrm/engage/internal/campaign"
)

// AIAPI exposes the resilience-layer operations. Responses always carry a
// usable payload; the source field tells callers which tier produced it.
type AIAPI struct {
	svc       *ai.Service
	campaigns *campaign.Service
}

// NewAIAPI creates the AI handler group.
func NewAIAPI(svc *ai.Service, campaigns *campaign.Service) *AIAPI {
	return &AIAPI{svc: svc, campaigns: campaigns}
}

// RegisterRoutes mounts the AI routes.
func (api *AIAPI) RegisterRoutes(r chi.Router) {
	r.Route("/ai", func(r chi.Router) {
		r.Post("/infer-rules", api.InferRules)
		r.Post("/variants", api.GenerateVariants)
		r.Get("/insights/{campaignID}", api.GenerateInsights)
		r.Get("/health", api.GetHealth)
	})
}

func (api *AIAPI) InferRules(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Prompt string `json:"prompt"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	res, err := api.svc.InferSegmentRules(r.Context(), in.Prompt)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, res)
}

func (api *AIAPI) GenerateVariants(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Message string `json:"message"`
		Count   int    `json:"count"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	res, err := api.svc.GenerateMessageVariants(r.Context(), in.Message, in.Count)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, res)
}

func (api *AIAPI) GenerateInsights(w http.ResponseWriter, r *http.Request) {
	c, err := api.campaigns.Get(r.Context(), chi.URLParam(r, "campaignID"))
	if err != nil {
		respondError(w, campaignStatus(err), err.Error())
		return
	}
	res, err := api.svc.GenerateInsights(r.Context(), c)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, res)
}

func (api *AIAPI) GetHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, api.svc.CheckHealth())
}
