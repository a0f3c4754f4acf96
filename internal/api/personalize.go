package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/pulsecrm/engage/internal/domain"
	"github.com/pulsecrm/engage/internal/personalize"
)

// PersonalizeAPI previews message rendering against a sample customer so the
// UI can show what a recipient would actually receive.
type PersonalizeAPI struct {
	liquid *personalize.LiquidEngine
}

// NewPersonalizeAPI creates the personalization handler group.
func NewPersonalizeAPI(liquid *personalize.LiquidEngine) *PersonalizeAPI {
	return &PersonalizeAPI{liquid: liquid}
}

// RegisterRoutes mounts the personalization routes.
func (api *PersonalizeAPI) RegisterRoutes(r chi.Router) {
	r.Post("/personalize/preview", api.Preview)
}

type previewInput struct {
	Message  string                  `json:"message"`
	Mode     string                  `json:"mode"`
	Customer domain.CustomerSnapshot `json:"customer"`
}

// Preview renders a message for a sample customer without persisting
// anything. Mode "smart" runs contextual generation, "liquid" forces the
// rich-template path; the default uses the same strategy selection as a
// real send.
func (api *PersonalizeAPI) Preview(w http.ResponseWriter, r *http.Request) {
	var in previewInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if in.Message == "" {
		respondError(w, http.StatusBadRequest, "message is required")
		return
	}

	var strategy personalize.Strategy
	switch in.Mode {
	case "smart":
		strategy = personalize.SmartStrategy(time.Now())
	case "liquid":
		strategy = api.liquid.Strategy()
	default:
		if personalize.UsesLiquid(in.Message) {
			strategy = api.liquid.Strategy()
		} else {
			strategy = personalize.TemplateStrategy
		}
	}

	subject, body := strategy(in.Message, in.Customer)
	respondJSON(w, http.StatusOK, map[string]string{
		"subject": subject,
		"body":    body,
	})
}
