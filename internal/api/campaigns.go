package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/pulsecrm/engage/internal/campaign"
	"github.com/pulsecrm/engage/internal/domain"
	"github.com/pulsecrm/engage/internal/segmentation"
)

// CampaignAPI handles campaign lifecycle and dispatch.
type CampaignAPI struct {
	svc *campaign.Service
}

// NewCampaignAPI creates the campaign handler group.
func NewCampaignAPI(svc *campaign.Service) *CampaignAPI {
	return &CampaignAPI{svc: svc}
}

// RegisterRoutes mounts the campaign routes.
func (api *CampaignAPI) RegisterRoutes(r chi.Router) {
	r.Route("/campaigns", func(r chi.Router) {
		r.Get("/", api.ListCampaigns)
		r.Post("/", api.CreateCampaign)

		r.Route("/{campaignID}", func(r chi.Router) {
			r.Get("/", api.GetCampaign)
			r.Post("/send", api.SendCampaign)
			r.Post("/cancel", api.CancelCampaign)
			r.Get("/logs", api.GetCampaignLogs)
		})
	})
}

type campaignInput struct {
	Name            string                     `json:"name"`
	Message         string                     `json:"message"`
	SegmentID       string                     `json:"segment_id"`
	Personalization domain.PersonalizationMode `json:"personalization,omitempty"`
	ScheduledAt     *time.Time                 `json:"scheduled_at,omitempty"`
}

func (api *CampaignAPI) ListCampaigns(w http.ResponseWriter, r *http.Request) {
	campaigns, err := api.svc.List(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"campaigns": campaigns})
}

// CreateCampaign persists the campaign and, when no schedule is set,
// dispatches it within the same request: the response is sent once every
// recipient has a PENDING log and (best effort) a queued job. Actual
// delivery stays asynchronous behind the queue.
func (api *CampaignAPI) CreateCampaign(w http.ResponseWriter, r *http.Request) {
	var in campaignInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	c, err := api.svc.Create(r.Context(), in.Name, in.Message, in.SegmentID, in.Personalization, in.ScheduledAt)
	if err != nil {
		respondError(w, campaignStatus(err), err.Error())
		return
	}
	if in.ScheduledAt != nil {
		respondJSON(w, http.StatusCreated, map[string]interface{}{"campaign": c})
		return
	}

	result, err := api.svc.Send(r.Context(), c.ID)
	if err != nil {
		// The draft exists; the caller can fix the cause and POST /send.
		respondError(w, campaignStatus(err), err.Error())
		return
	}
	if refreshed, err := api.svc.Get(r.Context(), c.ID); err == nil {
		c = refreshed
	}
	respondJSON(w, http.StatusCreated, map[string]interface{}{"campaign": c, "dispatch": result})
}

func (api *CampaignAPI) GetCampaign(w http.ResponseWriter, r *http.Request) {
	c, err := api.svc.Get(r.Context(), chi.URLParam(r, "campaignID"))
	if err != nil {
		respondError(w, campaignStatus(err), err.Error())
		return
	}
	respondJSON(w, http.StatusOK, c)
}

// SendCampaign dispatches the campaign synchronously through enqueue. The
// response reports partial enqueue failures without failing the call.
func (api *CampaignAPI) SendCampaign(w http.ResponseWriter, r *http.Request) {
	result, err := api.svc.Send(r.Context(), chi.URLParam(r, "campaignID"))
	if err != nil {
		respondError(w, campaignStatus(err), err.Error())
		return
	}
	respondJSON(w, http.StatusOK, result)
}

func (api *CampaignAPI) CancelCampaign(w http.ResponseWriter, r *http.Request) {
	c, err := api.svc.Cancel(r.Context(), chi.URLParam(r, "campaignID"))
	if err != nil {
		respondError(w, campaignStatus(err), err.Error())
		return
	}
	respondJSON(w, http.StatusOK, c)
}

func (api *CampaignAPI) GetCampaignLogs(w http.ResponseWriter, r *http.Request) {
	logs, err := api.svc.Logs(r.Context(), chi.URLParam(r, "campaignID"))
	if err != nil {
		respondError(w, campaignStatus(err), err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"logs": logs})
}

func campaignStatus(err error) int {
	switch {
	case errors.Is(err, campaign.ErrNotFound), errors.Is(err, segmentation.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, campaign.ErrNotSendable):
		return http.StatusConflict
	case errors.Is(err, campaign.ErrNoRecipients),
		errors.Is(err, campaign.ErrNameMissing),
		errors.Is(err, campaign.ErrMessageMissing),
		errors.Is(err, campaign.ErrBadPersonalization):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
