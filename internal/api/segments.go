package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/pulsecrm/engage/internal/domain"
	"github.com/pulsecrm/engage/internal/segmentation"
)

// SegmentAPI handles segment CRUD and rule preview.
type SegmentAPI struct {
	svc *segmentation.Service
}

// NewSegmentAPI creates the segment handler group.
func NewSegmentAPI(svc *segmentation.Service) *SegmentAPI {
	return &SegmentAPI{svc: svc}
}

// RegisterRoutes mounts the segment routes.
func (api *SegmentAPI) RegisterRoutes(r chi.Router) {
	r.Route("/segments", func(r chi.Router) {
		r.Get("/", api.ListSegments)
		r.Post("/", api.CreateSegment)
		r.Post("/preview", api.PreviewSegment)

		r.Route("/{segmentID}", func(r chi.Router) {
			r.Get("/", api.GetSegment)
			r.Put("/", api.UpdateSegment)
			r.Delete("/", api.DeleteSegment)
		})
	})
}

type segmentInput struct {
	Name        string               `json:"name"`
	Description string               `json:"description"`
	Rules       []domain.SegmentRule `json:"rules"`
}

func (api *SegmentAPI) ListSegments(w http.ResponseWriter, r *http.Request) {
	segments, err := api.svc.List(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"segments": segments})
}

func (api *SegmentAPI) CreateSegment(w http.ResponseWriter, r *http.Request) {
	var in segmentInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	s, err := api.svc.Create(r.Context(), in.Name, in.Description, in.Rules)
	if err != nil {
		respondError(w, segmentStatus(err), err.Error())
		return
	}
	respondJSON(w, http.StatusCreated, s)
}

func (api *SegmentAPI) GetSegment(w http.ResponseWriter, r *http.Request) {
	s, err := api.svc.Get(r.Context(), chi.URLParam(r, "segmentID"))
	if err != nil {
		respondError(w, segmentStatus(err), err.Error())
		return
	}
	respondJSON(w, http.StatusOK, s)
}

func (api *SegmentAPI) UpdateSegment(w http.ResponseWriter, r *http.Request) {
	var in segmentInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	s, err := api.svc.Update(r.Context(), chi.URLParam(r, "segmentID"), in.Name, in.Description, in.Rules)
	if err != nil {
		respondError(w, segmentStatus(err), err.Error())
		return
	}
	respondJSON(w, http.StatusOK, s)
}

func (api *SegmentAPI) DeleteSegment(w http.ResponseWriter, r *http.Request) {
	if err := api.svc.Delete(r.Context(), chi.URLParam(r, "segmentID")); err != nil {
		respondError(w, segmentStatus(err), err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// PreviewSegment evaluates a rule set without persisting anything.
func (api *SegmentAPI) PreviewSegment(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Rules []domain.SegmentRule `json:"rules"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	count, err := api.svc.Preview(r.Context(), in.Rules)
	if err != nil {
		respondError(w, segmentStatus(err), err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]int{"customer_count": count})
}

func segmentStatus(err error) int {
	switch {
	case errors.Is(err, segmentation.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, segmentation.ErrNameMissing), errors.Is(err, segmentation.ErrInvalidRule):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
