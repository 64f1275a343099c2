package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/BradenHooton/scribe/internal/models"
	pkghttp "github.com/BradenHooton/scribe/pkg/http"
	"github.com/go-chi/chi/v5"
)

// CampaignService defines the campaign registry operations
type CampaignService interface {
	Now() time.Time
	Get(ctx context.Context, id string) (*models.Campaign, error)
	List(ctx context.Context) ([]*models.Campaign, error)
	Create(ctx context.Context, actor models.Actor, input models.CampaignInput) (*models.Campaign, error)
	Update(ctx context.Context, actor models.Actor, id string, input models.CampaignInput) (*models.Campaign, error)
	Toggle(ctx context.Context, actor models.Actor, id string, isActive bool, reason string) (*models.Campaign, error)
	Delete(ctx context.Context, actor models.Actor, id, reason string) error
}

// CampaignHandler handles campaign registry requests
type CampaignHandler struct {
	service  CampaignService
	ipConfig *pkghttp.IPConfig
	logger   *slog.Logger
}

// NewCampaignHandler creates a new CampaignHandler
func NewCampaignHandler(service CampaignService, ipConfig *pkghttp.IPConfig, logger *slog.Logger) *CampaignHandler {
	return &CampaignHandler{service: service, ipConfig: ipConfig, logger: logger}
}

// RegisterRoutes registers the campaign routes under /campaigns
func (h *CampaignHandler) RegisterRoutes(router chi.Router) {
	router.Route("/campaigns", func(r chi.Router) {
		r.Get("/", h.List)
		r.Post("/", h.Create)
		r.Get("/{id}", h.Get)
		r.Put("/{id}", h.Update)
		r.Delete("/{id}", h.Delete)
		r.Post("/{id}/toggle", h.Toggle)
	})
}

// List handles GET /admin/campaigns
func (h *CampaignHandler) List(w http.ResponseWriter, r *http.Request) {
	campaigns, err := h.service.List(r.Context())
	if err != nil {
		pkghttp.WriteDomainError(w, h.logger, err)
		return
	}

	now := h.service.Now()
	resp := ListCampaignsResponse{
		Campaigns: make([]*CampaignResponse, len(campaigns)),
		Total:     len(campaigns),
	}
	for i, c := range campaigns {
		resp.Campaigns[i] = campaignToResponse(c, now)
	}

	pkghttp.WriteJSON(w, http.StatusOK, resp)
}

// Get handles GET /admin/campaigns/{id}
func (h *CampaignHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "id")
	if !ok {
		return
	}

	campaign, err := h.service.Get(r.Context(), id)
	h.writeCampaign(w, http.StatusOK, campaign, err)
}

// Create handles POST /admin/campaigns
func (h *CampaignHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CampaignRequest
	if err := decodeJSON(r, &req, false); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	campaign, err := h.service.Create(r.Context(), actorFromRequest(r, h.ipConfig), req.toInput())
	h.writeCampaign(w, http.StatusCreated, campaign, err)
}

// Update handles PUT /admin/campaigns/{id}
func (h *CampaignHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "id")
	if !ok {
		return
	}

	var req CampaignRequest
	if err := decodeJSON(r, &req, false); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	campaign, err := h.service.Update(r.Context(), actorFromRequest(r, h.ipConfig), id, req.toInput())
	h.writeCampaign(w, http.StatusOK, campaign, err)
}

// Toggle handles POST /admin/campaigns/{id}/toggle
func (h *CampaignHandler) Toggle(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "id")
	if !ok {
		return
	}

	var req ToggleCampaignRequest
	if err := decodeJSON(r, &req, false); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	campaign, err := h.service.Toggle(r.Context(), actorFromRequest(r, h.ipConfig), id, *req.IsActive, req.Reason)
	h.writeCampaign(w, http.StatusOK, campaign, err)
}

// Delete handles DELETE /admin/campaigns/{id}. The reason body is optional.
func (h *CampaignHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "id")
	if !ok {
		return
	}

	var req ReasonRequest
	if err := decodeJSON(r, &req, true); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	if err := h.service.Delete(r.Context(), actorFromRequest(r, h.ipConfig), id, req.Reason); err != nil {
		pkghttp.WriteDomainError(w, h.logger, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *CampaignHandler) writeCampaign(w http.ResponseWriter, status int, c *models.Campaign, err error) {
	if err != nil {
		pkghttp.WriteDomainError(w, h.logger, err)
		return
	}
	pkghttp.WriteJSON(w, status, campaignToResponse(c, h.service.Now()))
}
