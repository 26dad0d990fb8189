package campaign

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/jwalitptl/campaign-api/internal/handler"
	"github.com/jwalitptl/campaign-api/internal/model"
	campaignService "github.com/jwalitptl/campaign-api/internal/service/campaign"
	"github.com/jwalitptl/campaign-api/pkg/errors"
	"github.com/jwalitptl/campaign-api/pkg/httputil"
)

type Handler struct {
	service campaignService.CampaignService
}

func NewHandler(service campaignService.CampaignService) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	campaigns := r.Group("/campaigns")
	{
		campaigns.POST("", h.CreateCampaign)
		campaigns.GET("", h.ListCampaigns)
		campaigns.GET("/:id", h.GetCampaign)
		campaigns.PATCH("/:id", h.UpdateCampaign)
		campaigns.DELETE("/:id", h.DeleteCampaign)
		campaigns.POST("/:id/send", h.SendCampaign)
		campaigns.POST("/:id/cancel", h.CancelCampaign)
		campaigns.POST("/:id/preview", h.PreviewCampaign)
	}
}

func (h *Handler) CreateCampaign(c *gin.Context) {
	p, ok := handler.Principal(c)
	if !ok {
		return
	}
	var req model.CreateCampaignRequest
	if !handler.BindJSON(c, &req) {
		return
	}

	campaign, err := h.service.Create(c.Request.Context(), p, &req)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, http.StatusCreated, campaign.View())
}

func (h *Handler) ListCampaigns(c *gin.Context) {
	p, ok := handler.Principal(c)
	if !ok {
		return
	}
	var filter model.CampaignFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		httputil.RespondWithError(c, errors.BadRequest("invalid query parameters", err))
		return
	}

	page, err := h.service.List(c.Request.Context(), p, filter)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithPagination(c, page.Items, page.Page, page.PageSize, page.Total)
}

func (h *Handler) GetCampaign(c *gin.Context) {
	p, ok := handler.Principal(c)
	if !ok {
		return
	}
	id, ok := handler.ParamUUID(c, "id", "campaign")
	if !ok {
		return
	}

	campaign, err := h.service.Get(c.Request.Context(), p, id)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, http.StatusOK, campaign.View())
}

func (h *Handler) UpdateCampaign(c *gin.Context) {
	p, ok := handler.Principal(c)
	if !ok {
		return
	}
	id, ok := handler.ParamUUID(c, "id", "campaign")
	if !ok {
		return
	}
	var req model.UpdateCampaignRequest
	if !handler.BindJSON(c, &req) {
		return
	}

	campaign, err := h.service.Update(c.Request.Context(), p, id, &req)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, http.StatusOK, campaign.View())
}

func (h *Handler) DeleteCampaign(c *gin.Context) {
	p, ok := handler.Principal(c)
	if !ok {
		return
	}
	id, ok := handler.ParamUUID(c, "id", "campaign")
	if !ok {
		return
	}

	if err := h.service.Delete(c.Request.Context(), p, id); err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithMessage(c, "campaign deleted")
}

func (h *Handler) SendCampaign(c *gin.Context) {
	p, ok := handler.Principal(c)
	if !ok {
		return
	}
	id, ok := handler.ParamUUID(c, "id", "campaign")
	if !ok {
		return
	}

	campaign, err := h.service.Send(c.Request.Context(), p, id)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, http.StatusAccepted, campaign.View())
}

func (h *Handler) CancelCampaign(c *gin.Context) {
	p, ok := handler.Principal(c)
	if !ok {
		return
	}
	id, ok := handler.ParamUUID(c, "id", "campaign")
	if !ok {
		return
	}

	campaign, err := h.service.Cancel(c.Request.Context(), p, id)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, http.StatusOK, campaign.View())
}

func (h *Handler) PreviewCampaign(c *gin.Context) {
	p, ok := handler.Principal(c)
	if !ok {
		return
	}
	id, ok := handler.ParamUUID(c, "id", "campaign")
	if !ok {
		return
	}
	var req model.PreviewRequest
	if !handler.BindJSON(c, &req) {
		return
	}
	if req.RecipientID == uuid.Nil {
		httputil.RespondWithError(c, errors.Validation("recipient_id", "recipient_id is required"))
		return
	}

	preview, err := h.service.Preview(c.Request.Context(), p, id, req.RecipientID)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, http.StatusOK, preview)
}
