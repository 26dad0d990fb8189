package recipient

import (
	stderrors "errors"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/campaign-api/internal/handler"
	"github.com/jwalitptl/campaign-api/internal/model"
	recipientService "github.com/jwalitptl/campaign-api/internal/service/recipient"
	"github.com/jwalitptl/campaign-api/pkg/errors"
	"github.com/jwalitptl/campaign-api/pkg/httputil"
)

var allowedExtensions = map[string]bool{".csv": true, ".tsv": true, ".txt": true}

type Handler struct {
	service recipientService.RecipientService
}

func NewHandler(service recipientService.RecipientService) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes mounts the recipient endpoints under /campaigns/:id.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	recipients := r.Group("/campaigns/:id/recipients")
	{
		recipients.POST("", h.AddRecipient)
		recipients.POST("/bulk", h.AddBulk)
		recipients.POST("/upload", h.Upload)
		recipients.GET("", h.ListRecipients)
		recipients.GET("/:rid", h.GetRecipient)
		recipients.DELETE("/:rid", h.DeleteRecipient)
		recipients.DELETE("", h.DeleteAllRecipients)
	}
}

func (h *Handler) AddRecipient(c *gin.Context) {
	p, ok := handler.Principal(c)
	if !ok {
		return
	}
	campaignID, ok := handler.ParamUUID(c, "id", "campaign")
	if !ok {
		return
	}
	var req model.RecipientInput
	if !handler.BindJSON(c, &req) {
		return
	}

	rec, err := h.service.AddRecipient(c.Request.Context(), p, campaignID, req)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, http.StatusCreated, rec)
}

func (h *Handler) AddBulk(c *gin.Context) {
	p, ok := handler.Principal(c)
	if !ok {
		return
	}
	campaignID, ok := handler.ParamUUID(c, "id", "campaign")
	if !ok {
		return
	}
	var req model.BulkRecipientsRequest
	if !handler.BindJSON(c, &req) {
		return
	}

	result, err := h.service.AddBulk(c.Request.Context(), p, campaignID, req.Recipients)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, http.StatusOK, result)
}

// Upload ingests a delimited file sent as the multipart field "file". The
// optional "delimiter" field overrides the default of comma (tab for .tsv).
func (h *Handler) Upload(c *gin.Context) {
	p, ok := handler.Principal(c)
	if !ok {
		return
	}
	campaignID, ok := handler.ParamUUID(c, "id", "campaign")
	if !ok {
		return
	}

	header, err := c.FormFile("file")
	if err != nil {
		var maxErr *http.MaxBytesError
		if stderrors.As(err, &maxErr) {
			httputil.RespondWithError(c, errors.Format("file too large", err))
			return
		}
		httputil.RespondWithError(c, errors.Validation("file", "file is required"))
		return
	}

	ext := strings.ToLower(filepath.Ext(header.Filename))
	if !allowedExtensions[ext] {
		httputil.RespondWithError(c, errors.Format("file must be .csv, .tsv or .txt", nil))
		return
	}

	raw := c.PostForm("delimiter")
	if raw == "" && ext == ".tsv" {
		raw = "tab"
	}
	delimiter, err := recipientService.ParseDelimiter(raw)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	file, err := header.Open()
	if err != nil {
		httputil.RespondWithError(c, errors.Format("could not read uploaded file", err))
		return
	}
	defer file.Close()

	result, err := h.service.Upload(c.Request.Context(), p, campaignID, file, delimiter)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, http.StatusOK, result)
}

func (h *Handler) ListRecipients(c *gin.Context) {
	p, ok := handler.Principal(c)
	if !ok {
		return
	}
	campaignID, ok := handler.ParamUUID(c, "id", "campaign")
	if !ok {
		return
	}
	var filter model.RecipientFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		httputil.RespondWithError(c, errors.BadRequest("invalid query parameters", err))
		return
	}

	page, err := h.service.List(c.Request.Context(), p, campaignID, filter)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithPagination(c, page.Items, page.Page, page.PageSize, page.Total)
}

func (h *Handler) GetRecipient(c *gin.Context) {
	p, ok := handler.Principal(c)
	if !ok {
		return
	}
	campaignID, ok := handler.ParamUUID(c, "id", "campaign")
	if !ok {
		return
	}
	id, ok := handler.ParamUUID(c, "rid", "recipient")
	if !ok {
		return
	}

	rec, err := h.service.Get(c.Request.Context(), p, campaignID, id)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, http.StatusOK, rec)
}

func (h *Handler) DeleteRecipient(c *gin.Context) {
	p, ok := handler.Principal(c)
	if !ok {
		return
	}
	campaignID, ok := handler.ParamUUID(c, "id", "campaign")
	if !ok {
		return
	}
	id, ok := handler.ParamUUID(c, "rid", "recipient")
	if !ok {
		return
	}

	if err := h.service.Delete(c.Request.Context(), p, campaignID, id); err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithMessage(c, "recipient deleted")
}

func (h *Handler) DeleteAllRecipients(c *gin.Context) {
	p, ok := handler.Principal(c)
	if !ok {
		return
	}
	campaignID, ok := handler.ParamUUID(c, "id", "campaign")
	if !ok {
		return
	}

	n, err := h.service.DeleteAll(c.Request.Context(), p, campaignID)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, http.StatusOK, gin.H{"deleted_count": n})
}
