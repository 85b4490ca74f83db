package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/demandes-api/internal/dto"
	"github.com/noah-isme/demandes-api/internal/models"
	appErrors "github.com/noah-isme/demandes-api/pkg/errors"
	"github.com/noah-isme/demandes-api/pkg/response"
)

type demandeService interface {
	Create(ctx context.Context, actor models.Actor, req models.CreateDemandeRequest) (*models.Demande, error)
	Get(ctx context.Context, actor models.Actor, id string) (*dto.DemandeDetail, error)
	List(ctx context.Context, actor models.Actor, query dto.DemandeQuery) ([]models.Demande, *models.Pagination, error)
	UpdatePayload(ctx context.Context, actor models.Actor, id string, req dto.UpdatePayloadRequest) (*dto.DemandeDetail, error)
}

type auditTrail interface {
	Trail(ctx context.Context, actor models.Actor, demandeID string) ([]models.AuditEntry, error)
}

type documentService interface {
	Preview(ctx context.Context, actor models.Actor, demandeID string, req dto.PreviewRequest) (*dto.Document, error)
	DocumentLink(ctx context.Context, actor models.Actor, demandeID string) (*models.DownloadLink, error)
	Download(ctx context.Context, demandeID, token string) (*dto.Document, error)
}

// DemandeHandler exposes request ingestion, reads and documents.
type DemandeHandler struct {
	demandes  demandeService
	audit     auditTrail
	documents documentService
}

// NewDemandeHandler constructs the handler.
func NewDemandeHandler(demandes demandeService, audit auditTrail, documents documentService) *DemandeHandler {
	return &DemandeHandler{demandes: demandes, audit: audit, documents: documents}
}

// Create godoc
// @Summary Submit a new authorization request
// @Tags Demandes
// @Accept json
// @Produce json
// @Param payload body models.CreateDemandeRequest true "Request type and typed payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /demandes [post]
func (h *DemandeHandler) Create(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var req models.CreateDemandeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid request payload"))
		return
	}
	demande, err := h.demandes.Create(c.Request.Context(), actor, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, demande)
}

// List godoc
// @Summary List requests
// @Tags Demandes
// @Produce json
// @Param status query string false "Comma separated statuses"
// @Param type query string false "Request type"
// @Param q query string false "Reference search"
// @Param page query int false "Page"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /demandes [get]
func (h *DemandeHandler) List(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	query := dto.DemandeQuery{
		Status:   c.QueryArray("status"),
		Type:     strings.TrimSpace(c.Query("type")),
		Search:   strings.TrimSpace(c.Query("q")),
		Page:     queryInt(c, "page"),
		PageSize: queryInt(c, "page_size"),
	}
	items, pagination, err := h.demandes.List(c.Request.Context(), actor, query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, pagination)
}

// Get godoc
// @Summary Get a request with the actions available to the caller
// @Tags Demandes
// @Produce json
// @Param id path string true "Request ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /demandes/{id} [get]
func (h *DemandeHandler) Get(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	detail, err := h.demandes.Get(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, detail, nil)
}

// UpdatePayload godoc
// @Summary Correct the payload of a returned request
// @Tags Demandes
// @Accept json
// @Produce json
// @Param id path string true "Request ID"
// @Param payload body dto.UpdatePayloadRequest true "Replacement payload"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /demandes/{id}/payload [put]
func (h *DemandeHandler) UpdatePayload(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var req dto.UpdatePayloadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	detail, err := h.demandes.UpdatePayload(c.Request.Context(), actor, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, detail, nil)
}

// Audit godoc
// @Summary Audit trail of a request
// @Tags Demandes
// @Produce json
// @Param id path string true "Request ID"
// @Success 200 {object} response.Envelope
// @Router /demandes/{id}/audit [get]
func (h *DemandeHandler) Audit(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	entries, err := h.audit.Trail(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, entries, nil)
}

// Preview godoc
// @Summary Render the authorization as it would be signed now
// @Description The signature comes from a multipart "signature" file (POST) or from the stored
// @Description signature of signer_id, which defaults to the caller.
// @Tags Documents
// @Accept multipart/form-data
// @Produce application/pdf
// @Param id path string true "Request ID"
// @Param signer_id query string false "Signer whose stored signature is used"
// @Param signature formData file false "Signature image (PNG, JPEG or SVG)"
// @Success 200 {file} binary
// @Failure 403 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /demandes/{id}/preview [get]
// @Router /demandes/{id}/preview [post]
func (h *DemandeHandler) Preview(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	req := dto.PreviewRequest{SignerID: c.Query("signer_id")}
	if c.Request.Method == http.MethodPost {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxUploadBytes)
		if signer := c.PostForm("signer_id"); signer != "" {
			req.SignerID = signer
		}
		upload, err := readUpload(c, "signature")
		if err != nil {
			response.Error(c, err)
			return
		}
		req.Upload = upload
	}
	doc, err := h.documents.Preview(c.Request.Context(), actor, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Document(c, doc.Filename, doc.ContentType, doc.Data, true)
}

// DocumentLink godoc
// @Summary Issue a signed download URL for the final authorization
// @Tags Documents
// @Produce json
// @Param id path string true "Request ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /demandes/{id}/document [get]
func (h *DemandeHandler) DocumentLink(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	link, err := h.documents.DocumentLink(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, link, nil)
}

// DownloadDocument godoc
// @Summary Download the final authorization via signed token
// @Tags Documents
// @Produce application/pdf
// @Param id path string true "Request ID"
// @Param token query string true "Signed token"
// @Success 200 {file} binary
// @Failure 403 {object} response.Envelope
// @Router /demandes/{id}/document/download [get]
func (h *DemandeHandler) DownloadDocument(c *gin.Context) {
	token := strings.TrimSpace(c.Query("token"))
	if token == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "token is required"))
		return
	}
	doc, err := h.documents.Download(c.Request.Context(), c.Param("id"), token)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Document(c, doc.Filename, doc.ContentType, doc.Data, false)
}
