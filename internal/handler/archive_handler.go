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

type archiveService interface {
	GetByDemande(ctx context.Context, actor models.Actor, demandeID string) (*dto.ArchiveDownloadResponse, error)
	List(ctx context.Context, actor models.Actor, query dto.ArchiveQuery) ([]models.ArchiveRecord, *models.Pagination, error)
	Download(ctx context.Context, archiveID, token string) (*dto.Document, error)
	Export(ctx context.Context, actor models.Actor, query dto.ArchiveQuery, format string) (*dto.Document, error)
}

// ArchiveHandler manages archive HTTP endpoints.
type ArchiveHandler struct {
	service archiveService
}

// NewArchiveHandler constructs the handler.
func NewArchiveHandler(service archiveService) *ArchiveHandler {
	return &ArchiveHandler{service: service}
}

func archiveQuery(c *gin.Context) dto.ArchiveQuery {
	return dto.ArchiveQuery{
		Type:       strings.TrimSpace(c.Query("type")),
		Reference:  strings.TrimSpace(c.Query("reference")),
		ClosedFrom: strings.TrimSpace(c.Query("closed_from")),
		ClosedTo:   strings.TrimSpace(c.Query("closed_to")),
		Page:       queryInt(c, "page"),
		PageSize:   queryInt(c, "page_size"),
	}
}

// GetByDemande godoc
// @Summary Archive record of a closed request
// @Tags Archives
// @Produce json
// @Param id path string true "Request ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /demandes/{id}/archive [get]
func (h *ArchiveHandler) GetByDemande(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	record, err := h.service.GetByDemande(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, record, nil)
}

// List godoc
// @Summary List archive records
// @Tags Archives
// @Produce json
// @Param type query string false "Request type"
// @Param reference query string false "Reference prefix"
// @Param closed_from query string false "Closed on or after (RFC3339 or YYYY-MM-DD)"
// @Param closed_to query string false "Closed on or before (RFC3339 or YYYY-MM-DD)"
// @Param page query int false "Page"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /archives [get]
func (h *ArchiveHandler) List(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	records, pagination, err := h.service.List(c.Request.Context(), actor, archiveQuery(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, records, pagination)
}

// Export godoc
// @Summary Export the archive register
// @Tags Archives
// @Produce text/csv
// @Produce application/pdf
// @Param format query string false "csv (default) or pdf"
// @Success 200 {file} binary
// @Router /archives/export [get]
func (h *ArchiveHandler) Export(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	doc, err := h.service.Export(c.Request.Context(), actor, archiveQuery(c), c.Query("format"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Document(c, doc.Filename, doc.ContentType, doc.Data, false)
}

// Download godoc
// @Summary Download an archived document via signed token
// @Tags Archives
// @Produce application/pdf
// @Param id path string true "Archive ID"
// @Param token query string true "Signed token"
// @Success 200 {file} binary
// @Router /archives/{id}/download [get]
func (h *ArchiveHandler) Download(c *gin.Context) {
	token := strings.TrimSpace(c.Query("token"))
	if token == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "token is required"))
		return
	}
	doc, err := h.service.Download(c.Request.Context(), c.Param("id"), token)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Document(c, doc.Filename, doc.ContentType, doc.Data, false)
}
