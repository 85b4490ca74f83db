package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/demandes-api/internal/models"
	appErrors "github.com/noah-isme/demandes-api/pkg/errors"
	"github.com/noah-isme/demandes-api/pkg/response"
)

type signatureStore interface {
	Store(ctx context.Context, actor models.Actor, upload models.SignatureUpload) error
}

// SignatureHandler lets signers register their canonical signature.
type SignatureHandler struct {
	service signatureStore
}

// NewSignatureHandler constructs the handler.
func NewSignatureHandler(service signatureStore) *SignatureHandler {
	return &SignatureHandler{service: service}
}

// Upload godoc
// @Summary Register the caller's signature image
// @Tags Documents
// @Accept multipart/form-data
// @Produce json
// @Param signature formData file true "PNG, JPEG or SVG signature"
// @Success 204
// @Failure 403 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /signatures/me [put]
func (h *SignatureHandler) Upload(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxUploadBytes)
	upload, err := readUpload(c, "signature")
	if err != nil {
		response.Error(c, err)
		return
	}
	if upload == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "signature file is required"))
		return
	}
	if err := h.service.Store(c.Request.Context(), actor, *upload); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
