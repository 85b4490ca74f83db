package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/demandes-api/internal/dto"
	appErrors "github.com/noah-isme/demandes-api/pkg/errors"
	"github.com/noah-isme/demandes-api/pkg/response"
)

type documentVerifier interface {
	Verify(ctx context.Context, code string) (*dto.VerificationResult, error)
}

// VerificationHandler answers public checks of printed verification codes.
type VerificationHandler struct {
	verifier documentVerifier
}

// NewVerificationHandler constructs the handler.
func NewVerificationHandler(verifier documentVerifier) *VerificationHandler {
	return &VerificationHandler{verifier: verifier}
}

// Verify godoc
// @Summary Verify an authorization's printed code
// @Tags Documents
// @Produce json
// @Param code path string true "Verification code"
// @Success 200 {object} response.Envelope
// @Router /verify/{code} [get]
func (h *VerificationHandler) Verify(c *gin.Context) {
	code := strings.TrimSpace(c.Param("code"))
	if code == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "code is required"))
		return
	}
	result, err := h.verifier.Verify(c.Request.Context(), code)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}
