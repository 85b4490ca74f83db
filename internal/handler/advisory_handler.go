package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/demandes-api/internal/models"
	appErrors "github.com/noah-isme/demandes-api/pkg/errors"
	"github.com/noah-isme/demandes-api/pkg/response"
)

type advisoryService interface {
	RecordOpinion(ctx context.Context, demandeID string, actor models.Actor, req models.RecordOpinionRequest) (*models.OpinionResult, error)
	Reconcile(ctx context.Context, demandeID string, actor models.Actor) (*models.OpinionResult, error)
	Rounds(ctx context.Context, demandeID string, actor models.Actor) ([]models.AdvisoryRound, error)
}

// AdvisoryHandler exposes the advisory board endpoints.
type AdvisoryHandler struct {
	service advisoryService
}

// NewAdvisoryHandler constructs the handler.
func NewAdvisoryHandler(service advisoryService) *AdvisoryHandler {
	return &AdvisoryHandler{service: service}
}

// RecordOpinion godoc
// @Summary Record the caller's advisory opinion
// @Tags Advisory
// @Accept json
// @Produce json
// @Param id path string true "Request ID"
// @Param payload body models.RecordOpinionRequest true "Opinion"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /demandes/{id}/advisory/opinions [post]
func (h *AdvisoryHandler) RecordOpinion(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var req models.RecordOpinionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid opinion payload"))
		return
	}
	result, err := h.service.RecordOpinion(c.Request.Context(), c.Param("id"), actor, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Rounds godoc
// @Summary List advisory rounds with their opinions
// @Tags Advisory
// @Produce json
// @Param id path string true "Request ID"
// @Success 200 {object} response.Envelope
// @Router /demandes/{id}/advisory [get]
func (h *AdvisoryHandler) Rounds(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	rounds, err := h.service.Rounds(c.Request.Context(), c.Param("id"), actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, rounds, nil)
}

// Reconcile godoc
// @Summary Re-run aggregation for a round whose conclusion did not commit
// @Tags Advisory
// @Produce json
// @Param id path string true "Request ID"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /demandes/{id}/advisory/reconcile [post]
func (h *AdvisoryHandler) Reconcile(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	result, err := h.service.Reconcile(c.Request.Context(), c.Param("id"), actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}
