package dto

import (
	"encoding/json"

	"github.com/noah-isme/demandes-api/internal/models"
)

// DemandeDetail enriches a request with what the caller may do next.
type DemandeDetail struct {
	models.Demande
	AvailableActions []string `json:"available_actions"`
	HasDocument      bool     `json:"has_document"`
}

// UpdatePayloadRequest replaces the payload of a request sent back to its requester.
type UpdatePayloadRequest struct {
	Payload json.RawMessage `json:"payload" validate:"required"`
}

// DemandeQuery captures listing query parameters.
type DemandeQuery struct {
	Status   []string `form:"status"`
	Type     string   `form:"type"`
	Search   string   `form:"q"`
	Page     int      `form:"page"`
	PageSize int      `form:"page_size"`
}
